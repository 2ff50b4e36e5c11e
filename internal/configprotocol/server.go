package configprotocol

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/module"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/openDAQ/openDAQ-sub000/internal/transport/ws"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// ServerConfig holds the ConfigProtocol server's tuning parameters,
// following the teacher's direct-struct Config/DefaultConfig pattern
// (pkg/config/config.go) rather than a dynamic PropertyObject.
type ServerConfig struct {
	Transport         ws.Config
	RequestTimeout    time.Duration
	ClientSendBuffer  int
	MaxClientDrops    int
	SubscribeCapacity int
}

// DefaultServerConfig returns the server's default tuning.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Transport:         ws.DefaultConfig(),
		RequestTimeout:    5 * time.Second,
		ClientSendBuffer:  256,
		MaxClientDrops:    32,
		SubscribeCapacity: 1024,
	}
}

func fillServerDefaults(c ServerConfig) ServerConfig {
	d := DefaultServerConfig()
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ClientSendBuffer == 0 {
		c.ClientSendBuffer = d.ClientSendBuffer
	}
	if c.MaxClientDrops == 0 {
		c.MaxClientDrops = d.MaxClientDrops
	}
	if c.SubscribeCapacity == 0 {
		c.SubscribeCapacity = d.SubscribeCapacity
	}
	return c
}

// Server is the native ConfigProtocol server for one served subtree:
// handshake and client-type admission, request dispatch, core-event
// and packet notification fan-out (spec §4.4). One Server instance
// serves exactly one physical device's worth of admission state, the
// way the original's single "config channel" per device is modeled.
type Server struct {
	cfg       ServerConfig
	root      *component.Component
	types     *component.TypeManager
	mgr       *module.Manager
	admission *supervisor.Admission
	transport *ws.Server
	framer    *messages.Framer
	log       *logger.Logger

	mu      sync.Mutex
	clients map[string]*serverClient
	seqMu   sync.Mutex
	seq     map[string]*uint64 // relative signal id -> sequence counter
}

type serverClient struct {
	id         string
	conn       *ws.Conn
	clientType supervisor.ClientType
	version    int
	drops      int32 // consecutive failed sends, reset on success
	dropOnce   sync.Once

	mu   sync.Mutex
	subs map[string]*serverSubscription // relative signal id -> subscription
}

type serverSubscription struct {
	port   *signal.InputPort
	reader *signal.Reader
	cancel context.CancelFunc
}

// NewServer creates a ConfigProtocol server exposing root's subtree.
// mgr may be nil if the server should reject AddComponent/RemoveComponent
// for dynamic function blocks.
func NewServer(root *component.Component, types *component.TypeManager, mgr *module.Manager, cfg ServerConfig) *Server {
	cfg = fillServerDefaults(cfg)
	s := &Server{
		cfg:     cfg,
		root:    root,
		types:   types,
		mgr:     mgr,
		framer:  messages.NewFramer(),
		log:     logger.New("configprotocol.server"),
		clients: make(map[string]*serverClient),
		seq:     make(map[string]*uint64),
	}
	s.admission = supervisor.NewAdmission(s.forceDisconnect)
	s.transport = ws.NewServer(cfg.Transport, s.log, s.onConn)
	return s
}

// Start begins listening and forwarding core-bus events to every
// connected client.
func (s *Server) Start() error {
	if err := s.transport.Start(); err != nil {
		return err
	}
	if bus := s.root.Bus(); bus != nil {
		go s.forwardCoreEvents(bus.Subscribe())
	}
	return nil
}

// Stop closes every connection and shuts down the listener.
func (s *Server) Stop() error {
	return s.transport.Stop()
}

func (s *Server) forwardCoreEvents(sub *component.Subscription) {
	for ev := range sub.Ch {
		params := relativizeParams(s.root, ev.Parameters)
		if ev.Kind == component.EventDataDescriptorChanged {
			params = wireifyDescriptorParams(params)
		}
		notif := messages.CoreEventNotification{
			Kind:       string(ev.Kind),
			GlobalID:   RelativeID(s.root, mustResolve(s.root, ev.GlobalID)),
			Parameters: params,
		}
		frame, err := s.framer.NewNotification(messages.NotifyCoreEvent, notif)
		if err != nil {
			continue
		}
		s.broadcast(frame)
	}
}

// wireifyDescriptorParams converts a DataDescriptorChanged event's
// "DataDescriptor"/"DomainDescriptor" parameters from the in-process
// *signal.DataDescriptor Go value Signal.SetDescriptor attaches them
// as into the same §6 wire form GetComponentTreeSnapshot uses, so a
// client decoding the notification's JSON sees the same shape either
// way (spec §4.5).
func wireifyDescriptorParams(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		if k != "DataDescriptor" && k != "DomainDescriptor" {
			out[k] = v
			continue
		}
		desc, _ := v.(*signal.DataDescriptor)
		out[k] = descriptorToWire(desc)
	}
	return out
}

// mustResolve returns the component the event's absolute global id
// names, or root itself if it can no longer be found (the component
// may have just been removed; the client still needs the notification).
func mustResolve(root *component.Component, absoluteGlobalID string) *component.Component {
	if c, ok := root.FindByGlobalID(absoluteGlobalID); ok {
		return c
	}
	return root
}

// relativizeParams rewrites the "Component"/"InputPort" entries a few
// CoreEvent kinds carry (ComponentAdded/Removed, SignalConnected/
// Disconnected) from s.root-absolute global ids to paths relative to
// s.root, the same convention every other id in the wire protocol uses
// (spec §4.5). The target may already be gone (ComponentRemoved fires
// after the child is unlinked), so this rewrites the string directly
// rather than resolving it through the tree.
func relativizeParams(root *component.Component, params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	rootAbs := root.GlobalID()
	for k, v := range params {
		if s, ok := v.(string); ok && (k == "Component" || k == "InputPort") {
			if s == rootAbs {
				out[k] = ""
			} else {
				out[k] = strings.TrimPrefix(s, rootAbs)
			}
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Server) broadcast(frame *messages.Frame) {
	s.mu.Lock()
	clients := make([]*serverClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()
	for _, c := range clients {
		s.trySend(c, frame)
	}
}

// trySend delivers frame to c without blocking the caller. Per-client
// backpressure: a client whose send buffer is full too many times in a
// row is dropped with a ReconnectRequested status and must reconnect
// (spec §4.4 "per-client send buffer... drop the slowest client with a
// ReconnectRequested status rather than blocking other clients"). The
// drop itself runs off the broadcast path so the slow client never
// delays delivery to the others.
func (s *Server) trySend(c *serverClient, frame *messages.Frame) {
	select {
	case c.conn.Send <- frame:
		atomic.StoreInt32(&c.drops, 0)
	default:
		if atomic.AddInt32(&c.drops, 1) >= int32(s.cfg.MaxClientDrops) {
			c.dropOnce.Do(func() {
				s.log.Warnf("client %s exceeded send backlog, requesting reconnect", c.id)
				go s.dropClient(c, string(supervisor.StatusReconnectRequested), "send buffer overflow")
			})
		}
	}
}

// dropClient sends one final ConnectionStatusUpdate naming why the
// server is closing the connection, waits briefly for room in the
// send buffer, then closes. The dropped client's OnStatus callback
// sees the update before its Done channel fires, so it can tell a
// backpressure drop or control eviction apart from an ordinary link
// loss.
func (s *Server) dropClient(c *serverClient, status, reason string) {
	if frame, err := s.framer.NewNotification(messages.NotifyConnectionStatusUpdate, messages.ConnectionStatusUpdate{Status: status, Reason: reason}); err == nil {
		select {
		case c.conn.Send <- frame:
		case <-time.After(200 * time.Millisecond):
		case <-c.conn.Done():
		}
	}
	c.conn.CloseAfterDrain(200 * time.Millisecond)
}

func (s *Server) onConn(conn *ws.Conn) {
	c := &serverClient{id: uuid.NewString(), conn: conn, subs: make(map[string]*serverSubscription)}
	go s.serveClient(c)
}

func (s *Server) serveClient(c *serverClient) {
	defer s.cleanupClient(c)
	for {
		select {
		case frame, ok := <-c.conn.Recv:
			if !ok {
				return
			}
			s.handleFrame(c, frame)
		case <-c.conn.Done():
			return
		}
	}
}

func (s *Server) cleanupClient(c *serverClient) {
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.cancel()
	}
	c.mu.Unlock()
	s.admission.Disconnect(c.id)
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()
}

// forceDisconnect is the admission state machine's Disconnector: an
// evicted client receives a final status update carrying the eviction
// reason (spec §4.4 "send disconnect with reason=ControlDropped")
// before its connection is closed. Synchronous, so every eviction
// completes before the new exclusive client's handshake response is
// written.
func (s *Server) forceDisconnect(clientID string, reason supervisor.DisconnectReason) {
	s.mu.Lock()
	c, ok := s.clients[clientID]
	s.mu.Unlock()
	if !ok {
		return
	}
	c.dropOnce.Do(func() {
		s.dropClient(c, "Disconnected", string(reason))
	})
}

func (s *Server) handleFrame(c *serverClient, frame *messages.Frame) {
	op := messages.RequestOp(frame.Header.Op)
	if op != messages.OpHandshake && op != "" {
		if c.version > 0 && messages.MinVersionFor(op) > c.version {
			s.respondError(c, frame, daqerr.ServerVersionTooLow, "client negotiated a lower protocol version than this operation requires")
			return
		}
	}

	switch op {
	case messages.OpHandshake:
		s.handleHandshake(c, frame)
	case messages.OpGetComponentTreeSnapshot:
		s.handleSnapshot(c, frame)
	case messages.OpGetComponentSnapshot:
		s.handleGetComponentSnapshot(c, frame)
	case messages.OpGetPropertyValue:
		s.handleGetProperty(c, frame)
	case messages.OpSetPropertyValue:
		s.handleSetProperty(c, frame)
	case messages.OpCallProcedure, messages.OpCallFunction:
		s.handleCall(c, frame)
	case messages.OpAddComponent:
		s.handleAddComponent(c, frame)
	case messages.OpRemoveComponent:
		s.handleRemoveComponent(c, frame)
	case messages.OpSubscribe:
		s.handleSubscribe(c, frame)
	case messages.OpUnsubscribe:
		s.handleUnsubscribe(c, frame)
	case messages.OpLockDevice:
		s.handleLock(c, frame)
	case messages.OpUnlockDevice:
		s.handleUnlock(c, frame)
	default:
		s.respondError(c, frame, daqerr.InvalidParameter, "unknown request op")
	}
}

func (s *Server) respond(c *serverClient, frame *messages.Frame, payload interface{}) {
	resp, err := s.framer.NewResponse(frame.Header.ID, payload)
	if err != nil {
		return
	}
	select {
	case c.conn.Send <- resp:
	case <-c.conn.Done():
	}
}

func (s *Server) respondError(c *serverClient, frame *messages.Frame, kind daqerr.Kind, message string) {
	resp, err := s.framer.NewErrorResponse(frame.Header.ID, string(kind), message)
	if err != nil {
		return
	}
	select {
	case c.conn.Send <- resp:
	case <-c.conn.Done():
	}
}

func (s *Server) respondErr(c *serverClient, frame *messages.Frame, err error) {
	if e, ok := err.(*daqerr.Error); ok {
		s.respondError(c, frame, e.Kind, e.Message)
		return
	}
	s.respondError(c, frame, daqerr.InvalidValue, err.Error())
}

func (s *Server) handleHandshake(c *serverClient, frame *messages.Frame) {
	var p messages.HandshakePayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed handshake payload")
		return
	}
	clientType := supervisor.ClientType(p.ClientType)
	if clientType == "" {
		clientType = supervisor.ViewOnly
	}
	if err := s.admission.Request(c.id, p.HostName, clientType, p.DropOthers); err != nil {
		s.respondErr(c, frame, err)
		return
	}

	negotiated := messages.ProtocolVersionCurrent
	if p.ClientMaxVersion > 0 && p.ClientMaxVersion < negotiated {
		negotiated = p.ClientMaxVersion
	}
	c.clientType = clientType
	c.version = negotiated

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.respond(c, frame, messages.HandshakeResult{
		NegotiatedVersion: negotiated,
		ClientID:          c.id,
		RootGlobalID:      "",
	})
}

func (s *Server) handleSnapshot(c *serverClient, frame *messages.Frame) {
	s.respond(c, frame, BuildSnapshot(s.root, s.types))
}

func (s *Server) handleGetComponentSnapshot(c *serverClient, frame *messages.Frame) {
	var p messages.ComponentSnapshotRequest
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.ComponentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, BuildComponentSnapshot(s.root, target))
}

func (s *Server) resolveTarget(relID string) (*component.Component, error) {
	target, ok := Resolve(s.root, relID)
	if !ok {
		return nil, daqerr.Newf(daqerr.NotFound, relID, "no component at %q", relID)
	}
	return target, nil
}

func (s *Server) handleGetProperty(c *serverClient, frame *messages.Frame) {
	var p messages.PropertyValuePayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.ComponentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	val, err := target.Props.GetPropertyValue(p.PropertyName)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, messages.PropertyValuePayload{ComponentGlobalID: p.ComponentGlobalID, PropertyName: p.PropertyName, Value: val})
}

func (s *Server) handleSetProperty(c *serverClient, frame *messages.Frame) {
	var p messages.PropertyValuePayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.ComponentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	if dev := nearestDevice(target); dev != nil && !dev.CanWrite(c.id) {
		s.respondError(c, frame, daqerr.DeviceLocked, "device is locked by another client")
		return
	}
	if err := target.Props.SetPropertyValue(p.PropertyName, p.Value, p.Protected); err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, struct{}{})
}

func (s *Server) handleCall(c *serverClient, frame *messages.Frame) {
	var p messages.CallPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.ComponentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	result, err := target.Props.Call(p.PropertyName, p.Arguments)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, messages.CallResult{Value: result})
}

// nearestDevice walks up from c looking for the owning *device.Device,
// the scope device locking applies to (spec §5).
func nearestDevice(c *component.Component) *device.Device {
	for cur := c; cur != nil; cur = cur.Parent() {
		if dev, ok := cur.Self().(*device.Device); ok {
			return dev
		}
	}
	return nil
}

func (s *Server) handleAddComponent(c *serverClient, frame *messages.Frame) {
	var p messages.ComponentMutationPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	if s.mgr == nil {
		s.respondError(c, frame, daqerr.InvalidValue, "this server does not support dynamic component creation")
		return
	}
	parent, err := s.resolveTarget(p.ParentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	dev, ok := parent.Self().(*device.Device)
	if !ok {
		s.respondError(c, frame, daqerr.InvalidParameter, "parent is not a device")
		return
	}
	if !dev.CanWrite(c.id) {
		s.respondError(c, frame, daqerr.DeviceLocked, "device is locked by another client")
		return
	}
	localID := dev.NextFunctionBlockLocalID(p.TypeID)
	fb, err := s.mgr.CreateFunctionBlock(p.TypeID, localID, s.root.Bus())
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	if err := dev.AttachFunctionBlock(fb); err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, messages.ComponentMutationPayload{ParentGlobalID: p.ParentGlobalID, Kind: p.Kind, TypeID: p.TypeID, LocalID: fb.LocalID()})
}

func (s *Server) handleRemoveComponent(c *serverClient, frame *messages.Frame) {
	var p messages.ComponentMutationPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.ParentGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	fb, ok := target.Self().(*device.FunctionBlock)
	if !ok {
		s.respondError(c, frame, daqerr.InvalidParameter, "target is not a function block")
		return
	}
	dev := nearestDevice(target)
	if dev == nil {
		s.respondError(c, frame, daqerr.NotFound, "owning device not found")
		return
	}
	if !dev.CanWrite(c.id) {
		s.respondError(c, frame, daqerr.DeviceLocked, "device is locked by another client")
		return
	}
	if err := dev.RemoveFunctionBlock(fb); err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, struct{}{})
}

func (s *Server) handleLock(c *serverClient, frame *messages.Frame) {
	var p messages.LockPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.DeviceGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	dev, ok := target.Self().(*device.Device)
	if !ok {
		s.respondError(c, frame, daqerr.InvalidParameter, "target is not a device")
		return
	}
	// Lock ownership is keyed by the connection's client id, the same
	// identity every write check (CanWrite) compares against -- p.User
	// is ignored and never used as the ownership key, so a client can
	// never lock under one identity and write under another.
	if err := dev.Lock(c.id); err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, struct{}{})
}

func (s *Server) handleUnlock(c *serverClient, frame *messages.Frame) {
	var p messages.LockPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.DeviceGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	dev, ok := target.Self().(*device.Device)
	if !ok {
		s.respondError(c, frame, daqerr.InvalidParameter, "target is not a device")
		return
	}
	if err := dev.Unlock(c.id); err != nil {
		s.respondErr(c, frame, err)
		return
	}
	s.respond(c, frame, struct{}{})
}

func (s *Server) nextSeq(relID string) uint64 {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	ctr, ok := s.seq[relID]
	if !ok {
		var zero uint64
		ctr = &zero
		s.seq[relID] = ctr
	}
	return atomic.AddUint64(ctr, 1)
}

func (s *Server) handleSubscribe(c *serverClient, frame *messages.Frame) {
	var p messages.SubscriptionPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	target, err := s.resolveTarget(p.SignalGlobalID)
	if err != nil {
		s.respondErr(c, frame, err)
		return
	}
	sig, ok := target.Self().(*signal.Signal)
	if !ok {
		s.respondError(c, frame, daqerr.InvalidParameter, "target is not a signal")
		return
	}

	c.mu.Lock()
	if _, already := c.subs[p.SignalGlobalID]; already {
		c.mu.Unlock()
		s.respond(c, frame, struct{}{})
		return
	}
	port := signal.NewInputPort(c.id+"#"+p.SignalGlobalID, nil, nil, signal.NotifyOnEachPacket)
	if err := port.Connect(sig, s.cfg.SubscribeCapacity, signal.OverflowDropOldest); err != nil {
		c.mu.Unlock()
		s.respondErr(c, frame, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &serverSubscription{port: port, reader: signal.NewReader(port.Connection()), cancel: cancel}
	c.subs[p.SignalGlobalID] = sub
	c.mu.Unlock()

	go s.drainSubscription(c, p.SignalGlobalID, sub, ctx)
	s.respond(c, frame, struct{}{})
}

func (s *Server) handleUnsubscribe(c *serverClient, frame *messages.Frame) {
	var p messages.SubscriptionPayload
	if err := frame.UnmarshalPayload(&p); err != nil {
		s.respondError(c, frame, daqerr.InvalidParameter, "malformed payload")
		return
	}
	c.mu.Lock()
	sub, ok := c.subs[p.SignalGlobalID]
	delete(c.subs, p.SignalGlobalID)
	c.mu.Unlock()
	if ok {
		sub.cancel()
		sub.port.Disconnect()
	}
	s.respond(c, frame, struct{}{})
}

// drainSubscription forwards packets from one subscribed signal to one
// client until the subscription is cancelled or the client disconnects.
func (s *Server) drainSubscription(c *serverClient, sigRelID string, sub *serverSubscription, ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.conn.Done():
			return
		default:
		}

		res, err := sub.reader.Read(32, 200*time.Millisecond)
		if err != nil {
			return
		}
		if res.DescriptorHit {
			seq := s.nextSeq(sigRelID)
			ev := descriptorChangedWire(sigRelID, seq, res.ValueDescriptor, res.DomainDescriptor, res.DomainDescriptor != nil)
			if notif, err := marshalPacketNotification(sigRelID, true, ev); err == nil {
				if frame, err := s.framer.NewNotification(messages.NotifyPacket, notif); err == nil {
					s.trySend(c, frame)
				}
			}
		}
		for _, pkt := range res.Packets {
			seq := s.nextSeq(sigRelID)
			wire := dataPacketToWire(sigRelID, seq, pkt)
			if notif, err := marshalPacketNotification(sigRelID, false, wire); err == nil {
				if frame, err := s.framer.NewNotification(messages.NotifyPacket, notif); err == nil {
					s.trySend(c, frame)
				}
			}
		}
	}
}
