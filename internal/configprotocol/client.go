package configprotocol

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/openDAQ/openDAQ-sub000/internal/transport/ws"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// ClientConfig holds the ConfigProtocol client's tuning parameters,
// following the teacher's direct-struct Config/DefaultConfig pattern.
type ClientConfig struct {
	Transport        ws.Config
	RequestTimeout   time.Duration
	ClientMaxVersion int
}

// DefaultClientConfig returns the client's default tuning.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Transport:        ws.DefaultConfig(),
		RequestTimeout:   5 * time.Second,
		ClientMaxVersion: messages.ProtocolVersionCurrent,
	}
}

func fillClientDefaults(c ClientConfig) ClientConfig {
	d := DefaultClientConfig()
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ClientMaxVersion == 0 {
		c.ClientMaxVersion = d.ClientMaxVersion
	}
	return c
}

// Client is the native ConfigProtocol client: request/response
// correlation over one transport connection, local protocol-version
// gating (spec §8 S7: a call below the negotiated version fails
// without any network traffic), and notification dispatch to the
// mirror engine.
type Client struct {
	cfg    ClientConfig
	conn   *ws.Conn
	framer *messages.Framer
	log    *logger.Logger

	mu        sync.Mutex
	version   int // 0 until Handshake succeeds
	clientID  string
	pending   map[string]chan *messages.Frame

	OnCoreEvent func(messages.CoreEventNotification)
	OnPacket    func(messages.PacketNotification)
	OnStatus    func(messages.ConnectionStatusUpdate)

	done chan struct{}
}

// Connect dials addr/path and starts the client's dispatch loop.
// Handshake must be called separately before any version-gated
// request, matching the two-step connect-then-handshake flow of the
// original.
func Connect(addr, path string, cfg ClientConfig, log *logger.Logger) (*Client, error) {
	cfg = fillClientDefaults(cfg)
	if log == nil {
		log = logger.New("configprotocol.client")
	}
	conn, err := ws.Dial(addr, path, cfg.Transport, log)
	if err != nil {
		return nil, err
	}
	c := &Client{
		cfg:     cfg,
		conn:    conn,
		framer:  messages.NewFramer(),
		log:     log,
		pending: make(map[string]chan *messages.Frame),
		done:    make(chan struct{}),
	}
	go c.dispatchLoop()
	return c, nil
}

// Close tears down the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Done reports when the client's connection has been torn down.
func (c *Client) Done() <-chan struct{} { return c.conn.Done() }

// Version returns the currently negotiated protocol version (0 before
// a successful Handshake).
func (c *Client) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

func (c *Client) dispatchLoop() {
	defer close(c.done)
	for {
		select {
		case frame, ok := <-c.conn.Recv:
			if !ok {
				return
			}
			c.handleFrame(frame)
		case <-c.conn.Done():
			return
		}
	}
}

func (c *Client) handleFrame(frame *messages.Frame) {
	switch frame.Header.Kind {
	case messages.KindResponse:
		c.mu.Lock()
		ch, ok := c.pending[frame.Header.ID]
		if ok {
			delete(c.pending, frame.Header.ID)
		}
		c.mu.Unlock()
		if ok {
			select {
			case ch <- frame:
			default:
			}
		}
	case messages.KindNotification:
		c.handleNotification(frame)
	}
}

func (c *Client) handleNotification(frame *messages.Frame) {
	switch messages.NotificationOp(frame.Header.Op) {
	case messages.NotifyCoreEvent:
		var n messages.CoreEventNotification
		if err := frame.UnmarshalPayload(&n); err == nil && c.OnCoreEvent != nil {
			c.OnCoreEvent(n)
		}
	case messages.NotifyPacket:
		var n messages.PacketNotification
		if err := frame.UnmarshalPayload(&n); err == nil && c.OnPacket != nil {
			c.OnPacket(n)
		}
	case messages.NotifyConnectionStatusUpdate:
		var n messages.ConnectionStatusUpdate
		if err := frame.UnmarshalPayload(&n); err == nil && c.OnStatus != nil {
			c.OnStatus(n)
		}
	}
}

// call sends op's request and blocks until the correlated response
// arrives, ctx is cancelled, or the connection closes. It gates on the
// negotiated version locally: an op the server wouldn't accept fails
// with ServerVersionTooLow before a single byte is sent (spec §8 S7).
func (c *Client) call(ctx context.Context, op messages.RequestOp, payload, result interface{}) error {
	c.mu.Lock()
	version := c.version
	c.mu.Unlock()
	if op != messages.OpHandshake && version > 0 && messages.MinVersionFor(op) > version {
		return daqerr.Newf(daqerr.ServerVersionTooLow, "", "op %q requires protocol version %d, negotiated %d", op, messages.MinVersionFor(op), version)
	}

	frame, err := c.framer.NewRequest(op, payload)
	if err != nil {
		return err
	}
	ch := make(chan *messages.Frame, 1)
	c.mu.Lock()
	c.pending[frame.Header.ID] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, frame.Header.ID)
		c.mu.Unlock()
	}()

	select {
	case c.conn.Send <- frame:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Done():
		return daqerr.New(daqerr.ConnectionLost, "", "connection closed before request could be sent")
	}

	select {
	case resp := <-ch:
		return decodeResponse(resp, result)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.Done():
		return daqerr.New(daqerr.ConnectionLost, "", "connection closed while awaiting response")
	}
}

func decodeResponse(resp *messages.Frame, result interface{}) error {
	// Only a payload made of ErrorPayload's own fields is an error:
	// snapshot and mutation results carry a "kind" field too.
	var probe messages.ErrorPayload
	dec := json.NewDecoder(bytes.NewReader(resp.Payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&probe); err == nil && probe.Kind != "" {
		return daqerr.New(daqerr.Kind(probe.Kind), "", probe.Message)
	}
	if result == nil {
		return nil
	}
	return resp.UnmarshalPayload(result)
}

// Handshake negotiates the protocol version and client-type admission
// (spec §4.4). On success Version() reports the negotiated version.
func (c *Client) Handshake(ctx context.Context, clientType supervisor.ClientType, dropOthers bool, hostName, username, password string) (*messages.HandshakeResult, error) {
	var result messages.HandshakeResult
	err := c.call(ctx, messages.OpHandshake, messages.HandshakePayload{
		ClientMaxVersion: c.cfg.ClientMaxVersion,
		ClientType:       string(clientType),
		DropOthers:       dropOthers,
		HostName:         hostName,
		Username:         username,
		Password:         password,
	}, &result)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.version = result.NegotiatedVersion
	c.clientID = result.ClientID
	c.mu.Unlock()
	return &result, nil
}

// GetComponentTreeSnapshot fetches the full tree snapshot (spec §4.4/§4.5).
func (c *Client) GetComponentTreeSnapshot(ctx context.Context) (*messages.TreeSnapshot, error) {
	var snap messages.TreeSnapshot
	if err := c.call(ctx, messages.OpGetComponentTreeSnapshot, struct{}{}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetComponentSnapshot fetches the subtree snapshot rooted at
// componentGlobalID, used by the mirror engine to materialize a
// subtree named by a ComponentAdded notification (spec §4.5).
func (c *Client) GetComponentSnapshot(ctx context.Context, componentGlobalID string) (*messages.ComponentSnapshot, error) {
	var snap messages.ComponentSnapshot
	if err := c.call(ctx, messages.OpGetComponentSnapshot, messages.ComponentSnapshotRequest{ComponentGlobalID: componentGlobalID}, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// GetPropertyValue reads one property's current value.
func (c *Client) GetPropertyValue(ctx context.Context, componentGlobalID, propertyName string) (interface{}, error) {
	var result messages.PropertyValuePayload
	err := c.call(ctx, messages.OpGetPropertyValue, messages.PropertyValuePayload{
		ComponentGlobalID: componentGlobalID,
		PropertyName:      propertyName,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// SetPropertyValue writes one property's value.
func (c *Client) SetPropertyValue(ctx context.Context, componentGlobalID, propertyName string, value interface{}, protected bool) error {
	return c.call(ctx, messages.OpSetPropertyValue, messages.PropertyValuePayload{
		ComponentGlobalID: componentGlobalID,
		PropertyName:      propertyName,
		Value:             value,
		Protected:         protected,
	}, nil)
}

// CallFunction invokes a Function property and returns its result.
func (c *Client) CallFunction(ctx context.Context, componentGlobalID, propertyName string, args []interface{}) (interface{}, error) {
	var result messages.CallResult
	err := c.call(ctx, messages.OpCallFunction, messages.CallPayload{
		ComponentGlobalID: componentGlobalID,
		PropertyName:      propertyName,
		Arguments:         args,
	}, &result)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// CallProcedure invokes a Procedure property, ignoring any return value.
func (c *Client) CallProcedure(ctx context.Context, componentGlobalID, propertyName string, args []interface{}) error {
	return c.call(ctx, messages.OpCallProcedure, messages.CallPayload{
		ComponentGlobalID: componentGlobalID,
		PropertyName:      propertyName,
		Arguments:         args,
	}, nil)
}

// AddComponent requests creation of a function block of typeID under
// parentGlobalID, returning the server-assigned local id.
func (c *Client) AddComponent(ctx context.Context, parentGlobalID, kind, typeID string) (string, error) {
	var result messages.ComponentMutationPayload
	err := c.call(ctx, messages.OpAddComponent, messages.ComponentMutationPayload{
		ParentGlobalID: parentGlobalID,
		Kind:           kind,
		TypeID:         typeID,
	}, &result)
	if err != nil {
		return "", err
	}
	return result.LocalID, nil
}

// RemoveComponent requests removal of the function block at globalID
// (parentGlobalID names the function block itself, matching the
// server's dispatch).
func (c *Client) RemoveComponent(ctx context.Context, globalID string) error {
	return c.call(ctx, messages.OpRemoveComponent, messages.ComponentMutationPayload{ParentGlobalID: globalID}, nil)
}

// Subscribe requests packet delivery for signalGlobalID.
func (c *Client) Subscribe(ctx context.Context, signalGlobalID string) error {
	return c.call(ctx, messages.OpSubscribe, messages.SubscriptionPayload{SignalGlobalID: signalGlobalID}, nil)
}

// Unsubscribe cancels packet delivery for signalGlobalID.
func (c *Client) Unsubscribe(ctx context.Context, signalGlobalID string) error {
	return c.call(ctx, messages.OpUnsubscribe, messages.SubscriptionPayload{SignalGlobalID: signalGlobalID}, nil)
}

// LockDevice acquires a device lock (spec §8 S7: requires protocol
// version 3, gated locally by call()).
func (c *Client) LockDevice(ctx context.Context, deviceGlobalID, user string) error {
	return c.call(ctx, messages.OpLockDevice, messages.LockPayload{DeviceGlobalID: deviceGlobalID, User: user}, nil)
}

// UnlockDevice releases a device lock previously acquired with LockDevice.
func (c *Client) UnlockDevice(ctx context.Context, deviceGlobalID, user string) error {
	return c.call(ctx, messages.OpUnlockDevice, messages.LockPayload{DeviceGlobalID: deviceGlobalID, User: user}, nil)
}

// SentCount exposes the transport's outgoing frame count, used to
// assert that a version-gated call never reached the wire.
func (c *Client) SentCount() uint64 { return c.conn.SentCount() }
