// Package mirror implements the MirrorEngine (spec §4.5): the client
// side of the native ConfigProtocol that turns a TreeSnapshot and a
// stream of CoreEvent/Packet notifications into a live local proxy of
// a remote device's component tree. Grounded on the protocol's own
// shapes (internal/configprotocol) and the teacher's reconnect/status
// plumbing in internal/supervisor.
package mirror

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/internal/supervisor"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// pendingDropAfter bounds how long a core event waits for its target
// component to exist before it is dropped (spec §4.5: events that
// arrive for a not-yet-materialized subtree are buffered briefly, not
// forever -- a mirror that never catches up should fall back to a full
// Resync rather than leak memory).
const pendingDropAfter = 5 * time.Second

// mirrorConnectionCapacity bounds a mirrored InputPort<->Signal FIFO,
// matching the subscribe-side capacity the server hands out.
const mirrorConnectionCapacity = 1024

// Engine owns one mirrored subtree: it downloads a TreeSnapshot,
// attaches a generic proxy tree under mount, and keeps it live by
// applying every CoreEvent/Packet notification the server sends (spec
// §4.4/§4.5). It never reconstructs native Device/Channel/FunctionBlock
// wrapper types -- a remote component is represented purely by its
// Kind, properties, and (for Signal/InputPort) pipeline wiring, exactly
// the information the wire protocol carries.
type Engine struct {
	mu     sync.Mutex
	client *configprotocol.Client
	types  *component.TypeManager
	mount  *component.Component
	root   *component.Component
	status *supervisor.StatusContainer
	log    *logger.Logger

	nodes   map[string]*component.Component
	signals map[string]*signal.Signal
	ports   map[string]*signal.InputPort

	pending   map[string][]pendingEvent
	journal   []journalEntry
	sweepStop chan struct{}
}

type pendingEvent struct {
	ev         messages.CoreEventNotification
	receivedAt time.Time
}

type journalKind int

const (
	journalAddComponent journalKind = iota
	journalSetProperty
	journalSubscribe
)

type journalEntry struct {
	kind    journalKind
	target  string
	typeID  string
	name    string
	value   interface{}
}

// NewEngine creates a mirror engine that will attach its mirrored root
// under mount, using types as the local TypeManager and status to
// report connectivity (spec §4.6 ConfigurationStatus). client's
// notification callbacks are taken over by the engine.
func NewEngine(client *configprotocol.Client, mount *component.Component, types *component.TypeManager, status *supervisor.StatusContainer, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.New("mirror")
	}
	e := &Engine{
		client:    client,
		types:     types,
		mount:     mount,
		status:    status,
		log:       log,
		nodes:     make(map[string]*component.Component),
		signals:   make(map[string]*signal.Signal),
		ports:     make(map[string]*signal.InputPort),
		pending:   make(map[string][]pendingEvent),
		sweepStop: make(chan struct{}),
	}
	e.wireClient(client)
	go e.sweepPending()
	return e
}

func (e *Engine) wireClient(client *configprotocol.Client) {
	client.OnCoreEvent = e.handleCoreEvent
	client.OnPacket = e.handlePacket
	client.OnStatus = e.handleStatusUpdate
}

// Close stops the engine's background sweep of buffered events. It
// does not close the underlying client.
func (e *Engine) Close() {
	close(e.sweepStop)
}

// Root returns the mirrored root component, or nil before the first
// successful Connect/Resync.
func (e *Engine) Root() *component.Component {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.root
}

// Connect performs the handshake and the initial snapshot download,
// attaching the mirrored tree under mount.
func (e *Engine) Connect(ctx context.Context, clientType supervisor.ClientType, hostName string) error {
	if _, err := e.client.Handshake(ctx, clientType, false, hostName, "", ""); err != nil {
		return err
	}
	return e.Resync(ctx)
}

// Resync downloads a fresh TreeSnapshot and (re)builds the mirrored
// tree from it, replacing whatever was previously mirrored. Used both
// for the initial connect and to recover from a dropped-event backlog.
func (e *Engine) Resync(ctx context.Context) error {
	snap, err := e.client.GetComponentTreeSnapshot(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.types != nil {
		for _, t := range snap.Types {
			if e.types.HasType(t.Name) {
				continue
			}
			e.types.AddType(&component.TypeDef{
				Kind:    component.TypeKind(t.Kind),
				Name:    t.Name,
				Fields:  t.Fields,
				Members: t.Members,
				Parent:  t.Parent,
			})
		}
	}

	if e.root != nil {
		e.mount.RemoveChild(e.root.LocalID())
	}
	e.nodes = make(map[string]*component.Component)
	e.signals = make(map[string]*signal.Signal)
	e.ports = make(map[string]*signal.InputPort)

	root := e.buildNode(snap.Root)
	if err := e.mount.AddChild(root); err != nil {
		return err
	}
	e.root = root
	e.resolveConnections(snap.Root)

	if e.status != nil {
		e.status.Set(supervisor.ConfigurationStatusName, supervisor.StatusConnected, "")
	}
	return nil
}

// buildNode recursively materializes snap as a detached subtree,
// registering every node/signal/port it creates. Callers attach the
// returned node to its parent themselves.
func (e *Engine) buildNode(snap messages.ComponentSnapshot) *component.Component {
	var node *component.Component
	switch component.Kind(snap.Kind) {
	case component.KindSignal:
		streamed := snap.Signal != nil && snap.Signal.Streamed
		sig := signal.NewSignal(snap.LocalID, e.mount.Bus(), streamed)
		if snap.Signal != nil {
			sig.SetDescriptor(configprotocol.DescriptorFromWire(snap.Signal.Descriptor))
			sig.SetPublic(snap.Signal.Public)
		}
		node = sig.Component
		e.signals[snap.GlobalID] = sig
	case component.KindInputPort:
		port := signal.NewInputPort(snap.LocalID, e.mount.Bus(), nil, signal.NotifyOnEachPacket)
		if snap.InputPort != nil {
			port.SetRequiresSignal(snap.InputPort.RequiresSignal)
		}
		node = port.Component
		e.ports[snap.GlobalID] = port
	default:
		node = component.NewComponent(component.Kind(snap.Kind), snap.LocalID, e.mount.Bus(), nil)
	}

	applyProperties(node, snap.GlobalID, snap.Properties, e.client)
	node.SetActive(snap.Active)
	node.SetVisible(snap.Visible)
	for _, tag := range snap.Tags {
		node.AddTag(tag)
	}
	for name, val := range snap.Status {
		node.SetStatus(name, val)
	}

	e.nodes[snap.GlobalID] = node
	for _, child := range snap.Children {
		childNode := e.buildNode(child)
		if err := node.AddChild(childNode); err != nil {
			e.log.Warnf("mirror: failed to attach %s: %v", child.GlobalID, err)
		}
	}
	return node
}

// applyProperties adds every property in props to node.Props. A
// Function/Procedure property's implementation forwards the call back
// to the server via CallFunction/CallProcedure, so code operating on a
// mirrored component can invoke it exactly like a local one (spec
// §4.4).
func applyProperties(node *component.Component, relID string, props []messages.PropertySnapshot, client *configprotocol.Client) {
	for _, p := range props {
		desc := component.Property{
			Name:      p.Name,
			ValueKind: component.ValueKind(p.ValueKind),
			ItemKind:  component.ValueKind(p.ItemKind),
			Unit:      p.Unit,
			ReadOnly:  p.ReadOnly,
		}
		switch desc.ValueKind {
		case component.KindFunction, component.KindProcedure:
			name, target, isProcedure := p.Name, relID, desc.ValueKind == component.KindProcedure
			desc.Default = component.CallableFunc(func(args []interface{}) (interface{}, error) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if isProcedure {
					return nil, client.CallProcedure(ctx, target, name, args)
				}
				return client.CallFunction(ctx, target, name, args)
			})
		default:
			desc.Default = p.Value
		}
		if err := node.Props.AddProperty(desc); err != nil {
			// Resync of an already-mirrored node; duplicate is expected.
			continue
		}
	}
}

// resolveConnections walks snap a second time, wiring every
// InputPort<->Signal and Signal<->domain-Signal reference now that the
// whole subtree (and therefore every id it can reference) exists,
// cycle-safe by construction (spec §8 S4).
func (e *Engine) resolveConnections(snap messages.ComponentSnapshot) {
	if snap.Signal != nil && snap.Signal.DomainSignalGlobalID != "" {
		if sig, ok := e.signals[snap.GlobalID]; ok {
			if domain, ok := e.signals[snap.Signal.DomainSignalGlobalID]; ok {
				sig.SetDomainSignal(domain)
			}
		}
	}
	if snap.InputPort != nil && snap.InputPort.ConnectedSignalGlobalID != "" {
		if port, ok := e.ports[snap.GlobalID]; ok {
			if sig, ok := e.signals[snap.InputPort.ConnectedSignalGlobalID]; ok {
				if port.ConnectedSignal() == nil {
					if err := port.Connect(sig, mirrorConnectionCapacity, signal.OverflowDropOldest); err != nil {
						e.log.Warnf("mirror: failed to wire %s -> %s: %v", snap.GlobalID, snap.InputPort.ConnectedSignalGlobalID, err)
					}
				}
			}
		}
	}
	for _, child := range snap.Children {
		e.resolveConnections(child)
	}
}

// handleCoreEvent is the client's OnCoreEvent callback: apply ev now if
// its target already exists, otherwise buffer it (spec §4.5).
func (e *Engine) handleCoreEvent(ev messages.CoreEventNotification) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applyOrBuffer(ev)
}

func (e *Engine) applyOrBuffer(ev messages.CoreEventNotification) {
	target, ok := e.nodes[ev.GlobalID]
	if !ok {
		e.pending[ev.GlobalID] = append(e.pending[ev.GlobalID], pendingEvent{ev: ev, receivedAt: time.Now()})
		return
	}
	e.applyEvent(target, ev)
}

// nodeCreated replays any events that were buffered waiting for relID
// to exist, called right after a new node is registered.
func (e *Engine) nodeCreated(relID string) {
	buffered := e.pending[relID]
	delete(e.pending, relID)
	for _, pe := range buffered {
		if target, ok := e.nodes[relID]; ok {
			e.applyEvent(target, pe.ev)
		}
	}
}

func (e *Engine) sweepPending() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-e.sweepStop:
			return
		case <-ticker.C:
			e.mu.Lock()
			now := time.Now()
			for key, events := range e.pending {
				kept := events[:0]
				for _, pe := range events {
					if now.Sub(pe.receivedAt) < pendingDropAfter {
						kept = append(kept, pe)
					} else {
						e.log.Warnf("mirror: dropping event %s for never-materialized %q after %s", pe.ev.Kind, key, pendingDropAfter)
					}
				}
				if len(kept) == 0 {
					delete(e.pending, key)
				} else {
					e.pending[key] = kept
				}
			}
			e.mu.Unlock()
		}
	}
}

func (e *Engine) applyEvent(target *component.Component, ev messages.CoreEventNotification) {
	switch component.EventKind(ev.Kind) {
	case component.EventComponentAdded:
		e.applyComponentAdded(target, ev)
	case component.EventComponentRemoved:
		e.applyComponentRemoved(ev)
	case component.EventPropertyValueChanged:
		name, _ := ev.Parameters["Name"].(string)
		if target.Props.HasProperty(name) {
			target.Props.SetPropertyValue(name, ev.Parameters["Value"], true)
		}
	case component.EventPropertyAdded, component.EventPropertyRemoved:
		e.refreshProperties(target, ev.GlobalID)
	case component.EventAttributeChanged:
		applyAttributeChanged(target, ev.Parameters)
	case component.EventDataDescriptorChanged:
		if sig, ok := target.Self().(*signal.Signal); ok {
			sig.SetDescriptor(configprotocol.DescriptorFromWire(decodeDescriptorParam(ev.Parameters["DataDescriptor"])))
		}
	case component.EventStatusChanged:
		name, _ := ev.Parameters["Name"].(string)
		value, _ := ev.Parameters["Value"].(string)
		if name != "" {
			target.SetStatus(name, value)
		}
	case component.EventDeviceLockStateChanged:
		locked, _ := ev.Parameters["Value"].(bool)
		owner, _ := ev.Parameters["Id"].(string)
		if locked {
			target.SetStatus("DeviceLockState", owner)
		} else {
			target.SetStatus("DeviceLockState", "")
		}
	case component.EventConnectionStatusChanged:
		name, _ := ev.Parameters["StatusName"].(string)
		value, _ := ev.Parameters["StatusValue"].(string)
		if name != "" {
			target.SetStatus(name, value)
		}
	default:
		// TypeAdded/TypeRemoved, SignalConnected/Disconnected, and the
		// PropertyObjectUpdateEnd/ComponentUpdateEnd batch markers carry
		// no information the mirror can act on without a full Resync;
		// they're observable via logs but otherwise ignored.
		e.log.Debugf("mirror: ignoring %s on %q", ev.Kind, ev.GlobalID)
	}
}

func (e *Engine) applyComponentAdded(parent *component.Component, ev messages.CoreEventNotification) {
	childRel, _ := ev.Parameters["Component"].(string)
	if _, exists := e.nodes[childRel]; exists {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := e.client.GetComponentSnapshot(ctx, childRel)
	if err != nil {
		e.log.Warnf("mirror: failed to fetch added component %q: %v", childRel, err)
		return
	}
	node := e.buildNode(*snap)
	if err := parent.AddChild(node); err != nil {
		e.log.Warnf("mirror: failed to attach added component %q: %v", childRel, err)
		return
	}
	e.resolveConnections(*snap)
	e.nodeCreated(childRel)
}

func (e *Engine) applyComponentRemoved(ev messages.CoreEventNotification) {
	childRel, _ := ev.Parameters["Component"].(string)
	child, ok := e.nodes[childRel]
	if !ok {
		return
	}
	if parent := child.Parent(); parent != nil {
		parent.RemoveChild(child.LocalID())
	}
	e.forgetSubtree(childRel, child)
}

func (e *Engine) forgetSubtree(relID string, node *component.Component) {
	delete(e.nodes, relID)
	delete(e.signals, relID)
	delete(e.ports, relID)
	for _, child := range node.Children() {
		childRel := relID + "/" + child.LocalID()
		e.forgetSubtree(childRel, child)
	}
}

func (e *Engine) refreshProperties(target *component.Component, relID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	snap, err := e.client.GetComponentSnapshot(ctx, relID)
	if err != nil {
		e.log.Warnf("mirror: failed to refresh properties of %q: %v", relID, err)
		return
	}
	seen := make(map[string]bool, len(snap.Properties))
	for _, p := range snap.Properties {
		seen[p.Name] = true
		if target.Props.HasProperty(p.Name) {
			if p.ValueKind != string(component.KindFunction) && p.ValueKind != string(component.KindProcedure) {
				target.Props.SetPropertyValue(p.Name, p.Value, true)
			}
			continue
		}
		applyProperties(target, relID, []messages.PropertySnapshot{p}, e.client)
	}
	for _, existing := range target.Props.Properties() {
		if !seen[existing.Name] {
			target.Props.RemoveProperty(existing.Name)
		}
	}
}

func applyAttributeChanged(target *component.Component, params map[string]interface{}) {
	name, _ := params["Name"].(string)
	switch name {
	case "Active":
		if v, ok := params["Value"].(bool); ok {
			target.SetActive(v)
		}
	case "Visible":
		if v, ok := params["Value"].(bool); ok {
			target.SetVisible(v)
		}
	case "Tags":
		if v, ok := params["Value"].(string); ok {
			target.AddTag(v)
		}
	}
}

// decodeDescriptorParam recovers a *messages.DataDescriptorWire from a
// CoreEvent parameter that crossed the wire as a generic
// map[string]interface{} (spec §6: parameters are opaque JSON on the
// client side; only the packet/snapshot paths carry typed payloads
// directly).
func decodeDescriptorParam(v interface{}) *messages.DataDescriptorWire {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var w messages.DataDescriptorWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil
	}
	return &w
}

// handlePacket is the client's OnPacket callback: reconstruct the
// packet and fan it into the mirrored signal exactly as if it had been
// produced locally, so a Reader attached to that mirrored signal's
// InputPort sees the same packet (spec §4.2, §4.5).
func (e *Engine) handlePacket(n messages.PacketNotification) {
	e.mu.Lock()
	sig, ok := e.signals[n.SignalGlobalID]
	e.mu.Unlock()
	if !ok {
		return
	}
	if n.IsEvent {
		var ev messages.EventPacketWire
		if err := json.Unmarshal(n.Payload, &ev); err != nil {
			return
		}
		sig.SetDescriptor(configprotocol.DescriptorFromWire(ev.DataDescriptor))
		if ev.HasDomain {
			if domain := sig.DomainSignal(); domain != nil {
				domain.SetDescriptor(configprotocol.DescriptorFromWire(ev.DomainDescriptor))
			}
		}
		return
	}
	var w messages.DataPacketWire
	if err := json.Unmarshal(n.Payload, &w); err != nil {
		return
	}
	if err := sig.Send(configprotocol.DataPacketFromWire(w, sig.Descriptor())); err != nil {
		e.log.Debugf("mirror: dropping wire packet for %q: %v", n.SignalGlobalID, err)
	}
}

func (e *Engine) handleStatusUpdate(n messages.ConnectionStatusUpdate) {
	if e.status == nil {
		return
	}
	e.status.Set(supervisor.ConfigurationStatusName, supervisor.Status(n.Status), "")
}

// SetPropertyValue writes a property through the mirrored proxy and
// journals the write for RestoreClientConfigOnReconnect.
func (e *Engine) SetPropertyValue(ctx context.Context, componentRelID, name string, value interface{}) error {
	if err := e.client.SetPropertyValue(ctx, componentRelID, name, value, false); err != nil {
		return err
	}
	e.mu.Lock()
	e.journal = append(e.journal, journalEntry{kind: journalSetProperty, target: componentRelID, name: name, value: value})
	e.mu.Unlock()
	return nil
}

// AddFunctionBlock creates a function block under parentRelID through
// the mirrored proxy and journals the creation.
func (e *Engine) AddFunctionBlock(ctx context.Context, parentRelID, typeID string) (string, error) {
	localID, err := e.client.AddComponent(ctx, parentRelID, string(component.KindFunctionBlock), typeID)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.journal = append(e.journal, journalEntry{kind: journalAddComponent, target: parentRelID, typeID: typeID})
	e.mu.Unlock()
	return localID, nil
}

// Subscribe requests packet delivery for signalRelID and journals the
// subscription so it is replayed as a "connection" on reconnect.
func (e *Engine) Subscribe(ctx context.Context, signalRelID string) error {
	if err := e.client.Subscribe(ctx, signalRelID); err != nil {
		return err
	}
	e.mu.Lock()
	e.journal = append(e.journal, journalEntry{kind: journalSubscribe, target: signalRelID})
	e.mu.Unlock()
	return nil
}

// Reconnect swaps in a freshly dialed and handshaken client, re-runs
// Resync against it, and replays the write journal: function-block
// adds first, then property writes, then subscriptions, tolerating the
// failure of any one entry (spec §4.6/§8 "RestoreClientConfigOnReconnect").
func (e *Engine) Reconnect(ctx context.Context, newClient *configprotocol.Client, clientType supervisor.ClientType, hostName string) error {
	e.mu.Lock()
	e.client = newClient
	e.mu.Unlock()
	e.wireClient(newClient)

	if _, err := newClient.Handshake(ctx, clientType, false, hostName, "", ""); err != nil {
		return err
	}
	if err := e.Resync(ctx); err != nil {
		return err
	}
	e.restoreClientConfig(ctx)
	return nil
}

func (e *Engine) restoreClientConfig(ctx context.Context) {
	e.mu.Lock()
	entries := append([]journalEntry(nil), e.journal...)
	e.mu.Unlock()

	for _, kind := range []journalKind{journalAddComponent, journalSetProperty, journalSubscribe} {
		for _, ent := range entries {
			if ent.kind != kind {
				continue
			}
			var err error
			switch kind {
			case journalAddComponent:
				_, err = e.client.AddComponent(ctx, ent.target, string(component.KindFunctionBlock), ent.typeID)
			case journalSetProperty:
				err = e.client.SetPropertyValue(ctx, ent.target, ent.name, ent.value, false)
			case journalSubscribe:
				err = e.client.Subscribe(ctx, ent.target)
			}
			if err != nil {
				e.log.Warnf("mirror: failed to restore %v on reconnect: %v", ent, err)
			}
		}
	}
}
