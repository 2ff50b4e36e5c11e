package signal

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// NotificationMode controls whether an InputPort's owner is notified
// synchronously on every packet or only wakes to drain on its own
// schedule (spec §4.2).
type NotificationMode int

const (
	NotifyOnEachPacket NotificationMode = iota
	NotifySchedulerQueueWasEmpty
)

// AcceptFunc lets the port owner reject an incoming signal's
// descriptor before a connection is established (e.g. a function
// block input that only accepts Float64 samples).
type AcceptFunc func(desc *DataDescriptor) bool

// InputPort is the receiving end of a signal connection, embedded in a
// component tree as a child of its owning function block (spec §3
// "Sig" well-known folder counterpart for inputs).
type InputPort struct {
	*component.Component

	mu         sync.Mutex
	accept     AcceptFunc
	mode       NotificationMode
	requiresOn bool
	conn       *Connection
	signal     *Signal
	onOverflow OverflowNotifyFunc
}

// OverflowNotifyFunc is invoked, outside any connection lock, whenever
// a DataPacket is dropped or rejected on this port's connection -- the
// notification half of the overflow contract (spec §4.2).
type OverflowNotifyFunc func(pkt Packet)

// NewInputPort creates an input port named localID under no parent
// yet; callers attach it via Component.AddChild.
func NewInputPort(localID string, bus *component.EventBus, accept AcceptFunc, mode NotificationMode) *InputPort {
	p := &InputPort{mode: mode, accept: accept}
	p.Component = component.NewComponent(component.KindInputPort, localID, bus, p)
	return p
}

// Connect binds this port to sig, creating the bounded FIFO between
// them. Fails if the port already has a connection or the port's
// AcceptFunc rejects the signal's current descriptor.
func (p *InputPort) Connect(sig *Signal, capacity int, policy QueueOverflowPolicy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return daqerr.New(daqerr.InvalidValue, p.GlobalID(), "input port already connected")
	}
	desc := sig.Descriptor()
	if p.accept != nil && desc != nil && !p.accept(desc) {
		return daqerr.New(daqerr.SignalNotAccepted, p.GlobalID(), "signal descriptor rejected by input port")
	}
	conn := NewConnection(capacity, policy)
	conn.SetOverflowFunc(p.notifyOverflow)
	p.conn = conn
	p.signal = sig
	sig.attach(p, conn)
	return nil
}

// Disconnect tears down the current connection, if any.
func (p *InputPort) Disconnect() {
	p.mu.Lock()
	conn := p.conn
	sig := p.signal
	p.conn = nil
	p.signal = nil
	p.mu.Unlock()
	if sig != nil && conn != nil {
		sig.detach(conn)
	}
}

// OnRemove implements component.Remover.
func (p *InputPort) OnRemove() {
	p.Disconnect()
}

// SetOverflowNotify installs fn as this port's overflow callback. It
// can be set before or after Connect: the connection calls back
// through notifyOverflow, which reads the current fn on every drop.
func (p *InputPort) SetOverflowNotify(fn OverflowNotifyFunc) {
	p.mu.Lock()
	p.onOverflow = fn
	p.mu.Unlock()
}

func (p *InputPort) notifyOverflow(pkt Packet) {
	p.mu.Lock()
	fn := p.onOverflow
	p.mu.Unlock()
	if fn != nil {
		fn(pkt)
	}
}

// Connection returns the underlying FIFO, or nil if unconnected.
func (p *InputPort) Connection() *Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

// ConnectedSignal returns the signal this port is currently bound to,
// or nil if unconnected. Used to serialize port->signal topology by
// global id (spec §4.5, §6 "every port<->signal connection expressed
// by global id").
func (p *InputPort) ConnectedSignal() *Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signal
}

// RequiresSignal reports whether callers must keep this port connected
// for the owning function block to remain active.
func (p *InputPort) RequiresSignal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requiresOn
}

// SetRequiresSignal toggles the requires-signal flag.
func (p *InputPort) SetRequiresSignal(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requiresOn = v
}
