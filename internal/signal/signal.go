package signal

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// Signal is the producing end of the packet pipeline: one typed data
// stream, an optional domain signal for its time axis, and zero or
// more InputPort connections it fans packets out to (spec §4.2).
type Signal struct {
	*component.Component

	mu          sync.RWMutex
	descriptor  *DataDescriptor
	domain      *Signal
	connections map[*InputPort]*Connection
	streamed    bool
	active      bool
	public      bool
}

// NewSignal creates a signal named localID. streamed controls whether
// the signal is a candidate for remote streaming negotiation (spec §5
// connect-string resolver heuristics).
func NewSignal(localID string, bus *component.EventBus, streamed bool) *Signal {
	s := &Signal{
		connections: make(map[*InputPort]*Connection),
		streamed:    streamed,
		active:      true,
		public:      true,
	}
	s.Component = component.NewComponent(component.KindSignal, localID, bus, s)
	return s
}

// Descriptor returns the current value descriptor, or nil if unset.
func (s *Signal) Descriptor() *DataDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.descriptor
}

// DomainSignal returns the signal carrying this signal's time axis, if any.
func (s *Signal) DomainSignal() *Signal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.domain
}

// SetDomainSignal attaches/detaches the domain (time) signal.
func (s *Signal) SetDomainSignal(d *Signal) {
	s.mu.Lock()
	s.domain = d
	s.mu.Unlock()
}

// SetDescriptor swaps in a new value descriptor and broadcasts an
// EventPacket so every connected reader observes the change before any
// subsequent DataPacket (spec §4.2, §8). It also emits the core-event
// DataDescriptorChanged (spec §5 event list) — Parameters uses a
// present-with-null-value "DomainDescriptor" key to mean "no domain",
// distinct from an absent key meaning "domain unchanged" (§9 resolved
// open question).
func (s *Signal) SetDescriptor(desc *DataDescriptor) {
	s.mu.Lock()
	s.descriptor = desc
	var domainDesc *DataDescriptor
	if s.domain != nil {
		domainDesc = s.domain.Descriptor()
	}
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	pkt := NewDataDescriptorChangedPacket(desc, domainDesc)
	for _, c := range conns {
		c.Enqueue(pkt)
	}

	params := map[string]interface{}{"DataDescriptor": desc, "DomainDescriptor": domainDesc}
	s.emitViaComponent(component.EventDataDescriptorChanged, params)
}

func (s *Signal) emitViaComponent(kind component.EventKind, params map[string]interface{}) {
	if bus := s.Bus(); bus != nil {
		params["Component"] = s.GlobalID()
		bus.Emit(component.CoreEvent{Kind: kind, GlobalID: s.GlobalID(), Parameters: params})
	}
}

// Send validates pkt against the current descriptor and enqueues it on
// every connected InputPort's FIFO. Never blocks the caller (spec §4.2
// backpressure rule). Validation: the packet's rule and sample type
// must match the signal's descriptor, and a domain packet must be
// present iff a domain signal is set.
func (s *Signal) Send(pkt *DataPacket) error {
	if pkt == nil {
		return daqerr.New(daqerr.InvalidParameter, s.GlobalID(), "nil packet")
	}
	s.mu.RLock()
	desc := s.descriptor
	domain := s.domain
	conns := make([]*Connection, 0, len(s.connections))
	for _, c := range s.connections {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	if desc != nil && pkt.Descriptor != nil {
		if pkt.Descriptor.SampleType != desc.SampleType {
			return daqerr.Newf(daqerr.InvalidValue, s.GlobalID(), "packet sample type %s does not match descriptor %s", pkt.Descriptor.SampleType, desc.SampleType)
		}
		if pkt.Descriptor.Rule != desc.Rule {
			return daqerr.Newf(daqerr.InvalidValue, s.GlobalID(), "packet rule %s does not match descriptor rule %s", pkt.Descriptor.Rule, desc.Rule)
		}
	}
	if domain != nil && pkt.DomainPacket == nil {
		return daqerr.New(daqerr.InvalidValue, s.GlobalID(), "signal has a domain signal but packet carries no domain packet")
	}
	if domain == nil && pkt.DomainPacket != nil {
		return daqerr.New(daqerr.InvalidValue, s.GlobalID(), "packet carries a domain packet but signal has no domain signal")
	}

	for _, c := range conns {
		c.Enqueue(pkt)
	}
	return nil
}

// attach registers a new connection, invoked by InputPort.Connect.
func (s *Signal) attach(p *InputPort, c *Connection) {
	s.mu.Lock()
	s.connections[p] = c
	s.mu.Unlock()
	s.emitViaComponent(component.EventSignalConnected, map[string]interface{}{"InputPort": p.GlobalID()})
}

// detach removes a connection, invoked by InputPort.Disconnect.
func (s *Signal) detach(c *Connection) {
	s.mu.Lock()
	var removedPort *InputPort
	for p, conn := range s.connections {
		if conn == c {
			removedPort = p
			delete(s.connections, p)
			break
		}
	}
	s.mu.Unlock()
	if removedPort != nil {
		s.emitViaComponent(component.EventSignalDisconnected, map[string]interface{}{"InputPort": removedPort.GlobalID()})
	}
}

// DisconnectAll tears down every input port currently attached to this
// signal. Invoked via OnRemove when the signal is removed from the
// tree so no port is left reporting a connection to a dead signal.
func (s *Signal) DisconnectAll() {
	s.mu.RLock()
	ports := make([]*InputPort, 0, len(s.connections))
	for p := range s.connections {
		ports = append(ports, p)
	}
	s.mu.RUnlock()
	for _, p := range ports {
		p.Disconnect()
	}
}

// OnRemove implements component.Remover.
func (s *Signal) OnRemove() {
	s.DisconnectAll()
}

// ConnectionCount reports how many input ports are currently attached.
func (s *Signal) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Streamed reports whether this signal is eligible for streaming
// connections (as opposed to local in-process delivery only).
func (s *Signal) Streamed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamed
}

// Public reports/sets whether this signal is advertised to clients
// enumerating a device's signal list.
func (s *Signal) Public() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.public
}

func (s *Signal) SetPublic(v bool) {
	s.mu.Lock()
	s.public = v
	s.mu.Unlock()
}
