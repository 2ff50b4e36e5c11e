package component

import "sync"

// EventKind enumerates the core event kinds the mirror engine depends
// on (spec §4.1).
type EventKind string

const (
	EventComponentAdded          EventKind = "ComponentAdded"
	EventComponentRemoved        EventKind = "ComponentRemoved"
	EventPropertyValueChanged    EventKind = "PropertyValueChanged"
	EventPropertyAdded           EventKind = "PropertyAdded"
	EventPropertyRemoved         EventKind = "PropertyRemoved"
	EventPropertyObjectUpdateEnd EventKind = "PropertyObjectUpdateEnd"
	EventAttributeChanged        EventKind = "AttributeChanged"
	EventDataDescriptorChanged   EventKind = "DataDescriptorChanged"
	EventSignalConnected         EventKind = "SignalConnected"
	EventSignalDisconnected      EventKind = "SignalDisconnected"
	EventComponentUpdateEnd      EventKind = "ComponentUpdateEnd"
	EventTypeAdded               EventKind = "TypeAdded"
	EventTypeRemoved             EventKind = "TypeRemoved"
	EventDeviceDomainChanged     EventKind = "DeviceDomainChanged"
	EventConnectionStatusChanged EventKind = "ConnectionStatusChanged"
	EventStatusChanged           EventKind = "StatusChanged"
	EventDeviceLockStateChanged  EventKind = "DeviceLockStateChanged"
)

// CoreEvent is the payload delivered to every core-event subscriber.
// Parameters is a map so wire serialization (§6) is direct; stable
// keys are documented in §6 ("Component", "Id", "Name", "OldValue",
// "Value", ...). A parameter value of nil is distinct from an absent
// key -- see the DataDescriptorChanged open question resolved in
// DESIGN.md.
type CoreEvent struct {
	Kind       EventKind
	GlobalID   string
	Parameters map[string]interface{}
}

// HasParam reports whether key is present in Parameters, distinguishing
// an explicit nil value from an absent key.
func (e CoreEvent) HasParam(key string) bool {
	_, ok := e.Parameters[key]
	return ok
}

// EventBus dispatches CoreEvents to subscribers in the order they were
// emitted by a single calling thread (spec §5 ordering guarantee:
// "Core events emitted from a single thread are observed in that order
// by every subscriber on that subscription").
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan CoreEvent
	nextID      int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[int]chan CoreEvent)}
}

// Subscription is a handle returned by Subscribe, used to unsubscribe
// and to read delivered events.
type Subscription struct {
	id   int
	bus  *EventBus
	Ch   <-chan CoreEvent
}

// Subscribe returns a subscription receiving every future event on this
// bus. The channel is buffered; a slow subscriber drops the oldest
// unread event rather than blocking the emitting thread, since core
// events never carry data that cannot be missed safely by a mirror that
// will also re-fetch a full snapshot on drop detection.
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan CoreEvent, 256)
	b.subscribers[id] = ch
	return &Subscription{id: id, bus: b, Ch: ch}
}

// Unsubscribe closes and removes the subscription.
func (s *Subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if ch, ok := s.bus.subscribers[s.id]; ok {
		close(ch)
		delete(s.bus.subscribers, s.id)
	}
}

// Emit dispatches an event to every current subscriber. Called
// synchronously on the thread that caused the change, per §4.1
// getOnCoreEvent semantics.
func (b *EventBus) Emit(ev CoreEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// Drop the oldest buffered event to make room rather than
			// block the calling thread (packet/event delivery must
			// never stall the producer, mirroring the Connection
			// overflow policy in internal/signal).
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}
