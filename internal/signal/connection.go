package signal

import (
	"sync"
	"time"
)

// QueueOverflowPolicy controls what a Connection does with a queued
// DataPacket when its bounded FIFO is full and a new packet arrives
// (spec §4.2 "backpressure: never block the producer"). It never
// governs EventPackets: the oldest queued EventPacket is always
// coalesced first to make room, and if none is queued and the
// incoming packet is itself an EventPacket, the oldest DataPacket is
// force-evicted regardless of policy -- events are never rejected.
// Either path that drops a DataPacket invokes the connection's
// OverflowFunc.
type QueueOverflowPolicy int

const (
	// OverflowDropOldest discards the oldest queued DataPacket to make
	// room for the new one.
	OverflowDropOldest QueueOverflowPolicy = iota
	// OverflowRejectNewest leaves the queue untouched and reports the
	// new DataPacket as dropped.
	OverflowRejectNewest
)

// OverflowFunc is invoked, outside the connection's lock, whenever an
// actual DataPacket is dropped or rejected to make room for a new
// packet -- the notification half of the overflow contract.
type OverflowFunc func(pkt Packet)

// ConnectionStats mirrors the lane statistics the teacher tracks per
// WebSocket lane, applied here to one signal/input-port connection.
type ConnectionStats struct {
	PacketsSent    int64
	PacketsDropped int64
	QueueDepth     int
	QueueCap       int
	LastActivity   time.Time
}

// Connection is the bounded FIFO between one Signal and one InputPort
// (spec §4.2). A full queue never blocks the producing signal thread;
// it applies the configured overflow policy instead.
type Connection struct {
	mu         sync.Mutex
	queue      []Packet
	capacity   int
	policy     QueueOverflowPolicy
	stats      ConnectionStats
	notify     chan struct{}
	onOverflow OverflowFunc
}

// SetOverflowFunc installs fn as the callback invoked whenever Enqueue
// drops or rejects a DataPacket.
func (c *Connection) SetOverflowFunc(fn OverflowFunc) {
	c.mu.Lock()
	c.onOverflow = fn
	c.mu.Unlock()
}

// NewConnection creates a connection with the given bounded capacity.
func NewConnection(capacity int, policy QueueOverflowPolicy) *Connection {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Connection{
		capacity: capacity,
		policy:   policy,
		stats:    ConnectionStats{QueueCap: capacity},
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends pkt, applying the overflow policy if the queue is
// full. It never blocks. The oldest queued EventPacket is coalesced
// first; DataPackets are only dropped once no event is left to
// coalesce, and any such drop is reported through the installed
// OverflowFunc.
func (c *Connection) Enqueue(pkt Packet) (accepted bool) {
	c.mu.Lock()

	var dropped Packet
	if len(c.queue) >= c.capacity {
		if idx := c.oldestEventIndex(); idx >= 0 {
			c.queue = append(c.queue[:idx], c.queue[idx+1:]...)
			c.stats.PacketsDropped++
		} else if _, isEvent := pkt.(*EventPacket); isEvent {
			dropped = c.queue[0]
			c.queue = c.queue[1:]
			c.stats.PacketsDropped++
		} else {
			switch c.policy {
			case OverflowDropOldest:
				dropped = c.queue[0]
				c.queue = c.queue[1:]
				c.stats.PacketsDropped++
			case OverflowRejectNewest:
				dropped = pkt
				c.stats.PacketsDropped++
				c.signal()
				onOverflow := c.onOverflow
				c.mu.Unlock()
				if onOverflow != nil {
					onOverflow(dropped)
				}
				return false
			}
		}
	}

	c.queue = append(c.queue, pkt)
	c.stats.PacketsSent++
	c.stats.QueueDepth = len(c.queue)
	c.stats.LastActivity = time.Now()
	c.signal()
	onOverflow := c.onOverflow
	c.mu.Unlock()
	if onOverflow != nil && dropped != nil {
		onOverflow(dropped)
	}
	return true
}

// oldestEventIndex returns the index of the oldest queued EventPacket,
// or -1 if none is queued. Called with c.mu held.
func (c *Connection) oldestEventIndex() int {
	for i, p := range c.queue {
		if _, ok := p.(*EventPacket); ok {
			return i
		}
	}
	return -1
}

func (c *Connection) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// PeekFront returns the packet at the head of the queue without
// removing it, or false if the queue is empty.
func (c *Connection) PeekFront() (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	return c.queue[0], true
}

// DequeueEventFront removes and returns the packet at the head of the
// queue only if it is an EventPacket, leaving the queue untouched
// otherwise -- the primitive behind Reader.ReadEvent, which must never
// consume a DataPacket ahead of a caller's own Read.
func (c *Connection) DequeueEventFront() (*EventPacket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	ev, ok := c.queue[0].(*EventPacket)
	if !ok {
		return nil, false
	}
	c.queue = c.queue[1:]
	c.stats.QueueDepth = len(c.queue)
	return ev, true
}

// Dequeue pops up to max packets in FIFO order. It does not block; if
// the queue is empty it returns immediately with an empty slice.
func (c *Connection) Dequeue(max int) []Packet {
	c.mu.Lock()
	defer c.mu.Unlock()
	if max <= 0 || max > len(c.queue) {
		max = len(c.queue)
	}
	out := make([]Packet, max)
	copy(out, c.queue[:max])
	c.queue = c.queue[max:]
	c.stats.QueueDepth = len(c.queue)
	return out
}

// WaitNotify returns a channel that receives a value whenever new
// packets are enqueued, for readers doing a blocking wait with timeout.
func (c *Connection) WaitNotify() <-chan struct{} { return c.notify }

// Available reports the number of packets currently queued.
func (c *Connection) Available() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Stats returns a snapshot of connection statistics.
func (c *Connection) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.QueueDepth = len(c.queue)
	return s
}
