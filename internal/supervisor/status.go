// Package supervisor implements the ConnectionSupervisor (spec §4.6):
// per-device ConfigurationStatus and per-streaming-source status
// tracking, the reconnect loop, and the client-type admission state
// machine (spec §4.4). Grounded on the teacher's
// pkg/health/health.go status-aggregation shape and
// services/mesh/internal/mesh/node.go's ctx/cancel + ticker-driven
// loop lifecycle, adapted from a gossip heartbeat to a single-link
// reconnect supervisor.
package supervisor

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
)

// Status is one of the three link states a ConnectionStatusContainer
// entry can hold (spec §4.6).
type Status string

const (
	StatusConnected    Status = "Connected"
	StatusReconnecting Status = "Reconnecting"
	StatusUnrecoverable Status = "Unrecoverable"

	// StatusReconnectRequested is the final status a server sends a
	// client it is about to drop for backpressure: the client's send
	// buffer overflowed and it should dial back in rather than expect
	// further delivery on this connection (spec §4.4).
	StatusReconnectRequested Status = "ReconnectRequested"
)

// ConfigurationStatusName and the streaming-status naming convention
// are the well-known keys the mirror/client code looks up (spec §4.6:
// "ConfigurationStatus and one StreamingStatus_<protocol>_<n> per
// attached streaming source").
const ConfigurationStatusName = "ConfigurationStatus"

// StreamingStatusName formats the per-streaming-source status key.
func StreamingStatusName(protocol string, n int) string {
	return "StreamingStatus_" + protocol + "_" + itoa(n)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// StatusContainer tracks named connection statuses for one remote
// device, emitting ConnectionStatusChanged core events with the stable
// parameter keys of §6: StatusName, ConnectionString, StreamingObject,
// StatusValue.
type StatusContainer struct {
	mu               sync.RWMutex
	statuses         map[string]Status
	connectionString string
	bus              *component.EventBus
	globalID         string
}

// NewStatusContainer creates a container for the device reachable at
// connString, emitting events on bus tagged with globalID (the
// mirrored device's component global id).
func NewStatusContainer(bus *component.EventBus, globalID, connString string) *StatusContainer {
	return &StatusContainer{
		statuses:         make(map[string]Status),
		connectionString: connString,
		bus:              bus,
		globalID:         globalID,
	}
}

// Set updates statusName's value, emitting ConnectionStatusChanged iff
// the value actually changed. streamingObject is "" for
// ConfigurationStatusName and the attached streaming source's
// identifier otherwise.
func (c *StatusContainer) Set(statusName string, value Status, streamingObject string) {
	c.mu.Lock()
	old, existed := c.statuses[statusName]
	c.statuses[statusName] = value
	c.mu.Unlock()

	if existed && old == value {
		return
	}
	if c.bus == nil {
		return
	}
	c.bus.Emit(component.CoreEvent{
		Kind:     component.EventConnectionStatusChanged,
		GlobalID: c.globalID,
		Parameters: map[string]interface{}{
			"StatusName":       statusName,
			"ConnectionString": c.connectionString,
			"StreamingObject":  streamingObject,
			"StatusValue":      string(value),
		},
	})
}

// Get returns the current value of statusName, or "" if never set.
func (c *StatusContainer) Get(statusName string) Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses[statusName]
}

// All returns a snapshot of every tracked status.
func (c *StatusContainer) All() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.statuses))
	for k, v := range c.statuses {
		out[k] = v
	}
	return out
}

// ConfigurationStatus is shorthand for Get(ConfigurationStatusName).
func (c *StatusContainer) ConfigurationStatus() Status {
	return c.Get(ConfigurationStatusName)
}
