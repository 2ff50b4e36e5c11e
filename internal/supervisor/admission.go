package supervisor

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// ClientType is the requested/admitted role on the ConfigProtocol
// configuration channel (spec §4.4, §1 "client-type admission").
type ClientType string

const (
	ViewOnly        ClientType = "ViewOnly"
	Control         ClientType = "Control"
	ExclusiveControl ClientType = "ExclusiveControl"
)

// DisconnectReason is sent to a client the admission state machine
// drops or rejects (spec §4.4 "send disconnect with reason=...").
type DisconnectReason string

const (
	ReasonControlDropped        DisconnectReason = "ControlDropped"
	ReasonControlClientRejected DisconnectReason = "ControlClientRejected"
)

// ClientInfo describes one admitted (or pending) config-channel
// client. HostName may be empty: the source's "connected clients"
// enumeration permits anonymous entries with an empty hostName, both
// for ViewOnly clients and for pre-handshake placeholders (spec §9
// open question, preserved as observed — see DESIGN.md).
type ClientInfo struct {
	ID       string
	HostName string
	Type     ClientType
}

// Disconnector is invoked by the admission state machine to force a
// client off the configuration channel, e.g. when ExclusiveControl
// with DropOthers admits and must evict existing Control clients.
type Disconnector func(clientID string, reason DisconnectReason)

// Admission is the per-physical-device client-type admission state
// machine (spec §4.4): tracks every currently connected client and
// decides whether a new handshake request is admitted, and whether it
// must first evict existing clients.
type Admission struct {
	mu      sync.Mutex
	clients map[string]ClientInfo
	drop    Disconnector
}

// NewAdmission creates an empty admission tracker. drop is called
// (without holding the internal lock) for every client the state
// machine evicts.
func NewAdmission(drop Disconnector) *Admission {
	return &Admission{clients: make(map[string]ClientInfo), drop: drop}
}

// Request evaluates an incoming handshake for clientID/hostName
// requesting type req with dropOthers. On success the client is
// recorded as admitted and nil is returned; on rejection the client is
// never recorded and ControlClientRejected is returned (spec §4.4
// transition table).
func (a *Admission) Request(clientID, hostName string, req ClientType, dropOthers bool) error {
	a.mu.Lock()

	switch req {
	case ViewOnly:
		// always admitted

	case Control:
		if a.hasTypeLocked(ExclusiveControl) {
			a.mu.Unlock()
			return daqerr.New(daqerr.ControlClientRejected, "", "an ExclusiveControl client is already connected")
		}

	case ExclusiveControl:
		if !dropOthers {
			if a.hasTypeLocked(Control) || a.hasTypeLocked(ExclusiveControl) {
				a.mu.Unlock()
				return daqerr.New(daqerr.ControlClientRejected, "", "a Control or ExclusiveControl client is already connected")
			}
		} else {
			evicted := a.evictLocked(Control, ExclusiveControl)
			a.mu.Unlock()
			for _, id := range evicted {
				if a.drop != nil {
					a.drop(id, ReasonControlDropped)
				}
			}
			a.mu.Lock()
		}

	default:
		a.mu.Unlock()
		return daqerr.Newf(daqerr.InvalidParameter, "", "unknown client type %q", req)
	}

	a.clients[clientID] = ClientInfo{ID: clientID, HostName: hostName, Type: req}
	a.mu.Unlock()
	return nil
}

// Disconnect removes clientID from the admitted set (called when a
// connection closes for any reason, not just eviction).
func (a *Admission) Disconnect(clientID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, clientID)
}

// Clients returns a snapshot of every currently admitted client,
// matching the original's "connected clients" enumeration (spec §6).
func (a *Admission) Clients() []ClientInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ClientInfo, 0, len(a.clients))
	for _, c := range a.clients {
		out = append(out, c)
	}
	return out
}

func (a *Admission) hasTypeLocked(t ClientType) bool {
	for _, c := range a.clients {
		if c.Type == t {
			return true
		}
	}
	return false
}

// evictLocked removes every currently admitted client whose type is in
// types, returning their ids. Caller holds a.mu going in; a.mu is
// unlocked by Request before invoking drop() so the Disconnector may
// itself call back into Disconnect without deadlocking.
func (a *Admission) evictLocked(types ...ClientType) []string {
	want := make(map[ClientType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var ids []string
	for id, c := range a.clients {
		if want[c.Type] {
			ids = append(ids, id)
			delete(a.clients, id)
		}
	}
	return ids
}
