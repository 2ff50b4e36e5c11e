package component

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// LockState is the non-recursive owner-stack primitive behind device
// locking (spec §5 "Device locking"): it tracks only the lock owners
// held directly on one component, LIFO, and never looks at parent or
// child components. internal/device.Device composes LockState across
// a device's sub-device tree to get the recursive semantics (a locked
// ancestor makes every descendant report IsLocked, and a descendant
// already independently locked blocks an ancestor from locking over
// it) -- see Device.Lock/Unlock/IsLocked/CanWrite.
type LockState struct {
	mu      sync.RWMutex
	owners  []string // stack of lock owners on this exact component, outermost first
	locked  *Component
}

// NewLockState creates lock state for the given component.
func NewLockState(c *Component) *LockState {
	return &LockState{locked: c}
}

// Lock acquires a (possibly nested) lock for user.
func (l *LockState) Lock(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.owners = append(l.owners, user)
	l.locked.emit(CoreEvent{Kind: EventDeviceLockStateChanged, Parameters: map[string]interface{}{"Value": true, "Id": user}})
	return nil
}

// Unlock releases the innermost (most recently acquired) lock if it is
// owned by user. The owner check is skipped when user is empty or the
// lock was taken by the empty user. Otherwise fails AccessDenied if
// that owner differs.
func (l *LockState) Unlock(user string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.owners) == 0 {
		return daqerr.New(daqerr.AccessDenied, l.locked.GlobalID(), "device is not locked")
	}
	outer := l.owners[len(l.owners)-1]
	if outer != user && outer != "" && user != "" {
		return daqerr.Newf(daqerr.AccessDenied, l.locked.GlobalID(), "lock owned by %q, not %q", outer, user)
	}
	l.owners = l.owners[:len(l.owners)-1]
	l.locked.emit(CoreEvent{Kind: EventDeviceLockStateChanged, Parameters: map[string]interface{}{"Value": len(l.owners) > 0, "Id": user}})
	return nil
}

// IsLocked reports whether this exact component carries at least one
// lock of its own. It does not check ancestors or descendants; see
// Device.IsLocked for the recursive query.
func (l *LockState) IsLocked() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.owners) > 0
}

// Owner returns the owner of the innermost (most recently acquired)
// lock, or "" if unlocked.
func (l *LockState) Owner() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.owners) == 0 {
		return ""
	}
	return l.owners[len(l.owners)-1]
}

// CanWrite reports whether user may perform a writable operation: true
// if unlocked, or if user owns the innermost (most recently acquired)
// lock.
func (l *LockState) CanWrite(user string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.owners) == 0 {
		return true
	}
	return l.owners[len(l.owners)-1] == user
}
