package device

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// Device is the central addressable node of the tree: it owns
// channels, function blocks, nested (sub-)devices, and the well-known
// "Ch"/"FB"/"Dev" folders, and carries device-level locking and
// ID recycling (spec §4.3, §8 scenarios S1/S2).
type Device struct {
	*component.Component

	mu             sync.RWMutex
	info           Info
	domain         *Domain
	lock           *component.LockState
	typeAllocators map[string]*component.IDAllocator // per function-block type id

	channels   []*Channel
	funcBlocks []*FunctionBlock
	subDevices []*Device
}

// NewDevice creates a root or nested device. info.ConnectionString
// identifies how a client reconnects to this exact device (spec §5
// resolver / mirror reconnect).
func NewDevice(localID string, bus *component.EventBus, info Info) *Device {
	d := &Device{info: info}
	d.Component = component.NewComponent(component.KindDevice, localID, bus, d)
	d.lock = component.NewLockState(d.Component)
	return d
}

// Info returns the device's descriptive info snapshot.
func (d *Device) Info() Info {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.info
}

// Domain returns the device's time-domain metadata, or nil if unset.
func (d *Device) Domain() *Domain {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.domain
}

// SetDomain replaces the device's time-domain metadata, emitting
// DeviceDomainChanged (spec §5 event list).
func (d *Device) SetDomain(dom *Domain) {
	d.mu.Lock()
	d.domain = dom
	d.mu.Unlock()
	if bus := d.Bus(); bus != nil {
		bus.Emit(component.CoreEvent{
			Kind:     component.EventDeviceDomainChanged,
			GlobalID: d.GlobalID(),
			Parameters: map[string]interface{}{"Component": d.GlobalID()},
		})
	}
}

// LockState returns the device's own (non-recursive) lock primitive.
// Most callers want Lock/Unlock/IsLocked/CanWrite below, which apply
// the recursive semantics; this accessor exists for tests and for
// mirror/persist code that needs to read or replay raw owner state.
func (d *Device) LockState() *component.LockState { return d.lock }

// Lock acquires the device-wide lock for user, recursively applying to
// every descendant device's IsLocked/CanWrite. It fails with
// daqerr.DeviceLocked if a descendant device already carries its own
// independent lock held by a different owner: an ancestor lock can
// never silently override a descendant's existing lock (grounded on
// test_device_locking.cpp's LockRevert/AlreadyLockedDifferentUser).
func (d *Device) Lock(user string) error {
	if conflict := d.findConflictingDescendantLock(user); conflict != nil {
		return daqerr.Newf(daqerr.DeviceLocked, d.GlobalID(), "descendant device %q is already locked by a different owner", conflict.GlobalID())
	}
	return d.lock.Lock(user)
}

func (d *Device) findConflictingDescendantLock(user string) *Device {
	for _, sub := range d.SubDevices() {
		if sub.lock.IsLocked() && sub.lock.Owner() != user {
			return sub
		}
		if conflict := sub.findConflictingDescendantLock(user); conflict != nil {
			return conflict
		}
	}
	return nil
}

// Unlock releases this device's own lock for user. It fails with
// daqerr.DeviceLocked, not AccessDenied, while an ancestor device
// holds the lock: a descendant can never be unlocked out from under
// an ancestor's lock, only the ancestor's own Unlock releases it
// (test_device_locking.cpp UnlockChild).
func (d *Device) Unlock(user string) error {
	if parent := ownerDevice(d.Component.Parent()); parent != nil && parent.IsLocked() {
		return daqerr.New(daqerr.DeviceLocked, d.GlobalID(), "device is locked by an ancestor; unlock it there")
	}
	return d.lock.Unlock(user)
}

// IsLocked reports whether this device is locked, either directly or
// because an ancestor device holds the lock (test_device_locking.cpp
// LockBottomUp/LockTopDown/LockUnlockRoot: locking any device in a
// Dev-folder chain makes every descendant report isLocked()==true).
func (d *Device) IsLocked() bool {
	if d.lock.IsLocked() {
		return true
	}
	if parent := ownerDevice(d.Component.Parent()); parent != nil {
		return parent.IsLocked()
	}
	return false
}

// CanWrite reports whether user may perform a writable operation on
// this device. A locked ancestor's owner governs the whole subtree
// underneath it; only once no ancestor holds the lock does the
// device's own lock state decide.
func (d *Device) CanWrite(user string) bool {
	if parent := ownerDevice(d.Component.Parent()); parent != nil && parent.IsLocked() {
		return parent.CanWrite(user)
	}
	return d.lock.CanWrite(user)
}

// ownerDevice walks up from c looking for the nearest ancestor Device,
// skipping the intervening "Dev" folder node (spec §3 well-known
// folders).
func ownerDevice(c *component.Component) *Device {
	for cur := c; cur != nil; cur = cur.Parent() {
		if dev, ok := cur.Self().(*Device); ok {
			return dev
		}
	}
	return nil
}

// AddChannel creates and attaches a channel under this device's "Ch"
// folder.
func (d *Device) AddChannel(localID string) (*Channel, error) {
	folder, err := component.EnsureFolder(d.Component, "Ch")
	if err != nil {
		return nil, err
	}
	ch := NewChannel(localID, d.Bus())
	if err := folder.AddChild(ch.Component); err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.channels = append(d.channels, ch)
	d.mu.Unlock()
	return ch, nil
}

// AddFunctionBlock creates a function block of typeID, assigning it the
// next recycled "<typeID>_<n>" local id via this device's per-type
// allocator (spec §8 S2).
func (d *Device) AddFunctionBlock(typeID string) (*FunctionBlock, error) {
	folder, err := component.EnsureFolder(d.Component, "FB")
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	alloc, ok := d.allocatorFor(typeID)
	if !ok {
		alloc = component.NewIDAllocator(typeID)
		d.setAllocator(typeID, alloc)
	}
	localID := alloc.Allocate()
	d.mu.Unlock()

	fb := NewFunctionBlock(localID, typeID, d.Bus())
	if err := folder.AddChild(fb.Component); err != nil {
		alloc.Release(localID)
		return nil, err
	}
	d.mu.Lock()
	d.funcBlocks = append(d.funcBlocks, fb)
	d.mu.Unlock()
	return fb, nil
}

// RemoveFunctionBlock removes fb from this device, releasing its
// allocated local id suffix back to the per-type allocator so a
// subsequent AddFunctionBlock of the same type can recycle it.
func (d *Device) RemoveFunctionBlock(fb *FunctionBlock) error {
	folder, ok := d.Component.Child("FB")
	if !ok {
		return daqerr.New(daqerr.NotFound, d.GlobalID(), "no function blocks present")
	}
	if err := folder.RemoveChild(fb.LocalID()); err != nil {
		return err
	}
	d.mu.Lock()
	for i, f := range d.funcBlocks {
		if f == fb {
			d.funcBlocks = append(d.funcBlocks[:i], d.funcBlocks[i+1:]...)
			break
		}
	}
	if alloc, ok := d.allocatorFor(fb.TypeID()); ok {
		alloc.Release(fb.LocalID())
	}
	d.mu.Unlock()
	return nil
}

// NextFunctionBlockLocalID allocates, without creating a component,
// the next recycled local id this device would hand to AddFunctionBlock
// for typeID. A module's CreateFunctionBlock factory needs the id
// before the function block (with its signals and ports) exists, so
// AddComponent-over-the-wire handling allocates here and attaches the
// module-built block with AttachFunctionBlock (spec §4.4 AddComponent).
func (d *Device) NextFunctionBlockLocalID(typeID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	alloc, ok := d.allocatorFor(typeID)
	if !ok {
		alloc = component.NewIDAllocator(typeID)
		d.setAllocator(typeID, alloc)
	}
	return alloc.Allocate()
}

// AttachFunctionBlock attaches an already-built function block (e.g.
// one produced by a Module's CreateFunctionBlock using an id obtained
// from NextFunctionBlockLocalID) under this device's "FB" folder.
func (d *Device) AttachFunctionBlock(fb *FunctionBlock) error {
	folder, err := component.EnsureFolder(d.Component, "FB")
	if err != nil {
		return err
	}
	if err := folder.AddChild(fb.Component); err != nil {
		return err
	}
	d.mu.Lock()
	d.funcBlocks = append(d.funcBlocks, fb)
	d.mu.Unlock()
	return nil
}

// AttachRestoredFunctionBlock attaches fb, already built under its
// original saved local id, and marks that id observed in the per-type
// allocator so a later AddFunctionBlock of the same type does not
// reissue a suffix a load already restored (internal/persist's load
// merge, spec §6).
func (d *Device) AttachRestoredFunctionBlock(fb *FunctionBlock) error {
	if err := d.AttachFunctionBlock(fb); err != nil {
		return err
	}
	d.mu.Lock()
	alloc, ok := d.allocatorFor(fb.TypeID())
	if !ok {
		alloc = component.NewIDAllocator(fb.TypeID())
		d.setAllocator(fb.TypeID(), alloc)
	}
	d.mu.Unlock()
	alloc.Observe(fb.LocalID())
	return nil
}

// FunctionBlockByLocalID finds a direct function block by local id.
func (d *Device) FunctionBlockByLocalID(localID string) (*FunctionBlock, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, fb := range d.funcBlocks {
		if fb.LocalID() == localID {
			return fb, true
		}
	}
	return nil, false
}

func (d *Device) allocatorFor(typeID string) (*component.IDAllocator, bool) {
	if d.typeAllocators == nil {
		return nil, false
	}
	a, ok := d.typeAllocators[typeID]
	return a, ok
}

func (d *Device) setAllocator(typeID string, a *component.IDAllocator) {
	if d.typeAllocators == nil {
		d.typeAllocators = make(map[string]*component.IDAllocator)
	}
	d.typeAllocators[typeID] = a
}

// AddSubDevice attaches an already-constructed nested device under this
// device's "Dev" folder.
func (d *Device) AddSubDevice(child *Device) error {
	folder, err := component.EnsureFolder(d.Component, "Dev")
	if err != nil {
		return err
	}
	if err := folder.AddChild(child.Component); err != nil {
		return err
	}
	d.mu.Lock()
	d.subDevices = append(d.subDevices, child)
	d.mu.Unlock()
	return nil
}

// Channels returns this device's direct channels.
func (d *Device) Channels() []*Channel {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Channel, len(d.channels))
	copy(out, d.channels)
	return out
}

// FunctionBlocks returns this device's direct function blocks.
func (d *Device) FunctionBlocks() []*FunctionBlock {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*FunctionBlock, len(d.funcBlocks))
	copy(out, d.funcBlocks)
	return out
}

// SubDevices returns this device's directly nested devices.
func (d *Device) SubDevices() []*Device {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Device, len(d.subDevices))
	copy(out, d.subDevices)
	return out
}

// AllSignals walks channels and function blocks (recursively) and
// returns every output signal reachable from this device.
func (d *Device) AllSignals() []*signal.Signal {
	var out []*signal.Signal
	for _, ch := range d.Channels() {
		out = append(out, ch.Signals()...)
	}
	var walkFB func(fb *FunctionBlock)
	walkFB = func(fb *FunctionBlock) {
		out = append(out, fb.Signals()...)
		for _, nested := range fb.NestedFunctionBlocks() {
			walkFB(nested)
		}
	}
	for _, fb := range d.FunctionBlocks() {
		walkFB(fb)
	}
	return out
}
