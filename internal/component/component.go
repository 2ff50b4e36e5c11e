// Package component implements the ComponentTree and PropertySystem
// (spec §4.1): the typed, polymorphic tree every device, channel,
// function block, and signal inhabits, its property system, and its
// core-event bus.
package component

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// Kind distinguishes the concrete component subtype for type switches
// during mirror reconstruction and protocol serialization.
type Kind string

const (
	KindDevice        Kind = "Device"
	KindChannel       Kind = "Channel"
	KindFunctionBlock Kind = "FunctionBlock"
	KindSignal        Kind = "Signal"
	KindInputPort     Kind = "InputPort"
	KindFolder        Kind = "Folder"
)

// Component is the base tree node embedded by Device, Channel,
// FunctionBlock, Signal, InputPort, and Folder. Parent pointers are
// weak: they exist only for global-id resolution and event bubbling,
// never for ownership (spec §9 design notes).
type Component struct {
	mu sync.RWMutex

	kind    Kind
	localID string
	parent  *Component

	children   map[string]*Component
	childOrder []string

	active  bool
	visible bool
	removed bool
	tags    map[string]struct{}
	status  map[string]string

	Props *PropertyObject

	bus  *EventBus
	self interface{} // the concrete wrapper (e.g. *Device) this Component is embedded in
}

// NewComponent creates a detached component node. self should be the
// address of the concrete wrapper type embedding this Component (used
// by callers doing type assertions while walking the tree); it may be
// nil for the synthetic root.
func NewComponent(kind Kind, localID string, bus *EventBus, self interface{}) *Component {
	c := &Component{
		kind:       kind,
		localID:    localID,
		children:   make(map[string]*Component),
		active:     true,
		visible:    true,
		tags:       make(map[string]struct{}),
		status:     make(map[string]string),
		bus:        bus,
		self:       self,
	}
	c.Props = NewPropertyObject(c.emitPropertyEvent, c.GlobalID)
	return c
}

func (c *Component) emitPropertyEvent(ev CoreEvent) {
	c.emit(ev)
}

func (c *Component) emit(ev CoreEvent) {
	if c.bus != nil {
		ev.GlobalID = c.GlobalID()
		c.bus.Emit(ev)
	}
}

// Kind returns the component's subtype tag.
func (c *Component) Kind() Kind { return c.kind }

// LocalID returns the component's local id (unique among siblings).
func (c *Component) LocalID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.localID
}

// Self returns the concrete wrapper this Component was constructed
// with, or nil.
func (c *Component) Self() interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// Parent returns the weak parent pointer, or nil at the root.
func (c *Component) Parent() *Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.parent
}

// GlobalID returns "/parent/.../localId" by walking parent pointers.
func (c *Component) GlobalID() string {
	c.mu.RLock()
	parent := c.parent
	local := c.localID
	c.mu.RUnlock()
	if parent == nil {
		return "/" + local
	}
	return parent.GlobalID() + "/" + local
}

// Removed reports whether this component (or an ancestor) has been removed.
func (c *Component) Removed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removed
}

func (c *Component) checkAlive() error {
	if c.Removed() {
		return daqerr.Newf(daqerr.ComponentRemoved, c.GlobalID(), "component has been removed")
	}
	return nil
}

// Active reports/sets the active flag, emitting AttributeChanged.
func (c *Component) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.active
}

func (c *Component) SetActive(v bool) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	c.mu.Lock()
	old := c.active
	c.active = v
	c.mu.Unlock()
	if old != v {
		c.emit(CoreEvent{Kind: EventAttributeChanged, Parameters: map[string]interface{}{"Name": "Active", "OldValue": old, "Value": v}})
	}
	return nil
}

// Visible reports/sets the visible flag, emitting AttributeChanged.
func (c *Component) Visible() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.visible
}

func (c *Component) SetVisible(v bool) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	c.mu.Lock()
	old := c.visible
	c.visible = v
	c.mu.Unlock()
	if old != v {
		c.emit(CoreEvent{Kind: EventAttributeChanged, Parameters: map[string]interface{}{"Name": "Visible", "OldValue": old, "Value": v}})
	}
	return nil
}

// Tags returns a snapshot of the tag set.
func (c *Component) Tags() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tags))
	for t := range c.tags {
		out = append(out, t)
	}
	return out
}

// AddTag adds a tag, emitting AttributeChanged.
func (c *Component) AddTag(tag string) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	c.mu.Lock()
	c.tags[tag] = struct{}{}
	c.mu.Unlock()
	c.emit(CoreEvent{Kind: EventAttributeChanged, Parameters: map[string]interface{}{"Name": "Tags", "Value": tag}})
	return nil
}

// HasTag reports whether tag is set.
func (c *Component) HasTag(tag string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.tags[tag]
	return ok
}

// SetStatus sets a named status enumeration value, emitting StatusChanged.
func (c *Component) SetStatus(name, value string) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	c.mu.Lock()
	old := c.status[name]
	c.status[name] = value
	c.mu.Unlock()
	if old != value {
		c.emit(CoreEvent{Kind: EventStatusChanged, Parameters: map[string]interface{}{"Name": name, "OldValue": old, "Value": value}})
	}
	return nil
}

// Status returns the current value of a named status, or "" if unset.
func (c *Component) Status(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status[name]
}

// AddChild attaches child under this component, assigning its parent
// pointer. Fails with DuplicateItem if a sibling already has that
// local id. Emits ComponentAdded after the child is visible in the
// tree (spec §3: "made visible to listeners by a ComponentAdded
// event").
func (c *Component) AddChild(child *Component) error {
	if err := c.checkAlive(); err != nil {
		return err
	}
	c.mu.Lock()
	if _, exists := c.children[child.localID]; exists {
		c.mu.Unlock()
		return daqerr.Newf(daqerr.DuplicateItem, c.GlobalID(), "child %q already exists", child.localID)
	}
	child.mu.Lock()
	child.parent = c
	child.mu.Unlock()
	c.children[child.localID] = child
	c.childOrder = append(c.childOrder, child.localID)
	c.mu.Unlock()

	c.emit(CoreEvent{Kind: EventComponentAdded, Parameters: map[string]interface{}{"Component": child.GlobalID()}})
	return nil
}

// RemoveChild removes the named child, recursively marking its entire
// subtree removed exactly once (spec §3 lifecycle). A second call for
// the same localID fails NotFound and changes nothing.
func (c *Component) RemoveChild(localID string) error {
	c.mu.Lock()
	child, exists := c.children[localID]
	if !exists {
		c.mu.Unlock()
		return daqerr.Newf(daqerr.NotFound, c.GlobalID(), "child %q not found", localID)
	}
	delete(c.children, localID)
	for i, id := range c.childOrder {
		if id == localID {
			c.childOrder = append(c.childOrder[:i], c.childOrder[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	gid := child.GlobalID()
	child.markRemovedRecursive()
	c.emit(CoreEvent{Kind: EventComponentRemoved, Parameters: map[string]interface{}{"Component": gid}})
	return nil
}

// Remover is implemented by a concrete wrapper type (via Self()) that
// must react to its own removal -- Signal and InputPort use it to tear
// down connections so a removed signal never leaves a dangling
// connection on a still-live port, and vice versa.
type Remover interface {
	OnRemove()
}

func (c *Component) markRemovedRecursive() {
	c.mu.Lock()
	if c.removed {
		c.mu.Unlock()
		return
	}
	c.removed = true
	self := c.self
	kids := make([]*Component, 0, len(c.children))
	for _, k := range c.children {
		kids = append(kids, k)
	}
	c.mu.Unlock()

	if r, ok := self.(Remover); ok {
		r.OnRemove()
	}
	for _, k := range kids {
		k.markRemovedRecursive()
	}
}

// Children returns the direct children in insertion order.
func (c *Component) Children() []*Component {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Component, 0, len(c.childOrder))
	for _, id := range c.childOrder {
		out = append(out, c.children[id])
	}
	return out
}

// Child looks up a direct child by local id.
func (c *Component) Child(localID string) (*Component, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.children[localID]
	return ch, ok
}

// FindByGlobalID resolves a "/a/b/c"-style path relative to this
// component being the root segment "/a".
func (c *Component) FindByGlobalID(globalID string) (*Component, bool) {
	if globalID == c.GlobalID() {
		return c, true
	}
	prefix := c.GlobalID() + "/"
	if len(globalID) <= len(prefix) || globalID[:len(prefix)] != prefix {
		return nil, false
	}
	rest := globalID[len(prefix):]
	cur := c
	for _, seg := range splitPath(rest) {
		next, ok := cur.Child(seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func splitPath(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[start:i])
			start = i + 1
		}
	}
	out = append(out, p[start:])
	return out
}

// Bus returns the event bus this component emits on (shared by the
// whole tree, owned by the Instance).
func (c *Component) Bus() *EventBus { return c.bus }
