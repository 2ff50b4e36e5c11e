package component

import "github.com/google/uuid"

// Instance is the root owner of one component tree: it exclusively
// owns the tree (children are owned by parents; parent pointers are
// weak), the process-wide-within-this-instance TypeManager, and the
// shared core-event bus (spec §3 Ownership, §9 "TypeManager... an
// explicit field of Instance, not a module-level singleton").
type Instance struct {
	Root  *Component
	Bus   *EventBus
	Types *TypeManager
}

// NewInstance creates a fresh root component named localID (or a
// generated uuid if empty) with its own event bus and type manager.
func NewInstance(localID string) *Instance {
	if localID == "" {
		localID = uuid.NewString()
	}
	bus := NewEventBus()
	root := NewComponent(KindFolder, localID, bus, nil)
	return &Instance{
		Root:  root,
		Bus:   bus,
		Types: NewTypeManager(bus),
	}
}

// EnsureFolder returns the named child folder of parent, creating it
// (and emitting ComponentAdded) if it does not already exist. Used for
// the well-known "/Dev", "/FB", "/Sig", "/Srv" subtrees (spec §3
// Device attributes).
func EnsureFolder(parent *Component, name string) (*Component, error) {
	if existing, ok := parent.Child(name); ok {
		return existing, nil
	}
	f := NewComponent(KindFolder, name, parent.Bus(), nil)
	if err := parent.AddChild(f); err != nil {
		return nil, err
	}
	return f, nil
}
