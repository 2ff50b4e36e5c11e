package component

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// TypeKind distinguishes the kinds of named type the TypeManager holds.
type TypeKind string

const (
	TypePropertyObjectClass TypeKind = "PropertyObjectClass"
	TypeEnumeration         TypeKind = "EnumerationType"
	TypeStruct              TypeKind = "StructType"
)

// TypeDef is a named type referenced by property descriptors or
// mirrored snapshots (Struct field layouts, Enumeration members,
// PropertyObjectClass templates).
type TypeDef struct {
	Kind    TypeKind
	Name    string
	Fields  []string      // StructType field names, in order
	Members []string      // EnumerationType member names, in order
	Parent  string        // PropertyObjectClass parent class name, if any
}

// TypeManager is process-wide within one Instance, never a module-level
// singleton (spec §9 design notes: "A reimplementation should make it
// an explicit field of Instance").
type TypeManager struct {
	mu    sync.RWMutex
	bus   *EventBus
	types map[string]*TypeDef
}

// NewTypeManager creates an empty type manager bound to bus for
// TypeAdded/TypeRemoved events.
func NewTypeManager(bus *EventBus) *TypeManager {
	return &TypeManager{bus: bus, types: make(map[string]*TypeDef)}
}

// AddType registers t, replacing any existing definition of the same
// name (the mirror engine re-adds types idempotently from snapshots).
func (tm *TypeManager) AddType(t *TypeDef) {
	tm.mu.Lock()
	tm.types[t.Name] = t
	tm.mu.Unlock()
	if tm.bus != nil {
		tm.bus.Emit(CoreEvent{Kind: EventTypeAdded, Parameters: map[string]interface{}{"Name": t.Name}})
	}
}

// RemoveType removes a type definition by name.
func (tm *TypeManager) RemoveType(name string) error {
	tm.mu.Lock()
	if _, ok := tm.types[name]; !ok {
		tm.mu.Unlock()
		return daqerr.Newf(daqerr.NotFound, "", "type %q not found", name)
	}
	delete(tm.types, name)
	tm.mu.Unlock()
	if tm.bus != nil {
		tm.bus.Emit(CoreEvent{Kind: EventTypeRemoved, Parameters: map[string]interface{}{"Name": name}})
	}
	return nil
}

// Type looks up a type definition by name.
func (tm *TypeManager) Type(name string) (*TypeDef, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	t, ok := tm.types[name]
	return t, ok
}

// HasType reports whether name is a known type.
func (tm *TypeManager) HasType(name string) bool {
	_, ok := tm.Type(name)
	return ok
}

// Types returns every registered type definition.
func (tm *TypeManager) Types() []*TypeDef {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	out := make([]*TypeDef, 0, len(tm.types))
	for _, t := range tm.types {
		out = append(out, t)
	}
	return out
}
