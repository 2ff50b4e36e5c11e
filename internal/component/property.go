package component

import (
	"sync"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// ValueKind enumerates the supported property value kinds (spec §3).
type ValueKind string

const (
	KindBool        ValueKind = "Bool"
	KindInt         ValueKind = "Int"
	KindFloat       ValueKind = "Float"
	KindString      ValueKind = "String"
	KindList        ValueKind = "List"
	KindDict        ValueKind = "Dict"
	KindRatio       ValueKind = "Ratio"
	KindStruct      ValueKind = "Struct"
	KindEnumeration ValueKind = "Enumeration"
	KindObject      ValueKind = "Object"
	KindFunction    ValueKind = "Function"
	KindProcedure   ValueKind = "Procedure"
	KindReference   ValueKind = "Reference"
	KindSelection   ValueKind = "Selection"
)

// Ratio is a numerator/denominator pair (used for tick resolution and
// linear-rule deltas).
type Ratio struct {
	Numerator   int64
	Denominator int64
}

// CallableInfo describes a Function/Procedure property's signature.
type CallableInfo struct {
	ArgumentNames []string
	ReturnsValue  bool
}

// PropertyCallback is invoked synchronously, on the calling thread, when
// a property's value changes (spec §4.1 setPropertyValue).
type PropertyCallback func(name string, oldValue, newValue interface{})

// CallableFunc is the Go-side implementation backing a Function or
// Procedure property's value (spec §3 "Function, Procedure"; §4.4
// "CallProcedure/CallFunction"). A Procedure ignores the returned
// value.
type CallableFunc func(args []interface{}) (interface{}, error)

// Property is an immutable-once-added descriptor for one named
// attribute on a PropertyObject.
type Property struct {
	Name             string
	ValueKind        ValueKind
	ItemKind         ValueKind // element kind for List/Dict-of
	Default          interface{}
	Unit             string
	Min, Max         interface{}
	SuggestedValues  []interface{}
	ReadOnly         bool
	ReadOnlyExpr     *Expression
	VisibleExpr      *Expression
	ValidatorExpr    *Expression
	CoercerExpr      *Expression
	ReferenceExpr    *Expression
	Selections       []interface{}
	Callable         *CallableInfo
}

// PropertyObject is the typed attribute bag on every component (spec
// §3/§4.1). It is safe for concurrent use: structural changes (add/
// remove property) take the write lock; value reads/writes use a
// per-object mutex, matching the locking policy of spec §5.
type PropertyObject struct {
	mu         sync.RWMutex
	order      []string
	props      map[string]*Property
	values     map[string]interface{}
	callbacks  map[string]PropertyCallback
	onChange   func(ev CoreEvent)
	globalID   func() string
}

// NewPropertyObject creates an empty property bag. onChange, when
// non-nil, is invoked with a CoreEvent for every mutation; globalID
// supplies the owning component's global id for event parameters and
// error context.
func NewPropertyObject(onChange func(CoreEvent), globalID func() string) *PropertyObject {
	return &PropertyObject{
		props:     make(map[string]*Property),
		values:    make(map[string]interface{}),
		callbacks: make(map[string]PropertyCallback),
		onChange:  onChange,
		globalID:  globalID,
	}
}

func (p *PropertyObject) gid() string {
	if p.globalID == nil {
		return ""
	}
	return p.globalID()
}

func (p *PropertyObject) emit(ev CoreEvent) {
	if p.onChange != nil {
		ev.GlobalID = p.gid()
		p.onChange(ev)
	}
}

// AddProperty appends desc to the ordered property list. Rejects
// duplicate names with DuplicateItem.
func (p *PropertyObject) AddProperty(desc Property) error {
	p.mu.Lock()
	if _, exists := p.props[desc.Name]; exists {
		p.mu.Unlock()
		return daqerr.Newf(daqerr.DuplicateItem, p.gid(), "property %q already exists", desc.Name)
	}
	d := desc
	p.props[desc.Name] = &d
	p.order = append(p.order, desc.Name)
	if desc.Default != nil {
		p.values[desc.Name] = desc.Default
	}
	p.mu.Unlock()

	p.emit(CoreEvent{Kind: EventPropertyAdded, Parameters: map[string]interface{}{"Name": desc.Name}})
	return nil
}

// RemoveProperty removes a property descriptor and its value.
func (p *PropertyObject) RemoveProperty(name string) error {
	p.mu.Lock()
	if _, exists := p.props[name]; !exists {
		p.mu.Unlock()
		return daqerr.Newf(daqerr.NotFound, p.gid(), "property %q not found", name)
	}
	delete(p.props, name)
	delete(p.values, name)
	for i, n := range p.order {
		if n == name {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.mu.Unlock()

	p.emit(CoreEvent{Kind: EventPropertyRemoved, Parameters: map[string]interface{}{"Name": name}})
	return nil
}

// Properties returns the ordered property descriptors.
func (p *PropertyObject) Properties() []*Property {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Property, 0, len(p.order))
	for _, n := range p.order {
		out = append(out, p.props[n])
	}
	return out
}

// HasProperty reports whether name is a known property.
func (p *PropertyObject) HasProperty(name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.props[name]
	return ok
}

// OnPropertyValueChanged registers a synchronous change callback for
// one property, invoked on the calling thread (spec §4.1).
func (p *PropertyObject) OnPropertyValueChanged(name string, cb PropertyCallback) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.callbacks[name] = cb
}

// isReadOnlyLocked evaluates desc's read-only predicate. Caller holds
// p.mu, so the expression is evaluated against a lock-free view of the
// stored values rather than p itself (RWMutex is not reentrant).
func (p *PropertyObject) isReadOnlyLocked(desc *Property) bool {
	if desc.ReadOnlyExpr != nil {
		v, err := desc.ReadOnlyExpr.Eval(&lockedCtx{obj: p})
		if err == nil {
			return truthy(v)
		}
	}
	return desc.ReadOnly
}

// lockedCtx resolves identifiers against p's stored values without
// taking p.mu; only usable while the caller already holds the lock.
type lockedCtx struct {
	obj *PropertyObject
}

func (c *lockedCtx) GetPropertyValue(name string) (interface{}, error) {
	if v, ok := c.obj.values[name]; ok {
		return v, nil
	}
	if d, ok := c.obj.props[name]; ok {
		return d.Default, nil
	}
	return nil, daqerr.Newf(daqerr.NotFound, c.obj.gid(), "property %q not found", name)
}

// GetPropertyValue evaluates References and Selections and returns the
// current value.
func (p *PropertyObject) GetPropertyValue(name string) (interface{}, error) {
	p.mu.RLock()
	desc, ok := p.props[name]
	if !ok {
		p.mu.RUnlock()
		return nil, daqerr.Newf(daqerr.NotFound, p.gid(), "property %q not found", name)
	}
	val, hasVal := p.values[name]
	p.mu.RUnlock()

	switch desc.ValueKind {
	case KindReference:
		if desc.ReferenceExpr == nil {
			return nil, daqerr.Newf(daqerr.InvalidValue, p.gid(), "reference property %q has no expression", name)
		}
		return desc.ReferenceExpr.Eval(p)
	case KindSelection:
		idx, ok := val.(int64)
		if !ok {
			if f, ok2 := val.(float64); ok2 {
				idx = int64(f)
			}
		}
		if int(idx) < 0 || int(idx) >= len(desc.Selections) {
			return nil, daqerr.Newf(daqerr.InvalidValue, p.gid(), "selection index %d out of range for %q", idx, name)
		}
		return desc.Selections[idx], nil
	}
	if !hasVal {
		return desc.Default, nil
	}
	return val, nil
}

// SetPropertyValue resolves the property, coerces and validates value,
// stores it, and emits PropertyValueChanged. protected bypasses the
// read-only check (the "Protected" path of spec §4.1).
func (p *PropertyObject) SetPropertyValue(name string, value interface{}, protected bool) error {
	p.mu.Lock()
	desc, ok := p.props[name]
	if !ok {
		p.mu.Unlock()
		return daqerr.Newf(daqerr.NotFound, p.gid(), "property %q not found", name)
	}
	if !protected && p.isReadOnlyLocked(desc) {
		p.mu.Unlock()
		return daqerr.Newf(daqerr.AccessDenied, p.gid(), "property %q is read-only", name)
	}

	coerced := value
	if desc.CoercerExpr != nil {
		scratch := p.withPendingValueLocked(name, value)
		v, err := desc.CoercerExpr.Eval(scratch)
		if err != nil {
			p.mu.Unlock()
			return daqerr.Wrap(daqerr.InvalidValue, p.gid(), err, "coercion failed for "+name)
		}
		coerced = v
	}
	if desc.ValidatorExpr != nil {
		scratch := p.withPendingValueLocked(name, coerced)
		v, err := desc.ValidatorExpr.Eval(scratch)
		if err != nil {
			p.mu.Unlock()
			return daqerr.Wrap(daqerr.InvalidValue, p.gid(), err, "validation failed for "+name)
		}
		if !truthy(v) {
			p.mu.Unlock()
			return daqerr.Newf(daqerr.InvalidValue, p.gid(), "value rejected by validator for %q", name)
		}
	}

	old := p.values[name]
	p.values[name] = coerced
	cb := p.callbacks[name]
	p.mu.Unlock()

	if cb != nil {
		cb(name, old, coerced)
	}
	p.emit(CoreEvent{Kind: EventPropertyValueChanged, Parameters: map[string]interface{}{
		"Name": name, "OldValue": old, "Value": coerced,
	}})
	return nil
}

// withPendingValueLocked returns an EvalContext that sees value for
// name and falls back to the stored value for every other property;
// used so a coercer/validator referencing the property being set (via
// "$<name>" or the bare name) observes the in-flight value. Caller
// must hold p.mu.
func (p *PropertyObject) withPendingValueLocked(name string, value interface{}) EvalContext {
	return &pendingCtx{obj: p, name: name, value: value}
}

type pendingCtx struct {
	obj   *PropertyObject
	name  string
	value interface{}
}

func (c *pendingCtx) GetPropertyValue(name string) (interface{}, error) {
	clean := name
	if clean == c.name {
		return c.value, nil
	}
	if v, ok := c.obj.values[clean]; ok {
		return v, nil
	}
	if d, ok := c.obj.props[clean]; ok {
		return d.Default, nil
	}
	return nil, daqerr.Newf(daqerr.NotFound, c.obj.gid(), "property %q not found", clean)
}

// Call invokes the CallableFunc stored as name's value (spec §4.4
// CallProcedure/CallFunction). Fails NotFound if the property doesn't
// exist, InvalidValue if it isn't a Function/Procedure or carries no
// implementation.
func (p *PropertyObject) Call(name string, args []interface{}) (interface{}, error) {
	p.mu.RLock()
	desc, ok := p.props[name]
	if !ok {
		p.mu.RUnlock()
		return nil, daqerr.Newf(daqerr.NotFound, p.gid(), "property %q not found", name)
	}
	if desc.ValueKind != KindFunction && desc.ValueKind != KindProcedure {
		p.mu.RUnlock()
		return nil, daqerr.Newf(daqerr.InvalidValue, p.gid(), "property %q is not callable", name)
	}
	val, hasVal := p.values[name]
	p.mu.RUnlock()
	if !hasVal {
		return nil, daqerr.Newf(daqerr.InvalidValue, p.gid(), "callable %q has no implementation", name)
	}
	fn, ok := val.(CallableFunc)
	if !ok {
		return nil, daqerr.Newf(daqerr.InvalidValue, p.gid(), "callable %q value is not invocable", name)
	}
	return fn(args)
}

// Visible evaluates the property's visible predicate (default true).
func (p *PropertyObject) Visible(name string) bool {
	p.mu.RLock()
	desc, ok := p.props[name]
	p.mu.RUnlock()
	if !ok || desc.VisibleExpr == nil {
		return true
	}
	v, err := desc.VisibleExpr.Eval(p)
	if err != nil {
		return true
	}
	return truthy(v)
}
