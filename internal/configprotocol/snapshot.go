// Package configprotocol implements the native ConfigProtocol server
// and client (spec §4.4): handshake and client-type admission, request
// dispatch (property read/write, procedure/function calls, dynamic
// add/remove, subscribe/unsubscribe, device locking), core-event and
// packet notification delivery, and protocol-version gating. Grounded
// on the teacher's services/mesh/internal/mesh/state_machine.go
// request-dispatch shape and services/mesh/internal/engine/engine.go's
// connection bookkeeping.
package configprotocol

import (
	"strings"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
)

// Every ComponentSnapshot.GlobalID (and every *GlobalID cross-reference
// inside it) is a path RELATIVE to the snapshotted root device, not
// the server's own absolute tree-wide global id: the server has no way
// to know where the client will mount the mirrored device, so "" names
// the root itself and "/Ch/mockChannel1/Sig/UniqueId_1" names a
// descendant. The mirror engine (internal/mirror) prefixes these with
// its local mount path when reconstructing the tree, and strips that
// same prefix before sending a request back (spec §4.5).

// RelativeID expresses target's path relative to root, "" if
// target == root.
func RelativeID(root, target *component.Component) string {
	abs := target.GlobalID()
	rootAbs := root.GlobalID()
	if abs == rootAbs {
		return ""
	}
	return strings.TrimPrefix(abs, rootAbs)
}

// AbsoluteID resolves a RelativeID-produced path back to an absolute
// global id under root.
func AbsoluteID(root *component.Component, rel string) string {
	if rel == "" || rel == "/" {
		return root.GlobalID()
	}
	return root.GlobalID() + rel
}

// Resolve looks up the component at rel (relative to root), per
// RelativeID's convention.
func Resolve(root *component.Component, rel string) (*component.Component, bool) {
	return root.FindByGlobalID(AbsoluteID(root, rel))
}

// BuildSnapshot serializes root's entire subtree into the wire form
// consumed by GetComponentTreeSnapshot (spec §4.4/§4.5). Its Types list
// carries every TypeDef registered in tm, whether or not a component in
// the subtree references it.
func BuildSnapshot(root *component.Component, tm *component.TypeManager) messages.TreeSnapshot {
	return messages.TreeSnapshot{
		Types: buildTypeSnapshots(tm),
		Root:  buildComponentSnapshot(root, root),
	}
}

func buildTypeSnapshots(tm *component.TypeManager) []messages.TypeSnapshot {
	if tm == nil {
		return nil
	}
	var out []messages.TypeSnapshot
	for _, t := range tm.Types() {
		out = append(out, messages.TypeSnapshot{
			Kind:    string(t.Kind),
			Name:    t.Name,
			Fields:  append([]string(nil), t.Fields...),
			Members: append([]string(nil), t.Members...),
			Parent:  t.Parent,
		})
	}
	return out
}

// BuildComponentSnapshot serializes the subtree rooted at target alone
// (its global ids still expressed relative to root), used to fetch one
// newly added subtree rather than the whole tree (spec §4.5).
func BuildComponentSnapshot(root, target *component.Component) messages.ComponentSnapshot {
	return buildComponentSnapshot(root, target)
}

func buildComponentSnapshot(root, c *component.Component) messages.ComponentSnapshot {
	snap := messages.ComponentSnapshot{
		GlobalID:   RelativeID(root, c),
		LocalID:    c.LocalID(),
		Kind:       string(c.Kind()),
		Active:     c.Active(),
		Visible:    c.Visible(),
		Tags:       c.Tags(),
		Properties: buildPropertySnapshots(c.Props),
	}
	if fb, ok := c.Self().(*device.FunctionBlock); ok {
		snap.TypeID = fb.TypeID()
	}
	if sig, ok := c.Self().(*signal.Signal); ok {
		snap.Signal = buildSignalSnapshot(root, sig)
	}
	if port, ok := c.Self().(*signal.InputPort); ok {
		snap.InputPort = buildInputPortSnapshot(root, port)
	}
	for _, ch := range c.Children() {
		snap.Children = append(snap.Children, buildComponentSnapshot(root, ch))
	}
	return snap
}

func buildPropertySnapshots(obj *component.PropertyObject) []messages.PropertySnapshot {
	var out []messages.PropertySnapshot
	for _, desc := range obj.Properties() {
		snap := messages.PropertySnapshot{
			Name:      desc.Name,
			ValueKind: string(desc.ValueKind),
			ItemKind:  string(desc.ItemKind),
			Unit:      desc.Unit,
			ReadOnly:  desc.ReadOnly,
		}
		// A Function/Procedure's value is a Go closure, not something
		// encoding/json can carry over the wire -- clients invoke it
		// through CallFunction/CallProcedure instead (spec §4.4), so
		// only the fact that it's callable is ever serialized.
		if desc.ValueKind != component.KindFunction && desc.ValueKind != component.KindProcedure {
			val, err := obj.GetPropertyValue(desc.Name)
			if err != nil {
				val = desc.Default
			}
			snap.Value = val
		}
		out = append(out, snap)
	}
	return out
}

func buildSignalSnapshot(root *component.Component, sig *signal.Signal) *messages.SignalSnapshot {
	snap := &messages.SignalSnapshot{
		Public:   sig.Public(),
		Streamed: sig.Streamed(),
	}
	if d := sig.DomainSignal(); d != nil {
		snap.DomainSignalGlobalID = RelativeID(root, d.Component)
	}
	snap.Descriptor = descriptorToWire(sig.Descriptor())
	return snap
}

func buildInputPortSnapshot(root *component.Component, port *signal.InputPort) *messages.InputPortSnapshot {
	snap := &messages.InputPortSnapshot{RequiresSignal: port.RequiresSignal()}
	if sig := port.ConnectedSignal(); sig != nil {
		snap.ConnectedSignalGlobalID = RelativeID(root, sig.Component)
	}
	return snap
}

// descriptorToWire converts a signal.DataDescriptor into its JSON-safe
// wire form, or nil if desc is nil (an "undefined descriptor" per §3).
func descriptorToWire(desc *signal.DataDescriptor) *messages.DataDescriptorWire {
	if desc == nil {
		return nil
	}
	w := &messages.DataDescriptorWire{
		SampleType:  string(desc.SampleType),
		Unit:        desc.Unit,
		Rule:        string(desc.Rule),
		LinearDelta: desc.LinearDelta,
		LinearStart: desc.LinearStart,
		Dimensions:  desc.Dimensions,
		TickResNum:  desc.TickResolution.Numerator,
		TickResDen:  desc.TickResolution.Denominator,
		Origin:      desc.Origin,
		Metadata:    desc.Metadata,
	}
	if desc.Range != nil {
		low, high := desc.Range.Low, desc.Range.High
		w.RangeLow, w.RangeHigh = &low, &high
	}
	if desc.PostScaling != nil {
		w.PostScaling = true
		w.PostScale = desc.PostScaling.Scale
		w.PostOffset = desc.PostScaling.Offset
		w.PostOutputType = string(desc.PostScaling.OutputType)
	}
	return w
}

// DescriptorFromWire converts a wire descriptor back into
// *signal.DataDescriptor, or nil for a nil/Invalid-sample-type input —
// the mirror engine keeps the signal in the tree with a null
// descriptor in that case (spec §4.5 "robust to unsupported
// descriptors").
func DescriptorFromWire(w *messages.DataDescriptorWire) *signal.DataDescriptor {
	if w == nil || w.SampleType == "" || w.SampleType == string(signal.SampleInvalid) {
		return nil
	}
	d := &signal.DataDescriptor{
		SampleType:  signal.SampleType(w.SampleType),
		Unit:        w.Unit,
		Rule:        signal.Rule(w.Rule),
		LinearDelta: w.LinearDelta,
		LinearStart: w.LinearStart,
		Dimensions:  w.Dimensions,
		TickResolution: component.Ratio{
			Numerator:   w.TickResNum,
			Denominator: w.TickResDen,
		},
		Origin:   w.Origin,
		Metadata: w.Metadata,
	}
	if w.RangeLow != nil && w.RangeHigh != nil {
		d.Range = &signal.ValueRange{Low: *w.RangeLow, High: *w.RangeHigh}
	}
	if w.PostScaling {
		d.PostScaling = &signal.PostScaling{Scale: w.PostScale, Offset: w.PostOffset, OutputType: signal.SampleType(w.PostOutputType)}
	}
	return d
}
