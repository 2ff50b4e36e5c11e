package device

import (
	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
)

// FunctionBlock transforms one or more input signals into one or more
// output signals, and may itself contain nested function blocks (spec
// §4.3). Its LocalID suffix is handed out by the owning Device's
// per-type IDAllocator (spec §8 S2).
type FunctionBlock struct {
	*component.Component

	typeID      string
	signals     []*signal.Signal
	inputPorts  []*signal.InputPort
	nestedFBs   []*FunctionBlock
}

// NewFunctionBlock creates a function block of the given type id.
func NewFunctionBlock(localID, typeID string, bus *component.EventBus) *FunctionBlock {
	fb := &FunctionBlock{typeID: typeID}
	fb.Component = component.NewComponent(component.KindFunctionBlock, localID, bus, fb)
	return fb
}

// TypeID returns the function block type identifier it was created from
// (e.g. "mock_fb_uid"), distinct from its instance LocalID.
func (fb *FunctionBlock) TypeID() string { return fb.typeID }

// AddSignal creates an output signal under this function block's "Sig"
// folder.
func (fb *FunctionBlock) AddSignal(localID string, streamed bool) (*signal.Signal, error) {
	sigFolder, err := component.EnsureFolder(fb.Component, "Sig")
	if err != nil {
		return nil, err
	}
	s := signal.NewSignal(localID, fb.Bus(), streamed)
	if err := sigFolder.AddChild(s.Component); err != nil {
		return nil, err
	}
	fb.signals = append(fb.signals, s)
	return s, nil
}

// AddInputPort creates an input port under this function block's "IP"
// folder.
func (fb *FunctionBlock) AddInputPort(localID string, accept signal.AcceptFunc) (*signal.InputPort, error) {
	ipFolder, err := component.EnsureFolder(fb.Component, "IP")
	if err != nil {
		return nil, err
	}
	p := signal.NewInputPort(localID, fb.Bus(), accept, signal.NotifyOnEachPacket)
	if err := ipFolder.AddChild(p.Component); err != nil {
		return nil, err
	}
	fb.inputPorts = append(fb.inputPorts, p)
	return p, nil
}

// AddNestedFunctionBlock attaches a child function block under this
// function block's "FB" folder.
func (fb *FunctionBlock) AddNestedFunctionBlock(child *FunctionBlock) error {
	fbFolder, err := component.EnsureFolder(fb.Component, "FB")
	if err != nil {
		return err
	}
	if err := fbFolder.AddChild(child.Component); err != nil {
		return err
	}
	fb.nestedFBs = append(fb.nestedFBs, child)
	return nil
}

// Signals returns this function block's output signals.
func (fb *FunctionBlock) Signals() []*signal.Signal {
	out := make([]*signal.Signal, len(fb.signals))
	copy(out, fb.signals)
	return out
}

// InputPorts returns this function block's input ports.
func (fb *FunctionBlock) InputPorts() []*signal.InputPort {
	out := make([]*signal.InputPort, len(fb.inputPorts))
	copy(out, fb.inputPorts)
	return out
}

// NestedFunctionBlocks returns directly nested function blocks.
func (fb *FunctionBlock) NestedFunctionBlocks() []*FunctionBlock {
	out := make([]*FunctionBlock, len(fb.nestedFBs))
	copy(out, fb.nestedFBs)
	return out
}
