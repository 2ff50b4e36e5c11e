package device

import (
	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
)

// Channel is a leaf producer of signals directly tied to physical
// hardware, a child of a Device (spec §4.3). It has no function
// blocks or sub-devices of its own.
type Channel struct {
	*component.Component

	signals []*signal.Signal
}

// NewChannel creates a channel under no parent yet.
func NewChannel(localID string, bus *component.EventBus) *Channel {
	c := &Channel{}
	c.Component = component.NewComponent(component.KindChannel, localID, bus, c)
	return c
}

// AddSignal creates and attaches a new signal as a child of this
// channel's "Sig" folder, returning it.
func (c *Channel) AddSignal(localID string, streamed bool) (*signal.Signal, error) {
	sigFolder, err := component.EnsureFolder(c.Component, "Sig")
	if err != nil {
		return nil, err
	}
	s := signal.NewSignal(localID, c.Bus(), streamed)
	if err := sigFolder.AddChild(s.Component); err != nil {
		return nil, err
	}
	c.signals = append(c.signals, s)
	return s, nil
}

// Signals returns this channel's output signals in creation order.
func (c *Channel) Signals() []*signal.Signal {
	out := make([]*signal.Signal, len(c.signals))
	copy(out, c.signals)
	return out
}
