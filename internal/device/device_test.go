package device

import (
	"testing"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/require"
)

func TestAddFunctionBlockLocalIDsRecycle(t *testing.T) {
	bus := component.NewEventBus()
	dev := NewDevice("mockdev", bus, Info{Name: "mock device"})

	fb1, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_1", fb1.LocalID())

	fb2, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_2", fb2.LocalID())

	fb3, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_3", fb3.LocalID())

	fb4, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_4", fb4.LocalID())

	require.NoError(t, dev.RemoveFunctionBlock(fb1))
	require.NoError(t, dev.RemoveFunctionBlock(fb2))
	require.NoError(t, dev.RemoveFunctionBlock(fb4))

	fb5, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_4", fb5.LocalID())

	require.Len(t, dev.FunctionBlocks(), 2)
}

func TestChannelSignalGlobalID(t *testing.T) {
	bus := component.NewEventBus()
	dev := NewDevice("mockdev", bus, Info{Name: "mock device"})

	ch, err := dev.AddChannel("ch0")
	require.NoError(t, err)
	sig, err := ch.AddSignal("UniqueId_1", false)
	require.NoError(t, err)

	require.Equal(t, "/mockdev/Ch/ch0/Sig/UniqueId_1", sig.GlobalID())
}

func TestSubDeviceNesting(t *testing.T) {
	bus := component.NewEventBus()
	parent := NewDevice("mockdev", bus, Info{Name: "parent"})
	child := NewDevice("childdev", bus, Info{Name: "child"})

	require.NoError(t, parent.AddSubDevice(child))
	require.Len(t, parent.SubDevices(), 1)
	require.Equal(t, "/mockdev/Dev/childdev", child.GlobalID())
}

func TestDeviceLockBlocksOtherOwner(t *testing.T) {
	bus := component.NewEventBus()
	dev := NewDevice("mockdev", bus, Info{Name: "mock device"})
	require.NoError(t, dev.Lock("alice"))
	require.False(t, dev.CanWrite("bob"))
	require.True(t, dev.CanWrite("alice"))
}

func TestSubDeviceLockPropagatesToDescendants(t *testing.T) {
	bus := component.NewEventBus()
	root := NewDevice("root", bus, Info{Name: "root"})
	child := NewDevice("child", bus, Info{Name: "child"})
	grandchild := NewDevice("grandchild", bus, Info{Name: "grandchild"})
	require.NoError(t, root.AddSubDevice(child))
	require.NoError(t, child.AddSubDevice(grandchild))

	require.NoError(t, root.Lock("alice"))
	require.True(t, child.IsLocked())
	require.True(t, grandchild.IsLocked())
	require.False(t, grandchild.CanWrite("bob"))
	require.True(t, grandchild.CanWrite("alice"))

	// A locked descendant cannot be unlocked directly while the
	// ancestor's lock is in effect.
	err := grandchild.Unlock("alice")
	require.Error(t, err)
	require.Equal(t, daqerr.DeviceLocked, daqerr.KindOf(err))

	require.NoError(t, root.Unlock("alice"))
	require.False(t, child.IsLocked())
	require.False(t, grandchild.IsLocked())
}

func TestSubDeviceLockBlocksConflictingAncestorLock(t *testing.T) {
	bus := component.NewEventBus()
	root := NewDevice("root", bus, Info{Name: "root"})
	child := NewDevice("child", bus, Info{Name: "child"})
	require.NoError(t, root.AddSubDevice(child))

	require.NoError(t, child.Lock("bob"))
	err := root.Lock("alice")
	require.Error(t, err)
	require.Equal(t, daqerr.DeviceLocked, daqerr.KindOf(err))
	require.False(t, root.IsLocked())
}

func TestRemoveFunctionBlockDisconnectsSignals(t *testing.T) {
	bus := component.NewEventBus()
	dev := NewDevice("mockdev", bus, Info{Name: "mock device"})

	producer, err := dev.AddFunctionBlock("producer")
	require.NoError(t, err)
	sig, err := producer.AddSignal("out0", false)
	require.NoError(t, err)

	consumer, err := dev.AddFunctionBlock("consumer")
	require.NoError(t, err)
	port, err := consumer.AddInputPort("in0", nil)
	require.NoError(t, err)
	require.NoError(t, port.Connect(sig, 16, signal.OverflowDropOldest))
	require.Equal(t, 1, sig.ConnectionCount())

	require.NoError(t, dev.RemoveFunctionBlock(producer))

	require.Nil(t, port.ConnectedSignal())
	require.Nil(t, port.Connection())
	require.Equal(t, 0, sig.ConnectionCount())
}
