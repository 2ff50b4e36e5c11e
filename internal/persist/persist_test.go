package persist

import (
	"testing"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/module"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/stretchr/testify/require"
)

func newPersistTestManager() *module.Manager {
	mgr := module.NewManager()
	mgr.AddModule(module.NewMockModule())
	return mgr
}

func TestLoadMergesPropertiesInPlaceWhenDeviceMatches(t *testing.T) {
	inst := component.NewInstance("root")
	mgr := newPersistTestManager()

	dev, _, err := mgr.AddDevice(inst.Root, "daqmock://d1", module.CreateDefaultAddDeviceConfig())
	require.NoError(t, err)
	require.NoError(t, dev.Props.AddProperty(component.Property{Name: "Gain", ValueKind: component.KindFloat, Default: 1.0}))
	require.NoError(t, dev.Props.SetPropertyValue("Gain", 5.0, false))

	blob, err := Save(inst)
	require.NoError(t, err)

	require.NoError(t, dev.Props.SetPropertyValue("Gain", 9.9, false))

	require.NoError(t, Load(inst, blob, mgr, LoadOptions{ReAddDevicesEnabled: false}))

	val, err := dev.Props.GetPropertyValue("Gain")
	require.NoError(t, err)
	require.InDelta(t, 5.0, val.(float64), 0.0001)
}

func TestSaveLoadReAddsMissingDeviceViaModuleManager(t *testing.T) {
	instA := component.NewInstance("root")
	mgrA := newPersistTestManager()
	_, _, err := mgrA.AddDevice(instA.Root, "daqmock://d1", module.CreateDefaultAddDeviceConfig())
	require.NoError(t, err)

	blob, err := Save(instA)
	require.NoError(t, err)

	instB := component.NewInstance("root")
	mgrB := newPersistTestManager()

	require.NoError(t, Load(instB, blob, mgrB, LoadOptions{ReAddDevicesEnabled: true}))

	restored, ok := configprotocol.Resolve(instB.Root, "/Dev/d1")
	require.True(t, ok)
	dev, ok := restored.Self().(*device.Device)
	require.True(t, ok)
	require.Equal(t, "daqmock://d1", dev.Info().ConnectionString)
}

func TestSaveLoadSkipsMissingDeviceWithoutReAdd(t *testing.T) {
	instA := component.NewInstance("root")
	mgrA := newPersistTestManager()
	_, _, err := mgrA.AddDevice(instA.Root, "daqmock://d1", module.CreateDefaultAddDeviceConfig())
	require.NoError(t, err)

	blob, err := Save(instA)
	require.NoError(t, err)

	instB := component.NewInstance("root")
	mgrB := newPersistTestManager()

	require.NoError(t, Load(instB, blob, mgrB, LoadOptions{ReAddDevicesEnabled: false}))

	_, ok := configprotocol.Resolve(instB.Root, "/Dev/d1")
	require.False(t, ok)
}

func TestSaveLoadRestoresCircularFunctionBlockConnections(t *testing.T) {
	instA := component.NewInstance("root")
	mgrA := newPersistTestManager()
	dev, _, err := mgrA.AddDevice(instA.Root, "daqmock://d1", module.CreateDefaultAddDeviceConfig())
	require.NoError(t, err)

	fb1, err := mgrA.CreateFunctionBlock("mock_fb_uid", dev.NextFunctionBlockLocalID("mock_fb_uid"), instA.Root.Bus())
	require.NoError(t, err)
	require.NoError(t, dev.AttachFunctionBlock(fb1))
	fb2, err := mgrA.CreateFunctionBlock("mock_fb_uid", dev.NextFunctionBlockLocalID("mock_fb_uid"), instA.Root.Bus())
	require.NoError(t, err)
	require.NoError(t, dev.AttachFunctionBlock(fb2))
	fb3, err := mgrA.CreateFunctionBlock("mock_fb_uid", dev.NextFunctionBlockLocalID("mock_fb_uid"), instA.Root.Bus())
	require.NoError(t, err)
	require.NoError(t, dev.AttachFunctionBlock(fb3))

	require.NoError(t, fb1.InputPorts()[0].Connect(fb2.Signals()[0], 16, signal.OverflowDropOldest))
	require.NoError(t, fb2.InputPorts()[0].Connect(fb3.Signals()[0], 16, signal.OverflowDropOldest))
	require.NoError(t, fb3.InputPorts()[0].Connect(fb1.Signals()[0], 16, signal.OverflowDropOldest))

	blob, err := Save(instA)
	require.NoError(t, err)

	instB := component.NewInstance("root")
	mgrB := newPersistTestManager()
	require.NoError(t, Load(instB, blob, mgrB, LoadOptions{ReAddDevicesEnabled: true}))

	rfb1, ok := configprotocol.Resolve(instB.Root, configprotocol.RelativeID(instA.Root, fb1.Component))
	require.True(t, ok)
	rfb2, ok := configprotocol.Resolve(instB.Root, configprotocol.RelativeID(instA.Root, fb2.Component))
	require.True(t, ok)
	rfb3, ok := configprotocol.Resolve(instB.Root, configprotocol.RelativeID(instA.Root, fb3.Component))
	require.True(t, ok)

	rfb1fb, ok := rfb1.Self().(*device.FunctionBlock)
	require.True(t, ok)
	rfb2fb, ok := rfb2.Self().(*device.FunctionBlock)
	require.True(t, ok)
	rfb3fb, ok := rfb3.Self().(*device.FunctionBlock)
	require.True(t, ok)

	require.NotNil(t, rfb1fb.InputPorts()[0].ConnectedSignal())
	require.NotNil(t, rfb2fb.InputPorts()[0].ConnectedSignal())
	require.NotNil(t, rfb3fb.InputPorts()[0].ConnectedSignal())

	require.Equal(t, rfb2fb.Signals()[0].GlobalID(), rfb1fb.InputPorts()[0].ConnectedSignal().GlobalID())
	require.Equal(t, rfb3fb.Signals()[0].GlobalID(), rfb2fb.InputPorts()[0].ConnectedSignal().GlobalID())
	require.Equal(t, rfb1fb.Signals()[0].GlobalID(), rfb3fb.InputPorts()[0].ConnectedSignal().GlobalID())
}
