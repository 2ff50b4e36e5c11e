package module

import (
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/stretchr/testify/require"
)

func TestMockModuleCreatesDeviceWithFourChannels(t *testing.T) {
	mgr := NewManager()
	mgr.AddModule(NewMockModule())

	bus := component.NewEventBus()
	dev, err := mgr.CreateDevice("daqmock://phys_device", bus)
	require.NoError(t, err)
	require.Len(t, dev.Channels(), 4)
}

func TestMockModuleFunctionBlockGlobalID(t *testing.T) {
	mgr := NewManager()
	mgr.AddModule(NewMockModule())

	bus := component.NewEventBus()
	dev, err := mgr.CreateDevice("daqmock://phys_device", bus)
	require.NoError(t, err)
	require.Equal(t, "/phys_device", dev.GlobalID())

	fb, err := dev.AddFunctionBlock("mock_fb_uid")
	require.NoError(t, err)

	created, err := mgr.CreateFunctionBlock("mock_fb_uid", fb.LocalID(), bus)
	require.NoError(t, err)
	require.Equal(t, "mock_fb_uid_1", created.LocalID())
}

func TestMockModuleSignalDeliversPackets(t *testing.T) {
	mgr := NewManager()
	mgr.AddModule(NewMockModule())

	bus := component.NewEventBus()
	dev, err := mgr.CreateDevice("daqmock://phys_device", bus)
	require.NoError(t, err)

	ch := dev.Channels()[0]
	sig := ch.Signals()[0]

	port := signal.NewInputPort("reader_input", bus, nil, signal.NotifyOnEachPacket)
	require.NoError(t, port.Connect(sig, 64, signal.OverflowDropOldest))
	reader := signal.NewReader(port.Connection())

	res, err := reader.Read(1, 2*time.Second)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(res.Packets), 1)
}

func TestResolverMinConnectionsAttachesRootOnly(t *testing.T) {
	bus := component.NewEventBus()
	root := newTestDeviceWithCapability("root", bus, "daq.opcua")
	leaf := newTestDeviceWithCapability("leaf", bus, "daq.opcua")
	require.NoError(t, root.AddSubDevice(leaf))

	attachments := ResolveStreaming(root, ResolveConfig{
		PrioritizedStreamingProtocols: []string{"daq.opcua"},
		Heuristic:                     HeuristicMinConnections,
		AutomaticallyConnectStreaming: true,
	})
	require.Len(t, attachments, 1)
	require.Equal(t, root, attachments[0].Device)
}

func TestResolverMinHopsAttachesLeavesOnly(t *testing.T) {
	bus := component.NewEventBus()
	root := newTestDeviceWithCapability("root", bus, "daq.opcua")
	leaf := newTestDeviceWithCapability("leaf", bus, "daq.opcua")
	require.NoError(t, root.AddSubDevice(leaf))

	attachments := ResolveStreaming(root, ResolveConfig{
		PrioritizedStreamingProtocols: []string{"daq.opcua"},
		Heuristic:                     HeuristicMinHops,
		AutomaticallyConnectStreaming: true,
	})
	require.Len(t, attachments, 1)
	require.Equal(t, leaf, attachments[0].Device)
}

func newTestDeviceWithCapability(localID string, bus *component.EventBus, protocolID string) *device.Device {
	return device.NewDevice(localID, bus, device.Info{
		Name: localID,
		Capabilities: []device.ServerCapability{
			{ProtocolID: protocolID, ProtocolName: protocolID},
		},
	})
}
