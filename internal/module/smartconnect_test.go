package module

import (
	"testing"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/require"
)

// discoveringModule wraps the mock module with a canned Discover
// result, standing in for a module with a real network discovery
// mechanism.
type discoveringModule struct {
	*MockModule
	entries []device.DiscoveredDevice
}

func (m *discoveringModule) Discover() []device.DiscoveredDevice { return m.entries }

func newSmartConnectManager() *Manager {
	mgr := NewManager()
	mgr.AddModule(&discoveringModule{
		MockModule: NewMockModule(),
		entries: []device.DiscoveredDevice{
			{
				Name:             "Bench device",
				SerialNumber:     "SER123",
				ManufacturerName: "openDAQ",
				Capabilities: []device.ServerCapability{
					{
						ProtocolID:        "OpenDAQNativeStreaming",
						ProtocolType:      device.ProtocolStreaming,
						ConnectionStrings: []string{"daqmock://streaming_only"},
					},
					{
						ProtocolID:        "OpenDAQNativeConfiguration",
						ProtocolType:      device.ProtocolConfigurationAndStream,
						ConnectionStrings: []string{"daqmock://primary_dev"},
						AddressInfo: []device.AddressInfo{
							{Address: "10.0.0.7", Type: device.AddressIPv4, ConnectionString: "daqmock://ipv4_dev"},
							{Address: "fd00::7", Type: device.AddressIPv6, ConnectionString: "daqmock://ipv6_dev"},
						},
					},
				},
			},
		},
	})
	return mgr
}

func TestSmartConnectResolvesSerialAgainstDiscoveryCache(t *testing.T) {
	mgr := newSmartConnectManager()
	inst := component.NewInstance("root")

	dev, _, err := mgr.AddDevice(inst.Root, "daq://openDAQ_SER123", CreateDefaultAddDeviceConfig())
	require.NoError(t, err)
	require.Equal(t, "ipv4_dev", dev.LocalID())
}

func TestSmartConnectHonorsPrimaryAddressType(t *testing.T) {
	mgr := newSmartConnectManager()
	inst := component.NewInstance("root")

	cfg := CreateDefaultAddDeviceConfig()
	cfg.General.PrimaryAddressType = "IPv6"
	dev, _, err := mgr.AddDevice(inst.Root, "daq://openDAQ_SER123", cfg)
	require.NoError(t, err)
	require.Equal(t, "ipv6_dev", dev.LocalID())
}

func TestSmartConnectPrefersConfigurationOverStreamingOnly(t *testing.T) {
	mgr := newSmartConnectManager()

	resolved, err := mgr.resolveSmartConnect("daq://openDAQ_SER123", false)
	require.NoError(t, err)
	require.NotEqual(t, "daqmock://streaming_only", resolved)
}

func TestSmartConnectFallsBackToPrimaryConnectionString(t *testing.T) {
	mgr := NewManager()
	mgr.AddModule(&discoveringModule{
		MockModule: NewMockModule(),
		entries: []device.DiscoveredDevice{
			{
				SerialNumber:     "SER900",
				ManufacturerName: "openDAQ",
				Capabilities: []device.ServerCapability{
					{
						ProtocolType:      device.ProtocolConfiguration,
						ConnectionStrings: []string{"daqmock://primary_only"},
					},
				},
			},
		},
	})

	resolved, err := mgr.resolveSmartConnect("daq://openDAQ_SER900", true)
	require.NoError(t, err)
	require.Equal(t, "daqmock://primary_only", resolved)
}

func TestSmartConnectUnknownSerialFailsNotFound(t *testing.T) {
	mgr := newSmartConnectManager()
	inst := component.NewInstance("root")

	_, _, err := mgr.AddDevice(inst.Root, "daq://openDAQ_NOPE", CreateDefaultAddDeviceConfig())
	require.True(t, daqerr.Is(err, daqerr.NotFound))

	_, _, err = mgr.AddDevice(inst.Root, "daq://openDAQ_", CreateDefaultAddDeviceConfig())
	require.True(t, daqerr.Is(err, daqerr.InvalidParameter))
}
