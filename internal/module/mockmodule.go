package module

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// MockModule is a fixture module providing one physical device type
// (connect string "daqmock://<id>") and one function block type
// ("mock_fb_uid"), grounded directly on the original test suite's
// MockPhysicalDeviceImpl/MockDeviceModuleImpl/MockFunctionBlockModuleImpl
// fixtures: four channels (mockChannel1, mockChannelA1, mockChannelB1,
// mockChannelB2) generating packets on a background ticker, and a
// function block type producing one output signal (spec §8 S1/S2).
type MockModule struct {
	info device.ModuleInfo
}

// NewMockModule creates the fixture module.
func NewMockModule() *MockModule {
	return &MockModule{info: device.ModuleInfo{
		Version: device.ModuleVersionInfo{Major: 1, Minor: 0, Patch: 0},
		Name:    "MockModule",
		ID:      "MockModule",
	}}
}

func (m *MockModule) Info() device.ModuleInfo { return m.info }

func (m *MockModule) AvailableDeviceTypes() map[string]string {
	return map[string]string{"daqmock": "Mock physical device"}
}

func (m *MockModule) AcceptsConnectionString(connString string) bool {
	return strings.HasPrefix(connString, "daqmock://")
}

func (m *MockModule) AvailableFunctionBlockTypes() map[string]string {
	return map[string]string{"mock_fb_uid": "Mock function block"}
}

// Discover reports nothing: the mock module is reachable only by a
// fixed "daqmock://" connection string, never mDNS/network discovery
// (spec §1 Non-goals: mDNS advertisement is an external collaborator).
func (m *MockModule) Discover() []device.DiscoveredDevice { return nil }

// CreateDevice builds a mock physical device named after the path
// segment of the "daqmock://<id>" connection string, with four
// channels and a running packet generator (spec §8 S1:
// "getChannels().count == 4").
func (m *MockModule) CreateDevice(connString string, bus *component.EventBus) (*device.Device, error) {
	if !m.AcceptsConnectionString(connString) {
		return nil, daqerr.Newf(daqerr.InvalidParameter, "", "mock module does not accept %q", connString)
	}
	localID := strings.TrimPrefix(connString, "daqmock://")
	if localID == "" {
		localID = "phys_device"
	}

	dev := device.NewDevice(localID, bus, device.Info{
		Name:             "Mock physical device",
		Model:            "MockPhysicalDevice",
		ConnectionString: connString,
		DeviceType:       "daqmock",
	})
	dev.SetDomain(&device.Domain{
		TickResolution: component.Ratio{Numerator: 1, Denominator: 1000000},
		Origin:         "1970-01-01T00:00:00Z",
		Unit:           "s",
	})

	names := []string{"mockChannel1", "mockChannelA1", "mockChannelB1", "mockChannelB2"}
	gen := newMockPacketGenerator()
	for _, name := range names {
		ch, err := dev.AddChannel(name)
		if err != nil {
			return nil, err
		}
		sig, err := ch.AddSignal("UniqueId_1", true)
		if err != nil {
			return nil, err
		}
		sig.SetDescriptor(&signal.DataDescriptor{SampleType: signal.SampleFloat64, Unit: "V", Rule: signal.RuleExplicit})
		gen.addSignal(sig)
	}
	gen.start()
	return dev, nil
}

// CreateFunctionBlock builds a mock function block producing one
// output signal "UniqueId_1" (spec §8 S1:
// "fb.signals[0].globalId == \".../mock_fb_uid_1/Sig/UniqueId_1\"").
func (m *MockModule) CreateFunctionBlock(typeID, localID string, bus *component.EventBus) (*device.FunctionBlock, error) {
	if typeID != "mock_fb_uid" {
		return nil, daqerr.Newf(daqerr.NotFound, "", "mock module does not provide function block type %q", typeID)
	}
	fb := device.NewFunctionBlock(localID, typeID, bus)
	if _, err := fb.AddSignal("UniqueId_1", true); err != nil {
		return nil, err
	}
	if _, err := fb.AddInputPort("Input1", nil); err != nil {
		return nil, err
	}
	return fb, nil
}

// mockPacketGenerator drives a small set of signals with a periodic
// DataPacket, standing in for MockPhysicalDeviceImpl::generatePackets's
// background acquisition thread.
type mockPacketGenerator struct {
	mu      sync.Mutex
	signals []*signal.Signal
	cancel  context.CancelFunc
}

func newMockPacketGenerator() *mockPacketGenerator {
	return &mockPacketGenerator{}
}

func (g *mockPacketGenerator) addSignal(s *signal.Signal) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.signals = append(g.signals, s)
}

func (g *mockPacketGenerator) start() {
	ctx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		var offset int64
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				g.mu.Lock()
				sigs := make([]*signal.Signal, len(g.signals))
				copy(sigs, g.signals)
				g.mu.Unlock()
				for _, s := range sigs {
					if s.Removed() {
						continue
					}
					s.Send(&signal.DataPacket{
						Descriptor:  s.Descriptor(),
						SampleCount: 1,
						Offset:      offset,
						Data:        make([]byte, 8),
					})
				}
				offset++
			}
		}
	}()
}

func (g *mockPacketGenerator) stop() {
	if g.cancel != nil {
		g.cancel()
	}
}
