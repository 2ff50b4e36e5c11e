package device

import "github.com/openDAQ/openDAQ-sub000/internal/component"

// Module is the pluggable factory interface the ModuleManager loads
// and queries (spec §5). A module enumerates the device and
// function-block types it can build and builds instances from a
// connection string or type id on request.
type Module interface {
	Info() ModuleInfo

	// AvailableDeviceTypes returns connection-string-scheme to
	// human-readable-name mappings this module can build.
	AvailableDeviceTypes() map[string]string

	// AcceptsConnectionString reports whether this module recognizes
	// connString's scheme (spec §5 connect-string dispatch).
	AcceptsConnectionString(connString string) bool

	// CreateDevice builds a Device from connString, attaching its
	// component tree to bus.
	CreateDevice(connString string, bus *component.EventBus) (*Device, error)

	// AvailableFunctionBlockTypes returns type-id to human-readable-name
	// mappings this module can build.
	AvailableFunctionBlockTypes() map[string]string

	// CreateFunctionBlock builds a function block of typeID, with
	// localID already resolved by the caller's IDAllocator.
	CreateFunctionBlock(typeID, localID string, bus *component.EventBus) (*FunctionBlock, error)

	// Discover returns the devices this module can currently see on
	// the network without connecting to any of them (spec §4.3
	// "getAvailableDevices()"). Modules with no discovery mechanism
	// (e.g. a fixture module reachable only by a fixed connection
	// string) return nil.
	Discover() []DiscoveredDevice
}

// DiscoveredDevice is one entry a Module's Discover call contributes
// to ModuleManager.GetAvailableDevices, before the manager's
// Configuration/Streaming folding heuristic runs (spec §4.3).
type DiscoveredDevice struct {
	Name             string
	Model            string
	SerialNumber     string
	ManufacturerName string
	ConnectionString string
	Capabilities     []ServerCapability
}
