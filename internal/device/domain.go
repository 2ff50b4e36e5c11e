// Package device implements the device/channel/function-block layer
// (spec §4.3) on top of internal/component.
package device

import "github.com/openDAQ/openDAQ-sub000/internal/component"

// Domain carries a device's time-axis metadata: the tick resolution
// fed into DataDescriptor.TickResolution for its signals, the
// ISO-8601 origin, the physical unit, and optional synchronization
// identifiers (spec §4.3, grounded on the original's DeviceDomain
// struct fields TickResolution/Origin/Unit/domainId/grandmasterOffset).
type Domain struct {
	TickResolution    component.Ratio
	Origin            string
	Unit              string
	DomainID          string
	GrandmasterOffset *int64
}

// Info describes a device's identity and capabilities as surfaced by
// discovery and the module manager (spec §4.3/§5).
type Info struct {
	Name             string
	Model            string
	SerialNumber     string
	ManufacturerName string
	ConnectionString string
	DeviceType       string
	Capabilities     []ServerCapability
	CustomInfo       map[string]interface{}
}

// ProtocolType classifies what a ServerCapability is good for (spec
// §3/§6): a pure configuration channel, a pure streaming source, or
// both over the same connection.
type ProtocolType string

const (
	ProtocolConfiguration          ProtocolType = "Configuration"
	ProtocolStreaming              ProtocolType = "Streaming"
	ProtocolConfigurationAndStream ProtocolType = "ConfigurationAndStreaming"
)

// ReachabilityStatus reports whether an AddressInfo entry was found to
// be reachable during discovery probing.
type ReachabilityStatus string

const (
	ReachabilityUnknown     ReachabilityStatus = "Unknown"
	ReachabilityReachable   ReachabilityStatus = "Reachable"
	ReachabilityUnreachable ReachabilityStatus = "Unreachable"
)

// AddressType distinguishes an AddressInfo entry's address family, used
// to honor General.PrimaryAddressType when several addresses are
// advertised for the same capability (spec §4.3 table).
type AddressType string

const (
	AddressIPv4 AddressType = "IPv4"
	AddressIPv6 AddressType = "IPv6"
)

// AddressInfo is one reachable (or not yet probed) address a
// ServerCapability advertises (spec §6 "addressInfo").
type AddressInfo struct {
	Address          string
	Type             AddressType
	Reachability     ReachabilityStatus
	ConnectionString string
}

// ServerCapability advertises one protocol/address a device exposes
// for remote connection, used by discovery folding, the resolver's
// connect-string dispatch, and the streaming-connection heuristic
// (spec §3, §5, §6).
type ServerCapability struct {
	ProtocolID        string
	ProtocolName      string
	ProtocolType      ProtocolType
	Prefix            string
	ConnectionStrings []string
	Addresses         []string
	AddressInfo       []AddressInfo
	Port              int
	ProtocolVersion   string
}

// PrimaryConnectionString returns the first advertised connection
// string, or "" if none are listed.
func (c ServerCapability) PrimaryConnectionString() string {
	if len(c.ConnectionStrings) == 0 {
		return ""
	}
	return c.ConnectionStrings[0]
}

// ModuleVersionInfo mirrors the original's three-part semantic version
// fields carried on ModuleInfo.
type ModuleVersionInfo struct {
	Major, Minor, Patch int
}

// ModuleInfo identifies one loaded module (spec §5 ModuleManager).
type ModuleInfo struct {
	Version ModuleVersionInfo
	Name    string
	ID      string
}
