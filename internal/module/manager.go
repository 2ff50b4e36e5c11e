// Package module implements the module manager and connect-string
// resolver (spec §5): module registration/discovery, device creation
// dispatch, and streaming-candidate selection.
package module

import (
	"sort"
	"strings"
	"sync"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/internal/device"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// Manager holds the set of loaded modules and dispatches
// connect-string based device creation and function-block creation by
// type id (spec §5 "ModuleManager"). It also keeps the discovery
// cache GetAvailableDevices last produced, consulted by the "daq://"
// smart-connect path (spec §6 connection-string grammar).
type Manager struct {
	mu      sync.RWMutex
	modules []device.Module
	cache   []device.DiscoveredDevice
	log     *logger.Logger
}

// NewManager creates an empty module manager.
func NewManager() *Manager {
	return &Manager{log: logger.New("modulemanager")}
}

// AddModule registers mod. Modules are tried for connect-string
// dispatch in registration order.
func (m *Manager) AddModule(mod device.Module) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules = append(m.modules, mod)
	m.log.Infof("module %q (%s) registered, device types: %v", mod.Info().Name, mod.Info().ID, sortedKeys(mod.AvailableDeviceTypes()))
}

// Modules returns the registered modules in registration order.
func (m *Manager) Modules() []device.Module {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]device.Module, len(m.modules))
	copy(out, m.modules)
	return out
}

// AvailableDeviceTypes merges every module's device type catalog,
// scheme to human-readable name.
func (m *Manager) AvailableDeviceTypes() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for _, mod := range m.modules {
		for k, v := range mod.AvailableDeviceTypes() {
			out[k] = v
		}
	}
	return out
}

// AvailableFunctionBlockTypes merges every module's function block
// type catalog, type id to human-readable name.
func (m *Manager) AvailableFunctionBlockTypes() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string)
	for _, mod := range m.modules {
		for k, v := range mod.AvailableFunctionBlockTypes() {
			out[k] = v
		}
	}
	return out
}

// CreateDevice dispatches connString to the first registered module
// that accepts it (spec §5 "connect-string dispatch"), creating the
// device's component tree on bus.
func (m *Manager) CreateDevice(connString string, bus *component.EventBus) (*device.Device, error) {
	for _, mod := range m.Modules() {
		if mod.AcceptsConnectionString(connString) {
			return mod.CreateDevice(connString, bus)
		}
	}
	return nil, daqerr.Newf(daqerr.InvalidParameter, "", "no module accepts connection string %q", connString)
}

// CreateFunctionBlock dispatches typeID to the first module that
// advertises it.
func (m *Manager) CreateFunctionBlock(typeID, localID string, bus *component.EventBus) (*device.FunctionBlock, error) {
	for _, mod := range m.Modules() {
		if _, ok := mod.AvailableFunctionBlockTypes()[typeID]; ok {
			return mod.CreateFunctionBlock(typeID, localID, bus)
		}
	}
	return nil, daqerr.Newf(daqerr.NotFound, "", "no module provides function block type %q", typeID)
}

// AddDevice resolves connString to a module, creates the device, and
// attaches it under instanceRoot's well-known "Dev" folder, then walks
// the new device's subtree applying the streaming-connection heuristic
// of cfg (spec §4.3 "addDevice(connectionString, config)"). The
// returned StreamingAttachment list is informational only: wiring an
// actual streaming transport onto each attachment is the caller's
// responsibility (internal/transport/ws or a mirror's own streaming
// source), since the module manager itself has no transport-layer
// knowledge of streaming protocols beyond what ServerCapability
// advertises.
func (m *Manager) AddDevice(instanceRoot *component.Component, connString string, cfg AddDeviceConfig) (*device.Device, []StreamingAttachment, error) {
	if connString == "" {
		return nil, nil, daqerr.New(daqerr.InvalidParameter, "", "connection string is required")
	}
	if strings.HasPrefix(connString, smartScheme) {
		resolved, err := m.resolveSmartConnect(connString, cfg.resolveConfig().PrimaryAddressIPv6)
		if err != nil {
			return nil, nil, err
		}
		connString = resolved
	}
	dev, err := m.CreateDevice(connString, instanceRoot.Bus())
	if err != nil {
		return nil, nil, err
	}
	folder, err := component.EnsureFolder(instanceRoot, "Dev")
	if err != nil {
		return nil, nil, err
	}
	if err := folder.AddChild(dev.Component); err != nil {
		return nil, nil, err
	}

	attachments := ResolveStreaming(dev, cfg.resolveConfig())
	return dev, attachments, nil
}

// smartScheme triggers smart-connect (spec §6 connection-string
// grammar): the discovery cache is consulted for a matching serial and
// the best-fit protocol per PrimaryAddressType is selected.
const smartScheme = "daq://"

// serialHostPrefix is the well-known host form "openDAQ_<serial>" of
// the §6 grammar; a bare host is treated as the serial itself.
const serialHostPrefix = "openDAQ_"

// resolveSmartConnect maps a "daq://openDAQ_<serial>" connection
// string to the concrete connection string of the discovered device's
// best-fit capability. Configuration-capable protocols win over
// streaming-only ones; within a capability, an address matching the
// requested PrimaryAddressType is preferred over the capability's
// primary connection string.
func (m *Manager) resolveSmartConnect(connString string, preferIPv6 bool) (string, error) {
	host := strings.TrimPrefix(connString, smartScheme)
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	serial := strings.TrimPrefix(host, serialHostPrefix)
	if serial == "" {
		return "", daqerr.Newf(daqerr.InvalidParameter, "", "smart connection string %q names no serial", connString)
	}

	for _, d := range m.discoveryCache() {
		if d.SerialNumber != serial {
			continue
		}
		if best, ok := bestCapability(d.Capabilities); ok {
			if resolved := capabilityConnectionString(best, preferIPv6); resolved != "" {
				return resolved, nil
			}
		}
	}
	return "", daqerr.Newf(daqerr.NotFound, "", "no discovered device matches serial %q", serial)
}

// bestCapability picks the capability smart-connect should dial:
// ConfigurationAndStreaming first, then Configuration, then Streaming.
func bestCapability(caps []device.ServerCapability) (device.ServerCapability, bool) {
	for _, want := range []device.ProtocolType{
		device.ProtocolConfigurationAndStream,
		device.ProtocolConfiguration,
		device.ProtocolStreaming,
	} {
		for _, c := range caps {
			if c.ProtocolType == want {
				return c, true
			}
		}
	}
	return device.ServerCapability{}, false
}

// capabilityConnectionString selects among a multi-homed capability's
// addresses per the requested address family (spec §4.3
// "PrimaryAddressType"), falling back to the capability's primary
// connection string when no address of that family is advertised.
func capabilityConnectionString(c device.ServerCapability, preferIPv6 bool) string {
	want := device.AddressIPv4
	if preferIPv6 {
		want = device.AddressIPv6
	}
	for _, ai := range c.AddressInfo {
		if ai.Type == want && ai.ConnectionString != "" {
			return ai.ConnectionString
		}
	}
	return c.PrimaryConnectionString()
}

// connectionScheme extracts the "scheme://" prefix of a connection
// string, the dispatch key modules match on.
func connectionScheme(connString string) string {
	if i := strings.Index(connString, "://"); i >= 0 {
		return connString[:i+3]
	}
	return ""
}

// sortedKeys is a small helper used by discovery listings to produce
// deterministic ordering for tests and logging.
func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
