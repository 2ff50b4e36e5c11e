package module

import "github.com/openDAQ/openDAQ-sub000/internal/device"

// GetAvailableDevices merges every registered module's Discover
// results and applies the Configuration/Streaming folding rule (spec
// §4.3): when two entries share serial number and manufacturer and one
// advertises both ConfigurationAndStreaming and Streaming capabilities,
// the Streaming-only entry is folded into the Configuration entry — its
// connection string no longer appears as a top-level result, becoming
// a streaming source of the configuration entry instead. The folded
// result is retained as the manager's discovery cache, consulted by
// "daq://" smart-connect resolution.
func (m *Manager) GetAvailableDevices() []device.DiscoveredDevice {
	var all []device.DiscoveredDevice
	for _, mod := range m.Modules() {
		all = append(all, mod.Discover()...)
	}
	folded := foldDiscovery(all)

	m.mu.Lock()
	m.cache = folded
	m.mu.Unlock()

	out := make([]device.DiscoveredDevice, len(folded))
	copy(out, folded)
	return out
}

// discoveryCache returns the cached discovery results, running a fresh
// discovery sweep first if none have been cached yet.
func (m *Manager) discoveryCache() []device.DiscoveredDevice {
	m.mu.RLock()
	cached := m.cache
	m.mu.RUnlock()
	if cached == nil {
		return m.GetAvailableDevices()
	}
	return cached
}

// identityKey groups discovery entries that describe the same physical
// device (spec §4.3 "share serial number and manufacturer").
func identityKey(d device.DiscoveredDevice) string {
	return d.ManufacturerName + "\x00" + d.SerialNumber
}

func hasCapabilityType(caps []device.ServerCapability, t device.ProtocolType) bool {
	for _, c := range caps {
		if c.ProtocolType == t {
			return true
		}
	}
	return false
}

func foldDiscovery(entries []device.DiscoveredDevice) []device.DiscoveredDevice {
	byIdentity := make(map[string][]int)
	for i, d := range entries {
		if d.SerialNumber == "" && d.ManufacturerName == "" {
			continue // nothing to fold against; keep standalone
		}
		byIdentity[identityKey(d)] = append(byIdentity[identityKey(d)], i)
	}

	folded := make(map[int]bool)
	result := make([]device.DiscoveredDevice, len(entries))
	copy(result, entries)

	for _, idxs := range byIdentity {
		if len(idxs) < 2 {
			continue
		}
		var configIdx = -1
		for _, i := range idxs {
			if hasCapabilityType(entries[i].Capabilities, device.ProtocolConfigurationAndStream) {
				configIdx = i
				break
			}
		}
		if configIdx < 0 {
			continue
		}
		for _, i := range idxs {
			if i == configIdx {
				continue
			}
			if hasCapabilityType(entries[i].Capabilities, device.ProtocolStreaming) &&
				!hasCapabilityType(entries[i].Capabilities, device.ProtocolConfigurationAndStream) {
				result[configIdx].Capabilities = append(result[configIdx].Capabilities, entries[i].Capabilities...)
				folded[i] = true
			}
		}
	}

	out := make([]device.DiscoveredDevice, 0, len(result))
	for i, d := range result {
		if folded[i] {
			continue
		}
		out = append(out, d)
	}
	return out
}
