package module

import "github.com/openDAQ/openDAQ-sub000/internal/device"

// StreamingHeuristic selects which devices in a connected subtree get
// a streaming source attached (spec §4.3 config property table,
// "StreamingConnectionHeuristic").
type StreamingHeuristic int

const (
	// HeuristicMinConnections attaches streaming only at the root
	// device of the connected subtree.
	HeuristicMinConnections StreamingHeuristic = iota
	// HeuristicMinHops attaches streaming at the leaf device of each
	// subtree, minimizing end-to-end hop count per signal.
	HeuristicMinHops
	// HeuristicNotConnected never attaches streaming automatically.
	HeuristicNotConnected
	// HeuristicNotConnectedButListed records capabilities without
	// establishing a transport, for later manual connection.
	HeuristicNotConnectedButListed
)

// ResolveConfig holds the resolver-relevant subset of the connection
// config property object (spec §4.3 table).
type ResolveConfig struct {
	PrioritizedStreamingProtocols []string
	AllowedStreamingProtocols     []string
	Heuristic                    StreamingHeuristic
	AutomaticallyConnectStreaming bool
	PrimaryAddressIPv6            bool
}

// StreamingAttachment names one device in the tree that should receive
// a streaming source, and the protocol chosen for it.
type StreamingAttachment struct {
	Device   *device.Device
	Protocol string
}

// ResolveStreaming walks root's subtree and decides which devices get
// a streaming attachment, per cfg.Heuristic (spec §8 testable
// property: "under min-connections the number of streaming sources
// equals 1 per device with any configured streaming capability; under
// min-hops it equals the number of leaf subtrees with capability").
func ResolveStreaming(root *device.Device, cfg ResolveConfig) []StreamingAttachment {
	if !cfg.AutomaticallyConnectStreaming || cfg.Heuristic == HeuristicNotConnected {
		return nil
	}

	var out []StreamingAttachment
	var walk func(d *device.Device)
	walk = func(d *device.Device) {
		subs := d.SubDevices()
		switch cfg.Heuristic {
		case HeuristicMinConnections:
			if d == root {
				if proto, ok := pickProtocol(d, cfg); ok {
					out = append(out, StreamingAttachment{Device: d, Protocol: proto})
				}
			}
		case HeuristicMinHops:
			if len(subs) == 0 {
				if proto, ok := pickProtocol(d, cfg); ok {
					out = append(out, StreamingAttachment{Device: d, Protocol: proto})
				}
			}
		case HeuristicNotConnectedButListed:
			// capabilities are recorded by the caller reading
			// device.Info().Capabilities directly; no transport attach.
		}
		for _, sub := range subs {
			walk(sub)
		}
	}
	walk(root)
	return out
}

// pickProtocol returns the first protocol in
// cfg.PrioritizedStreamingProtocols (intersected with
// AllowedStreamingProtocols, if non-empty) that d advertises a
// ServerCapability for.
func pickProtocol(d *device.Device, cfg ResolveConfig) (string, bool) {
	caps := make(map[string]bool)
	for _, c := range d.Info().Capabilities {
		caps[c.ProtocolID] = true
	}
	if len(caps) == 0 {
		return "", false
	}
	allowed := cfg.AllowedStreamingProtocols
	for _, proto := range cfg.PrioritizedStreamingProtocols {
		if !caps[proto] {
			continue
		}
		if len(allowed) > 0 && !contains(allowed, proto) {
			continue
		}
		return proto, true
	}
	return "", false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
