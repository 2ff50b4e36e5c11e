package module

import "github.com/openDAQ/openDAQ-sub000/internal/supervisor"

// AddDeviceConfig is the nested General/Device.*/Streaming.* property
// object createDefaultAddDeviceConfig produces (spec §4.3 table). It is
// a plain Go struct rather than a dynamic component.PropertyObject: the
// resolver and AddDevice only ever consume it by field, and every key
// the table lists has a fixed, known shape, so the dynamic property
// machinery of internal/component buys nothing here and would only
// require re-deriving these same field names through string lookups.
type AddDeviceConfig struct {
	General   GeneralConfig
	Device    map[string]DeviceProtocolConfig
	Streaming map[string]StreamingProtocolConfig
}

// GeneralConfig holds the protocol-independent keys of the General
// sub-object (spec §4.3 table).
type GeneralConfig struct {
	PrioritizedStreamingProtocols []string
	StreamingConnectionHeuristic  StreamingHeuristic
	AllowedStreamingProtocols     []string
	AutomaticallyConnectStreaming bool
	PrimaryAddressType            string // "IPv4" | "IPv6"
	ClientType                    supervisor.ClientType
	ExclusiveControlDropOthers    bool
}

// DeviceProtocolConfig holds the per-protocol overrides under
// Device.<protocol> (spec §4.3 table).
type DeviceProtocolConfig struct {
	Port                            int
	Username                        string
	Password                       string
	ProtocolVersion                 int
	ReconnectionPeriodMs            int
	RestoreClientConfigOnReconnect  bool
	ConfigProtocolRequestTimeoutMs  int
}

// StreamingProtocolConfig holds the per-protocol overrides under
// Streaming.<protocol> (spec §4.3 table).
type StreamingProtocolConfig struct {
	Port int
}

// CreateDefaultAddDeviceConfig returns the default nested config
// addDevice uses when the caller passes none (spec §4.3
// "createDefaultAddDeviceConfig()"): automatic streaming attachment
// under the min-connections heuristic and ViewOnly admission. The
// Device and Streaming maps start empty, so no per-protocol override
// (port, reconnection period) is set.
func CreateDefaultAddDeviceConfig() AddDeviceConfig {
	return AddDeviceConfig{
		General: GeneralConfig{
			StreamingConnectionHeuristic:  HeuristicMinConnections,
			AutomaticallyConnectStreaming: true,
			PrimaryAddressType:            "IPv4",
			ClientType:                    supervisor.ViewOnly,
		},
		Device:    make(map[string]DeviceProtocolConfig),
		Streaming: make(map[string]StreamingProtocolConfig),
	}
}

// resolveConfig projects cfg's General section into the flat
// ResolveConfig ResolveStreaming consumes.
func (cfg AddDeviceConfig) resolveConfig() ResolveConfig {
	return ResolveConfig{
		PrioritizedStreamingProtocols: cfg.General.PrioritizedStreamingProtocols,
		AllowedStreamingProtocols:     cfg.General.AllowedStreamingProtocols,
		Heuristic:                     cfg.General.StreamingConnectionHeuristic,
		AutomaticallyConnectStreaming: cfg.General.AutomaticallyConnectStreaming,
		PrimaryAddressIPv6:            cfg.General.PrimaryAddressType == "IPv6",
	}
}

// DeviceConfigFor returns the per-protocol Device.* override for
// protocol, or the zero value if none was set.
func (cfg AddDeviceConfig) DeviceConfigFor(protocol string) DeviceProtocolConfig {
	if cfg.Device == nil {
		return DeviceProtocolConfig{}
	}
	return cfg.Device[protocol]
}
