// Package messages defines the wire types of the native ConfigProtocol
// (spec §4.4): a length-prefixed, self-describing request/response
// protocol, framed in JSON and carried over a single connection
// (optionally tunnelled through WebSocket).
package messages

import (
	"encoding/json"
	"time"
)

// ProtocolVersionCurrent is the highest version this build speaks.
// Handshake negotiates min(clientMax, serverMax).
const ProtocolVersionCurrent = 3

// FrameKind tags a Frame as a Request, Response, or Notification
// (spec §4.4 "kind tag in {Request, Response, Notification}").
type FrameKind string

const (
	KindRequest      FrameKind = "Request"
	KindResponse     FrameKind = "Response"
	KindNotification FrameKind = "Notification"
)

// RequestOp enumerates the client-initiated request kinds (spec §4.4
// table).
type RequestOp string

const (
	OpHandshake                RequestOp = "Handshake"
	OpGetComponentTreeSnapshot RequestOp = "GetComponentTreeSnapshot"
	OpGetPropertyValue         RequestOp = "GetPropertyValue"
	OpSetPropertyValue         RequestOp = "SetPropertyValue"
	OpCallProcedure            RequestOp = "CallProcedure"
	OpCallFunction             RequestOp = "CallFunction"
	OpAddComponent             RequestOp = "AddComponent"
	OpRemoveComponent          RequestOp = "RemoveComponent"
	OpSubscribe                RequestOp = "Subscribe"
	OpUnsubscribe              RequestOp = "Unsubscribe"
	OpLockDevice               RequestOp = "LockDevice"
	OpUnlockDevice             RequestOp = "UnlockDevice"
	OpGetComponentSnapshot     RequestOp = "GetComponentSnapshot"
)

// NotificationOp enumerates server-originated notification kinds
// (spec §4.4).
type NotificationOp string

const (
	NotifyCoreEvent              NotificationOp = "CoreEvent"
	NotifyPacket                 NotificationOp = "Packet"
	NotifySubscribeAck           NotificationOp = "SubscribeAck"
	NotifyUnsubscribeAck         NotificationOp = "UnsubscribeAck"
	NotifyConnectionStatusUpdate NotificationOp = "ConnectionStatusUpdate"
)

// FrameHeader carries the common envelope fields of every frame,
// mirroring the teacher's MessageHeader shape adapted for a
// request/response RPC instead of mesh gossip: no TTL/broadcast
// concept, but the same id/sequence/timestamp/version fields.
type FrameHeader struct {
	Version     int       `json:"version"`
	ID          string    `json:"id"`
	Kind        FrameKind `json:"kind"`
	Op          string    `json:"op"` // a RequestOp or NotificationOp value
	Sequence    uint64    `json:"sequence"`
	TimestampNs int64     `json:"timestampNs"`
}

// Frame is the length-prefixed unit exchanged over the wire: a header
// plus an opaque, versioned JSON payload (spec §4.4, §6 wire layout).
type Frame struct {
	Header  FrameHeader     `json:"header"`
	Payload json.RawMessage `json:"payload"`
}

// UnmarshalPayload decodes f.Payload into v.
func (f *Frame) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(f.Payload, v)
}

// Age returns how long ago the frame was created.
func (f *Frame) Age() time.Duration {
	return time.Since(time.Unix(0, f.Header.TimestampNs))
}

// HandshakePayload is the Handshake request payload: protocol version
// ceiling, client type, and credentials (spec §4.4, §4.3 ClientType).
type HandshakePayload struct {
	ClientMaxVersion int    `json:"clientMaxVersion"`
	ClientType       string `json:"clientType"` // ViewOnly | Control | ExclusiveControl
	DropOthers       bool   `json:"dropOthers"`
	HostName         string `json:"hostName"`
	Username         string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
}

// HandshakeResult is the Handshake response payload.
type HandshakeResult struct {
	NegotiatedVersion int    `json:"negotiatedVersion"`
	ClientID          string `json:"clientId"`
	RootGlobalID      string `json:"rootGlobalId"`
}

// PropertyValuePayload is shared by GetPropertyValue/SetPropertyValue.
type PropertyValuePayload struct {
	ComponentGlobalID string      `json:"componentGlobalId"`
	PropertyName      string      `json:"propertyName"`
	Value             interface{} `json:"value,omitempty"`
	Protected         bool        `json:"protected,omitempty"`
}

// CallPayload is shared by CallProcedure/CallFunction.
type CallPayload struct {
	ComponentGlobalID string        `json:"componentGlobalId"`
	PropertyName      string        `json:"propertyName"`
	Arguments         []interface{} `json:"arguments,omitempty"`
}

// CallResult carries a CallFunction return value (Procedure calls get
// an empty result on success).
type CallResult struct {
	Value interface{} `json:"value,omitempty"`
}

// ComponentMutationPayload is shared by AddComponent/RemoveComponent.
type ComponentMutationPayload struct {
	ParentGlobalID string `json:"parentGlobalId"`
	Kind           string `json:"kind,omitempty"`
	TypeID         string `json:"typeId,omitempty"`
	LocalID        string `json:"localId"`
}

// ComponentSnapshotRequest requests the subtree snapshot rooted at one
// already-known component, used by the mirror engine to materialize a
// subtree named by a ComponentAdded notification without re-fetching
// the whole tree (spec §4.5 incremental core-event application).
type ComponentSnapshotRequest struct {
	ComponentGlobalID string `json:"componentGlobalId"`
}

// SubscriptionPayload is shared by Subscribe/Unsubscribe.
type SubscriptionPayload struct {
	SignalGlobalID string `json:"signalGlobalId"`
}

// LockPayload is shared by LockDevice/UnlockDevice.
type LockPayload struct {
	DeviceGlobalID string `json:"deviceGlobalId"`
	User           string `json:"user"`
}

// CoreEventNotification wraps one component core event for wire
// delivery (spec §6: Parameters preserves present-with-null vs.
// absent-key distinction via encoding/json's normal map semantics).
type CoreEventNotification struct {
	Kind       string                 `json:"kind"`
	GlobalID   string                 `json:"globalId"`
	Parameters map[string]interface{} `json:"parameters"`
}

// PacketNotification carries one packet for a subscribed signal.
type PacketNotification struct {
	SignalGlobalID string          `json:"signalGlobalId"`
	IsEvent        bool            `json:"isEvent"`
	Payload        json.RawMessage `json:"payload"`
}

// ConnectionStatusUpdate reports a change in the mirror's connection
// state (spec §4.4 notification list, §5 ConnectionSupervisor). A
// server about to close the connection sends one last update naming
// why: Status ReconnectRequested for a backpressure drop, Reason
// ControlDropped for an exclusive-control eviction.
type ConnectionStatusUpdate struct {
	Status string `json:"status"` // Connected | Reconnecting | ReconnectRequested | ...
	Reason string `json:"reason,omitempty"`
}

// ErrorPayload is carried by a Response frame whose request failed;
// Kind maps to one of the daqerr.Kind taxonomy values (spec §7).
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PropertySnapshot is the wire form of one component.Property plus its
// current value (spec §4.5 "every property (with its descriptor)").
type PropertySnapshot struct {
	Name      string      `json:"name"`
	ValueKind string      `json:"valueKind"`
	ItemKind  string      `json:"itemKind,omitempty"`
	Value     interface{} `json:"value,omitempty"`
	Unit      string      `json:"unit,omitempty"`
	ReadOnly  bool        `json:"readOnly,omitempty"`
}

// DataDescriptorWire is the JSON form of signal.DataDescriptor (spec
// §3, §6). SampleType "Invalid" (or an absent descriptor) signals the
// mirror-side "unsupported descriptor" tolerance of §4.5.
type DataDescriptorWire struct {
	SampleType     string            `json:"sampleType"`
	Unit           string            `json:"unit,omitempty"`
	RangeLow       *float64          `json:"rangeLow,omitempty"`
	RangeHigh      *float64          `json:"rangeHigh,omitempty"`
	Rule           string            `json:"rule"`
	LinearDelta    float64           `json:"linearDelta,omitempty"`
	LinearStart    int64             `json:"linearStart,omitempty"`
	Dimensions     []int             `json:"dimensions,omitempty"`
	TickResNum     int64             `json:"tickResNum"`
	TickResDen     int64             `json:"tickResDen"`
	Origin         string            `json:"origin,omitempty"`
	PostScaling    bool              `json:"postScaling,omitempty"`
	PostScale      float64           `json:"postScale,omitempty"`
	PostOffset     float64           `json:"postOffset,omitempty"`
	PostOutputType string            `json:"postOutputType,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// SignalSnapshot is the wire form of a signal.Signal's pipeline-facing
// state (spec §4.5).
type SignalSnapshot struct {
	Descriptor           *DataDescriptorWire `json:"descriptor,omitempty"`
	DomainSignalGlobalID string              `json:"domainSignalGlobalId,omitempty"`
	Public               bool                `json:"public"`
	Streamed             bool                `json:"streamed"`
}

// InputPortSnapshot is the wire form of a signal.InputPort's current
// connection (spec §4.5 "every connection (input-port <-> signal by
// global id)").
type InputPortSnapshot struct {
	ConnectedSignalGlobalID string `json:"connectedSignalGlobalId,omitempty"`
	RequiresSignal          bool   `json:"requiresSignal,omitempty"`
}

// ComponentSnapshot is the recursive wire form of one component.Component
// subtree (spec §4.4 GetComponentTreeSnapshot, §4.5 snapshot
// deserialization).
type ComponentSnapshot struct {
	GlobalID   string                 `json:"globalId"`
	LocalID    string                 `json:"localId"`
	Kind       string                 `json:"kind"`
	Active     bool                   `json:"active"`
	Visible    bool                   `json:"visible"`
	Tags       []string               `json:"tags,omitempty"`
	Status     map[string]string      `json:"status,omitempty"`
	Properties []PropertySnapshot     `json:"properties,omitempty"`
	Children   []ComponentSnapshot    `json:"children,omitempty"`
	Signal     *SignalSnapshot        `json:"signal,omitempty"`
	InputPort  *InputPortSnapshot     `json:"inputPort,omitempty"`
	TypeID     string                 `json:"typeId,omitempty"`
}

// TypeSnapshot is the wire form of one component.TypeDef, applied
// before any object referencing it (spec §4.5: "Types ... are added to
// the local TypeManager before any object that references them").
type TypeSnapshot struct {
	Kind    string   `json:"kind"`
	Name    string   `json:"name"`
	Fields  []string `json:"fields,omitempty"`
	Members []string `json:"members,omitempty"`
	Parent  string   `json:"parent,omitempty"`
}

// TreeSnapshot is the GetComponentTreeSnapshot response payload: every
// type referenced by the tree, followed by the root subtree itself.
type TreeSnapshot struct {
	Types []TypeSnapshot    `json:"types,omitempty"`
	Root  ComponentSnapshot `json:"root"`
}

// DataPacketWire is the §6 packet wire layout for a DataPacket:
// signal global id, monotonically increasing per-signal sequence,
// descriptor fingerprint (tying the packet back to the last
// DataDescriptorChanged seen on this edge), sample count, an optional
// sample buffer, an optional offset for the Linear rule, and an
// optional recursive domain packet.
type DataPacketWire struct {
	SignalGlobalID        string               `json:"signalGlobalId"`
	Sequence              uint64               `json:"sequence"`
	Type                  string               `json:"type"` // always "Data"
	DescriptorFingerprint uint32               `json:"descriptorFingerprint"`
	SampleCount           uint64               `json:"sampleCount"`
	Data                  []byte               `json:"data,omitempty"`
	Offset                *int64               `json:"offset,omitempty"`
	ConstantValue         *float64             `json:"constantValue,omitempty"`
	ConstantChanges       []ConstantChangeWire `json:"constantChanges,omitempty"`
	Domain                *DataPacketWire      `json:"domain,omitempty"`
}

// ConstantChangeWire is one intra-packet value change of a Constant-rule
// data packet (spec §4.2 "Constant-rule rendering").
type ConstantChangeWire struct {
	SampleIndex uint64  `json:"sampleIndex"`
	Value       float64 `json:"value"`
}

// EventPacketWire is the §6 wire layout for an EventPacket (a
// DataDescriptorChanged notice, most importantly).
type EventPacketWire struct {
	SignalGlobalID string                 `json:"signalGlobalId"`
	Sequence       uint64                 `json:"sequence"`
	Type           string                 `json:"type"` // always "Event"
	EventID        string                 `json:"eventId"`
	DataDescriptor *DataDescriptorWire    `json:"dataDescriptor,omitempty"`
	HasDomain      bool                   `json:"hasDomain"`
	DomainDescriptor *DataDescriptorWire  `json:"domainDescriptor,omitempty"`
	Parameters     map[string]interface{} `json:"parameters,omitempty"`
}
