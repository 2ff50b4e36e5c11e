package signal

// EventID names well-known EventPacket event types.
type EventID string

const (
	EventDataDescriptorChanged EventID = "DATA_DESCRIPTOR_CHANGED"
	EventPacketStreamEnded     EventID = "PACKET_STREAM_ENDED"
	EventImplicitDomainGap     EventID = "IMPLICIT_DOMAIN_GAP_DETECTED"
)

// Packet is the unit of transfer between a Signal and its connected
// InputPorts: either a DataPacket carrying samples or an EventPacket
// carrying out-of-band notices such as a descriptor change (spec §4.2).
type Packet interface {
	isPacket()
}

// ConstantChange is one intra-packet value change of a Constant-rule
// DataPacket: every sample from SampleIndex onward takes Value, until
// a later change (or a later packet's base value) supersedes it.
type ConstantChange struct {
	SampleIndex int
	Value       float64
}

// DataPacket carries raw sample bytes produced under a specific
// DataDescriptor, optionally tied to a DomainPacket for its time axis.
// For RuleConstant, Data is empty: the payload is ConstantValue plus
// the ordered ConstantChanges list. ConstantValue may be nil when a
// producer forwards a mid-stream packet whose base value it never saw;
// readers hold back samples until a value arrives (spec §4.2).
type DataPacket struct {
	Descriptor   *DataDescriptor
	DomainPacket *DataPacket
	SampleCount  int
	Offset       int64 // for RuleLinear: first sample's logical tick
	Data         []byte

	ConstantValue   *float64
	ConstantChanges []ConstantChange
}

func (*DataPacket) isPacket() {}

// EventPacket carries an out-of-band notice, most importantly a data
// descriptor change which must be observed by readers before any
// subsequent DataPacket is interpreted (spec §4.2, §8 testable
// property "packets carry correct descriptor / event ordering").
type EventPacket struct {
	ID         EventID
	Parameters map[string]interface{}
}

func (*EventPacket) isPacket() {}

// NewDataDescriptorChangedPacket builds the EventPacket a Signal emits
// whenever SetDescriptor swaps in a new value or domain descriptor.
func NewDataDescriptorChangedPacket(value, domain *DataDescriptor) *EventPacket {
	return &EventPacket{
		ID: EventDataDescriptorChanged,
		Parameters: map[string]interface{}{
			"DataDescriptor":   value,
			"DomainDescriptor": domain,
		},
	}
}
