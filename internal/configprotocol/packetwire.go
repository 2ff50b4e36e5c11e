package configprotocol

import (
	"encoding/json"

	"github.com/openDAQ/openDAQ-sub000/internal/configprotocol/messages"
	"github.com/openDAQ/openDAQ-sub000/internal/signal"
)

// dataPacketToWire converts one DataPacket (and its recursive domain
// packet, if any) into the §6 wire layout for signal sigRelID at
// sequence seq.
func dataPacketToWire(sigRelID string, seq uint64, p *signal.DataPacket) messages.DataPacketWire {
	w := messages.DataPacketWire{
		SignalGlobalID:        sigRelID,
		Sequence:              seq,
		Type:                  "Data",
		DescriptorFingerprint: p.Descriptor.Fingerprint(),
		SampleCount:           uint64(p.SampleCount),
		Data:                  p.Data,
	}
	if p.Descriptor != nil && p.Descriptor.Rule == signal.RuleLinear {
		off := p.Offset
		w.Offset = &off
	}
	if p.ConstantValue != nil {
		v := *p.ConstantValue
		w.ConstantValue = &v
	}
	for _, c := range p.ConstantChanges {
		w.ConstantChanges = append(w.ConstantChanges, messages.ConstantChangeWire{SampleIndex: uint64(c.SampleIndex), Value: c.Value})
	}
	if p.DomainPacket != nil {
		dw := dataPacketToWire(sigRelID, seq, p.DomainPacket)
		w.Domain = &dw
	}
	return w
}

// descriptorChangedWire builds the EventPacket wire form a subscriber
// sees when a Reader observes a descriptor change while draining (spec
// §4.2: "readers must observe the new descriptor before any subsequent
// DataPacket").
func descriptorChangedWire(sigRelID string, seq uint64, value, domain *signal.DataDescriptor, hasDomain bool) messages.EventPacketWire {
	return messages.EventPacketWire{
		SignalGlobalID:   sigRelID,
		Sequence:         seq,
		Type:             "Event",
		EventID:          string(signal.EventDataDescriptorChanged),
		DataDescriptor:   descriptorToWire(value),
		HasDomain:        hasDomain,
		DomainDescriptor: descriptorToWire(domain),
	}
}

func marshalPacketNotification(sigRelID string, isEvent bool, payload interface{}) (messages.PacketNotification, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return messages.PacketNotification{}, err
	}
	return messages.PacketNotification{SignalGlobalID: sigRelID, IsEvent: isEvent, Payload: raw}, nil
}

// DataPacketFromWire reconstructs a signal.DataPacket from its wire
// form, taking Descriptor from desc, the caller's last known value
// descriptor for the packet's signal (spec §4.5: the mirror interprets samples against
// the most recently observed descriptor, not one embedded per packet).
func DataPacketFromWire(w messages.DataPacketWire, desc *signal.DataDescriptor) *signal.DataPacket {
	p := &signal.DataPacket{
		Descriptor:  desc,
		SampleCount: int(w.SampleCount),
		Data:        w.Data,
	}
	if w.Offset != nil {
		p.Offset = *w.Offset
	}
	if w.ConstantValue != nil {
		v := *w.ConstantValue
		p.ConstantValue = &v
	}
	for _, c := range w.ConstantChanges {
		p.ConstantChanges = append(p.ConstantChanges, signal.ConstantChange{SampleIndex: int(c.SampleIndex), Value: c.Value})
	}
	if w.Domain != nil {
		p.DomainPacket = DataPacketFromWire(*w.Domain, nil)
	}
	return p
}
