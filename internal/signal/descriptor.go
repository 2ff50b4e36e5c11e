// Package signal implements the signal/packet pipeline (spec §4.2):
// descriptors, packet types, input-port subscription, and packet
// delivery with backpressure.
package signal

import "github.com/openDAQ/openDAQ-sub000/internal/component"

// SampleType enumerates supported packet payload element types.
type SampleType string

const (
	SampleInvalid SampleType = "Invalid"
	SampleInt8    SampleType = "Int8"
	SampleInt16   SampleType = "Int16"
	SampleInt32   SampleType = "Int32"
	SampleInt64   SampleType = "Int64"
	SampleUInt8   SampleType = "UInt8"
	SampleUInt16  SampleType = "UInt16"
	SampleUInt32  SampleType = "UInt32"
	SampleUInt64  SampleType = "UInt64"
	SampleFloat32 SampleType = "Float32"
	SampleFloat64 SampleType = "Float64"
	SampleString  SampleType = "String"
	SampleStruct  SampleType = "Struct"
)

// Rule describes how a DataPacket's samples are produced.
type Rule string

const (
	RuleExplicit Rule = "Explicit"
	RuleLinear   Rule = "Linear"
	RuleConstant Rule = "Constant"
)

// ValueRange is an inclusive numeric range.
type ValueRange struct {
	Low, High float64
}

// PostScaling describes an optional linear transform applied after the
// raw sample type, and the sample type it produces.
type PostScaling struct {
	Scale, Offset float64
	OutputType    SampleType
}

// DataDescriptor is an immutable description of packet payload (spec
// §3). Each SetDescriptor call on a Signal swaps in a new, distinct
// *DataDescriptor rather than mutating one in place.
type DataDescriptor struct {
	SampleType    SampleType
	Unit          string
	Range         *ValueRange
	Rule          Rule
	LinearDelta   float64
	LinearStart   int64
	Dimensions    []int
	TickResolution component.Ratio
	Origin        string // ISO-8601
	PostScaling   *PostScaling
	Metadata      map[string]string
}

// Fingerprint derives a stable identifier for this descriptor, used to
// tie DataPackets back to the DataDescriptorChanged event that
// introduced the descriptor they were produced under (spec §8 testable
// property, §6 wire layout "descriptor fingerprint").
func (d *DataDescriptor) Fingerprint() uint32 {
	if d == nil {
		return 0
	}
	h := fnv32("")
	h = fnv32Add(h, string(d.SampleType))
	h = fnv32Add(h, d.Unit)
	h = fnv32Add(h, string(d.Rule))
	h = fnv32Add(h, d.Origin)
	for _, dim := range d.Dimensions {
		h = fnv32AddInt(h, dim)
	}
	return h
}

func fnv32(s string) uint32 { return fnv32Add(2166136261, s) }

func fnv32Add(h uint32, s string) uint32 {
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

func fnv32AddInt(h uint32, n int) uint32 {
	for n != 0 {
		h ^= uint32(n & 0xff)
		h *= 16777619
		n >>= 8
	}
	return h
}
