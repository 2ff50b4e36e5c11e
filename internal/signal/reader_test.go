package signal

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/require"
)

func float64Bytes(vals ...float64) []byte {
	buf := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func newReaderPipeline(t *testing.T, desc *DataDescriptor) (*Signal, *Reader) {
	t.Helper()
	sig := NewSignal("Sig", nil, false)
	sig.SetDescriptor(desc)
	port := NewInputPort("Port", nil, nil, NotifyOnEachPacket)
	require.NoError(t, port.Connect(sig, 64, OverflowDropOldest))
	return sig, NewReader(port.Connection())
}

func TestReadSamplesExplicit(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleExplicit}
	sig, reader := newReaderPipeline(t, desc)

	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 3, Data: float64Bytes(1.5, 2.5, 3.5)}))

	out, err := reader.ReadSamples(3, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{1.5, 2.5, 3.5}, out)
}

func TestReadSamplesLinearRule(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleLinear, LinearDelta: 2, LinearStart: 10}
	sig, reader := newReaderPipeline(t, desc)

	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 3, Offset: 5}))

	out, err := reader.ReadSamples(3, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{20, 22, 24}, out)
}

func TestReadSamplesConstantRuleExpandsChanges(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleConstant}
	sig, reader := newReaderPipeline(t, desc)

	base := 2.0
	require.NoError(t, sig.Send(&DataPacket{
		Descriptor:      desc,
		SampleCount:     5,
		ConstantValue:   &base,
		ConstantChanges: []ConstantChange{{SampleIndex: 2, Value: 7.0}},
	}))

	out, err := reader.ReadSamples(5, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{2, 2, 7, 7, 7}, out)
}

func TestReadSamplesConstantCarriesAcrossPackets(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleConstant}
	sig, reader := newReaderPipeline(t, desc)

	base := 4.0
	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 2, ConstantValue: &base}))
	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 2}))

	out, err := reader.ReadSamples(4, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{4, 4, 4, 4}, out)
}

func TestReadSamplesConstantBeforeValueProducesNothing(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleConstant}
	sig, reader := newReaderPipeline(t, desc)

	// joined mid-stream: no base value has been observed yet
	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 3}))

	out, err := reader.ReadSamples(3, 100*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, out)

	base := 9.0
	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 2, ConstantValue: &base}))
	out, err = reader.ReadSamples(2, 500*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{9, 9}, out)
}

func TestReadSamplesReturnsPartialAtDeadline(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleExplicit}
	sig, reader := newReaderPipeline(t, desc)

	require.NoError(t, sig.Send(&DataPacket{Descriptor: desc, SampleCount: 2, Data: float64Bytes(1, 2)}))

	start := time.Now()
	out, err := reader.ReadSamples(10, 150*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, out)
	require.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestSendRejectsSampleTypeMismatch(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleExplicit}
	sig, _ := newReaderPipeline(t, desc)

	err := sig.Send(&DataPacket{
		Descriptor:  &DataDescriptor{SampleType: SampleInt32, Rule: RuleExplicit},
		SampleCount: 1,
		Data:        make([]byte, 4),
	})
	require.Error(t, err)
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))
}

func TestSendRequiresDomainPacketIffDomainSignal(t *testing.T) {
	desc := &DataDescriptor{SampleType: SampleFloat64, Rule: RuleExplicit}
	sig, _ := newReaderPipeline(t, desc)
	domain := NewSignal("Time", nil, false)
	domain.SetDescriptor(&DataDescriptor{SampleType: SampleInt64, Rule: RuleLinear, LinearDelta: 1})
	sig.SetDomainSignal(domain)

	err := sig.Send(&DataPacket{Descriptor: desc, SampleCount: 1, Data: make([]byte, 8)})
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))

	require.NoError(t, sig.Send(&DataPacket{
		Descriptor:   desc,
		SampleCount:  1,
		Data:         make([]byte, 8),
		DomainPacket: &DataPacket{Descriptor: domain.Descriptor(), SampleCount: 1, Offset: 0},
	}))

	sig.SetDomainSignal(nil)
	err = sig.Send(&DataPacket{
		Descriptor:   desc,
		SampleCount:  1,
		Data:         make([]byte, 8),
		DomainPacket: &DataPacket{SampleCount: 1},
	})
	require.True(t, daqerr.Is(err, daqerr.InvalidValue))
}
