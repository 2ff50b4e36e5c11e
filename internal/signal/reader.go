package signal

import (
	"encoding/binary"
	"math"
	"sort"
	"time"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
)

// Reader drains a Connection on behalf of an application, tracking the
// value and domain descriptors most recently observed so DataPackets
// can be interpreted correctly across descriptor changes (spec §4.2).
// lastConstant carries the running value of a Constant-rule stream
// across packets; it stays nil until the first packet carrying a base
// value arrives, so a reader that joined mid-stream produces no
// samples until then.
type Reader struct {
	conn         *Connection
	valueDesc    *DataDescriptor
	domainDesc   *DataDescriptor
	lastConstant *float64
	streamEnded  bool
}

// NewReader creates a reader draining conn.
func NewReader(conn *Connection) *Reader {
	return &Reader{conn: conn}
}

// ReadResult is returned by Read: the data packets retrieved, and
// whether an EventPacket updated the value/domain descriptor in the
// course of draining.
type ReadResult struct {
	Packets          []*DataPacket
	DescriptorHit    bool
	ValueDescriptor  *DataDescriptor
	DomainDescriptor *DataDescriptor
	StreamEnded      bool
}

// Read drains up to max packets, applying any EventPackets encountered
// (descriptor changes, stream-ended) to the reader's own state rather
// than returning them as data. If the connection is empty it waits up
// to timeout for new packets before returning what it has.
func (r *Reader) Read(max int, timeout time.Duration) (ReadResult, error) {
	if r.streamEnded && r.conn.Available() == 0 {
		return ReadResult{StreamEnded: true}, daqerr.New(daqerr.ConnectionLost, "", "packet stream has ended")
	}

	deadline := time.Now().Add(timeout)
	var res ReadResult

	for {
		pkts := r.conn.Dequeue(max - len(res.Packets))
		for _, p := range pkts {
			switch v := p.(type) {
			case *DataPacket:
				res.Packets = append(res.Packets, v)
			case *EventPacket:
				r.applyEvent(v, &res)
			}
		}
		if len(res.Packets) >= max || res.StreamEnded {
			break
		}
		if time.Now().After(deadline) {
			break
		}
		select {
		case <-r.conn.WaitNotify():
		case <-time.After(time.Until(deadline)):
			goto done
		}
	}
done:
	res.ValueDescriptor = r.valueDesc
	res.DomainDescriptor = r.domainDesc
	return res, nil
}

func (r *Reader) applyEvent(ev *EventPacket, res *ReadResult) {
	switch ev.ID {
	case EventDataDescriptorChanged:
		res.DescriptorHit = true
		if d, ok := ev.Parameters["DataDescriptor"].(*DataDescriptor); ok {
			r.valueDesc = d
		}
		if d, ok := ev.Parameters["DomainDescriptor"].(*DataDescriptor); ok {
			r.domainDesc = d
		} else {
			r.domainDesc = nil
		}
	case EventPacketStreamEnded:
		r.streamEnded = true
		res.StreamEnded = true
	}
}

// ReadEvent drains the next EventPacket queued ahead of any DataPacket,
// applying it to the reader's descriptor/stream-ended state exactly as
// Read does and returning it as a first-class value (spec §4.2:
// "Event packets are surfaced separately via readEvent"). It never
// consumes a DataPacket: if one is sitting at the head of the queue,
// ReadEvent returns (nil, nil) immediately so a subsequent Read still
// sees it. It waits up to timeout for a new packet if the queue is
// currently empty.
func (r *Reader) ReadEvent(timeout time.Duration) (*EventPacket, error) {
	deadline := time.Now().Add(timeout)
	for {
		if ev, ok := r.conn.DequeueEventFront(); ok {
			var res ReadResult
			r.applyEvent(ev, &res)
			return ev, nil
		}
		if _, ok := r.conn.PeekFront(); ok {
			return nil, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-r.conn.WaitNotify():
		case <-time.After(time.Until(deadline)):
			return nil, nil
		}
	}
}

// ReadSamples drains DataPackets and materializes up to count Float64
// samples into an Explicit buffer, returning after either count samples
// have accumulated or the timeout expires — the partial buffer at the
// deadline is returned without error (spec §4.2/§5). Explicit packets
// are decoded from their raw sample buffer, Linear packets are computed
// from the descriptor's delta/start and the packet offset, and Constant
// packets are expanded from the running constant value, honoring each
// intra-packet change at its sample index. A Constant packet that
// arrives before any base value is known yields no samples.
func (r *Reader) ReadSamples(count int, timeout time.Duration) ([]float64, error) {
	deadline := time.Now().Add(timeout)
	out := make([]float64, 0, count)
	for {
		pkts := r.conn.Dequeue(0)
		for _, p := range pkts {
			switch v := p.(type) {
			case *DataPacket:
				out = r.materialize(v, out)
			case *EventPacket:
				var res ReadResult
				r.applyEvent(v, &res)
			}
		}
		if len(out) >= count || r.streamEnded {
			return out, nil
		}
		if time.Now().After(deadline) {
			return out, nil
		}
		select {
		case <-r.conn.WaitNotify():
		case <-time.After(time.Until(deadline)):
			return out, nil
		}
	}
}

// materialize appends p's samples to out as float64 values, per p's
// (or, failing that, the reader's last observed) descriptor rule.
func (r *Reader) materialize(p *DataPacket, out []float64) []float64 {
	desc := p.Descriptor
	if desc == nil {
		desc = r.valueDesc
	}
	rule := RuleExplicit
	if desc != nil {
		rule = desc.Rule
	}
	switch rule {
	case RuleExplicit:
		for i := 0; i < p.SampleCount && (i+1)*8 <= len(p.Data); i++ {
			out = append(out, math.Float64frombits(binary.LittleEndian.Uint64(p.Data[i*8:])))
		}
	case RuleLinear:
		for i := 0; i < p.SampleCount; i++ {
			out = append(out, float64(desc.LinearStart)+desc.LinearDelta*float64(p.Offset+int64(i)))
		}
	case RuleConstant:
		if p.ConstantValue != nil {
			v := *p.ConstantValue
			r.lastConstant = &v
		}
		if r.lastConstant == nil {
			return out
		}
		cur := *r.lastConstant
		changes := append([]ConstantChange(nil), p.ConstantChanges...)
		sort.Slice(changes, func(i, j int) bool { return changes[i].SampleIndex < changes[j].SampleIndex })
		ci := 0
		for i := 0; i < p.SampleCount; i++ {
			for ci < len(changes) && changes[ci].SampleIndex <= i {
				cur = changes[ci].Value
				ci++
			}
			out = append(out, cur)
		}
		r.lastConstant = &cur
	}
	return out
}

// Available reports the number of packets currently queued, including
// both data and event packets.
func (r *Reader) Available() int {
	return r.conn.Available()
}
