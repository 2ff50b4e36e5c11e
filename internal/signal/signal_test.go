package signal

import (
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/stretchr/testify/require"
)

func TestDescriptorChangeDeliveredBeforeData(t *testing.T) {
	bus := component.NewEventBus()
	sig := NewSignal("sig_voltage", bus, false)

	port := NewInputPort("input0", bus, nil, NotifyOnEachPacket)
	require.NoError(t, port.Connect(sig, 16, OverflowDropOldest))

	desc := &DataDescriptor{SampleType: SampleFloat64, Unit: "V", Rule: RuleExplicit}
	sig.SetDescriptor(desc)
	sig.Send(&DataPacket{Descriptor: desc, SampleCount: 1, Data: []byte{0, 0, 0, 0, 0, 0, 0, 0}})

	reader := NewReader(port.Connection())
	res, err := reader.Read(10, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.DescriptorHit)
	require.Equal(t, desc, res.ValueDescriptor)
	require.Len(t, res.Packets, 1)
}

func TestInputPortRejectsUnacceptedDescriptor(t *testing.T) {
	bus := component.NewEventBus()
	sig := NewSignal("sig_text", bus, false)
	sig.SetDescriptor(&DataDescriptor{SampleType: SampleString})

	onlyFloat := func(d *DataDescriptor) bool { return d.SampleType == SampleFloat64 }
	port := NewInputPort("input0", bus, onlyFloat, NotifyOnEachPacket)

	err := port.Connect(sig, 16, OverflowDropOldest)
	require.Error(t, err)
}

func TestConnectionDropsOldestDataNotEvents(t *testing.T) {
	conn := NewConnection(2, OverflowDropOldest)
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 1}))
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 2}))
	// queue full; this push should evict the oldest data packet
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 3}))

	pkts := conn.Dequeue(10)
	require.Len(t, pkts, 2)
	require.Equal(t, 2, pkts[0].(*DataPacket).SampleCount)
	require.Equal(t, 3, pkts[1].(*DataPacket).SampleCount)
}

func TestConnectionCoalescesEventBeforeDroppingData(t *testing.T) {
	desc1 := &DataDescriptor{SampleType: SampleFloat64}
	desc2 := &DataDescriptor{SampleType: SampleFloat64, Unit: "V"}

	conn := NewConnection(2, OverflowDropOldest)
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 1}))
	require.True(t, conn.Enqueue(NewDataDescriptorChangedPacket(desc1, nil)))
	// Queue full (1 data + 1 event). A new event must coalesce the
	// queued event, not evict the data packet.
	require.True(t, conn.Enqueue(NewDataDescriptorChangedPacket(desc2, nil)))

	pkts := conn.Dequeue(10)
	require.Len(t, pkts, 2)
	_, isData := pkts[0].(*DataPacket)
	require.True(t, isData)
	ev, isEvent := pkts[1].(*EventPacket)
	require.True(t, isEvent)
	require.Equal(t, desc2, ev.Parameters["DataDescriptor"])
}

func TestConnectionForceEvictsDataForIncomingEvent(t *testing.T) {
	conn := NewConnection(2, OverflowRejectNewest)
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 1}))
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 2}))

	var dropped Packet
	conn.SetOverflowFunc(func(pkt Packet) { dropped = pkt })

	// No event queued to coalesce; the incoming event must still be
	// accepted by evicting the oldest data packet, regardless of the
	// RejectNewest policy.
	require.True(t, conn.Enqueue(NewDataDescriptorChangedPacket(nil, nil)))
	require.NotNil(t, dropped)
	require.Equal(t, 1, dropped.(*DataPacket).SampleCount)

	pkts := conn.Dequeue(10)
	require.Len(t, pkts, 2)
	require.Equal(t, 2, pkts[0].(*DataPacket).SampleCount)
	_, isEvent := pkts[1].(*EventPacket)
	require.True(t, isEvent)
}

func TestInputPortOverflowNotify(t *testing.T) {
	bus := component.NewEventBus()
	sig := NewSignal("sig0", bus, false)
	port := NewInputPort("input0", bus, nil, NotifyOnEachPacket)
	require.NoError(t, port.Connect(sig, 1, OverflowRejectNewest))

	var dropped []Packet
	port.SetOverflowNotify(func(pkt Packet) { dropped = append(dropped, pkt) })

	sig.Send(&DataPacket{SampleCount: 1})
	sig.Send(&DataPacket{SampleCount: 2})

	require.Len(t, dropped, 1)
	require.Equal(t, 2, dropped[0].(*DataPacket).SampleCount)
}

func TestReaderReadEventLeavesDataUntouched(t *testing.T) {
	conn := NewConnection(8, OverflowDropOldest)
	desc := &DataDescriptor{SampleType: SampleFloat64}
	require.True(t, conn.Enqueue(NewDataDescriptorChangedPacket(desc, nil)))
	require.True(t, conn.Enqueue(&DataPacket{SampleCount: 1}))

	reader := NewReader(conn)
	ev, err := reader.ReadEvent(10 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, ev)
	require.Equal(t, EventDataDescriptorChanged, ev.ID)

	// The event is gone; the data packet is still there for Read.
	noEv, err := reader.ReadEvent(10 * time.Millisecond)
	require.NoError(t, err)
	require.Nil(t, noEv)

	res, err := reader.Read(10, 10*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, res.Packets, 1)
	require.Equal(t, desc, res.ValueDescriptor)
}

func TestSignalDisconnectEmitsCoreEvent(t *testing.T) {
	bus := component.NewEventBus()
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	sig := NewSignal("sig0", bus, false)
	port := NewInputPort("input0", bus, nil, NotifyOnEachPacket)
	require.NoError(t, port.Connect(sig, 4, OverflowDropOldest))
	port.Disconnect()

	var sawConnected, sawDisconnected bool
	for i := 0; i < 10; i++ {
		select {
		case ev := <-sub.Ch:
			if ev.Kind == component.EventSignalConnected {
				sawConnected = true
			}
			if ev.Kind == component.EventSignalDisconnected {
				sawDisconnected = true
			}
		default:
		}
	}
	require.True(t, sawConnected)
	require.True(t, sawDisconnected)
	require.Nil(t, port.Connection())
}
