package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/internal/component"
	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dropRecorder struct {
	mu      sync.Mutex
	dropped map[string]DisconnectReason
}

func newDropRecorder() *dropRecorder {
	return &dropRecorder{dropped: make(map[string]DisconnectReason)}
}

func (d *dropRecorder) drop(clientID string, reason DisconnectReason) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped[clientID] = reason
}

func clientTypes(a *Admission) map[string]ClientType {
	out := make(map[string]ClientType)
	for _, c := range a.Clients() {
		out[c.ID] = c.Type
	}
	return out
}

func TestAdmissionViewOnlyAlwaysAdmitted(t *testing.T) {
	a := NewAdmission(nil)
	require.NoError(t, a.Request("v1", "", ViewOnly, false))
	require.NoError(t, a.Request("ex", "host", ExclusiveControl, false))
	require.NoError(t, a.Request("v2", "", ViewOnly, false))
	require.Len(t, a.Clients(), 3)
}

func TestAdmissionControlRejectedWhileExclusivePresent(t *testing.T) {
	a := NewAdmission(nil)
	require.NoError(t, a.Request("ex", "h", ExclusiveControl, false))

	err := a.Request("c1", "h", Control, false)
	require.True(t, daqerr.Is(err, daqerr.ControlClientRejected))
	require.NotContains(t, clientTypes(a), "c1")
}

func TestAdmissionExclusiveRejectedWithoutDropOthers(t *testing.T) {
	a := NewAdmission(nil)
	require.NoError(t, a.Request("c1", "h", Control, false))

	err := a.Request("ex", "h", ExclusiveControl, false)
	require.True(t, daqerr.Is(err, daqerr.ControlClientRejected))

	// once the Control client is gone, Exclusive is admitted
	a.Disconnect("c1")
	require.NoError(t, a.Request("ex", "h", ExclusiveControl, false))
}

func TestAdmissionExclusiveDropOthersEvictsControlClients(t *testing.T) {
	rec := newDropRecorder()
	a := NewAdmission(rec.drop)
	require.NoError(t, a.Request("c1", "h1", Control, false))
	require.NoError(t, a.Request("c2", "h2", Control, false))
	require.NoError(t, a.Request("v1", "", ViewOnly, false))

	require.NoError(t, a.Request("ex", "h3", ExclusiveControl, true))

	types := clientTypes(a)
	require.Equal(t, ExclusiveControl, types["ex"])
	require.Contains(t, types, "v1", "ViewOnly clients must survive an exclusive takeover")
	require.NotContains(t, types, "c1")
	require.NotContains(t, types, "c2")
	require.Equal(t, ReasonControlDropped, rec.dropped["c1"])
	require.Equal(t, ReasonControlDropped, rec.dropped["c2"])
}

// The §8 invariant: over any sequence of connects/disconnects, the
// admitted set never holds two ExclusiveControl clients and never holds
// ExclusiveControl alongside Control.
func TestAdmissionInvariantOverSequence(t *testing.T) {
	a := NewAdmission(nil)
	steps := []struct {
		id         string
		req        ClientType
		dropOthers bool
		disconnect bool
	}{
		{id: "v1", req: ViewOnly},
		{id: "c1", req: Control},
		{id: "c2", req: Control},
		{id: "e1", req: ExclusiveControl},                   // rejected
		{id: "e1", req: ExclusiveControl, dropOthers: true}, // evicts c1, c2
		{id: "c3", req: Control},                            // rejected
		{id: "e2", req: ExclusiveControl, dropOthers: true}, // evicts e1
		{id: "e2", disconnect: true},
		{id: "c4", req: Control},
		{id: "v2", req: ViewOnly},
	}
	for _, step := range steps {
		if step.disconnect {
			a.Disconnect(step.id)
		} else {
			a.Request(step.id, "", step.req, step.dropOthers)
		}

		exclusive, control := 0, 0
		for _, c := range a.Clients() {
			switch c.Type {
			case ExclusiveControl:
				exclusive++
			case Control:
				control++
			}
		}
		assert.LessOrEqual(t, exclusive, 1)
		if exclusive > 0 {
			assert.Zero(t, control, "ExclusiveControl must never coexist with Control")
		}
	}

	types := clientTypes(a)
	require.Equal(t, Control, types["c4"])
	require.Contains(t, types, "v1")
	require.Contains(t, types, "v2")
}

func TestStatusContainerEmitsConnectionStatusChanged(t *testing.T) {
	bus := component.NewEventBus()
	sub := bus.Subscribe()
	defer sub.Unsubscribe()

	sc := NewStatusContainer(bus, "/dev0", "daq.nd://10.0.0.1")
	sc.Set(ConfigurationStatusName, StatusConnected, "")

	select {
	case ev := <-sub.Ch:
		require.Equal(t, component.EventConnectionStatusChanged, ev.Kind)
		require.Equal(t, "/dev0", ev.GlobalID)
		require.Equal(t, ConfigurationStatusName, ev.Parameters["StatusName"])
		require.Equal(t, "daq.nd://10.0.0.1", ev.Parameters["ConnectionString"])
		require.Equal(t, "", ev.Parameters["StreamingObject"])
		require.Equal(t, string(StatusConnected), ev.Parameters["StatusValue"])
	case <-time.After(time.Second):
		t.Fatal("no ConnectionStatusChanged event emitted")
	}

	// setting the same value again is not a change
	sc.Set(ConfigurationStatusName, StatusConnected, "")
	select {
	case ev := <-sub.Ch:
		t.Fatalf("unexpected event %v for unchanged status", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamingStatusName(t *testing.T) {
	require.Equal(t, "StreamingStatus_OpenDAQNativeStreaming_1", StreamingStatusName("OpenDAQNativeStreaming", 1))
	sc := NewStatusContainer(nil, "/dev0", "")
	sc.Set(StreamingStatusName("OpenDAQNativeStreaming", 1), StatusReconnecting, "daq.ns://10.0.0.1")
	require.Equal(t, StatusReconnecting, sc.Get("StreamingStatus_OpenDAQNativeStreaming_1"))
}

func TestReconnectLoopRetriesUntilSuccess(t *testing.T) {
	sc := NewStatusContainer(nil, "/dev0", "")
	sc.Set(ConfigurationStatusName, StatusConnected, "")

	var mu sync.Mutex
	attempts := 0
	loop := NewReconnectLoop(10*time.Millisecond, sc, func(ctx context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts < 3 {
			return daqerr.New(daqerr.ConnectionLost, "", "still down")
		}
		return nil
	}, nil)
	loop.log.DisableConsoleOutput()

	loop.NotifyLinkLost()
	require.Equal(t, StatusReconnecting, sc.ConfigurationStatus())

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sc.ConfigurationStatus() == StatusConnected {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, StatusConnected, sc.ConfigurationStatus())
	mu.Lock()
	require.GreaterOrEqual(t, attempts, 3)
	mu.Unlock()
}

func TestReconnectLoopStopMarksUnrecoverable(t *testing.T) {
	sc := NewStatusContainer(nil, "/dev0", "")
	loop := NewReconnectLoop(10*time.Millisecond, sc, func(ctx context.Context) error {
		return daqerr.New(daqerr.ConnectionLost, "", "never succeeds")
	}, nil)
	loop.log.DisableConsoleOutput()

	loop.NotifyLinkLost()
	loop.Stop()
	require.Equal(t, StatusUnrecoverable, sc.ConfigurationStatus())
}
