package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logger.Logger {
	log := logger.New("scheduler-test")
	log.DisableConsoleOutput()
	return log
}

func TestSubmitRunsTasks(t *testing.T) {
	s := New(Config{Workers: 2, QueueDepth: 16}, quietLogger())
	defer s.Stop()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		require.NoError(t, s.Submit(context.Background(), func() {
			atomic.AddInt64(&ran, 1)
			wg.Done()
		}))
	}
	wg.Wait()
	require.EqualValues(t, 10, atomic.LoadInt64(&ran))
}

func TestTrySubmitFailsWhenQueueFull(t *testing.T) {
	s := New(Config{Workers: 1, QueueDepth: 1}, quietLogger())
	defer s.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, s.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started

	// worker is blocked; fill the queue, then one more must be refused
	require.True(t, s.TrySubmit(func() {}))
	require.False(t, s.TrySubmit(func() {}))
	close(release)
}

func TestSubmitBlocksUntilRoomOrContextDone(t *testing.T) {
	s := New(Config{Workers: 1, QueueDepth: 1}, quietLogger())
	defer s.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, s.TrySubmit(func() {
		close(started)
		<-release
	}))
	<-started
	require.True(t, s.TrySubmit(func() {}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Submit(ctx, func() {})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestStopDrainsQueuedTasks(t *testing.T) {
	s := New(Config{Workers: 1, QueueDepth: 32, DrainTimeout: 2 * time.Second}, quietLogger())

	var ran int64
	for i := 0; i < 8; i++ {
		require.NoError(t, s.Submit(context.Background(), func() {
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&ran, 1)
		}))
	}
	s.Stop()
	require.EqualValues(t, 8, atomic.LoadInt64(&ran))

	err := s.Submit(context.Background(), func() {})
	require.True(t, daqerr.Is(err, daqerr.ConnectionLost))
}

func TestTaskPanicDoesNotKillWorker(t *testing.T) {
	s := New(Config{Workers: 1, QueueDepth: 8}, quietLogger())
	defer s.Stop()

	require.NoError(t, s.Submit(context.Background(), func() { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, s.Submit(context.Background(), func() { close(done) }))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive a panicking task")
	}
}
