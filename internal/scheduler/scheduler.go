// Package scheduler implements the bounded thread pool that runs
// packet-processing work items (spec §5 "Scheduling model"): a fixed
// number of worker goroutines draining a task queue, with a commit to
// stop-drain-join semantics on shutdown (spec §9 design notes:
// "stop accepting new packets, drain queued packets to completion
// (bounded by a deadline), then join I/O threads").
package scheduler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/openDAQ/openDAQ-sub000/pkg/daqerr"
	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// Task is one unit of packet-processing work submitted to the
// scheduler.
type Task func()

// Config tunes the worker pool, defaulted the way the teacher's
// transport Config is defaulted (a DefaultConfig plus a fillDefaults
// helper invoked by every constructor).
type Config struct {
	Workers      int
	QueueDepth   int
	DrainTimeout time.Duration
}

// DefaultConfig returns worker count = hardware concurrency (spec §5),
// a modestly sized task queue, and a 5s drain deadline on shutdown.
func DefaultConfig() Config {
	return Config{
		Workers:      runtime.GOMAXPROCS(0),
		QueueDepth:   1024,
		DrainTimeout: 5 * time.Second,
	}
}

func fillDefaults(c Config) Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = d.QueueDepth
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	return c
}

// Scheduler is a bounded worker pool. Submitting a task when the queue
// is at capacity is one of the spec's named suspension points (§5):
// Submit blocks until there is room or the caller's context is done.
type Scheduler struct {
	cfg    Config
	log    *logger.Logger
	tasks  chan Task
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// New creates and starts a scheduler with cfg.Workers goroutines
// draining the task queue.
func New(cfg Config, log *logger.Logger) *Scheduler {
	cfg = fillDefaults(cfg)
	if log == nil {
		log = logger.New("scheduler")
	}
	s := &Scheduler{
		cfg:   cfg,
		log:   log,
		tasks: make(chan Task, cfg.QueueDepth),
		done:  make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Scheduler) worker() {
	defer s.wg.Done()
	for task := range s.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Errorf("scheduler task panicked: %v", r)
				}
			}()
			task()
		}()
	}
}

// Submit enqueues task, blocking if the queue is full (spec §5
// suspension point: "scheduler task submission when the task queue is
// at capacity") until room frees up or ctx is cancelled. Fails with
// ConnectionLost if the scheduler has already been stopped.
func (s *Scheduler) Submit(ctx context.Context, task Task) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return daqerr.New(daqerr.ConnectionLost, "", "scheduler is stopped")
	}
	s.mu.Unlock()

	select {
	case s.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySubmit enqueues task without blocking, returning false if the
// queue is currently full.
func (s *Scheduler) TrySubmit(task Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()
	select {
	case s.tasks <- task:
		return true
	default:
		return false
	}
}

// Stop stops accepting new tasks, drains what is already queued up to
// cfg.DrainTimeout, then joins every worker goroutine (spec §9: "stop
// accepting new packets, drain queued packets to completion (bounded
// by a deadline), then join I/O threads").
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.tasks)
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(s.cfg.DrainTimeout):
		s.log.Warnf("scheduler drain timed out after %s; abandoning remaining tasks", s.cfg.DrainTimeout)
	}
	close(s.done)
}

// Done returns a channel closed once Stop has completed (or timed out).
func (s *Scheduler) Done() <-chan struct{} { return s.done }
