package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/openDAQ/openDAQ-sub000/pkg/logger"
)

// DefaultReconnectionPeriod is used when NewReconnectLoop is given a
// period of zero or less (spec §4.6).
const DefaultReconnectionPeriod = 500 * time.Millisecond

// AttemptFunc tries to (re-)establish the link once, returning nil on
// success.
type AttemptFunc func(ctx context.Context) error

// ReconnectLoop drives ConfigurationStatus through
// Connected/Reconnecting for one remote device: on a detected link
// loss it retries AttemptFunc at Period for an unbounded number of
// attempts until Stop is called (device removed), per spec §4.6.
type ReconnectLoop struct {
	Period  time.Duration
	Status  *StatusContainer
	Attempt AttemptFunc
	log     *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconnectLoop creates a loop with the given period (defaulted to
// DefaultReconnectionPeriod if zero).
func NewReconnectLoop(period time.Duration, status *StatusContainer, attempt AttemptFunc, log *logger.Logger) *ReconnectLoop {
	if period <= 0 {
		period = DefaultReconnectionPeriod
	}
	if log == nil {
		log = logger.New("connectionsupervisor")
	}
	return &ReconnectLoop{Period: period, Status: status, Attempt: attempt, log: log}
}

// NotifyLinkLost transitions ConfigurationStatus to Reconnecting and
// starts retrying Attempt every Period until it succeeds or Stop is
// called. Calling it again while already reconnecting is a no-op.
func (r *ReconnectLoop) NotifyLinkLost() {
	r.mu.Lock()
	if r.cancel != nil {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	r.Status.Set(ConfigurationStatusName, StatusReconnecting, "")

	r.wg.Add(1)
	go r.loop(ctx)
}

func (r *ReconnectLoop) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Attempt(ctx); err != nil {
				r.log.Debugf("reconnect attempt failed: %v", err)
				continue
			}
			r.mu.Lock()
			r.cancel = nil
			r.mu.Unlock()
			r.Status.Set(ConfigurationStatusName, StatusConnected, "")
			return
		}
	}
}

// Stop cancels any in-flight reconnect attempts, marking the device
// Unrecoverable (the device has been removed; no further attempts will
// ever run).
func (r *ReconnectLoop) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
	r.Status.Set(ConfigurationStatusName, StatusUnrecoverable, "")
}
