// Package poller runs a fixed-interval tick while there is work to poll.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"scribe/internal/backend"
	"scribe/internal/logging"
)

// DefaultInterval is the status polling cadence.
const DefaultInterval = 5 * time.Second

// ErrStop ends the scheduler without error when returned from a tick.
var ErrStop = errors.New("stop polling")

// TickFunc performs one poll.
type TickFunc func(ctx context.Context) error

// Option customises Scheduler construction.
type Option func(*Scheduler)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSize sets the function reporting how much work exists. The ticker only
// runs while it returns a positive value.
func WithSize(size func() int) Option {
	return func(s *Scheduler) {
		if size != nil {
			s.size = size
		}
	}
}

// Scheduler calls a TickFunc every interval. There is no backoff or jitter
// and ticks never overlap; ticks missed while one is running are dropped.
type Scheduler struct {
	interval time.Duration
	tick     TickFunc
	size     func() int
	clock    Clock
	logger   *slog.Logger
	rearm    chan struct{}
}

// New builds a Scheduler. A non-positive interval uses DefaultInterval.
func New(interval time.Duration, tick TickFunc, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		interval: interval,
		tick:     tick,
		size:     func() int { return 1 },
		clock:    realClock{},
		rearm:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "poller")
	return s
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Rearm restarts the interval, and the ticker itself if it was torn down
// because there was no work. It never blocks; pending requests coalesce.
func (s *Scheduler) Rearm() {
	select {
	case s.rearm <- struct{}{}:
	default:
	}
}

// Handle controls a running scheduler.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// Stop cancels the scheduler and waits for it to exit.
func (h *Handle) Stop() {
	h.cancel()
	<-h.done
}

// Done is closed once the scheduler exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns why the scheduler exited. It is nil while running, after Stop,
// and after a tick returned ErrStop.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Start runs the scheduler in its own goroutine until ctx ends, Stop is
// called, or a tick ends the session.
func (s *Scheduler) Start(ctx context.Context) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		err := s.run(ctx)
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
	}()
	return h
}

func (s *Scheduler) run(ctx context.Context) error {
	var (
		ticker Ticker
		tickC  <-chan time.Time
	)
	disarm := func() {
		if ticker != nil {
			ticker.Stop()
		}
		ticker = nil
		tickC = nil
	}
	arm := func() {
		disarm()
		if s.size() > 0 {
			ticker = s.clock.NewTicker(s.interval)
			tickC = ticker.C()
		}
	}
	arm()
	defer disarm()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.rearm:
			arm()
		case <-tickC:
			if s.size() <= 0 {
				s.logger.Debug("no tasks to poll; pausing")
				disarm()
				continue
			}
			started := s.clock.Now()
			err := s.tick(ctx)
			s.logger.Debug("poll tick complete", logging.Duration("elapsed", s.clock.Now().Sub(started)))
			switch {
			case err == nil:
			case errors.Is(err, ErrStop):
				return nil
			case backend.IsUnauthorized(err):
				s.logger.Info("polling stopped; session ended", logging.Error(err))
				return err
			case ctx.Err() != nil:
				return nil
			default:
				s.logger.Warn("poll tick failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "tick_failed"),
				)
			}
		}
	}
}
