// Package telemetry produces partial hero state updates on a fixed interval
// and fans them out to subscribers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/roadops/operator-console/pkg/core"
)

// Handler receives every emitted delta. The delta is shared between all
// handlers and must not be modified.
type Handler func(core.TelemetryDelta)

// Option configures a Stream.
type Option func(*Stream)

// WithClock overrides the time source used to stamp deltas.
func WithClock(now func() time.Time) Option {
	return func(s *Stream) {
		s.now = now
	}
}

// WithLogger sets the logger for lifecycle messages.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		s.logger = l
	}
}

type subscription struct {
	id      uint64
	handler Handler
	removed atomic.Bool
}

// run is one timer goroutine. Start replaces it, Stop ends it.
type run struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (r *run) stopped() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// signal asks the goroutine to exit after any emission in flight.
func (r *run) signal() {
	r.once.Do(func() { close(r.stop) })
}

// Stream emits telemetry deltas from a Source.
type Stream struct {
	source Source
	now    func() time.Time
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   []*subscription
	run    *run
	// done channel of the last run ended, returned by Halt once stopped
	ended <-chan struct{}

	// one emission at a time
	sem chan struct{}

	emitted     metric.Int64Counter
	subscribers metric.Int64UpDownCounter
}

// New creates a stopped Stream reading from source.
func New(source Source, opts ...Option) *Stream {
	s := &Stream{
		source: source,
		now:    time.Now,
		logger: slog.Default(),
		sem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}

	m := meter()
	var err error
	s.emitted, err = m.Int64Counter(
		"telemetry.deltas.emitted",
		metric.WithDescription("Total telemetry deltas broadcast"),
	)
	if err != nil {
		s.logger.Warn("telemetry emitted counter unavailable", "error", err)
		s.emitted, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64Counter("telemetry.deltas.emitted")
	}
	s.subscribers, err = m.Int64UpDownCounter(
		"telemetry.subscribers",
		metric.WithDescription("Active telemetry subscriptions"),
	)
	if err != nil {
		s.logger.Warn("telemetry subscribers counter unavailable", "error", err)
		s.subscribers, _ = noop.NewMeterProvider().Meter(instrumentationName).Int64UpDownCounter("telemetry.subscribers")
	}
	return s
}

// Start begins periodic emission. If the stream is already running the old
// timer goroutine has exited before the new one starts, so like Stop it must
// not be called from a Handler. A non-positive interval is ignored.
func (s *Stream) Start(interval time.Duration) {
	if interval <= 0 {
		s.logger.Warn("ignoring telemetry start with non-positive interval", "interval", interval)
		return
	}

	r := &run{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	s.mu.Lock()
	old := s.run
	s.run = r
	s.mu.Unlock()

	if old != nil {
		old.signal()
		<-old.done
		s.logger.Debug("telemetry interval replaced", "old", old.interval, "new", interval)
	} else {
		s.logger.Debug("telemetry stream started", "interval", interval)
	}

	go s.loop(r)
}

// Stop ends periodic emission and waits for an emission in flight to reach
// every subscriber. When it returns the timer goroutine has exited. It is
// safe to call repeatedly but must not be called from a Handler, which runs
// on that goroutine; handlers use Halt.
func (s *Stream) Stop() {
	<-s.Halt()
}

// Halt ends periodic emission without waiting. The returned channel is closed
// once the timer goroutine has exited, after the emission in flight (if any)
// has been delivered to all subscribers. Calling it from a Handler is safe.
func (s *Stream) Halt() <-chan struct{} {
	s.mu.Lock()
	r := s.run
	s.run = nil
	if r == nil {
		defer s.mu.Unlock()
		if s.ended == nil {
			return closedChan
		}
		return s.ended
	}
	s.ended = r.done
	s.mu.Unlock()

	r.signal()
	s.logger.Debug("telemetry stream stopped")
	return r.done
}

var closedChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// IsRunning reports whether a timer is active.
func (s *Stream) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run != nil
}

// Interval returns the active interval, or zero when stopped.
func (s *Stream) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return 0
	}
	return s.run.interval
}

// Subscribe registers h and returns a function that removes exactly this
// registration. The returned function may be called more than once and from
// inside a handler.
func (s *Stream) Subscribe(h Handler) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	sub := &subscription{id: s.nextID, handler: h}
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	s.subscribers.Add(context.Background(), 1)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.removed.Store(true)
			s.mu.Lock()
			for i, cur := range s.subs {
				if cur.id == sub.id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					break
				}
			}
			s.mu.Unlock()
			s.subscribers.Add(context.Background(), -1)
		})
	}
}

// Subscribers returns the number of registered handlers.
func (s *Stream) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Emit generates one delta and delivers it to every subscriber before
// returning.
func (s *Stream) Emit() {
	s.sem <- struct{}{}
	defer func() { <-s.sem }()
	s.broadcast()
}

func (s *Stream) loop(r *run) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}

		select {
		case <-r.stop:
			return
		case s.sem <- struct{}{}:
		}
		if r.stopped() {
			<-s.sem
			return
		}
		s.broadcast()
		<-s.sem
	}
}

// broadcast delivers one delta to every subscriber registered when it
// starts, skipping only those unsubscribed before their turn.
func (s *Stream) broadcast() {
	d := s.source.Next(s.now())

	s.mu.Lock()
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.removed.Load() {
			continue
		}
		sub.handler(d)
	}
	s.emitted.Add(context.Background(), 1)
}
