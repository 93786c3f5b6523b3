// Package recorder batches session activity into a storage backend.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/roadops/operator-console/internal/hero"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/queue"
	"github.com/roadops/operator-console/internal/storage"
	"github.com/roadops/operator-console/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is not set.
const DefaultFlushInterval = time.Second

const queueLimit = 50000

// Dependencies holds all dependencies for the recorder
type Dependencies struct {
	Hero          hero.Reader
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
	// TrafficEvery records one traffic frame out of every n ticks. Zero or
	// less disables traffic recording.
	TrafficEvery int
}

// Stats is a point-in-time view of the recorder for status reporting.
type Stats struct {
	PendingHeroStates    int           `json:"pendingHeroStates"`
	PendingPathProposals int           `json:"pendingPathProposals"`
	PendingTrafficFrames int           `json:"pendingTrafficFrames"`
	Dropped              int           `json:"dropped"`
	Flushed              int64         `json:"flushed"`
	Failed               int64         `json:"failed"`
	LastWriteDuration    time.Duration `json:"lastWriteDuration"`
}

// Recorder queues hero states, path revisions and sampled traffic frames and
// writes them to the backend on a fixed interval.
type Recorder struct {
	deps    Dependencies
	backend storage.Backend

	heroStates *queue.Queue[core.HeroVehicleState]
	proposals  *queue.Queue[core.PathProposal]
	frames     *queue.Queue[core.TrafficFrame]

	flushMu   sync.Mutex
	lastWrite atomic.Int64
	flushedN  atomic.Int64
	failedN   atomic.Int64

	mu       sync.Mutex
	stopChan chan struct{}
	done     chan struct{}

	flushed metric.Int64Counter
}

// New creates a stopped recorder writing to backend.
func New(deps Dependencies, backend storage.Backend) (*Recorder, error) {
	if backend == nil {
		return nil, errors.New("recorder needs a storage backend")
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	c, err := meter().Int64Counter(
		"recorder.records.flushed",
		metric.WithDescription("Records written to the storage backend"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating flushed counter: %w", err)
	}
	return &Recorder{
		deps:       deps,
		backend:    backend,
		heroStates: queue.NewBounded[core.HeroVehicleState](queueLimit),
		proposals:  queue.NewBounded[core.PathProposal](queueLimit),
		frames:     queue.NewBounded[core.TrafficFrame](queueLimit),
		flushed:    c,
	}, nil
}

// OnTelemetry queues the merged hero state. It is subscribed after the hero
// state so the snapshot already contains the delta.
func (r *Recorder) OnTelemetry(core.TelemetryDelta) {
	if r.deps.Hero == nil {
		return
	}
	r.heroStates.Push(r.deps.Hero.Snapshot())
}

// OnPathChange queues a proposal revision.
func (r *Recorder) OnPathChange(p core.PathProposal) {
	r.proposals.Push(p)
}

// OnTrafficFrame queues f when its tick falls on the sampling interval.
func (r *Recorder) OnTrafficFrame(f core.TrafficFrame) {
	n := r.deps.TrafficEvery
	if n <= 0 || f.Tick%uint64(n) != 0 {
		return
	}
	r.frames.Push(f)
}

// Start runs the flush loop. Calling Start while running does nothing.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopChan != nil {
		return
	}
	r.stopChan = make(chan struct{})
	r.done = make(chan struct{})
	go r.loop(r.stopChan, r.done)
}

// Stop ends the flush loop and writes whatever is still queued.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	stop, done := r.stopChan, r.done
	r.stopChan, r.done = nil, nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	return r.Flush()
}

func (r *Recorder) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(r.deps.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.logger().Error("recorder flush failed", "error", err)
			}
		}
	}
}

// Flush writes every queued record to the backend. A record the backend
// rejects is counted as failed and not retried.
func (r *Recorder) Flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	start := time.Now()
	var errs []error
	var ok, failed int64

	for _, s := range r.heroStates.Drain(0) {
		if err := r.backend.RecordHeroState(&s); err != nil {
			errs = append(errs, fmt.Errorf("hero state: %w", err))
			failed++
			continue
		}
		ok++
	}
	for _, p := range r.proposals.Drain(0) {
		if err := r.backend.RecordPathProposal(&p); err != nil {
			errs = append(errs, fmt.Errorf("path proposal: %w", err))
			failed++
			continue
		}
		ok++
	}
	for _, f := range r.frames.Drain(0) {
		if err := r.backend.RecordTrafficFrame(&f); err != nil {
			errs = append(errs, fmt.Errorf("traffic frame: %w", err))
			failed++
			continue
		}
		ok++
	}

	if ok+failed == 0 {
		return nil
	}
	r.lastWrite.Store(int64(time.Since(start)))
	r.flushedN.Add(ok)
	r.failedN.Add(failed)
	if ok > 0 {
		r.flushed.Add(context.Background(), ok, metric.WithAttributes(attribute.Bool("ok", true)))
	}
	if failed > 0 {
		r.flushed.Add(context.Background(), failed, metric.WithAttributes(attribute.Bool("ok", false)))
	}
	r.logger().Debug("recorder flushed", "written", ok, "failed", failed)
	return errors.Join(errs...)
}

// Stats returns the queue depths and write counters.
func (r *Recorder) Stats() Stats {
	return Stats{
		PendingHeroStates:    r.heroStates.Len(),
		PendingPathProposals: r.proposals.Len(),
		PendingTrafficFrames: r.frames.Len(),
		Dropped:              r.heroStates.Dropped() + r.proposals.Dropped() + r.frames.Dropped(),
		Flushed:              r.flushedN.Load(),
		Failed:               r.failedN.Load(),
		LastWriteDuration:    time.Duration(r.lastWrite.Load()),
	}
}

func (r *Recorder) logger() *slog.Logger {
	if r.deps.LogManager == nil {
		return slog.Default()
	}
	return r.deps.LogManager.Logger()
}
