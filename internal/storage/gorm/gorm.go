// Package gormstorage implements the storage.Backend interface on GORM with
// internal queues and a background DB writer goroutine. It serves Postgres
// directly and SQLite through the sqlite package.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/roadops/operator-console/internal/database"
	"github.com/roadops/operator-console/internal/logging"
	"github.com/roadops/operator-console/internal/model"
	"github.com/roadops/operator-console/internal/model/convert"
	"github.com/roadops/operator-console/internal/queue"
	"github.com/roadops/operator-console/pkg/core"
)

// DefaultFlushInterval is used when Dependencies.FlushInterval is not set.
const DefaultFlushInterval = time.Second

// queueLimit bounds each write queue while the database is unreachable.
const queueLimit = 100000

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	LogManager    *logging.SlogManager
	FlushInterval time.Duration
	// SQLite selects the SQLite model list for migration.
	SQLite bool
}

// queues holds all the write queues for batch DB insertion.
type queues struct {
	HeroStates    *queue.Queue[model.HeroState]
	PathProposals *queue.Queue[model.PathProposal]
	TrafficFrames *queue.Queue[model.TrafficFrame]
}

func newQueues() *queues {
	return &queues{
		HeroStates:    queue.NewBounded[model.HeroState](queueLimit),
		PathProposals: queue.NewBounded[model.PathProposal](queueLimit),
		TrafficFrames: queue.NewBounded[model.TrafficFrame](queueLimit),
	}
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps   Dependencies
	queues *queues

	mu        sync.Mutex
	sessionID string

	flushMu  sync.Mutex
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a new GORM storage backend. A nil DB runs the backend in
// queue-only mode.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Backend{
		deps: deps,
	}
}

// Init creates internal queues, runs schema migration, and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.queues = newQueues()
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})

	if b.deps.DB != nil {
		if err := database.Migrate(b.deps.DB, b.deps.SQLite); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	go b.writeLoop()
	return nil
}

// Close stops the DB writer goroutine after a final flush.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	select {
	case <-b.stopChan:
		return nil
	default:
	}
	close(b.stopChan)
	<-b.done
	return b.Flush()
}

// StartSession inserts the session row.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	b.sessionID = s.ID
	b.mu.Unlock()

	if b.deps.DB == nil {
		return nil
	}
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

// EndSession flushes pending rows and stamps the session end time.
func (b *Backend) EndSession() error {
	flushErr := b.Flush()

	b.mu.Lock()
	id := b.sessionID
	b.mu.Unlock()

	if b.deps.DB == nil || id == "" {
		return flushErr
	}
	err := b.deps.DB.Model(&model.Session{}).Where("id = ?", id).Update("end_time", time.Now()).Error
	if err != nil {
		err = fmt.Errorf("failed to end session: %w", err)
	}
	return errors.Join(flushErr, err)
}

func (b *Backend) currentSession() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessionID
}

// RecordHeroState queues a hero snapshot.
func (b *Backend) RecordHeroState(s *core.HeroVehicleState) error {
	b.queues.HeroStates.Push(convert.CoreToHeroState(b.currentSession(), *s))
	return nil
}

// RecordPathProposal queues a proposal revision.
func (b *Backend) RecordPathProposal(p *core.PathProposal) error {
	row, err := convert.CoreToPathProposal(b.currentSession(), *p)
	if err != nil {
		return err
	}
	b.queues.PathProposals.Push(row)
	return nil
}

// RecordTrafficFrame queues a traffic frame.
func (b *Backend) RecordTrafficFrame(f *core.TrafficFrame) error {
	b.queues.TrafficFrames.Push(convert.CoreToTrafficFrame(b.currentSession(), *f))
	return nil
}

// Pending returns the number of queued rows not yet written.
func (b *Backend) Pending() int {
	return b.queues.HeroStates.Len() + b.queues.PathProposals.Len() + b.queues.TrafficFrames.Len()
}

// Flush writes every queue in one pass. Rows that fail to insert are put
// back for the next pass.
func (b *Backend) Flush() error {
	if b.deps.DB == nil {
		return nil
	}
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	db := b.deps.DB
	log := b.deps.LogManager.WriteLog
	return errors.Join(
		writeQueue(db, b.queues.HeroStates, "hero states", log),
		writeQueue(db, b.queues.PathProposals, "path proposals", log),
		writeQueue(db, b.queues.TrafficFrames, "traffic frames", log),
	)
}

func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log func(string, string, string)) error {
	if q.Empty() {
		return nil
	}

	tx := db.Begin()
	items := q.GetAndEmpty()
	if err := tx.Create(&items).Error; err != nil {
		log(":DB:WRITER:", fmt.Sprintf("Error creating %s: %v", name, err), "ERROR")
		tx.Rollback()
		q.Push(items...)
		return fmt.Errorf("write %s: %w", name, err)
	}

	if err := tx.Commit().Error; err != nil {
		q.Push(items...)
		return fmt.Errorf("commit %s: %w", name, err)
	}
	log(":DB:WRITER:", fmt.Sprintf("Saved %d %s", len(items), name), "DEBUG")
	return nil
}

func (b *Backend) writeLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
