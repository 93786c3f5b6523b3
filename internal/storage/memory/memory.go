// Package memory records a console session in memory and exports it as JSON
// when the session ends.
package memory

import (
	"errors"
	"sync"
	"time"

	"github.com/roadops/operator-console/internal/config"
	"github.com/roadops/operator-console/pkg/core"
)

// ErrNoSession is returned when recording without a started session.
var ErrNoSession = errors.New("no session started")

// Backend stores session data in memory and exports to JSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	endTime time.Time

	heroStates    []core.HeroVehicleState
	proposals     []core.PathProposal
	trafficFrames []core.TrafficFrame

	lastExportPath string
	now            func() time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg: cfg,
		now: time.Now,
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartSession begins recording a new session, discarding anything recorded
// before.
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := *s
	b.session = &cp
	b.endTime = time.Time{}
	b.heroStates = nil
	b.proposals = nil
	b.trafficFrames = nil

	return nil
}

// EndSession finalizes and exports the session data
func (b *Backend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.endTime = b.now()
	return b.exportJSON()
}

// RecordHeroState appends a hero snapshot.
func (b *Backend) RecordHeroState(s *core.HeroVehicleState) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	b.heroStates = append(b.heroStates, s.Clone())
	return nil
}

// RecordPathProposal appends a proposal revision.
func (b *Backend) RecordPathProposal(p *core.PathProposal) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	cp := *p
	cp.Points = append([]core.PathPoint(nil), p.Points...)
	b.proposals = append(b.proposals, cp)
	return nil
}

// RecordTrafficFrame appends a sampled traffic frame.
func (b *Backend) RecordTrafficFrame(f *core.TrafficFrame) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return ErrNoSession
	}
	cp := *f
	cp.Agents = append([]core.TrafficAgent(nil), f.Agents...)
	cp.Halted = append([]int(nil), f.Halted...)
	b.trafficFrames = append(b.trafficFrames, cp)
	return nil
}

// Counts returns how many hero states, proposal revisions and traffic frames
// are held.
func (b *Backend) Counts() Counts {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Counts{
		HeroStates:    len(b.heroStates),
		PathProposals: len(b.proposals),
		TrafficFrames: len(b.trafficFrames),
	}
}

// LatestProposal returns the most recent proposal revision.
func (b *Backend) LatestProposal() (core.PathProposal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.proposals) == 0 {
		return core.PathProposal{}, false
	}
	return b.proposals[len(b.proposals)-1], true
}

// ExportedFilePath returns the path of the last export, or "" before the
// first session ended.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
