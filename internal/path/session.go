package path

import (
	"sync"

	"github.com/roadops/operator-console/pkg/core"
)

// Listener is called with a snapshot after every successful change.
type Listener func(core.PathProposal)

// Session holds the one current proposal of a console session.
type Session struct {
	opts []Option

	mu  sync.Mutex
	cur *Proposal

	lmu       sync.RWMutex
	listeners []Listener
}

// NewSession creates a session with an empty draft.
func NewSession(opts ...Option) *Session {
	return &Session{opts: opts, cur: New(opts...)}
}

// OnChange registers l. Listeners run synchronously after the change, outside
// the session lock.
func (s *Session) OnChange(l Listener) {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Session) notify(p core.PathProposal) {
	s.lmu.RLock()
	ls := make([]Listener, len(s.listeners))
	copy(ls, s.listeners)
	s.lmu.RUnlock()
	for _, l := range ls {
		l(p)
	}
}

// Current returns a snapshot of the current proposal.
func (s *Session) Current() core.PathProposal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.Snapshot()
}

// Replace discards the current proposal and starts a draft with the given
// positions.
func (s *Session) Replace(positions []core.Vec3) core.PathProposal {
	s.mu.Lock()
	s.cur = NewWithPoints(positions, s.opts...)
	snap := s.cur.Snapshot()
	s.mu.Unlock()
	s.notify(snap)
	return snap
}

// NewProposal starts an empty draft.
func (s *Session) NewProposal() core.PathProposal {
	return s.Replace(nil)
}

// AddPoint appends a point to the current proposal.
func (s *Session) AddPoint(pos core.Vec3) (core.PathPoint, error) {
	var pt core.PathPoint
	err := s.mutate(func(p *Proposal) error {
		var err error
		pt, err = p.AddPoint(pos)
		return err
	})
	return pt, err
}

// UpdatePoint moves a point of the current proposal.
func (s *Session) UpdatePoint(id string, pos core.Vec3) error {
	return s.mutate(func(p *Proposal) error { return p.UpdatePoint(id, pos) })
}

// RemovePoint deletes a point of the current proposal.
func (s *Session) RemovePoint(id string) error {
	return s.mutate(func(p *Proposal) error { return p.RemovePoint(id) })
}

// Submit submits the current proposal.
func (s *Session) Submit() error {
	return s.mutate(func(p *Proposal) error { return p.Submit() })
}

// Resolve adjudicates the current proposal.
func (s *Session) Resolve(outcome core.PathStatus) error {
	return s.mutate(func(p *Proposal) error { return p.Resolve(outcome) })
}

func (s *Session) mutate(f func(*Proposal) error) error {
	s.mu.Lock()
	if err := f(s.cur); err != nil {
		s.mu.Unlock()
		return err
	}
	snap := s.cur.Snapshot()
	s.mu.Unlock()
	s.notify(snap)
	return nil
}
