// Package path implements the operator path proposal lifecycle:
// draft -> submitted -> accepted | rejected.
package path

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"

	"github.com/roadops/operator-console/pkg/core"
)

// MinPoints is the number of points a proposal needs before it can be
// submitted.
const MinPoints = 2

const (
	eventSubmit = "submit"
	eventAccept = "accept"
	eventReject = "reject"
)

// Option configures a Proposal.
type Option func(*options)

type options struct {
	newID func() string
	now   func() time.Time
}

// WithIDGenerator overrides how proposal and point ids are generated.
func WithIDGenerator(f func() string) Option {
	return func(o *options) {
		o.newID = f
	}
}

// WithClock overrides the time source for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{newID: uuid.NewString, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Proposal is a mutable path proposal. All methods are safe for concurrent use.
type Proposal struct {
	mu        sync.Mutex
	opts      options
	id        string
	points    []core.PathPoint
	machine   *fsm.FSM
	createdAt time.Time
	updatedAt time.Time
}

// New creates an empty draft proposal.
func New(opts ...Option) *Proposal {
	o := buildOptions(opts)
	now := o.now()
	return &Proposal{
		opts:      o,
		id:        o.newID(),
		machine:   newMachine(),
		createdAt: now,
		updatedAt: now,
	}
}

// NewWithPoints creates a draft proposal with one point per position.
func NewWithPoints(positions []core.Vec3, opts ...Option) *Proposal {
	p := New(opts...)
	for _, pos := range positions {
		p.points = append(p.points, core.PathPoint{ID: p.opts.newID(), Position: pos})
	}
	return p
}

func newMachine() *fsm.FSM {
	return fsm.NewFSM(
		string(core.PathDraft),
		fsm.Events{
			{Name: eventSubmit, Src: []string{string(core.PathDraft)}, Dst: string(core.PathSubmitted)},
			{Name: eventAccept, Src: []string{string(core.PathSubmitted)}, Dst: string(core.PathAccepted)},
			{Name: eventReject, Src: []string{string(core.PathSubmitted)}, Dst: string(core.PathRejected)},
		},
		fsm.Callbacks{},
	)
}

// ID returns the proposal id.
func (p *Proposal) ID() string {
	return p.id
}

// Status returns the current lifecycle status.
func (p *Proposal) Status() core.PathStatus {
	return core.PathStatus(p.machine.Current())
}

// Points returns a copy of the points in route order.
func (p *Proposal) Points() []core.PathPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]core.PathPoint, len(p.points))
	copy(out, p.points)
	return out
}

// Snapshot returns a read-only copy of the proposal.
func (p *Proposal) Snapshot() core.PathProposal {
	p.mu.Lock()
	defer p.mu.Unlock()
	pts := make([]core.PathPoint, len(p.points))
	copy(pts, p.points)
	return core.PathProposal{
		ID:        p.id,
		Points:    pts,
		Status:    p.Status(),
		CreatedAt: p.createdAt,
		UpdatedAt: p.updatedAt,
	}
}

// AddPoint appends a point with a fresh id.
func (p *Proposal) AddPoint(pos core.Vec3) (core.PathPoint, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireDraft("add point"); err != nil {
		return core.PathPoint{}, err
	}
	pt := core.PathPoint{ID: p.opts.newID(), Position: pos}
	p.points = append(p.points, pt)
	p.touch()
	return pt, nil
}

// UpdatePoint moves the point with the given id.
func (p *Proposal) UpdatePoint(id string, pos core.Vec3) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireDraft("update point"); err != nil {
		return err
	}
	i := p.indexOf(id)
	if i < 0 {
		return fmt.Errorf("update point %s: %w", id, ErrPointNotFound)
	}
	p.points[i].Position = pos
	p.touch()
	return nil
}

// RemovePoint deletes the point with the given id, keeping the order of the
// others.
func (p *Proposal) RemovePoint(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireDraft("remove point"); err != nil {
		return err
	}
	i := p.indexOf(id)
	if i < 0 {
		return fmt.Errorf("remove point %s: %w", id, ErrPointNotFound)
	}
	p.points = append(p.points[:i:i], p.points[i+1:]...)
	p.touch()
	return nil
}

// Submit moves a draft with at least MinPoints points to submitted.
func (p *Proposal) Submit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.requireDraft("submit"); err != nil {
		return err
	}
	if len(p.points) < MinPoints {
		return fmt.Errorf("submit with %d points: %w", len(p.points), ErrTooFewPoints)
	}
	return p.fire("submit", eventSubmit)
}

// Resolve records the adjudication of a submitted proposal. outcome must be
// accepted or rejected.
func (p *Proposal) Resolve(outcome core.PathStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var event string
	switch outcome {
	case core.PathAccepted:
		event = eventAccept
	case core.PathRejected:
		event = eventReject
	default:
		return fmt.Errorf("resolve as %q: %w", outcome, ErrInvalidOutcome)
	}
	if st := p.Status(); st != core.PathSubmitted {
		return &TransitionError{Op: "resolve", From: st}
	}
	return p.fire("resolve", event)
}

func (p *Proposal) fire(op, event string) error {
	from := p.Status()
	if err := p.machine.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%w: %v", &TransitionError{Op: op, From: from}, err)
	}
	p.touch()
	return nil
}

func (p *Proposal) requireDraft(op string) error {
	if st := p.Status(); st != core.PathDraft {
		return &TransitionError{Op: op, From: st}
	}
	return nil
}

func (p *Proposal) indexOf(id string) int {
	for i, pt := range p.points {
		if pt.ID == id {
			return i
		}
	}
	return -1
}

func (p *Proposal) touch() {
	p.updatedAt = p.opts.now()
}
