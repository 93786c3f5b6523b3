package traffic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/roadops/operator-console/pkg/core"
)

// TickResult summarises one simulation step.
type TickResult struct {
	Tick   uint64
	Halted []int
	Moved  int
}

// Simulation owns the traffic agents. Tick and the read methods serialize on
// one mutex.
type Simulation struct {
	params Params

	mu      sync.Mutex
	agents  []core.TrafficAgent
	tick    uint64
	halted  []int
	visible bool
	now     func() time.Time

	haltedCounter metric.Int64Counter
}

// New creates a visible simulation with the default layout for p.
func New(p Params) (*Simulation, error) {
	return NewWithAgents(p, DefaultLayout(p.AgentCount, p.Seed))
}

// NewWithAgents creates a simulation over the given agents.
func NewWithAgents(p Params, agents []core.TrafficAgent) (*Simulation, error) {
	c, err := meter().Int64Counter(
		"traffic.agents.halted",
		metric.WithDescription("Agent-ticks spent holding for the hero vehicle"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating halted counter: %w", err)
	}
	out := make([]core.TrafficAgent, len(agents))
	copy(out, agents)
	return &Simulation{
		params:        p,
		agents:        out,
		visible:       true,
		now:           time.Now,
		haltedCounter: c,
	}, nil
}

// Params returns the simulation constants.
func (s *Simulation) Params() Params {
	return s.params
}

// Tick advances every agent that is not at risk against hero. Each agent is
// evaluated against the same hero position, independently of the others.
func (s *Simulation) Tick(hero core.Vec3) TickResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	res := TickResult{Tick: s.tick}
	for i, a := range s.agents {
		if AtRisk(a, hero, s.params) {
			res.Halted = append(res.Halted, a.ID)
			continue
		}
		s.agents[i] = Advance(a, s.params)
		res.Moved++
	}
	s.halted = res.Halted
	if n := len(res.Halted); n > 0 {
		s.haltedCounter.Add(context.Background(), int64(n))
	}
	return res
}

// SetVisible toggles whether Frame exposes the agents. Ticking is unaffected.
func (s *Simulation) SetVisible(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible = v
}

// Visible reports the current visibility.
func (s *Simulation) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// Agents returns a copy of all agents regardless of visibility.
func (s *Simulation) Agents() []core.TrafficAgent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.TrafficAgent, len(s.agents))
	copy(out, s.agents)
	return out
}

// Frame returns the presentation view after the last tick.
func (s *Simulation) Frame() core.TrafficFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := core.TrafficFrame{
		Tick:    s.tick,
		Time:    s.now(),
		Visible: s.visible,
		Halted:  append([]int(nil), s.halted...),
		Agents:  []core.TrafficAgent{},
	}
	if s.visible {
		f.Agents = make([]core.TrafficAgent, len(s.agents))
		copy(f.Agents, s.agents)
	}
	return f
}
