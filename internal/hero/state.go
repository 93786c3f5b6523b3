// Package hero holds the canonical state of the supervised vehicle.
package hero

import (
	"sync"

	"github.com/roadops/operator-console/pkg/core"
)

// Reader gives read access to the latest merged state.
type Reader interface {
	Snapshot() core.HeroVehicleState
}

// State owns the hero vehicle state. ApplyDelta is the only writer.
type State struct {
	mu  sync.RWMutex
	cur core.HeroVehicleState
}

// New creates a State seeded with initial.
func New(initial core.HeroVehicleState) *State {
	return &State{cur: initial.Clone()}
}

// ApplyDelta merges d into the state. Fields absent from d keep their value;
// Timestamp is always taken from d.
func (s *State) ApplyDelta(d core.TelemetryDelta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = Merge(s.cur, d)
}

// Snapshot returns a copy of the current state.
func (s *State) Snapshot() core.HeroVehicleState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.Clone()
}

// Reset replaces the whole state, used when a scenario loads.
func (s *State) Reset(initial core.HeroVehicleState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = initial.Clone()
}

// Merge returns state with every field present in d overwritten.
// Values are copied so the result never aliases the delta, which is shared
// between subscribers.
func Merge(state core.HeroVehicleState, d core.TelemetryDelta) core.HeroVehicleState {
	out := state.Clone()
	if d.Position != nil {
		out.Position = *d.Position
	}
	if d.Rotation != nil {
		out.Rotation = *d.Rotation
	}
	if d.Velocity != nil {
		out.Velocity = core.Ptr(*d.Velocity)
	}
	if d.AutonomyState != nil {
		out.AutonomyState = *d.AutonomyState
	}
	if d.StuckReason != nil {
		out.StuckReason = core.Ptr(*d.StuckReason)
	}
	if d.BatteryLevel != nil {
		out.BatteryLevel = core.Ptr(*d.BatteryLevel)
	}
	out.Timestamp = d.Timestamp
	return out
}
