package telemetry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/roadops/operator-console/pkg/core"
)

// Source produces the next delta. Next is never called concurrently by a
// Stream.
type Source interface {
	Next(now time.Time) core.TelemetryDelta
}

// SourceFunc adapts a function to Source.
type SourceFunc func(now time.Time) core.TelemetryDelta

// Next calls f(now).
func (f SourceFunc) Next(now time.Time) core.TelemetryDelta {
	return f(now)
}

// StuckReasons are the reasons DemoSource reports when it enters the stuck
// state.
var StuckReasons = []string{"obstacle_detected", "path_blocked", "localization_lost"}

// DemoSource fabricates plausible telemetry for a vehicle driving along the
// corridor. Each field is only reported on some ticks.
type DemoSource struct {
	mu  sync.Mutex
	rng *rand.Rand

	pos      core.Vec3
	rotation float64
	battery  float64
	state    core.AutonomyState
}

// NewDemoSource creates a generator starting from initial.
func NewDemoSource(seed uint64, initial core.HeroVehicleState) *DemoSource {
	battery := 100.0
	if initial.BatteryLevel != nil {
		battery = *initial.BatteryLevel
	}
	state := initial.AutonomyState
	if state == "" {
		state = core.AutonomyNominal
	}
	return &DemoSource{
		rng:      rand.New(rand.NewPCG(seed, seed^0x5DEECE66D)),
		pos:      initial.Position,
		rotation: initial.Rotation,
		battery:  battery,
		state:    state,
	}
}

// Next implements Source.
func (s *DemoSource) Next(now time.Time) core.TelemetryDelta {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := core.TelemetryDelta{Timestamp: now}

	if s.rng.Float64() < 0.1 {
		if s.state == core.AutonomyStuck {
			s.state = core.AutonomyNominal
		} else {
			s.state = core.AutonomyStuck
			d.StuckReason = core.Ptr(StuckReasons[s.rng.IntN(len(StuckReasons))])
		}
		d.AutonomyState = core.Ptr(s.state)
	}

	stuck := s.state == core.AutonomyStuck
	speed := 0.0
	if !stuck {
		speed = 2 + s.rng.Float64()*3
		if s.rng.Float64() < 0.8 {
			s.pos.Z += speed * 0.2
			if s.pos.Z > 60 {
				s.pos.Z = -60
			}
			d.Position = core.Ptr(s.pos)
		}
	}

	if s.rng.Float64() < 0.5 {
		s.rotation = math.Mod(s.rotation+(s.rng.Float64()-0.5)*0.1, 2*math.Pi)
		d.Rotation = core.Ptr(s.rotation)
	}
	if s.rng.Float64() < 0.5 {
		d.Velocity = core.Ptr(speed)
	}

	s.battery = math.Max(0, s.battery-0.05)
	if s.rng.Float64() < 0.3 {
		d.BatteryLevel = core.Ptr(s.battery)
	}
	return d
}
