// Package traffic simulates background vehicles on a two-way road and holds
// them back when they would run into the hero vehicle.
package traffic

import (
	"math"
	"math/rand/v2"

	"github.com/roadops/operator-console/pkg/core"
)

// Params are the simulation constants, all in scene metres.
type Params struct {
	LaneTolerance float64 `json:"laneTolerance" mapstructure:"laneTolerance"`
	SafeDistance  float64 `json:"safeDistance" mapstructure:"safeDistance"`
	TickScale     float64 `json:"tickScale" mapstructure:"tickScale"`
	RoadLength    float64 `json:"roadLength" mapstructure:"roadLength"`
	Margin        float64 `json:"margin" mapstructure:"margin"`
	AgentCount    int     `json:"agentCount" mapstructure:"agentCount"`
	Seed          uint64  `json:"seed" mapstructure:"seed"`
}

// DefaultParams returns the standard road setup.
func DefaultParams() Params {
	return Params{
		LaneTolerance: 2,
		SafeDistance:  8,
		TickScale:     0.1,
		RoadLength:    120,
		Margin:        10,
		AgentCount:    8,
		Seed:          1,
	}
}

// Bound is the |z| beyond which an agent wraps to the opposite end.
func (p Params) Bound() float64 {
	return p.RoadLength/2 + p.Margin
}

var (
	rightLanes = []float64{1.75, 5.25}
	leftLanes  = []float64{-5.25, -1.75}

	// Palette assigned by agent index.
	Palette = []string{"#3498DB", "#9B59B6", "#E67E22", "#1ABC9C", "#E74C3C", "#F39C12"}

	// Models assigned by agent index.
	Models = []string{
		"Car01.glb", "Car02.glb", "Car03.glb", "Car04.glb",
		"Truck01.glb", "Truck02.glb", "Truck03.glb", "Truck04.glb",
	}
)

// DefaultLayout places count agents alternating between the right-hand
// (forward) and left-hand (backward) carriageways, staggered along the road.
func DefaultLayout(count int, seed uint64) []core.TrafficAgent {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	agents := make([]core.TrafficAgent, 0, count)
	for i := 0; i < count; i++ {
		lanes, dir := leftLanes, core.Backward
		startZ := float64(i*15 + 30)
		if i%2 == 0 {
			lanes, dir = rightLanes, core.Forward
			startZ = float64(-i*15 - 30)
		}
		agents = append(agents, core.TrafficAgent{
			ID:        i,
			Lane:      lanes[(i>>1)%len(lanes)],
			Direction: dir,
			Speed:     0.8 + rng.Float64()*0.4,
			Z:         startZ,
			Color:     Palette[i%len(Palette)],
			Model:     Models[i%len(Models)],
		})
	}
	return agents
}

// InLane reports whether the agent shares the hero's lane.
func InLane(a core.TrafficAgent, heroX float64, p Params) bool {
	return math.Abs(a.Lane-heroX) < p.LaneTolerance
}

// AtRisk reports whether the agent must hold this tick. A forward agent holds
// when the hero is ahead of it (agent z below hero z) and close. A backward
// agent holds when its z is above the hero's and close.
func AtRisk(a core.TrafficAgent, hero core.Vec3, p Params) bool {
	if !InLane(a, hero.X, p) {
		return false
	}
	if math.Abs(a.Z-hero.Z) >= p.SafeDistance {
		return false
	}
	if a.Direction == core.Forward {
		return a.Z < hero.Z
	}
	return a.Z > hero.Z
}

// Advance moves the agent one tick and wraps it to the far end if it left the
// road.
func Advance(a core.TrafficAgent, p Params) core.TrafficAgent {
	a.Z += a.Speed * p.TickScale * float64(a.Direction)
	bound := p.Bound()
	if a.Direction == core.Forward {
		if a.Z > bound {
			a.Z = -bound
		}
	} else if a.Z < -bound {
		a.Z = bound
	}
	return a
}

// Heading returns the yaw of an agent model: zero forward, pi backward.
func Heading(a core.TrafficAgent) float64 {
	if a.Direction == core.Backward {
		return math.Pi
	}
	return 0
}
