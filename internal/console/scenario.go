package console

import (
	"errors"
	"fmt"
	"sort"

	"github.com/roadops/operator-console/pkg/core"
)

// ErrUnknownScenario is returned when loading a scenario that does not exist.
var ErrUnknownScenario = errors.New("unknown scenario")

// Built-in scenario names.
const (
	ScenarioStuck   = "stuck"
	ScenarioNominal = "nominal"
)

var scenarios = map[string]func() core.Scenario{
	// A bus halted in the right-hand lane by an obstacle, with a draft detour
	// through the oncoming lane waiting for the operator.
	ScenarioStuck: func() core.Scenario {
		return core.Scenario{
			Name: ScenarioStuck,
			Hero: core.HeroVehicleState{
				Position:      core.Vec3{X: 1.75, Y: 0, Z: 0},
				Rotation:      0,
				Velocity:      core.Ptr(0.0),
				AutonomyState: core.AutonomyStuck,
				StuckReason:   core.Ptr("obstacle_detected"),
				BatteryLevel:  core.Ptr(78.0),
			},
			Path: []core.Vec3{
				{X: 1.75, Y: 0.1, Z: 4},
				{X: -1.75, Y: 0.1, Z: 12},
				{X: -1.75, Y: 0.1, Z: 24},
				{X: 1.75, Y: 0.1, Z: 32},
			},
		}
	},
	ScenarioNominal: func() core.Scenario {
		return core.Scenario{
			Name: ScenarioNominal,
			Hero: core.HeroVehicleState{
				Position:      core.Vec3{X: 1.75, Y: 0, Z: -20},
				Velocity:      core.Ptr(8.0),
				AutonomyState: core.AutonomyNominal,
				BatteryLevel:  core.Ptr(95.0),
			},
		}
	},
}

// LookupScenario returns a fresh copy of the named scenario.
func LookupScenario(name string) (core.Scenario, error) {
	f, ok := scenarios[name]
	if !ok {
		return core.Scenario{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return f(), nil
}

// ScenarioNames lists the built-in scenarios in name order.
func ScenarioNames() []string {
	out := make([]string, 0, len(scenarios))
	for name := range scenarios {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
