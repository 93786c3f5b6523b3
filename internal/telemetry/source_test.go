package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roadops/operator-console/pkg/core"
)

func TestDemoSource_Deterministic(t *testing.T) {
	init := core.HeroVehicleState{Position: core.Vec3{X: 1.75}, AutonomyState: core.AutonomyNominal}
	a := NewDemoSource(42, init)
	b := NewDemoSource(42, init)

	now := time.Unix(0, 0)
	for i := 0; i < 50; i++ {
		now = now.Add(2 * time.Second)
		assert.Equal(t, a.Next(now), b.Next(now))
	}
}

func TestDemoSource_ProducesPartialDeltas(t *testing.T) {
	src := NewDemoSource(1, core.HeroVehicleState{AutonomyState: core.AutonomyNominal})

	var withPos, withoutPos, withBattery, withoutBattery int
	var reasons []string
	now := time.Unix(0, 0)
	for i := 0; i < 500; i++ {
		now = now.Add(time.Second)
		d := src.Next(now)
		assert.True(t, now.Equal(d.Timestamp))
		if d.Position != nil {
			withPos++
			assert.InDelta(t, 0, d.Position.X, 1e-9)
		} else {
			withoutPos++
		}
		if d.BatteryLevel != nil {
			withBattery++
			assert.GreaterOrEqual(t, *d.BatteryLevel, 0.0)
			assert.LessOrEqual(t, *d.BatteryLevel, 100.0)
		} else {
			withoutBattery++
		}
		if d.StuckReason != nil {
			reasons = append(reasons, *d.StuckReason)
			if assert.NotNil(t, d.AutonomyState) {
				assert.Equal(t, core.AutonomyStuck, *d.AutonomyState)
			}
		}
	}

	assert.Positive(t, withPos)
	assert.Positive(t, withoutPos)
	assert.Positive(t, withBattery)
	assert.Positive(t, withoutBattery)
	assert.NotEmpty(t, reasons)
	for _, r := range reasons {
		assert.Contains(t, StuckReasons, r)
	}
}

func TestDemoSource_NoMotionWhileStuck(t *testing.T) {
	src := NewDemoSource(3, core.HeroVehicleState{AutonomyState: core.AutonomyStuck})
	now := time.Unix(0, 0)
	stuck := true
	for i := 0; i < 200; i++ {
		now = now.Add(time.Second)
		d := src.Next(now)
		if d.AutonomyState != nil {
			stuck = *d.AutonomyState == core.AutonomyStuck
		}
		if stuck {
			assert.Nil(t, d.Position)
			if d.Velocity != nil {
				assert.Equal(t, 0.0, *d.Velocity)
			}
		}
	}
}
