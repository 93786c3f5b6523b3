// pkg/core/hero.go
package core

import "time"

// Vec3 is a scene position in metres. X is lateral, Y is up, Z is longitudinal
// along the roadway.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// AutonomyState is the autonomy discriminant reported by the vehicle.
// The set of values belongs to the telemetry producer; consumers only compare
// for equality and must not assume the constants below are exhaustive.
type AutonomyState string

const (
	AutonomyNominal  AutonomyState = "nominal"
	AutonomyStuck    AutonomyState = "stuck"
	AutonomyDegraded AutonomyState = "degraded"
	AutonomyManual   AutonomyState = "manual"
)

// HeroVehicleState is the canonical state of the supervised vehicle.
// Optional fields are nil when unknown.
type HeroVehicleState struct {
	Position      Vec3          `json:"position"`
	Rotation      float64       `json:"rotation"`
	Velocity      *float64      `json:"velocity,omitempty"`
	AutonomyState AutonomyState `json:"autonomyState"`
	StuckReason   *string       `json:"stuckReason,omitempty"`
	BatteryLevel  *float64      `json:"batteryLevel,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
}

// IsStuck reports whether the vehicle currently reports the stuck state.
func (s HeroVehicleState) IsStuck() bool {
	return s.AutonomyState == AutonomyStuck
}

// Clone returns a copy that shares no pointers with s.
func (s HeroVehicleState) Clone() HeroVehicleState {
	out := s
	out.Velocity = clonePtr(s.Velocity)
	out.StuckReason = clonePtr(s.StuckReason)
	out.BatteryLevel = clonePtr(s.BatteryLevel)
	return out
}

// TelemetryDelta is a partial HeroVehicleState. A nil field is absent and
// leaves the merged value untouched. Timestamp is always present.
type TelemetryDelta struct {
	Position      *Vec3          `json:"position,omitempty"`
	Rotation      *float64       `json:"rotation,omitempty"`
	Velocity      *float64       `json:"velocity,omitempty"`
	AutonomyState *AutonomyState `json:"autonomyState,omitempty"`
	StuckReason   *string        `json:"stuckReason,omitempty"`
	BatteryLevel  *float64       `json:"batteryLevel,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Ptr returns a pointer to a copy of v.
func Ptr[T any](v T) *T {
	return &v
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
