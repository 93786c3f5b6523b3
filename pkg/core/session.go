// pkg/core/session.go
package core

import "time"

// Session identifies one operator console run over a loaded scenario.
type Session struct {
	ID        string    `json:"id"`
	Scenario  string    `json:"scenario"`
	StartTime time.Time `json:"startTime"`
}

// Scenario is a named starting point: an initial hero state and an optional
// draft path.
type Scenario struct {
	Name string
	Hero HeroVehicleState
	Path []Vec3
}
