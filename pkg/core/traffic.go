// pkg/core/traffic.go
package core

import "time"

// Direction is the longitudinal travel direction of a traffic agent.
type Direction int

const (
	Forward  Direction = 1
	Backward Direction = -1
)

// TrafficAgent is a background vehicle. Only Z changes after creation.
type TrafficAgent struct {
	ID        int       `json:"id"`
	Lane      float64   `json:"lane"`
	Direction Direction `json:"direction"`
	Speed     float64   `json:"speed"`
	Z         float64   `json:"z"`
	Color     string    `json:"color"`
	Model     string    `json:"model"`
}

// TrafficFrame is the traffic state after one simulation tick.
// Agents is empty when the traffic layer is hidden.
type TrafficFrame struct {
	Tick    uint64         `json:"tick"`
	Time    time.Time      `json:"time"`
	Visible bool           `json:"visible"`
	Halted  []int          `json:"halted"`
	Agents  []TrafficAgent `json:"agents"`
}
