package convert

import (
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/roadops/operator-console/internal/model"
	"github.com/roadops/operator-console/pkg/core"
)

// pointToVec3 converts a stored ground-plane point and elevation back to a
// scene position.
func pointToVec3(p geom.Point, elevation float64) core.Vec3 {
	coord, ok := p.Coordinates()
	if !ok {
		return core.Vec3{Y: elevation}
	}
	return core.Vec3{X: coord.XY.X, Y: elevation, Z: coord.XY.Y}
}

// SessionToCore converts a GORM Session to a core.Session.
func SessionToCore(s model.Session) core.Session {
	return core.Session{
		ID:        s.ID,
		Scenario:  s.Scenario,
		StartTime: s.StartTime,
	}
}

// HeroStateToCore converts a GORM HeroState to a core.HeroVehicleState.
func HeroStateToCore(h model.HeroState) core.HeroVehicleState {
	out := core.HeroVehicleState{
		Position:      pointToVec3(h.Position, h.Elevation),
		Rotation:      h.Rotation,
		AutonomyState: core.AutonomyState(h.AutonomyState),
		Timestamp:     h.Time,
	}
	if h.Velocity.Valid {
		out.Velocity = core.Ptr(h.Velocity.Float64)
	}
	if h.StuckReason.Valid {
		out.StuckReason = core.Ptr(h.StuckReason.String)
	}
	if h.BatteryLevel.Valid {
		out.BatteryLevel = core.Ptr(h.BatteryLevel.Float64)
	}
	return out
}

// PathProposalToCore converts a GORM PathProposal revision to a
// core.PathProposal. Points come from the JSON column, which keeps ids and
// full 3D positions.
func PathProposalToCore(p model.PathProposal) (core.PathProposal, error) {
	out := core.PathProposal{
		ID:        p.ProposalID,
		Status:    core.PathStatus(p.Status),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Points:    []core.PathPoint{},
	}
	if len(p.Points) > 0 {
		if err := json.Unmarshal(p.Points, &out.Points); err != nil {
			return core.PathProposal{}, fmt.Errorf("unmarshal points of %s: %w", p.ProposalID, err)
		}
	}
	return out, nil
}

// TrafficFrameToCore converts a GORM TrafficFrame to a core.TrafficFrame.
func TrafficFrameToCore(f model.TrafficFrame) core.TrafficFrame {
	var halted []int
	if len(f.Halted) > 0 {
		_ = json.Unmarshal(f.Halted, &halted)
	}
	if halted == nil {
		halted = []int{}
	}
	agents := make([]core.TrafficAgent, len(f.Agents))
	for i, a := range f.Agents {
		agents[i] = core.TrafficAgent{
			ID:        int(a.AgentID),
			Lane:      a.Lane,
			Direction: core.Direction(a.Direction),
			Speed:     a.Speed,
			Z:         a.Z,
			Color:     a.Color,
			Model:     a.Model,
		}
	}
	return core.TrafficFrame{
		Tick:    f.Tick,
		Time:    f.Time,
		Visible: f.Visible,
		Halted:  halted,
		Agents:  agents,
	}
}
