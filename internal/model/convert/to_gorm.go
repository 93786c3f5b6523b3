// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/roadops/operator-console/internal/model"
	"github.com/roadops/operator-console/pkg/core"
)

// vec3ToPoint converts the ground-plane part of a scene position to a geom.Point.
// Scene Z becomes the point's Y; elevation is stored separately.
func vec3ToPoint(v core.Vec3) geom.Point {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: v.X, Y: v.Z}})
}

// pathToLineString converts route points to a ground-plane geom.LineString.
// Routes with fewer than two points have no line.
func pathToLineString(points []core.PathPoint) geom.LineString {
	if len(points) < 2 {
		return geom.LineString{}
	}
	coords := make([]float64, 0, len(points)*2)
	for _, pt := range points {
		coords = append(coords, pt.Position.X, pt.Position.Z)
	}
	seq := geom.NewSequence(coords, geom.DimXY)
	return geom.NewLineString(seq)
}

func nullFloat(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// haltedToJSON converts halted agent ids to datatypes.JSON for DB storage.
func haltedToJSON(ids []int) datatypes.JSON {
	if len(ids) == 0 {
		return datatypes.JSON("[]")
	}
	data, _ := json.Marshal(ids)
	return datatypes.JSON(data)
}

// CoreToSession converts a core.Session to a GORM Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:        s.ID,
		Scenario:  s.Scenario,
		StartTime: s.StartTime,
	}
}

// CoreToHeroState converts a hero snapshot to a GORM HeroState row.
func CoreToHeroState(sessionID string, s core.HeroVehicleState) model.HeroState {
	return model.HeroState{
		SessionID:     sessionID,
		Time:          s.Timestamp,
		Position:      vec3ToPoint(s.Position),
		Elevation:     s.Position.Y,
		Rotation:      s.Rotation,
		Velocity:      nullFloat(s.Velocity),
		AutonomyState: string(s.AutonomyState),
		StuckReason:   nullString(s.StuckReason),
		BatteryLevel:  nullFloat(s.BatteryLevel),
	}
}

// CoreToPathProposal converts a proposal snapshot to a GORM PathProposal
// revision including its points.
func CoreToPathProposal(sessionID string, p core.PathProposal) (model.PathProposal, error) {
	points := p.Points
	if points == nil {
		points = []core.PathPoint{}
	}
	data, err := json.Marshal(points)
	if err != nil {
		return model.PathProposal{}, fmt.Errorf("marshal points: %w", err)
	}

	route := pathToLineString(p.Points)
	rows := make([]model.PathPoint, len(p.Points))
	for i, pt := range p.Points {
		rows[i] = model.PathPoint{
			Seq:       uint16(i),
			PointID:   pt.ID,
			Position:  vec3ToPoint(pt.Position),
			Elevation: pt.Position.Y,
		}
	}

	return model.PathProposal{
		SessionID:  sessionID,
		ProposalID: p.ID,
		Status:     string(p.Status),
		Route:      route,
		Points:     datatypes.JSON(data),
		LengthM:    route.Length(),
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
		PathPoints: rows,
	}, nil
}

// CoreToTrafficFrame converts a simulation frame to a GORM TrafficFrame with
// its agent rows.
func CoreToTrafficFrame(sessionID string, f core.TrafficFrame) model.TrafficFrame {
	agents := make([]model.TrafficAgentState, len(f.Agents))
	for i, a := range f.Agents {
		agents[i] = model.TrafficAgentState{
			AgentID:   uint16(a.ID),
			Lane:      a.Lane,
			Direction: int8(a.Direction),
			Speed:     a.Speed,
			Z:         a.Z,
			Color:     a.Color,
			Model:     a.Model,
		}
	}
	return model.TrafficFrame{
		SessionID: sessionID,
		Tick:      f.Tick,
		Time:      f.Time,
		Visible:   f.Visible,
		Halted:    haltedToJSON(f.Halted),
		Agents:    agents,
	}
}
