package display

import (
	"github.com/roadops/operator-console/internal/traffic"
	"github.com/roadops/operator-console/pkg/core"
)

const (
	// LineElevation lifts the path line above the road surface.
	LineElevation = 0.22
	// GroundY is the height given to points placed on the road by dragging.
	GroundY = 0.1

	controlPointLift = 0.5
	markerLift       = 1.0
	agentY           = 0.6

	colorStuck   = "#E74C3C"
	colorHealthy = "#27AE60"
	colorStart   = "#27AE60"
	colorEnd     = "#E74C3C"
)

// PathStyle is how a path line is drawn.
type PathStyle struct {
	Color  string `json:"color"`
	Dashed bool   `json:"dashed"`
}

var pathStyles = map[core.PathStatus]PathStyle{
	core.PathDraft:     {Color: "#00D4FF", Dashed: true},
	core.PathSubmitted: {Color: "#FFB020"},
	core.PathAccepted:  {Color: "#00E676"},
	core.PathRejected:  {Color: "#FF5252"},
}

// StyleFor returns the line style for status. Unknown statuses are drawn like
// a draft.
func StyleFor(status core.PathStatus) PathStyle {
	if s, ok := pathStyles[status]; ok {
		return s
	}
	return pathStyles[core.PathDraft]
}

// Marker is a start or end cone.
type Marker struct {
	Position core.Vec3 `json:"position"`
	Color    string    `json:"color"`
}

// PathView is the drawable form of a proposal.
type PathView struct {
	Status        core.PathStatus  `json:"status"`
	Style         PathStyle        `json:"style"`
	Line          []core.Vec3      `json:"line,omitempty"`
	ControlPoints []core.PathPoint `json:"controlPoints,omitempty"`
	Start         *Marker          `json:"start,omitempty"`
	End           *Marker          `json:"end,omitempty"`
}

// NewPathView builds the view of p. The line needs two points; control
// points are only editable, and therefore only shown, in draft.
func NewPathView(p core.PathProposal) PathView {
	v := PathView{Status: p.Status, Style: StyleFor(p.Status)}
	n := len(p.Points)
	if n >= 2 {
		v.Line = make([]core.Vec3, n)
		for i, pt := range p.Points {
			v.Line[i] = core.Vec3{X: pt.Position.X, Y: LineElevation, Z: pt.Position.Z}
		}
	}
	if p.Status == core.PathDraft {
		for _, pt := range p.Points {
			pos := pt.Position
			pos.Y += controlPointLift
			v.ControlPoints = append(v.ControlPoints, core.PathPoint{ID: pt.ID, Position: pos})
		}
	}
	if n > 0 {
		v.Start = &Marker{Position: lift(p.Points[0].Position, markerLift), Color: colorStart}
	}
	if n > 1 {
		v.End = &Marker{Position: lift(p.Points[n-1].Position, markerLift), Color: colorEnd}
	}
	return v
}

// DragTarget is where a control point dragged to (x, z) on the road lands.
func DragTarget(x, z float64) core.Vec3 {
	return core.Vec3{X: x, Y: GroundY, Z: z}
}

// HeroIndicatorColor is the status light colour over the hero vehicle.
func HeroIndicatorColor(s core.HeroVehicleState) string {
	if s.IsStuck() {
		return colorStuck
	}
	return colorHealthy
}

// AgentPose is a traffic agent as placed in the scene.
type AgentPose struct {
	ID    int    `json:"id"`
	Pose  Pose   `json:"pose"`
	Color string `json:"color"`
	Model string `json:"model"`
}

// AgentPoses places the agents of a frame. A hidden frame has none.
func AgentPoses(f core.TrafficFrame) []AgentPose {
	out := make([]AgentPose, 0, len(f.Agents))
	for _, a := range f.Agents {
		out = append(out, AgentPose{
			ID: a.ID,
			Pose: Pose{
				Position: core.Vec3{X: a.Lane, Y: agentY, Z: a.Z},
				Rotation: traffic.Heading(a),
			},
			Color: a.Color,
			Model: a.Model,
		})
	}
	return out
}

func lift(v core.Vec3, dy float64) core.Vec3 {
	v.Y += dy
	return v
}
