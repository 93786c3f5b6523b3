// pkg/core/path.go
package core

import "time"

// PathStatus is the lifecycle status of a path proposal.
type PathStatus string

const (
	PathDraft     PathStatus = "draft"
	PathSubmitted PathStatus = "submitted"
	PathAccepted  PathStatus = "accepted"
	PathRejected  PathStatus = "rejected"
)

// Terminal reports whether no further transition is possible from s.
func (s PathStatus) Terminal() bool {
	return s == PathAccepted || s == PathRejected
}

// PathPoint is a waypoint of a path proposal. ID is stable across edits.
type PathPoint struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
}

// PathProposal is a read-only snapshot of an operator-authored path.
type PathProposal struct {
	ID        string      `json:"id"`
	Points    []PathPoint `json:"points"`
	Status    PathStatus  `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Positions returns the point positions in route order.
func (p PathProposal) Positions() []Vec3 {
	out := make([]Vec3, len(p.Points))
	for i, pt := range p.Points {
		out[i] = pt.Position
	}
	return out
}
