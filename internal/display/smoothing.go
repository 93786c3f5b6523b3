// Package display turns core state into what the scene renders: smoothed
// poses, path styling, and indicator colours.
package display

import (
	"math"
	"sync"

	"github.com/roadops/operator-console/pkg/core"
)

const (
	// PoseLerp is the per-frame fraction a displayed pose closes toward its
	// target.
	PoseLerp = 0.1
	// CameraLerp is the per-frame fraction for the follow camera.
	CameraLerp = 0.05
	// CameraHeight is the follow camera's fixed height.
	CameraHeight = 8.0
	// CameraTrail is how far behind the hero the follow camera sits.
	CameraTrail = 15.0
)

// ShortestAngle returns the signed rotation from -> to, normalized to
// (-pi, pi].
func ShortestAngle(from, to float64) float64 {
	d := math.Remainder(to-from, 2*math.Pi)
	if d <= -math.Pi {
		d += 2 * math.Pi
	}
	return d
}

// Lerp moves a toward b by t.
func Lerp(a, b core.Vec3, t float64) core.Vec3 {
	return core.Vec3{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
	}
}

// Pose is a rendered position and heading.
type Pose struct {
	Position core.Vec3 `json:"position"`
	Rotation float64   `json:"rotation"`
}

// Smoother eases the displayed hero pose toward the latest telemetry. It only
// affects presentation; the hero state is never modified.
type Smoother struct {
	mu      sync.Mutex
	current Pose
	target  Pose
	primed  bool
}

// NewSmoother creates a smoother.
func NewSmoother() *Smoother {
	return &Smoother{}
}

// SetTarget updates the pose to ease toward. The first target is adopted
// immediately.
func (s *Smoother) SetTarget(p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = p
	if !s.primed {
		s.current = p
		s.primed = true
	}
}

// Reset jumps the displayed pose to p, as on a scenario load.
func (s *Smoother) Reset(p Pose) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = p
	s.target = p
	s.primed = true
}

// Step advances one render frame and returns the new displayed pose.
func (s *Smoother) Step() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current.Position = Lerp(s.current.Position, s.target.Position, PoseLerp)
	s.current.Rotation += ShortestAngle(s.current.Rotation, s.target.Rotation) * PoseLerp
	return s.current
}

// Current returns the displayed pose without advancing.
func (s *Smoother) Current() Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// FollowCamera trails the displayed hero pose.
type FollowCamera struct {
	mu       sync.Mutex
	position core.Vec3
}

// NewFollowCamera starts the camera at pos.
func NewFollowCamera(pos core.Vec3) *FollowCamera {
	return &FollowCamera{position: pos}
}

// Reset places the camera in its slot behind hero without easing.
func (c *FollowCamera) Reset(hero core.Vec3) core.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = core.Vec3{X: hero.X, Y: CameraHeight, Z: hero.Z - CameraTrail}
	return c.position
}

// Step eases the camera toward its slot behind hero and returns the camera
// position. The camera looks at hero.
func (c *FollowCamera) Step(hero core.Vec3) core.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	slot := core.Vec3{X: hero.X, Y: CameraHeight, Z: hero.Z - CameraTrail}
	c.position = Lerp(c.position, slot, CameraLerp)
	return c.position
}
