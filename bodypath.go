package footplan

import (
	"errors"
	"math"

	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan/core"
)

// ErrEmptyBodyPath is returned when a body path has no waypoints.
var ErrEmptyBodyPath = errors.New("body path has no waypoints")

// BodyPath is a piecewise-linear path of body poses. Positions are
// interpolated linearly along the path length and yaw along the shorter arc.
type BodyPath struct {
	waypoints  []core.Pose
	cumulative []float64
}

// NewBodyPath builds a path through waypoints in order.
func NewBodyPath(waypoints ...core.Pose) (*BodyPath, error) {
	if len(waypoints) == 0 {
		return nil, ErrEmptyBodyPath
	}
	p := &BodyPath{
		waypoints:  append([]core.Pose(nil), waypoints...),
		cumulative: make([]float64, len(waypoints)),
	}
	for i := 1; i < len(waypoints); i++ {
		p.cumulative[i] = p.cumulative[i-1] + planarDistance(waypoints[i-1].Position, waypoints[i].Position)
	}
	return p, nil
}

func planarDistance(a, b r3.Vector) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}

// Length returns the planar length of the path.
func (p *BodyPath) Length() float64 { return p.cumulative[len(p.cumulative)-1] }

// Waypoints returns a copy of the waypoints.
func (p *BodyPath) Waypoints() []core.Pose { return append([]core.Pose(nil), p.waypoints...) }

// PoseAt returns the pose at fraction alpha of the path length, clamped to [0, 1].
func (p *BodyPath) PoseAt(alpha float64) core.Pose {
	alpha = math.Max(0, math.Min(1, alpha))
	total := p.Length()
	if total == 0 {
		return p.waypoints[len(p.waypoints)-1]
	}
	target := alpha * total
	for i := 1; i < len(p.waypoints); i++ {
		if target > p.cumulative[i] && i < len(p.waypoints)-1 {
			continue
		}
		segment := p.cumulative[i] - p.cumulative[i-1]
		if segment == 0 {
			return p.waypoints[i]
		}
		t := math.Max(0, math.Min(1, (target-p.cumulative[i-1])/segment))
		from, to := p.waypoints[i-1], p.waypoints[i]
		return core.Pose{
			Position: from.Position.Add(to.Position.Sub(from.Position).Mul(t)),
			Yaw:      core.WrapAngle(from.Yaw + t*core.AngleDifference(to.Yaw, from.Yaw)),
		}
	}
	return p.waypoints[len(p.waypoints)-1]
}
