// Package expansion generates candidate successor nodes for the search.
package expansion

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/petal-labs/footplan/core"
)

// ParameterBasedExpansion moves the next quadrant in the regular gait across
// the step length, width and yaw bounds, measured from the quadrant's nominal
// x-gait position.
type ParameterBasedExpansion struct {
	params core.Parameters
}

// NewParameterBasedExpansion returns the default expansion policy.
func NewParameterBasedExpansion(params core.Parameters) *ParameterBasedExpansion {
	return &ParameterBasedExpansion{params: params}
}

// Expand implements core.NodeExpansion. Candidates come out ordered by yaw
// offset, then step length, then step width, with duplicates removed.
func (e *ParameterBasedExpansion) Expand(node *core.FootstepNode) []*core.FootstepNode {
	p := e.params
	q := node.MovingQuadrant().NextRegularGaitSwing()
	nominal := node.NominalFootPosition(q)
	minLength, maxLength := p.StepLengthBounds(q, false, false)
	minYaw, maxYaw := yawOffsets(p.MinimumStepYaw, p.MaximumStepYaw)

	seen := make(map[core.NodeKey]struct{})
	var children []*core.FootstepNode
	for dYaw := minYaw; dYaw <= maxYaw; dYaw++ {
		yawIndex := node.YawIndex() + dYaw
		for _, length := range steps(minLength, maxLength) {
			for _, width := range steps(p.MinimumStepWidth, p.MaximumStepWidth) {
				offset := r2.Point{X: length, Y: width * q.SideSign()}
				target := nominal.Add(core.Rotate(offset, node.Yaw()))
				child := node.WithFoot(q, core.SnapToGrid(target.X), core.SnapToGrid(target.Y), yawIndex)
				if _, dup := seen[child.Key()]; dup {
					continue
				}
				seen[child.Key()] = struct{}{}
				children = append(children, child)
			}
		}
	}
	return children
}

func yawOffsets(minYaw, maxYaw float64) (int, int) {
	const eps = 1e-9
	return int(math.Ceil(minYaw/core.GridSizeYaw - eps)), int(math.Floor(maxYaw/core.GridSizeYaw + eps))
}

// steps samples [lo, hi] on the lattice resolution, always including both ends.
func steps(lo, hi float64) []float64 {
	if hi < lo {
		return nil
	}
	n := int(math.Floor((hi-lo)/core.GridSizeXY + 1e-9))
	out := make([]float64, 0, n+2)
	for i := 0; i <= n; i++ {
		out = append(out, lo+float64(i)*core.GridSizeXY)
	}
	if hi-out[len(out)-1] > 1e-9 {
		out = append(out, hi)
	}
	return out
}
