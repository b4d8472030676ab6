package checker

import (
	"math"

	"github.com/petal-labs/footplan/core"
)

// SnapChecker rejects nodes whose moving foot cannot be placed on terrain or
// lands on a surface steeper than the configured incline. Nodes checked
// without a predecessor have all four feet checked.
type SnapChecker struct {
	params  core.Parameters
	snapper core.Snapper
}

// NewSnapChecker returns a SnapChecker reading terrain through snapper.
func NewSnapChecker(params core.Parameters, snapper core.Snapper) *SnapChecker {
	return &SnapChecker{params: params, snapper: snapper}
}

// CheckNode implements core.NodeChecker.
func (c *SnapChecker) CheckNode(node, previous *core.FootstepNode) core.RejectionReason {
	if previous != nil {
		return c.checkFoot(node, node.MovingQuadrant())
	}
	for _, q := range core.Quadrants {
		if r := c.checkFoot(node, q); r.Rejected() {
			return r
		}
	}
	return core.ReasonNone
}

func (c *SnapChecker) checkFoot(node *core.FootstepNode, q core.Quadrant) core.RejectionReason {
	data := c.snapper.Snap(node.XIndex(q), node.YIndex(q))
	if data.Failed() {
		return core.ReasonCouldNotSnap
	}
	if data.Transform.SurfaceNormalZ() < math.Cos(c.params.MinimumSurfaceInclineRadians) {
		return core.ReasonSurfaceNormalTooSteepToSnap
	}
	return core.ReasonNone
}
