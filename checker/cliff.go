package checker

import (
	"github.com/golang/geo/r2"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/terrain"
)

// CliffAvoider rejects footholds near the bottom of a cliff: any terrain
// within the configured box around the moving foot that rises more than
// CliffHeightToAvoid above it.
type CliffAvoider struct {
	params  core.Parameters
	snapper core.Snapper
	regions *terrain.PlanarRegionsList
}

// NewCliffAvoider returns a CliffAvoider reading terrain through snapper.
func NewCliffAvoider(params core.Parameters, snapper core.Snapper) *CliffAvoider {
	return &CliffAvoider{params: params, snapper: snapper}
}

// SetPlanarRegions implements terrain.RegionsAware.
func (c *CliffAvoider) SetPlanarRegions(regions *terrain.PlanarRegionsList) {
	c.regions = regions
}

// CheckNode implements core.NodeChecker.
func (c *CliffAvoider) CheckNode(node, _ *core.FootstepNode) core.RejectionReason {
	p := c.params
	if p.CliffHeightToAvoid <= 0 || c.regions.IsEmpty() {
		return core.ReasonNone
	}
	q := node.MovingQuadrant()
	foot, ok := core.SnapCell(c.snapper, node.XIndex(q), node.YIndex(q))
	if !ok {
		return core.ReasonNone
	}

	forward, backward := p.MinimumHindEndForwardDistanceFromCliffBottoms, p.MinimumHindEndBackwardDistanceFromCliffBottoms
	if q.IsFront() {
		forward, backward = p.MinimumFrontEndForwardDistanceFromCliffBottoms, p.MinimumFrontEndBackwardDistanceFromCliffBottoms
	}
	lateral := p.MinimumLateralDistanceFromCliffBottoms
	yaw := node.Yaw()
	center := r2.Point{X: foot.X, Y: foot.Y}

	for dx := -backward; dx <= forward+1e-9; dx += core.GridSizeXY {
		for dy := -lateral; dy <= lateral+1e-9; dy += core.GridSizeXY {
			sample := center.Add(core.Rotate(r2.Point{X: dx, Y: dy}, yaw))
			z, ok := c.regions.HeightAt(sample.X, sample.Y)
			if ok && z-foot.Z > p.CliffHeightToAvoid {
				return core.ReasonAtCliffBottom
			}
		}
	}
	return core.ReasonNone
}
