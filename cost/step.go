// Package cost holds the default step-cost, velocity and cost-to-go policies.
package cost

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/petal-labs/footplan/core"
)

// XGaitStepCost charges a constant per step, the distance travelled by the
// moving foot, the yaw change, the height change and the sideways motion of
// the stance center relative to the walking direction.
type XGaitStepCost struct {
	params   core.Parameters
	snapper  core.Snapper
	velocity core.VelocityProvider
}

// NewXGaitStepCost returns the default step cost. snapper and velocity may be
// nil, which drops the height and lateral terms respectively.
func NewXGaitStepCost(params core.Parameters, snapper core.Snapper, velocity core.VelocityProvider) *XGaitStepCost {
	return &XGaitStepCost{params: params, snapper: snapper, velocity: velocity}
}

// SetGoal implements core.GoalAware by forwarding to the velocity provider.
func (c *XGaitStepCost) SetGoal(goal *core.FootstepNode) {
	if c.velocity != nil {
		c.velocity.SetGoal(goal)
	}
}

// Compute implements core.StepCost.
func (c *XGaitStepCost) Compute(from, to *core.FootstepNode) float64 {
	p := c.params
	q := to.MovingQuadrant()

	cost := p.CostPerStep
	cost += p.DistanceWeight * to.Position(q).Sub(from.Position(q)).Norm()
	cost += p.YawWeight * math.Abs(core.AngleDifference(to.Yaw(), from.Yaw()))

	if c.snapper != nil {
		before, okBefore := core.SnapCell(c.snapper, from.XIndex(q), from.YIndex(q))
		after, okAfter := core.SnapCell(c.snapper, to.XIndex(q), to.YIndex(q))
		if okBefore && okAfter {
			if dz := after.Z - before.Z; dz > 0 {
				cost += p.StepUpWeight * dz
			} else {
				cost += p.StepDownWeight * -dz
			}
		}
	}

	if c.velocity != nil {
		heading := c.velocity.Velocity(from)
		if heading.Norm() > 0 {
			move := to.GaitCenter().Sub(from.GaitCenter())
			cost += p.XGaitWeight * math.Abs(move.Cross(heading.Normalize()))
		}
	}
	return cost
}

// StraightShotVelocityProvider points every node straight at the goal's gait
// center.
type StraightShotVelocityProvider struct {
	goal    r2.Point
	hasGoal bool
}

// NewStraightShotVelocityProvider returns a provider with no goal; it reports
// zero velocity until SetGoal is called.
func NewStraightShotVelocityProvider() *StraightShotVelocityProvider {
	return &StraightShotVelocityProvider{}
}

// SetGoal implements core.GoalAware.
func (v *StraightShotVelocityProvider) SetGoal(goal *core.FootstepNode) {
	if goal == nil {
		v.hasGoal = false
		return
	}
	v.goal = goal.GaitCenter()
	v.hasGoal = true
}

// Velocity implements core.VelocityProvider. The result is a unit vector, or
// zero at the goal.
func (v *StraightShotVelocityProvider) Velocity(node *core.FootstepNode) r2.Point {
	if !v.hasGoal {
		return r2.Point{}
	}
	d := v.goal.Sub(node.GaitCenter())
	if d.Norm() < 1e-9 {
		return r2.Point{}
	}
	return d.Normalize()
}
