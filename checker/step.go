package checker

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/terrain"
)

// boundsEpsilon absorbs lattice rounding when comparing against step bounds.
const boundsEpsilon = 1e-6

// StepChecker validates the step of the moving quadrant against the previous
// stance: clearance from the feet, yaw change, height change, reach from the
// nominal x-gait position, and obstacles swept by the body.
type StepChecker struct {
	params  core.Parameters
	snapper core.Snapper
	regions *terrain.PlanarRegionsList
}

// NewStepChecker returns a StepChecker reading terrain through snapper.
func NewStepChecker(params core.Parameters, snapper core.Snapper) *StepChecker {
	return &StepChecker{params: params, snapper: snapper}
}

// SetPlanarRegions implements terrain.RegionsAware.
func (c *StepChecker) SetPlanarRegions(regions *terrain.PlanarRegionsList) {
	c.regions = regions
}

// CheckTransition implements core.TransitionChecker. Nodes without a
// predecessor are always accepted.
func (c *StepChecker) CheckTransition(node, previous *core.FootstepNode) core.RejectionReason {
	if previous == nil {
		return core.ReasonNone
	}
	p := c.params
	q := node.MovingQuadrant()
	previousYaw := previous.Yaw()

	step := node.Position(q)
	if clearanceViolated(step, previous.Position(q), previousYaw, p) {
		return core.ReasonStepInPlace
	}
	for _, other := range core.Quadrants {
		if other == q {
			continue
		}
		if clearanceViolated(step, previous.Position(other), previousYaw, p) {
			return core.ReasonStepOnOtherFoot
		}
	}

	yawChange := core.AngleDifference(node.Yaw(), previousYaw)
	if yawChange < p.MinimumStepYaw-boundsEpsilon || yawChange > p.MaximumStepYaw+boundsEpsilon {
		return core.ReasonStepYawingTooMuch
	}

	newPosition, ok := core.SnapCell(c.snapper, node.XIndex(q), node.YIndex(q))
	if !ok {
		return core.ReasonCouldNotSnap
	}
	previousPositions, snapped := snappedPositions(c.snapper, previous)
	if !snapped[q] {
		return core.ReasonCouldNotSnap
	}
	previousPosition := previousPositions[q]

	stepHeight := newPosition.Z - previousPosition.Z
	if math.Abs(stepHeight) > p.MaximumStepChangeZ+boundsEpsilon {
		return core.ReasonStepTooHighOrLow
	}
	steppingUp := stepHeight > p.StepZForSteppingUp
	steppingDown := stepHeight < p.StepZForSteppingDown

	if r := c.checkFromNominalXGait(q, newPosition, previous, steppingUp, steppingDown); r.Rejected() {
		return r
	}

	if c.regions.IsEmpty() {
		return core.ReasonNone
	}
	resolution := 0.5 * core.GridSizeXY
	if c.regions.BlocksSegment(newPosition, previousPosition, p.BodyGroundClearance, resolution) {
		return core.ReasonObstacleBlockingStep
	}
	for _, other := range core.Quadrants {
		if other == q || !snapped[other] {
			continue
		}
		if c.regions.BlocksSegment(newPosition, previousPositions[other], p.BodyGroundClearance, resolution) {
			return core.ReasonObstacleBlockingBody
		}
	}
	return core.ReasonNone
}

func (c *StepChecker) checkFromNominalXGait(q core.Quadrant, newPosition r3.Vector, previous *core.FootstepNode, steppingUp, steppingDown bool) core.RejectionReason {
	p := c.params
	nominal := previous.NominalFootPosition(q)
	offset := core.Rotate(r2.Point{X: newPosition.X, Y: newPosition.Y}.Sub(nominal), -previous.Yaw())

	if offset.Norm() > p.StepReach(q)+boundsEpsilon {
		return core.ReasonStepTooFar
	}
	minLength, maxLength := p.StepLengthBounds(q, steppingUp, steppingDown)
	if offset.X > maxLength+boundsEpsilon {
		return core.ReasonStepTooFarForward
	}
	if offset.X < minLength-boundsEpsilon {
		return core.ReasonStepTooFarBackward
	}
	outward := offset.Y * q.SideSign()
	if outward > p.MaximumStepWidth+boundsEpsilon {
		return core.ReasonStepTooFarOutward
	}
	if outward < p.MinimumStepWidth-boundsEpsilon {
		return core.ReasonStepTooFarInward
	}
	return core.ReasonNone
}

func clearanceViolated(step, foot r2.Point, yaw float64, p core.Parameters) bool {
	offset := core.Rotate(step.Sub(foot), -yaw)
	return math.Abs(offset.X) < p.MinXClearanceFromFoot && math.Abs(offset.Y) < p.MinYClearanceFromFoot
}

func snappedPositions(s core.Snapper, node *core.FootstepNode) (positions [core.NumQuadrants]r3.Vector, ok [core.NumQuadrants]bool) {
	for _, q := range core.Quadrants {
		positions[q], ok[q] = core.SnapCell(s, node.XIndex(q), node.YIndex(q))
	}
	return positions, ok
}
