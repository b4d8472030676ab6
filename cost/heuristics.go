package cost

import (
	"math"

	"github.com/petal-labs/footplan/core"
)

// DistanceHeuristic lower-bounds the foot travel still needed to bring the
// gait center within tolerance of the goal. Moving the center by d takes at
// least 4d of total foot travel.
type DistanceHeuristic struct {
	params core.Parameters
}

// NewDistanceHeuristic returns a DistanceHeuristic.
func NewDistanceHeuristic(params core.Parameters) DistanceHeuristic {
	return DistanceHeuristic{params: params}
}

// Compute implements core.CostToGo.
func (h DistanceHeuristic) Compute(node, goal *core.FootstepNode) float64 {
	d := node.GaitCenter().Sub(goal.GaitCenter()).Norm() - h.params.GoalTolerance.XY
	if d <= 0 {
		return 0
	}
	return h.params.DistanceWeight * core.NumQuadrants * d
}

// YawHeuristic charges the yaw still to be turned beyond the tolerance.
type YawHeuristic struct {
	params core.Parameters
}

// NewYawHeuristic returns a YawHeuristic.
func NewYawHeuristic(params core.Parameters) YawHeuristic {
	return YawHeuristic{params: params}
}

// Compute implements core.CostToGo.
func (h YawHeuristic) Compute(node, goal *core.FootstepNode) float64 {
	d := math.Abs(core.AngleDifference(goal.Yaw(), node.Yaw())) - h.params.GoalTolerance.Yaw
	if d <= 0 {
		return 0
	}
	return h.params.YawWeight * d
}

// Term is one weighted member of a WeightedHeuristics sum.
type Term struct {
	Weight   float64
	CostToGo core.CostToGo
}

// WeightedHeuristics sums weighted cost-to-go terms. Weight is the inflation
// applied by the search on top of the sum.
type WeightedHeuristics struct {
	inflation float64
	terms     []Term
}

// NewWeightedHeuristics composes terms under the given inflation weight.
// Terms with a nil CostToGo or a non-positive weight are dropped.
func NewWeightedHeuristics(inflation float64, terms ...Term) *WeightedHeuristics {
	h := &WeightedHeuristics{inflation: inflation}
	for _, t := range terms {
		if t.CostToGo == nil || t.Weight <= 0 {
			continue
		}
		h.terms = append(h.terms, t)
	}
	return h
}

// Compute implements core.CostToGo.
func (h *WeightedHeuristics) Compute(node, goal *core.FootstepNode) float64 {
	var sum float64
	for _, t := range h.terms {
		sum += t.Weight * t.CostToGo.Compute(node, goal)
	}
	return sum
}

// Weight implements core.Heuristics.
func (h *WeightedHeuristics) Weight() float64 { return h.inflation }

// Len returns the number of terms.
func (h *WeightedHeuristics) Len() int { return len(h.terms) }
