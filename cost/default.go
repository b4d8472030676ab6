package cost

import "github.com/petal-labs/footplan/core"

// Defaults returns the step cost and heuristics used when none are configured.
// The step cost is goal-aware through its straight-shot velocity provider.
func Defaults(params core.Parameters, snapper core.Snapper) (*XGaitStepCost, *WeightedHeuristics) {
	step := NewXGaitStepCost(params, snapper, NewStraightShotVelocityProvider())
	heuristics := NewWeightedHeuristics(params.HeuristicsInflationWeight,
		Term{Weight: params.DistanceHeuristicWeight, CostToGo: NewDistanceHeuristic(params)},
		Term{Weight: params.YawHeuristicWeight, CostToGo: NewYawHeuristic(params)},
	)
	return step, heuristics
}
