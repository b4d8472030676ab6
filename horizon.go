package footplan

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/terrain"
)

// DefaultPlanningHorizonLength is the distance along the body path planned
// by each HorizonPlanner.Plan call.
const DefaultPlanningHorizonLength = 1.0

// HorizonPlanner plans along a long body path a horizon at a time. Each Plan
// targets the pose a horizon length along the path; the plan's
// LowLevelPlanGoal tells the caller where that was. Without a body path it
// plans straight to the goal.
type HorizonPlanner struct {
	planner *AStarPlanner
	horizon float64
	path    *BodyPath
	goal    *core.Target
}

// NewHorizonPlanner wraps planner with the default horizon length.
func NewHorizonPlanner(planner *AStarPlanner) *HorizonPlanner {
	return &HorizonPlanner{planner: planner, horizon: DefaultPlanningHorizonLength}
}

// Planner returns the wrapped planner.
func (h *HorizonPlanner) Planner() *AStarPlanner { return h.planner }

// SetPlanningHorizonLength sets the distance along the path planned per call.
// Non-positive lengths plan to the end of the path.
func (h *HorizonPlanner) SetPlanningHorizonLength(length float64) { h.horizon = length }

// GetPlanningHorizonLength returns the horizon length.
func (h *HorizonPlanner) GetPlanningHorizonLength() float64 { return h.horizon }

// SetBodyPath sets the path the horizon goal is sampled from.
func (h *HorizonPlanner) SetBodyPath(path *BodyPath) { h.path = path }

// BodyPath returns the current body path, or nil.
func (h *HorizonPlanner) BodyPath() *BodyPath { return h.path }

// SetTimeout delegates to the wrapped planner.
func (h *HorizonPlanner) SetTimeout(d time.Duration) { h.planner.SetTimeout(d) }

// SetBestEffortTimeout delegates to the wrapped planner.
func (h *HorizonPlanner) SetBestEffortTimeout(d time.Duration) { h.planner.SetBestEffortTimeout(d) }

// SetStart delegates to the wrapped planner.
func (h *HorizonPlanner) SetStart(target core.Target) error { return h.planner.SetStart(target) }

// SetGoal records the final goal. It is searched for directly only when no
// body path is set.
func (h *HorizonPlanner) SetGoal(target core.Target) error {
	if target.Type != core.TargetFootsteps && target.Type != core.TargetPoseBetweenFeet {
		return fmt.Errorf("%w: goal %s", ErrUnsupportedTarget, target.Type)
	}
	h.goal = &target
	return nil
}

// SetPlanarRegionsList delegates to the wrapped planner.
func (h *HorizonPlanner) SetPlanarRegionsList(regions *terrain.PlanarRegionsList) {
	h.planner.SetPlanarRegionsList(regions)
}

// SetGroundPlane delegates to the wrapped planner.
func (h *HorizonPlanner) SetGroundPlane(z float64) { h.planner.SetGroundPlane(z) }

// HorizonFraction returns the fraction of the body path covered by one
// horizon.
func (h *HorizonPlanner) HorizonFraction() float64 {
	if h.path == nil || h.horizon <= 0 || h.path.Length() == 0 {
		return 1
	}
	return math.Min(1, h.horizon/h.path.Length())
}

// Plan searches towards the horizon goal.
func (h *HorizonPlanner) Plan(ctx context.Context) (core.Result, error) {
	target, err := h.lowLevelGoal()
	if err != nil {
		return core.PlannerFailed, err
	}
	if err := h.planner.SetGoal(target); err != nil {
		return core.PlannerFailed, err
	}
	return h.planner.Plan(ctx)
}

func (h *HorizonPlanner) lowLevelGoal() (core.Target, error) {
	if h.path != nil {
		pose := h.path.PoseAt(h.HorizonFraction())
		return core.PoseTarget(pose.Position.X, pose.Position.Y, pose.Position.Z, pose.Yaw), nil
	}
	if h.goal == nil {
		return core.Target{}, ErrGoalNotSet
	}
	return *h.goal, nil
}

// GetPlan returns the plan of the last Plan call, tagged with the horizon
// goal that was searched for.
func (h *HorizonPlanner) GetPlan() *core.FootstepPlan { return h.planner.GetPlan() }

// RunID returns the run ID of the last Plan call.
func (h *HorizonPlanner) RunID() string { return h.planner.RunID() }

// CancelPlanning delegates to the wrapped planner.
func (h *HorizonPlanner) CancelPlanning() { h.planner.CancelPlanning() }

// RequestInitialize delegates to the wrapped planner.
func (h *HorizonPlanner) RequestInitialize() { h.planner.RequestInitialize() }

// Statistics delegates to the wrapped planner.
func (h *HorizonPlanner) Statistics() core.Statistics { return h.planner.Statistics() }

// PlanningDuration delegates to the wrapped planner.
func (h *HorizonPlanner) PlanningDuration() time.Duration { return h.planner.PlanningDuration() }
