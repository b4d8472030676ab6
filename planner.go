// Package footplan plans footstep sequences for a quadruped walking a crawl
// gait over planar-region terrain.
//
// An AStarPlanner searches a lattice of four-foot stances with weighted A*:
//
//	planner, err := footplan.NewPlannerBuilder().
//	    WithParameters(core.DefaultParameters()).
//	    WithTimeout(2 * time.Second).
//	    Build()
//	_ = planner.SetStart(core.PoseTarget(0, 0, 0, 0))
//	_ = planner.SetGoal(core.PoseTarget(1, 0, 0, 0))
//	result, err := planner.Plan(ctx)
//	if result.ValidForExecution() {
//	    plan := planner.GetPlan()
//	}
//
// A HorizonPlanner wraps an AStarPlanner to follow a long body path one
// horizon at a time.
package footplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/terrain"
)

// Planner errors
var (
	ErrStartNotSet       = errors.New("start not set")
	ErrGoalNotSet        = errors.New("goal not set")
	ErrUnsupportedTarget = errors.New("unsupported target type")
)

// startPatchHalfExtent is the half side of the flat patch placed under start
// feet that the terrain does not support.
const startPatchHalfExtent = 0.1

// Planner is the caller-facing contract shared by AStarPlanner and
// HorizonPlanner.
type Planner interface {
	SetTimeout(d time.Duration)
	SetBestEffortTimeout(d time.Duration)
	SetStart(target core.Target) error
	SetGoal(target core.Target) error
	SetPlanarRegionsList(regions *terrain.PlanarRegionsList)
	SetGroundPlane(z float64)
	Plan(ctx context.Context) (core.Result, error)
	GetPlan() *core.FootstepPlan
	CancelPlanning()
	RequestInitialize()
	Statistics() core.Statistics
	PlanningDuration() time.Duration
	RunID() string
}

var (
	_ Planner = (*AStarPlanner)(nil)
	_ Planner = (*HorizonPlanner)(nil)
)

// AStarPlanner converts start and goal targets into lattice nodes, runs the
// search engine and turns the resulting path into timed footsteps. It is not
// safe for concurrent Plan calls; CancelPlanning and RequestInitialize may be
// called from any goroutine.
type AStarPlanner struct {
	params      core.Parameters
	xgait       core.XGaitSettings
	snapper     core.Snapper
	postSnapper core.Snapper
	engine      *runtime.Engine
	stepCost    core.StepCost
	policies    []any
	startGoal   []core.StartAndGoalListener
	logger      *slog.Logger

	regions           *terrain.PlanarRegionsList
	startTarget       *core.Target
	start             *core.FootstepNode
	goalTarget        *core.Target
	goal              *core.FootstepNode
	goalFeet          [core.NumQuadrants]r2.Point
	goalPose          core.Pose
	timeout           time.Duration
	bestEffortTimeout time.Duration

	result   core.Result
	outcome  runtime.Outcome
	steps    []step
	duration time.Duration
}

// step is one node of the final path with its post-processed position.
type step struct {
	quadrant core.Quadrant
	position r3.Vector
}

// SetTimeout bounds the wall-clock time of the search. runtime.NoTimeout
// disables the bound.
func (p *AStarPlanner) SetTimeout(d time.Duration) {
	p.timeout = d
	p.engine.SetTimeout(d)
}

// Timeout returns the search time bound.
func (p *AStarPlanner) Timeout() time.Duration { return p.timeout }

// SetBestEffortTimeout records a best-effort budget. Best-effort planning is
// not implemented and the value has no effect on Plan.
func (p *AStarPlanner) SetBestEffortTimeout(d time.Duration) { p.bestEffortTimeout = d }

// SetPlanarRegionsList hands terrain to every terrain-aware policy. A nil
// list means flat ground at z = 0 everywhere.
func (p *AStarPlanner) SetPlanarRegionsList(regions *terrain.PlanarRegionsList) {
	p.regions = regions
	p.forwardRegions()
	if p.startTarget != nil {
		// Re-resolve so the start is projected onto the new terrain.
		_ = p.applyStart(*p.startTarget)
	}
}

// SetGroundPlane replaces the terrain with a single horizontal plane.
func (p *AStarPlanner) SetGroundPlane(z float64) {
	const extent = 1000.0
	p.SetPlanarRegionsList(terrain.NewPlanarRegionsList(
		terrain.NewHorizontalRectangle(0, -extent, -extent, extent, extent, z)))
}

// PlanarRegions returns the current terrain, including synthetic patches
// added under the start.
func (p *AStarPlanner) PlanarRegions() *terrain.PlanarRegionsList { return p.regions }

// SetStart converts target into the start node and registers it with the
// start-aware policies.
func (p *AStarPlanner) SetStart(target core.Target) error {
	if err := p.applyStart(target); err != nil {
		return err
	}
	p.startTarget = &target
	return nil
}

// SetGoal converts target into the goal node.
func (p *AStarPlanner) SetGoal(target core.Target) error {
	var (
		feet [core.NumQuadrants]r2.Point
		pose core.Pose
	)
	switch target.Type {
	case core.TargetFootsteps:
		feet, pose = footholdStance(target.Footholds)
	case core.TargetPoseBetweenFeet:
		pose = target.Pose
		feet = core.NominalFootPositions(r2.Point{X: pose.Position.X, Y: pose.Position.Y}, pose.Yaw, p.xgait.StanceLength, p.xgait.StanceWidth)
	default:
		return fmt.Errorf("%w: goal %s", ErrUnsupportedTarget, target.Type)
	}

	p.goal = core.NewFootstepNode(core.HindLeft, feet, pose.Yaw, p.xgait.StanceLength, p.xgait.StanceWidth)
	p.goalFeet = feet
	p.goalPose = pose
	p.goalTarget = &target
	for _, l := range p.startGoal {
		l.SetGoalPose(pose)
	}
	return nil
}

func (p *AStarPlanner) applyStart(target core.Target) error {
	var (
		feet  [core.NumQuadrants]r2.Point
		pose  core.Pose
		snaps [core.NumQuadrants]core.SnapData
	)
	switch target.Type {
	case core.TargetFootsteps:
		feet, pose = footholdStance(target.Footholds)
	case core.TargetPoseBetweenFeet:
		pose = target.Pose
		feet = core.NominalFootPositions(r2.Point{X: pose.Position.X, Y: pose.Position.Y}, pose.Yaw, p.xgait.StanceLength, p.xgait.StanceWidth)
	default:
		return fmt.Errorf("%w: start %s", ErrUnsupportedTarget, target.Type)
	}

	moving := target.InitialQuadrant.NextReversedRegularGaitSwing()
	start := core.NewFootstepNode(moving, feet, pose.Yaw, p.xgait.StanceLength, p.xgait.StanceWidth)

	switch target.Type {
	case core.TargetFootsteps:
		for _, q := range core.Quadrants {
			lattice := r3.Vector{X: start.X(q), Y: start.Y(q)}
			snaps[q] = core.SnapData{Transform: core.TranslationTransform(target.Footholds[q].Sub(lattice))}
		}
	case core.TargetPoseBetweenFeet:
		snaps = p.projectStart(start, pose)
	}

	p.start = start
	for _, policy := range p.policies {
		if aware, ok := policy.(core.StartNodeAware); ok {
			aware.AddStartNode(start, snaps)
		}
	}
	for _, l := range p.startGoal {
		l.SetInitialPose(pose)
	}
	return nil
}

// projectStart snaps the nominal start footholds onto the terrain. Feet the
// terrain does not support get a flat patch at the pose height.
func (p *AStarPlanner) projectStart(start *core.FootstepNode, pose core.Pose) [core.NumQuadrants]core.SnapData {
	var (
		snaps   [core.NumQuadrants]core.SnapData
		patches []*terrain.PlanarRegion
	)
	for _, q := range core.Quadrants {
		data := p.snapper.Snap(start.XIndex(q), start.YIndex(q))
		if data.Failed() && !p.regions.IsEmpty() {
			patches = append(patches, terrain.FlatPatch(-1-int(q), start.X(q), start.Y(q), pose.Position.Z, startPatchHalfExtent))
			data = core.SnapData{Transform: core.TranslationTransform(r3.Vector{Z: pose.Position.Z})}
		}
		snaps[q] = data
	}
	if len(patches) > 0 {
		p.logger.Debug("added flat patches under unsupported start feet", "count", len(patches), "z", pose.Position.Z)
		// The caller's list is left untouched.
		p.regions = terrain.NewPlanarRegionsList(append(slices.Clone(p.regions.Regions), patches...)...)
		p.forwardRegions()
	}
	return snaps
}

func (p *AStarPlanner) forwardRegions() {
	for _, policy := range p.policies {
		if aware, ok := policy.(terrain.RegionsAware); ok {
			aware.SetPlanarRegions(p.regions)
		}
	}
}

// footholdStance returns the planar footholds and the stance-center pose of
// explicit footholds.
func footholdStance(footholds [core.NumQuadrants]r3.Vector) ([core.NumQuadrants]r2.Point, core.Pose) {
	var (
		feet   [core.NumQuadrants]r2.Point
		center r3.Vector
	)
	for _, q := range core.Quadrants {
		feet[q] = r2.Point{X: footholds[q].X, Y: footholds[q].Y}
		center = center.Add(footholds[q])
	}
	center = center.Mul(1.0 / core.NumQuadrants)
	yaw := core.ComputeNominalYaw(feet[core.FrontLeft], feet[core.FrontRight], feet[core.HindLeft], feet[core.HindRight])
	return feet, core.Pose{Position: center, Yaw: yaw}
}

// Start returns the current start node, or nil.
func (p *AStarPlanner) Start() *core.FootstepNode { return p.start }

// Goal returns the current goal node, or nil.
func (p *AStarPlanner) Goal() *core.FootstepNode { return p.goal }

// Plan runs one search from the start to the goal and post-processes the
// path. Infeasibility is reported through the result; the error is non-nil
// only when the start or goal is missing.
func (p *AStarPlanner) Plan(ctx context.Context) (core.Result, error) {
	began := time.Now()
	p.result = core.PlannerFailed
	p.steps = nil
	p.outcome = runtime.Outcome{}
	defer func() { p.duration = time.Since(began) }()

	if p.start == nil {
		return core.PlannerFailed, ErrStartNotSet
	}
	if p.goal == nil {
		return core.PlannerFailed, ErrGoalNotSet
	}

	out, err := p.engine.Search(ctx, p.start, p.goal)
	if err != nil {
		return core.PlannerFailed, fmt.Errorf("search: %w", err)
	}
	p.outcome = out
	p.result = out.Result

	s := out.Statistics
	p.logger.Debug("plan finished",
		"run_id", out.RunID,
		"result", p.result.String(),
		"duration", s.Duration,
		"iterations", s.Iterations,
		"expanded_nodes", s.ExpandedNodes,
		"average_children", s.AverageChildren,
		"rejected_percent", s.RejectedPercent,
		"goal_x", p.goalPose.Position.X,
		"goal_y", p.goalPose.Position.Y,
		"goal_yaw", p.goalPose.Yaw,
	)
	return p.result, nil
}

// finalize post-processes a found path before the search reports its
// result, so listeners see NO_PATH_EXISTS when a step cannot be snapped.
func (p *AStarPlanner) finalize(out *runtime.Outcome) {
	if !out.Found() {
		return
	}
	steps, ok := p.postProcess(*out)
	if !ok {
		p.logger.Debug("path failed post-processing snap", "run_id", out.RunID)
		out.Result = core.NoPathExists
		return
	}
	p.steps = steps
	out.PathCost += p.goalStepsCost(out.Terminal)
}

// postProcess appends the synthetic steps that put every foot on the goal
// and snaps every step with the post-processing snapper. It reports false
// when any step cannot be snapped.
func (p *AStarPlanner) postProcess(out runtime.Outcome) ([]step, bool) {
	var steps []step
	for _, n := range out.Path[1:] {
		q := n.MovingQuadrant()
		pos, ok := core.SnapCell(p.postSnapper, n.XIndex(q), n.YIndex(q))
		if !ok {
			return nil, false
		}
		steps = append(steps, step{quadrant: q, position: pos})
	}

	for _, n := range p.goalSteps(out.Terminal) {
		q := n.MovingQuadrant()
		pos, ok := core.SnapCell(p.postSnapper, n.XIndex(q), n.YIndex(q))
		if !ok {
			return nil, false
		}
		pos.X, pos.Y = p.goalFeet[q].X, p.goalFeet[q].Y
		steps = append(steps, step{quadrant: q, position: pos})
	}
	return steps, true
}

// goalStepsCost prices the steps appended by goalSteps with the step-cost
// policy.
func (p *AStarPlanner) goalStepsCost(terminal *core.FootstepNode) float64 {
	var total float64
	previous := terminal
	for _, n := range p.goalSteps(terminal) {
		total += p.stepCost.Compute(previous, n)
		previous = n
	}
	return total
}

// goalSteps returns the nodes that move the feet of terminal onto the goal
// footholds one at a time, continuing the gait order.
func (p *AStarPlanner) goalSteps(terminal *core.FootstepNode) []*core.FootstepNode {
	var nodes []*core.FootstepNode
	current := terminal
	q := terminal.MovingQuadrant()
	for range core.NumQuadrants {
		q = q.NextRegularGaitSwing()
		if current.XIndex(q) == p.goal.XIndex(q) && current.YIndex(q) == p.goal.YIndex(q) {
			continue
		}
		current = current.WithFoot(q, p.goal.XIndex(q), p.goal.YIndex(q), p.goal.YawIndex())
		nodes = append(nodes, current)
	}
	return nodes
}

// GetPlan returns the timed footsteps of the last Plan, or nil when it did
// not produce an executable result.
func (p *AStarPlanner) GetPlan() *core.FootstepPlan {
	if !p.result.ValidForExecution() {
		return nil
	}
	plan := &core.FootstepPlan{
		Steps:            make([]core.TimedStep, 0, len(p.steps)),
		LowLevelPlanGoal: p.goalPose,
		PathCost:         p.outcome.PathCost,
	}
	var start float64
	for i, s := range p.steps {
		if i > 0 {
			start += p.xgait.TimeDeltaBetweenSteps(p.steps[i-1].quadrant)
		}
		plan.Steps = append(plan.Steps, core.TimedStep{
			Quadrant:        s.quadrant,
			GoalPosition:    s.position,
			TimeInterval:    core.TimeInterval{Start: start, End: start + p.xgait.StepDuration},
			GroundClearance: p.xgait.StepGroundClearance,
		})
	}
	return plan
}

// Result returns the classification of the last Plan.
func (p *AStarPlanner) Result() core.Result { return p.result }

// RunID returns the search run ID of the last Plan.
func (p *AStarPlanner) RunID() string { return p.outcome.RunID }

// CancelPlanning asks a running Plan to stop within one search iteration.
func (p *AStarPlanner) CancelPlanning() { p.engine.Cancel() }

// RequestInitialize discards the search state of a running Plan at the next
// iteration boundary. Every Plan starts from a fresh state regardless.
func (p *AStarPlanner) RequestInitialize() { p.engine.RequestInitialize() }

// Statistics returns the search statistics of the last Plan.
func (p *AStarPlanner) Statistics() core.Statistics { return p.engine.Statistics() }

// PlanningDuration returns the wall-clock time of the last Plan, including
// post-processing.
func (p *AStarPlanner) PlanningDuration() time.Duration { return p.duration }

// Parameters returns the planner parameters.
func (p *AStarPlanner) Parameters() core.Parameters { return p.params }

// XGaitSettings returns the gait settings used for stances and timing.
func (p *AStarPlanner) XGaitSettings() core.XGaitSettings { return p.xgait }
