package footplan_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/terrain"
)

// stanceFootholds returns the default 0.8 x 0.4 stance centered at (x, y).
func stanceFootholds(x, y float64) [core.NumQuadrants]r3.Vector {
	var out [core.NumQuadrants]r3.Vector
	for q, p := range core.NominalFootPositions(r2.Point{X: x, Y: y}, 0, 0.8, 0.4) {
		out[q] = r3.Vector{X: p.X, Y: p.Y}
	}
	return out
}

func newPlanner(t *testing.T, b *footplan.PlannerBuilder) *footplan.AStarPlanner {
	t.Helper()
	p, err := b.WithTimeout(30 * time.Second).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return p
}

// finalStance replays the plan's steps over the start footholds.
func finalStance(start [core.NumQuadrants]r3.Vector, plan *core.FootstepPlan) [core.NumQuadrants]r3.Vector {
	feet := start
	for _, s := range plan.Steps {
		feet[s.Quadrant] = s.GoalPosition
	}
	return feet
}

func center(feet [core.NumQuadrants]r3.Vector) r2.Point {
	var c r2.Point
	for _, f := range feet {
		c = c.Add(r2.Point{X: f.X, Y: f.Y})
	}
	return c.Mul(0.25)
}

func TestPlan_OneMeterForward(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())
	start := stanceFootholds(0, 0)
	if err := p.SetStart(core.FootstepsTarget(start)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetGoal(core.PoseTarget(1, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	// The default inflation weight is above 1.
	if result != core.SubOptimalSolution {
		t.Fatalf("Plan() = %v, want SUB_OPTIMAL_SOLUTION", result)
	}

	plan := p.GetPlan()
	if plan.NumSteps() < 4 || plan.NumSteps() > 40 {
		t.Fatalf("NumSteps() = %d, want a short crawl", plan.NumSteps())
	}
	c := center(finalStance(start, plan))
	if d := c.Sub(r2.Point{X: 1}).Norm(); d > p.Parameters().GoalTolerance.XY {
		t.Errorf("final stance center = %v, %.3f m from the goal", c, d)
	}
	if plan.Steps[0].Quadrant != core.FrontLeft {
		t.Errorf("first step = %v, want the initial quadrant FL", plan.Steps[0].Quadrant)
	}
	if plan.PathCost <= 0 {
		t.Errorf("PathCost = %v, want positive", plan.PathCost)
	}
	if got := plan.LowLevelPlanGoal.Position.X; got != 1 {
		t.Errorf("LowLevelPlanGoal x = %v, want 1", got)
	}

	s := p.Statistics()
	if s.Iterations == 0 || s.ExpandedNodes == 0 || s.TotalCandidates == 0 {
		t.Errorf("Statistics() = %+v, want populated counters", s)
	}
	if p.PlanningDuration() <= 0 {
		t.Error("PlanningDuration() should be positive")
	}
}

func TestGetPlan_StepTiming(t *testing.T) {
	settings := core.DefaultXGaitSettings()
	p := newPlanner(t, footplan.NewPlannerBuilder().WithXGaitSettings(settings))
	if err := p.SetStart(core.PoseTarget(0, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if err := p.SetGoal(core.PoseTarget(0.5, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if result, _ := p.Plan(context.Background()); !result.ValidForExecution() {
		t.Fatalf("Plan() = %v", result)
	}

	steps := p.GetPlan().Steps
	if steps[0].TimeInterval.Start != 0 {
		t.Errorf("first step starts at %v, want 0", steps[0].TimeInterval.Start)
	}
	for i, s := range steps {
		if math.Abs(s.TimeInterval.Duration()-settings.StepDuration) > 1e-9 {
			t.Errorf("step %d lasts %v, want %v", i, s.TimeInterval.Duration(), settings.StepDuration)
		}
		if s.GroundClearance != settings.StepGroundClearance {
			t.Errorf("step %d ground clearance = %v", i, s.GroundClearance)
		}
		if i == 0 {
			continue
		}
		want := steps[i-1].TimeInterval.Start + settings.TimeDeltaBetweenSteps(steps[i-1].Quadrant)
		if math.Abs(s.TimeInterval.Start-want) > 1e-9 {
			t.Errorf("step %d starts at %v, want %v", i, s.TimeInterval.Start, want)
		}
	}
}

func TestPlan_IdempotentReplan(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(0.6, 0.2, 0, 0.2))

	first, err := p.Plan(context.Background())
	if err != nil || !first.ValidForExecution() {
		t.Fatalf("Plan() = %v, %v", first, err)
	}
	firstPlan := p.GetPlan()
	firstRun := p.RunID()
	second, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	secondPlan := p.GetPlan()

	if first != second {
		t.Fatalf("results differ: %v then %v", first, second)
	}
	if firstPlan.NumSteps() != secondPlan.NumSteps() {
		t.Fatalf("step counts differ: %d then %d", firstPlan.NumSteps(), secondPlan.NumSteps())
	}
	for i := range firstPlan.Steps {
		if firstPlan.Steps[i] != secondPlan.Steps[i] {
			t.Fatalf("step %d differs: %+v vs %+v", i, firstPlan.Steps[i], secondPlan.Steps[i])
		}
	}
	if firstRun == p.RunID() {
		t.Error("each Plan should get a new run ID")
	}
}

// translate moves the whole stance one cell along x, keeping the center in
// [-1, 2].
func translate(n *core.FootstepNode) []*core.FootstepNode {
	var out []*core.FootstepNode
	for _, dx := range []int{1, -1} {
		var xs, ys [core.NumQuadrants]int
		for _, q := range core.Quadrants {
			xs[q] = n.XIndex(q) + dx
			ys[q] = n.YIndex(q)
		}
		child := core.NewFootstepNodeFromIndices(n.MovingQuadrant().NextRegularGaitSwing(), xs, ys, n.YawIndex(), n.StanceLength(), n.StanceWidth())
		if c := child.GaitCenter().X; c < -1 || c > 2 {
			continue
		}
		out = append(out, child)
	}
	return out
}

func TestPlan_CliffBlocksEveryPath(t *testing.T) {
	cliff := core.TransitionCheckerFunc(func(n, prev *core.FootstepNode) core.RejectionReason {
		if prev != nil && prev.GaitCenter().X < 0.52 && n.GaitCenter().X > 0.52 {
			return core.ReasonAtCliffBottom
		}
		return core.ReasonNone
	})
	p := newPlanner(t, footplan.NewPlannerBuilder().
		WithExpansion(core.NodeExpansionFunc(translate)).
		WithTransitionCheckers(cliff))
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(1, 0, 0, 0))

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != core.NoPathExists {
		t.Errorf("Plan() = %v, want NO_PATH_EXISTS", result)
	}
	if p.GetPlan() != nil {
		t.Error("GetPlan() should be nil without a solution")
	}
	if got := p.Statistics().RejectionsByReason[core.ReasonAtCliffBottom]; got != 1 {
		t.Errorf("cliff rejections = %d, want 1", got)
	}
}

func TestPlan_OptimalWithUnitWeight(t *testing.T) {
	params := core.DefaultParameters()
	params.HeuristicsInflationWeight = 1
	p := newPlanner(t, footplan.NewPlannerBuilder().
		WithParameters(params).
		WithExpansion(core.NodeExpansionFunc(translate)).
		WithTransitionCheckers())
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(1, 0, 0, 0))

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != core.OptimalSolution {
		t.Fatalf("Plan() = %v, want OPTIMAL_SOLUTION", result)
	}
	// The lattice stops within tolerance; the remaining feet are placed
	// exactly on the goal by synthetic steps.
	plan := p.GetPlan()
	c := center(finalStance(stanceFootholds(0, 0), plan))
	if math.Abs(c.X-1) > 1e-9 || math.Abs(c.Y) > 1e-9 {
		t.Errorf("final center = %v, want exactly (1, 0)", c)
	}
}

// resultRecorder records the results announced to search listeners.
type resultRecorder struct {
	core.NopListener
	results []core.Result
}

func (r *resultRecorder) PlannerFinished(result core.Result) { r.results = append(r.results, result) }

func finishedEvent(t *testing.T, events []runtime.Event) runtime.Event {
	t.Helper()
	for _, e := range events {
		if e.Kind == runtime.EventSearchFinished {
			return e
		}
	}
	t.Fatalf("no %s event among %d events", runtime.EventSearchFinished, len(events))
	return runtime.Event{}
}

func TestPlan_PostProcessingSnapFailure(t *testing.T) {
	// The search sees flat ground everywhere, the post-processing snapper
	// only the terrain behind x = 0.5.
	behind := terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(0, -3, -3, 0.5, 3, 0))
	var events []runtime.Event
	rec := &resultRecorder{}
	observer := runtime.NewEventListener(runtime.EventListenerConfig{
		Handler: func(e runtime.Event) { events = append(events, e) },
	})
	p := newPlanner(t, footplan.NewPlannerBuilder().
		WithPostProcessingSnapper(terrain.NewPlanarRegionSnapper(behind)).
		WithListener(observer, rec))
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(0.6, 0, 0, 0))

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != core.NoPathExists {
		t.Errorf("Plan() = %v, want NO_PATH_EXISTS", result)
	}
	if p.GetPlan() != nil {
		t.Error("GetPlan() should be nil after a post-processing failure")
	}

	// Listeners and events report the downgraded result, not the search's.
	if len(rec.results) != 1 || rec.results[0] != core.NoPathExists {
		t.Errorf("PlannerFinished results = %v, want [NO_PATH_EXISTS]", rec.results)
	}
	if got := finishedEvent(t, events).Payload["result"]; got != "NO_PATH_EXISTS" {
		t.Errorf("search.finished result = %v, want NO_PATH_EXISTS", got)
	}
}

func TestPlan_PathCostIncludesGoalSteps(t *testing.T) {
	var events []runtime.Event
	unit := core.StepCostFunc(func(_, _ *core.FootstepNode) float64 { return 1 })
	p := newPlanner(t, footplan.NewPlannerBuilder().
		WithExpansion(core.NodeExpansionFunc(translate)).
		WithTransitionCheckers().
		WithStepCost(unit).
		WithListener(runtime.NewEventListener(runtime.EventListenerConfig{
			Handler: func(e runtime.Event) { events = append(events, e) },
		})))
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(1, 0, 0, 0))

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.ValidForExecution() {
		t.Fatalf("Plan() = %v, want a solution", result)
	}
	plan := p.GetPlan()
	if plan.PathCost != float64(plan.NumSteps()) {
		t.Errorf("PathCost = %v, want one per step (%d steps)", plan.PathCost, plan.NumSteps())
	}
	if got := finishedEvent(t, events).Payload["path_cost"]; got != plan.PathCost {
		t.Errorf("search.finished path_cost = %v, want %v", got, plan.PathCost)
	}
}

func TestPlan_ZeroTimeout(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())
	p.SetTimeout(0)
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0, 0)))
	_ = p.SetGoal(core.PoseTarget(5, 0, 0, 0))

	done := make(chan core.Result, 1)
	go func() {
		result, _ := p.Plan(context.Background())
		done <- result
	}()
	select {
	case result := <-done:
		if result != core.TimedOutBeforeSolution && result != core.NoPathExists {
			t.Errorf("Plan() = %v, want TIMED_OUT_BEFORE_SOLUTION or NO_PATH_EXISTS", result)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Plan() with zero timeout did not return")
	}
}

func TestPlan_UsageErrors(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())

	if _, err := p.Plan(context.Background()); !errors.Is(err, footplan.ErrStartNotSet) {
		t.Errorf("Plan() without start error = %v, want ErrStartNotSet", err)
	}
	_ = p.SetStart(core.PoseTarget(0, 0, 0, 0))
	if result, err := p.Plan(context.Background()); !errors.Is(err, footplan.ErrGoalNotSet) || result != core.PlannerFailed {
		t.Errorf("Plan() without goal = %v, %v", result, err)
	}
	if err := p.SetGoal(core.Target{}); !errors.Is(err, footplan.ErrUnsupportedTarget) {
		t.Errorf("SetGoal(unspecified) error = %v, want ErrUnsupportedTarget", err)
	}
	if err := p.SetStart(core.Target{Type: core.TargetType(42)}); !errors.Is(err, footplan.ErrUnsupportedTarget) {
		t.Errorf("SetStart(unknown) error = %v, want ErrUnsupportedTarget", err)
	}
	if p.GetPlan() != nil {
		t.Error("GetPlan() before a successful Plan should be nil")
	}
}

func TestPlan_InvalidGoalFails(t *testing.T) {
	ground := terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(0, -2, -2, 2, 2, 0))
	p := newPlanner(t, footplan.NewPlannerBuilder())
	p.SetPlanarRegionsList(ground)
	_ = p.SetStart(core.PoseTarget(0, 0, 0, 0))
	_ = p.SetGoal(core.PoseTarget(5, 0, 0, 0))

	result, err := p.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result != core.PlannerFailed {
		t.Errorf("Plan() to a goal off the terrain = %v, want PLANNER_FAILED", result)
	}
}

func TestSetStart_InitialQuadrantMovesFirst(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())
	for _, q := range core.Quadrants {
		target := core.PoseTarget(0, 0, 0, 0)
		target.InitialQuadrant = q
		if err := p.SetStart(target); err != nil {
			t.Fatal(err)
		}
		if got := p.Start().MovingQuadrant().NextRegularGaitSwing(); got != q {
			t.Errorf("InitialQuadrant %v: next swing from start = %v", q, got)
		}
	}
}

func TestSetStart_PatchesUnsupportedFeet(t *testing.T) {
	ahead := terrain.NewPlanarRegionsList(terrain.NewHorizontalRectangle(0, 0.5, -2, 3, 2, 0))
	p := newPlanner(t, footplan.NewPlannerBuilder())
	p.SetPlanarRegionsList(ahead)
	if err := p.SetStart(core.PoseTarget(0, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}
	if got := p.PlanarRegions().Len(); got != 5 {
		t.Errorf("regions after SetStart = %d, want the terrain plus 4 patches", got)
	}
	if ahead.Len() != 1 {
		t.Errorf("caller's regions were modified: %d", ahead.Len())
	}

	// Setting the terrain again re-projects the start.
	p.SetPlanarRegionsList(ahead)
	if got := p.PlanarRegions().Len(); got != 5 {
		t.Errorf("regions after SetPlanarRegionsList = %d, want 5", got)
	}
}

func TestSetStart_FootholdHeightsArePinned(t *testing.T) {
	footholds := stanceFootholds(0, 0)
	for q := range footholds {
		footholds[q].Z = 0.3
	}
	snapper := terrain.NewPlanarRegionSnapper(nil)
	p := newPlanner(t, footplan.NewPlannerBuilder().WithSnapper(snapper))
	if err := p.SetStart(core.FootstepsTarget(footholds)); err != nil {
		t.Fatal(err)
	}
	start := p.Start()
	for _, q := range core.Quadrants {
		pos, ok := core.SnapCell(snapper, start.XIndex(q), start.YIndex(q))
		if !ok || math.Abs(pos.Z-0.3) > 1e-9 {
			t.Errorf("%v snapped to %v (ok=%v), want z = 0.3", q, pos, ok)
		}
	}
}

type poseRecorder struct {
	initial, goal []core.Pose
}

func (r *poseRecorder) SetInitialPose(p core.Pose) { r.initial = append(r.initial, p) }
func (r *poseRecorder) SetGoalPose(p core.Pose)    { r.goal = append(r.goal, p) }

func TestStartAndGoalListener(t *testing.T) {
	rec := &poseRecorder{}
	p := newPlanner(t, footplan.NewPlannerBuilder().WithStartAndGoalListener(rec))
	_ = p.SetStart(core.FootstepsTarget(stanceFootholds(0.5, -0.5)))
	_ = p.SetGoal(core.PoseTarget(2, 1, 0, 0.3))

	if len(rec.initial) != 1 || math.Abs(rec.initial[0].Position.X-0.5) > 1e-9 || math.Abs(rec.initial[0].Position.Y+0.5) > 1e-9 {
		t.Errorf("initial poses = %+v", rec.initial)
	}
	if len(rec.goal) != 1 || rec.goal[0].Yaw != 0.3 {
		t.Errorf("goal poses = %+v", rec.goal)
	}
}

func TestCancelPlanning_BeforePlanIsCleared(t *testing.T) {
	p := newPlanner(t, footplan.NewPlannerBuilder())
	_ = p.SetStart(core.PoseTarget(0, 0, 0, 0))
	_ = p.SetGoal(core.PoseTarget(0.4, 0, 0, 0))
	p.CancelPlanning()
	if result, _ := p.Plan(context.Background()); !result.ValidForExecution() {
		t.Errorf("Plan() after an earlier cancel = %v, want a solution", result)
	}
}
