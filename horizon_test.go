package footplan_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/core"
)

func pose(x, y, yaw float64) core.Pose {
	return core.Pose{Position: r3.Vector{X: x, Y: y}, Yaw: yaw}
}

func TestBodyPath_PoseAt(t *testing.T) {
	path, err := footplan.NewBodyPath(pose(0, 0, 0), pose(2, 0, 0), pose(2, 2, math.Pi/2))
	if err != nil {
		t.Fatal(err)
	}
	if got := path.Length(); got != 4 {
		t.Fatalf("Length() = %v, want 4", got)
	}

	tests := []struct {
		alpha     float64
		x, y, yaw float64
	}{
		{-1, 0, 0, 0},
		{0, 0, 0, 0},
		{0.25, 1, 0, 0},
		{0.5, 2, 0, 0},
		{0.75, 2, 1, math.Pi / 4},
		{1, 2, 2, math.Pi / 2},
		{3, 2, 2, math.Pi / 2},
	}
	for _, tt := range tests {
		got := path.PoseAt(tt.alpha)
		if math.Abs(got.Position.X-tt.x) > 1e-9 || math.Abs(got.Position.Y-tt.y) > 1e-9 || math.Abs(got.Yaw-tt.yaw) > 1e-9 {
			t.Errorf("PoseAt(%v) = %+v, want (%v, %v, %v)", tt.alpha, got, tt.x, tt.y, tt.yaw)
		}
	}
}

func TestBodyPath_YawTakesShorterArc(t *testing.T) {
	path, err := footplan.NewBodyPath(pose(0, 0, 3), pose(1, 0, -3))
	if err != nil {
		t.Fatal(err)
	}
	got := path.PoseAt(0.5).Yaw
	if math.Abs(math.Abs(got)-math.Pi) > 1e-9 {
		t.Errorf("midpoint yaw = %v, want +-pi", got)
	}
}

func TestBodyPath_Degenerate(t *testing.T) {
	if _, err := footplan.NewBodyPath(); !errors.Is(err, footplan.ErrEmptyBodyPath) {
		t.Errorf("NewBodyPath() error = %v, want ErrEmptyBodyPath", err)
	}
	single, err := footplan.NewBodyPath(pose(1, 2, 0.5))
	if err != nil {
		t.Fatal(err)
	}
	if got := single.PoseAt(0.7); got != pose(1, 2, 0.5) {
		t.Errorf("PoseAt() on a single waypoint = %+v", got)
	}
}

func TestHorizonPlanner_Fraction(t *testing.T) {
	h := footplan.NewHorizonPlanner(footplan.NewPlannerBuilder().MustBuild())
	if got := h.GetPlanningHorizonLength(); got != footplan.DefaultPlanningHorizonLength {
		t.Errorf("default horizon = %v", got)
	}
	if got := h.HorizonFraction(); got != 1 {
		t.Errorf("HorizonFraction() without a path = %v, want 1", got)
	}

	path, _ := footplan.NewBodyPath(pose(0, 0, 0), pose(4, 0, 0))
	h.SetBodyPath(path)
	if got := h.HorizonFraction(); got != 0.25 {
		t.Errorf("HorizonFraction() = %v, want 0.25", got)
	}
	h.SetPlanningHorizonLength(10)
	if got := h.HorizonFraction(); got != 1 {
		t.Errorf("HorizonFraction() past the end = %v, want 1", got)
	}
	h.SetPlanningHorizonLength(0)
	if got := h.HorizonFraction(); got != 1 {
		t.Errorf("HorizonFraction() with no horizon = %v, want 1", got)
	}
}

func TestHorizonPlanner_PlansToHorizonGoal(t *testing.T) {
	h := footplan.NewHorizonPlanner(footplan.NewPlannerBuilder().MustBuild())
	path, _ := footplan.NewBodyPath(pose(0, 0, 0), pose(3, 0, 0))
	h.SetBodyPath(path)
	h.SetPlanningHorizonLength(0.6)
	if err := h.SetStart(core.PoseTarget(0, 0, 0, 0)); err != nil {
		t.Fatal(err)
	}

	result, err := h.Plan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !result.ValidForExecution() {
		t.Fatalf("Plan() = %v", result)
	}
	goal := h.GetPlan().LowLevelPlanGoal
	if math.Abs(goal.Position.X-0.6) > 1e-9 || goal.Position.Y != 0 {
		t.Errorf("LowLevelPlanGoal = %+v, want the pose 0.6 m along the path", goal)
	}
}

func TestHorizonPlanner_Goal(t *testing.T) {
	h := footplan.NewHorizonPlanner(footplan.NewPlannerBuilder().MustBuild())
	_ = h.SetStart(core.PoseTarget(0, 0, 0, 0))

	if _, err := h.Plan(context.Background()); !errors.Is(err, footplan.ErrGoalNotSet) {
		t.Errorf("Plan() without a goal or path error = %v, want ErrGoalNotSet", err)
	}
	if err := h.SetGoal(core.Target{}); !errors.Is(err, footplan.ErrUnsupportedTarget) {
		t.Errorf("SetGoal(unspecified) error = %v, want ErrUnsupportedTarget", err)
	}

	_ = h.SetGoal(core.PoseTarget(0.4, 0, 0, 0))
	result, err := h.Plan(context.Background())
	if err != nil || !result.ValidForExecution() {
		t.Fatalf("Plan() = %v, %v", result, err)
	}
	if got := h.GetPlan().LowLevelPlanGoal.Position.X; got != 0.4 {
		t.Errorf("LowLevelPlanGoal x = %v, want 0.4", got)
	}
	if h.Statistics().Iterations == 0 {
		t.Error("Statistics() should come from the wrapped planner")
	}
}
