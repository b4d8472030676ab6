package footplan_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/runtime"
)

func TestBuilder_Defaults(t *testing.T) {
	p, err := footplan.NewPlannerBuilder().Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if p.Parameters() != core.DefaultParameters() {
		t.Errorf("Parameters() = %+v, want defaults", p.Parameters())
	}
	if p.XGaitSettings() != core.DefaultXGaitSettings() {
		t.Errorf("XGaitSettings() = %+v, want defaults", p.XGaitSettings())
	}
	if p.Timeout() != runtime.NoTimeout {
		t.Errorf("Timeout() = %v, want NoTimeout", p.Timeout())
	}
	if p.Start() != nil || p.Goal() != nil {
		t.Error("fresh planner should have no start or goal")
	}
}

func TestBuilder_Options(t *testing.T) {
	params := core.DefaultParameters()
	params.HeuristicsInflationWeight = 1
	xgait := core.DefaultXGaitSettings()
	xgait.StanceLength = 1.0

	p := footplan.NewPlannerBuilder().
		WithParameters(params).
		WithXGaitSettings(xgait).
		WithTimeout(3 * time.Second).
		MustBuild()

	if p.Parameters().HeuristicsInflationWeight != 1 {
		t.Errorf("HeuristicsInflationWeight = %v, want 1", p.Parameters().HeuristicsInflationWeight)
	}
	if p.XGaitSettings().StanceLength != 1.0 {
		t.Errorf("StanceLength = %v, want 1.0", p.XGaitSettings().StanceLength)
	}
	if p.Timeout() != 3*time.Second {
		t.Errorf("Timeout() = %v, want 3s", p.Timeout())
	}

	p.SetTimeout(time.Second)
	if p.Timeout() != time.Second {
		t.Errorf("Timeout() after SetTimeout = %v, want 1s", p.Timeout())
	}
}

func TestBuilder_AccumulatesErrors(t *testing.T) {
	params := core.DefaultParameters()
	params.MinimumStepWidth = 0.2
	_, err := footplan.NewPlannerBuilder().
		WithParameters(params).
		WithTimeout(-time.Second).
		WithSnapper(nil).
		Build()
	if err == nil {
		t.Fatal("Build() error = nil")
	}
	if !errors.Is(err, core.ErrInvalidWidthBounds) {
		t.Errorf("Build() error = %v, want ErrInvalidWidthBounds", err)
	}
	for _, want := range []string{"timeout must not be negative", "nil snapper"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Build() error = %q, want it to mention %q", err, want)
		}
	}

	b := footplan.NewPlannerBuilder().WithXGaitSettings(core.XGaitSettings{})
	if len(b.Errors()) != 1 {
		t.Errorf("Errors() = %v, want one stance error", b.Errors())
	}
}

func TestBuilder_RejectsNegativeGaitDurations(t *testing.T) {
	xgait := core.DefaultXGaitSettings()
	xgait.StepDuration = -0.1

	b := footplan.NewPlannerBuilder().
		WithXGaitSettings(xgait).
		WithPostProcessingSnapper(nil)
	if got := len(b.Errors()); got != 2 {
		t.Fatalf("len(Errors()) = %d, want 2: %v", got, b.Errors())
	}
}

func TestBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustBuild() did not panic")
		}
	}()
	footplan.NewPlannerBuilder().WithTimeout(-time.Second).MustBuild()
}
