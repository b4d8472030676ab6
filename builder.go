package footplan

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/petal-labs/footplan/checker"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/cost"
	"github.com/petal-labs/footplan/expansion"
	"github.com/petal-labs/footplan/runtime"
	"github.com/petal-labs/footplan/terrain"
)

// PlannerBuilder assembles an AStarPlanner. Policies not set explicitly
// fall back to the defaults derived from the parameters. Errors are
// accumulated and reported by Build.
//
// Example usage:
//
//	planner, err := NewPlannerBuilder().
//	    WithParameters(params).
//	    WithXGaitSettings(core.DefaultXGaitSettings()).
//	    WithListener(runtime.NewEventListener(runtime.EventListenerConfig{Bus: b})).
//	    WithTimeout(5 * time.Second).
//	    Build()
type PlannerBuilder struct {
	params            core.Parameters
	xgait             core.XGaitSettings
	snapper           core.Snapper
	postSnapper       core.Snapper
	expansion         core.NodeExpansion
	nodeChecker       core.NodeChecker
	transitionChecker core.TransitionChecker
	stepCost          core.StepCost
	heuristics        core.Heuristics
	listeners         []core.Listener
	startGoal         []core.StartAndGoalListener
	logger            *slog.Logger
	timeout           time.Duration
	errors            []error
}

// NewPlannerBuilder returns a builder with default parameters, default gait
// settings and no time budget.
func NewPlannerBuilder() *PlannerBuilder {
	return &PlannerBuilder{
		params:  core.DefaultParameters(),
		xgait:   core.DefaultXGaitSettings(),
		timeout: runtime.NoTimeout,
	}
}

// WithParameters sets the parameters of the default policies.
func (b *PlannerBuilder) WithParameters(params core.Parameters) *PlannerBuilder {
	if err := params.Validate(); err != nil {
		b.errors = append(b.errors, fmt.Errorf("parameters: %w", err))
		return b
	}
	b.params = params
	return b
}

// WithXGaitSettings sets the nominal stance and step timing.
func (b *PlannerBuilder) WithXGaitSettings(settings core.XGaitSettings) *PlannerBuilder {
	if settings.StanceLength <= 0 || settings.StanceWidth <= 0 {
		b.errors = append(b.errors, fmt.Errorf("x-gait stance must be positive, got %vx%v", settings.StanceLength, settings.StanceWidth))
		return b
	}
	if settings.StepDuration < 0 || settings.EndDoubleSupportDuration < 0 {
		b.errors = append(b.errors, errors.New("x-gait durations must not be negative"))
		return b
	}
	b.xgait = settings
	return b
}

// WithSnapper sets the terrain snapper used during the search.
func (b *PlannerBuilder) WithSnapper(s core.Snapper) *PlannerBuilder {
	if s == nil {
		b.errors = append(b.errors, errors.New("cannot use nil snapper"))
		return b
	}
	b.snapper = s
	return b
}

// WithPostProcessingSnapper sets the snapper used to place the steps of a
// found path. A step it cannot snap invalidates the plan.
func (b *PlannerBuilder) WithPostProcessingSnapper(s core.Snapper) *PlannerBuilder {
	if s == nil {
		b.errors = append(b.errors, errors.New("cannot use nil post-processing snapper"))
		return b
	}
	b.postSnapper = s
	return b
}

// WithExpansion sets the node expansion policy.
func (b *PlannerBuilder) WithExpansion(e core.NodeExpansion) *PlannerBuilder {
	b.expansion = e
	return b
}

// WithNodeCheckers replaces the default node checkers by the all-of
// composition of checkers.
func (b *PlannerBuilder) WithNodeCheckers(checkers ...core.NodeChecker) *PlannerBuilder {
	b.nodeChecker = checker.AllNodes(checkers...)
	return b
}

// WithTransitionCheckers replaces the default transition checkers by the
// all-of composition of checkers.
func (b *PlannerBuilder) WithTransitionCheckers(checkers ...core.TransitionChecker) *PlannerBuilder {
	b.transitionChecker = checker.AllTransitions(checkers...)
	return b
}

// WithStepCost sets the step cost policy.
func (b *PlannerBuilder) WithStepCost(c core.StepCost) *PlannerBuilder {
	b.stepCost = c
	return b
}

// WithHeuristics sets the cost-to-go policy and its inflation weight.
func (b *PlannerBuilder) WithHeuristics(h core.Heuristics) *PlannerBuilder {
	b.heuristics = h
	return b
}

// WithListener adds search listeners.
func (b *PlannerBuilder) WithListener(listeners ...core.Listener) *PlannerBuilder {
	b.listeners = append(b.listeners, listeners...)
	return b
}

// WithStartAndGoalListener adds listeners told about start and goal poses.
func (b *PlannerBuilder) WithStartAndGoalListener(listeners ...core.StartAndGoalListener) *PlannerBuilder {
	b.startGoal = append(b.startGoal, listeners...)
	return b
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *PlannerBuilder) WithLogger(logger *slog.Logger) *PlannerBuilder {
	b.logger = logger
	return b
}

// WithTimeout sets the search time budget.
func (b *PlannerBuilder) WithTimeout(d time.Duration) *PlannerBuilder {
	if d < 0 {
		b.errors = append(b.errors, fmt.Errorf("timeout must not be negative, got %v", d))
		return b
	}
	b.timeout = d
	return b
}

// Errors returns any errors accumulated during building.
func (b *PlannerBuilder) Errors() []error {
	return b.errors
}

// Build validates the configuration and returns the planner.
func (b *PlannerBuilder) Build() (*AStarPlanner, error) {
	if len(b.errors) > 0 {
		return nil, fmt.Errorf("planner builder errors: %w", errors.Join(b.errors...))
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	snapper := b.snapper
	if snapper == nil {
		snapper = terrain.NewPlanarRegionSnapper(nil)
	}
	postSnapper := b.postSnapper
	if postSnapper == nil {
		postSnapper = terrain.NewPlanarRegionSnapper(nil)
	}

	nodeChecker, transitionChecker := b.nodeChecker, b.transitionChecker
	if nodeChecker == nil || transitionChecker == nil {
		defaultNodes, defaultTransitions := checker.Defaults(b.params, snapper)
		if nodeChecker == nil {
			nodeChecker = defaultNodes
		}
		if transitionChecker == nil {
			transitionChecker = defaultTransitions
		}
	}
	stepCost, heuristics := b.stepCost, b.heuristics
	if stepCost == nil || heuristics == nil {
		defaultCost, defaultHeuristics := cost.Defaults(b.params, snapper)
		if stepCost == nil {
			stepCost = defaultCost
		}
		if heuristics == nil {
			heuristics = defaultHeuristics
		}
	}
	nodeExpansion := b.expansion
	if nodeExpansion == nil {
		nodeExpansion = expansion.NewParameterBasedExpansion(b.params)
	}

	p := &AStarPlanner{
		params:      b.params,
		xgait:       b.xgait,
		snapper:     snapper,
		postSnapper: postSnapper,
		stepCost:    stepCost,
		policies:    []any{snapper, postSnapper, nodeExpansion, nodeChecker, transitionChecker, stepCost, heuristics},
		startGoal:   b.startGoal,
		logger:      logger,
		timeout:     b.timeout,
	}
	engine, err := runtime.NewEngine(runtime.EngineConfig{
		Expansion:         nodeExpansion,
		NodeChecker:       nodeChecker,
		TransitionChecker: transitionChecker,
		StepCost:          stepCost,
		Heuristics:        heuristics,
		GoalTolerance:     b.params.GoalTolerance,
		Listener:          runtime.MultiListener(b.listeners...),
		Finalize:          p.finalize,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	engine.SetTimeout(b.timeout)
	p.engine = engine
	return p, nil
}

// MustBuild is like Build but panics on error.
// Useful in tests and examples.
func (b *PlannerBuilder) MustBuild() *AStarPlanner {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
