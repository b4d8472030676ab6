package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/graph"
)

// Engine errors
var (
	ErrStartNotSet      = errors.New("start node not set")
	ErrGoalNotSet       = errors.New("goal node not set")
	ErrSearchInProgress = errors.New("search already in progress")
	ErrMissingPolicy    = errors.New("missing search policy")
)

// NoTimeout disables the time budget of a search.
const NoTimeout = time.Duration(math.MaxInt64)

// State is the lifecycle state of an Engine.
type State int32

const (
	StateIdle State = iota
	StateSearching
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// EngineConfig holds the policies consulted by the search.
type EngineConfig struct {
	// Expansion produces candidate successors. Required.
	Expansion core.NodeExpansion

	// NodeChecker and TransitionChecker validate candidates; either may be nil.
	NodeChecker       core.NodeChecker
	TransitionChecker core.TransitionChecker

	// StepCost prices accepted transitions. Required.
	StepCost core.StepCost

	// Heuristics estimates the cost to go and carries the inflation weight. Required.
	Heuristics core.Heuristics

	// GoalTolerance bounds the geometric and gait-center goal tests.
	GoalTolerance core.Tolerance

	// Listener observes the search. It may also implement RunObserver.
	Listener core.Listener

	// Finalize runs after the search and before listeners learn the result.
	// It may downgrade the outcome's Result, for example when the found path
	// cannot be placed on the terrain. Optional.
	Finalize func(out *Outcome)

	// Logger receives engine diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time
}

// Outcome is the product of one Search call.
type Outcome struct {
	RunID    string
	Result   core.Result
	Start    *core.FootstepNode
	Goal     *core.FootstepNode
	Terminal *core.FootstepNode   // nil when no goal node was reached
	Path     []*core.FootstepNode // start to terminal, inclusive
	PathCost float64

	Statistics core.Statistics
}

// Found reports whether the search reached the goal.
func (o Outcome) Found() bool { return o.Terminal != nil }

// RunObserver is implemented by listeners that want the run boundaries as
// well as the per-node notifications.
type RunObserver interface {
	SearchStarted(ctx context.Context, runID string, start, goal *core.FootstepNode)
	SearchFinished(runID string, outcome Outcome)
}

// Engine runs weighted A* over footstep nodes. An Engine owns its graph,
// open list and closed set; Search calls must not overlap.
type Engine struct {
	cfg EngineConfig

	graph  *graph.FootstepGraph
	open   openList
	closed map[core.NodeKey]struct{}

	timeout    atomic.Int64
	state      atomic.Int32
	cancel     atomic.Bool
	initialize atomic.Bool

	mu    sync.Mutex
	stats core.Statistics
}

// NewEngine validates cfg and returns an idle engine without a time budget.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Expansion == nil {
		return nil, fmt.Errorf("%w: expansion", ErrMissingPolicy)
	}
	if cfg.StepCost == nil {
		return nil, fmt.Errorf("%w: step cost", ErrMissingPolicy)
	}
	if cfg.Heuristics == nil {
		return nil, fmt.Errorf("%w: heuristics", ErrMissingPolicy)
	}
	if cfg.Listener == nil {
		cfg.Listener = core.NopListener{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	e := &Engine{
		cfg:    cfg,
		graph:  graph.New(),
		closed: make(map[core.NodeKey]struct{}),
	}
	e.timeout.Store(int64(NoTimeout))
	return e, nil
}

// SetTimeout sets the wall-clock budget of later searches. Negative values
// are treated as zero.
func (e *Engine) SetTimeout(d time.Duration) {
	if d < 0 {
		d = 0
	}
	e.timeout.Store(int64(d))
}

// Timeout returns the current budget.
func (e *Engine) Timeout() time.Duration { return time.Duration(e.timeout.Load()) }

// State returns whether a search is running.
func (e *Engine) State() State { return State(e.state.Load()) }

// Cancel asks a running search to stop at the next iteration boundary. It is
// safe to call from any goroutine. A search started afterwards clears it.
func (e *Engine) Cancel() { e.cancel.Store(true) }

// RequestInitialize makes a running search discard its state and restart
// from the start node at the next iteration boundary. Every Search starts
// from a fresh state regardless.
func (e *Engine) RequestInitialize() { e.initialize.Store(true) }

// Statistics returns the statistics of the last completed search.
func (e *Engine) Statistics() core.Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Graph returns the search graph of the last search. It is only valid while
// the engine is idle.
func (e *Engine) Graph() *graph.FootstepGraph { return e.graph }

// Search plans from start to goal. Infeasibility is reported through the
// outcome's Result; errors are returned only for misuse.
func (e *Engine) Search(ctx context.Context, start, goal *core.FootstepNode) (Outcome, error) {
	if start == nil {
		return Outcome{Result: core.PlannerFailed}, ErrStartNotSet
	}
	if goal == nil {
		return Outcome{Result: core.PlannerFailed}, ErrGoalNotSet
	}
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateSearching)) {
		return Outcome{Result: core.PlannerFailed}, ErrSearchInProgress
	}
	defer e.state.Store(int32(StateIdle))
	e.cancel.Store(false)
	e.initialize.Store(false)

	out := Outcome{RunID: uuid.NewString(), Start: start, Goal: goal}
	started := e.cfg.Now()
	log := e.cfg.Logger.With("run_id", out.RunID)

	e.setGoal(goal)
	observer, _ := e.cfg.Listener.(RunObserver)
	if observer != nil {
		observer.SearchStarted(ctx, out.RunID, start, goal)
	}

	var c counters
	if r := e.validateGoal(goal); r.Rejected() {
		log.Debug("goal rejected", "reason", r.String())
		out.Result = core.PlannerFailed
	} else {
		log.Debug("search started", "start", start.Key().String(), "goal", goal.Key().String())
		out.Terminal = e.loop(ctx, log, start, goal, started, &c)
		out.Result = e.classify(out.Terminal, c.interrupted)
	}

	if out.Terminal != nil {
		out.Path = e.graph.PathFromStart(out.Terminal)
		for _, n := range out.Path[1:] {
			out.PathCost += e.graph.EdgeCost(n)
		}
	}
	if e.cfg.Finalize != nil {
		e.cfg.Finalize(&out)
	}
	out.Statistics = c.statistics(e.cfg.Now().Sub(started))
	e.mu.Lock()
	e.stats = out.Statistics
	e.mu.Unlock()

	e.cfg.Listener.PlannerFinished(out.Result)
	if observer != nil {
		observer.SearchFinished(out.RunID, out)
	}
	return out, nil
}

type counters struct {
	iterations  int
	expanded    int
	candidates  int
	rejections  map[core.RejectionReason]int
	interrupted bool
}

func (c *counters) reject(r core.RejectionReason) {
	if c.rejections == nil {
		c.rejections = make(map[core.RejectionReason]int)
	}
	c.rejections[r]++
}

func (c *counters) statistics(d time.Duration) core.Statistics {
	s := core.Statistics{
		Duration:           d,
		Iterations:         c.iterations,
		ExpandedNodes:      c.expanded,
		TotalCandidates:    c.candidates,
		RejectionsByReason: c.rejections,
	}
	for _, n := range c.rejections {
		s.TotalRejections += n
	}
	if c.expanded > 0 {
		s.AverageChildren = float64(c.candidates) / float64(c.expanded)
	}
	if c.candidates > 0 {
		s.RejectedPercent = 100 * float64(s.TotalRejections) / float64(c.candidates)
	}
	return s
}

func (e *Engine) reset(start, goal *core.FootstepNode) {
	e.graph.Initialize(start)
	e.open.clear()
	clear(e.closed)
	e.open.push(start, e.cfg.Heuristics.Weight()*e.heuristic(start, goal))
	e.cfg.Listener.NodeAdded(start, nil)
}

func (e *Engine) loop(ctx context.Context, log *slog.Logger, start, goal *core.FootstepNode, started time.Time, c *counters) *core.FootstepNode {
	weight := e.cfg.Heuristics.Weight()
	listener := e.cfg.Listener

	e.reset(start, goal)
	for {
		if e.initialize.Swap(false) {
			log.Debug("search reinitialized")
			*c = counters{}
			e.reset(start, goal)
		}

		n, ok := e.open.pop()
		if !ok {
			return nil
		}
		if _, closed := e.closed[n.Key()]; closed {
			continue
		}
		if stored, ok := e.graph.Node(n); ok {
			n = stored
		}
		e.closed[n.Key()] = struct{}{}
		c.iterations++

		if e.isGoal(n, goal) {
			return n
		}

		c.expanded++
		for _, child := range e.cfg.Expansion.Expand(n) {
			c.candidates++
			if r := e.check(child, n); r.Rejected() {
				c.reject(r)
				listener.Rejection(child, n, r)
				continue
			}
			if e.graph.CheckAndSetEdge(n, child, e.cfg.StepCost.Compute(n, child)) {
				e.open.push(child, e.graph.CostFromStart(child)+weight*e.heuristic(child, goal))
				listener.NodeAdded(child, n)
			}
		}
		listener.Tick()

		if e.cancel.Load() || ctx.Err() != nil {
			log.Info("search cancelled", "iterations", c.iterations)
			c.interrupted = true
			return nil
		}
		if e.cfg.Now().Sub(started) > e.Timeout() {
			c.interrupted = true
			return nil
		}
	}
}

func (e *Engine) heuristic(n, goal *core.FootstepNode) float64 {
	return e.cfg.Heuristics.Compute(n, goal)
}

func (e *Engine) classify(terminal *core.FootstepNode, interrupted bool) core.Result {
	switch {
	case terminal != nil && e.cfg.Heuristics.Weight() <= 1:
		return core.OptimalSolution
	case terminal != nil:
		return core.SubOptimalSolution
	case interrupted:
		return core.TimedOutBeforeSolution
	default:
		return core.NoPathExists
	}
}

func (e *Engine) isGoal(n, goal *core.FootstepNode) bool {
	tol := e.cfg.GoalTolerance
	return n.Equals(goal) || n.GeometricallyEquals(goal, tol) || n.GaitCenterEquals(goal, tol)
}

func (e *Engine) check(node, previous *core.FootstepNode) core.RejectionReason {
	if e.cfg.NodeChecker != nil {
		if r := e.cfg.NodeChecker.CheckNode(node, previous); r.Rejected() {
			return r
		}
	}
	if e.cfg.TransitionChecker != nil {
		return e.cfg.TransitionChecker.CheckTransition(node, previous)
	}
	return core.ReasonNone
}

func (e *Engine) validateGoal(goal *core.FootstepNode) core.RejectionReason {
	return e.check(goal, nil)
}

func (e *Engine) setGoal(goal *core.FootstepNode) {
	for _, p := range []any{e.cfg.Expansion, e.cfg.NodeChecker, e.cfg.TransitionChecker, e.cfg.StepCost, e.cfg.Heuristics} {
		if aware, ok := p.(core.GoalAware); ok {
			aware.SetGoal(goal)
		}
	}
}
