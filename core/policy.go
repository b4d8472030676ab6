package core

import "github.com/golang/geo/r2"

// NodeChecker validates a candidate node on its own. The predecessor is nil
// when the candidate is the start or goal of a search.
type NodeChecker interface {
	CheckNode(node, previous *FootstepNode) RejectionReason
}

// NodeCheckerFunc adapts a function to NodeChecker.
type NodeCheckerFunc func(node, previous *FootstepNode) RejectionReason

// CheckNode calls f(node, previous).
func (f NodeCheckerFunc) CheckNode(node, previous *FootstepNode) RejectionReason {
	return f(node, previous)
}

// TransitionChecker validates the step from previous to node.
type TransitionChecker interface {
	CheckTransition(node, previous *FootstepNode) RejectionReason
}

// TransitionCheckerFunc adapts a function to TransitionChecker.
type TransitionCheckerFunc func(node, previous *FootstepNode) RejectionReason

// CheckTransition calls f(node, previous).
func (f TransitionCheckerFunc) CheckTransition(node, previous *FootstepNode) RejectionReason {
	return f(node, previous)
}

// StartNodeAware collaborators are told about the start node and the terrain
// placement of its feet before each search.
type StartNodeAware interface {
	AddStartNode(start *FootstepNode, snaps [NumQuadrants]SnapData)
}

// GoalAware collaborators are told about the goal before each search.
type GoalAware interface {
	SetGoal(goal *FootstepNode)
}

// Snapper maps a lattice cell to a terrain-conforming transform, or to the
// failed sentinel when no terrain supports the cell.
type Snapper interface {
	Snap(xIndex, yIndex int) SnapData
}

// SnapperFunc adapts a function to Snapper.
type SnapperFunc func(xIndex, yIndex int) SnapData

// Snap calls f(xIndex, yIndex).
func (f SnapperFunc) Snap(xIndex, yIndex int) SnapData { return f(xIndex, yIndex) }

// NodeExpansion produces the candidate successors of a node. Implementations
// must return candidates in a deterministic order.
type NodeExpansion interface {
	Expand(node *FootstepNode) []*FootstepNode
}

// NodeExpansionFunc adapts a function to NodeExpansion.
type NodeExpansionFunc func(node *FootstepNode) []*FootstepNode

// Expand calls f(node).
func (f NodeExpansionFunc) Expand(node *FootstepNode) []*FootstepNode { return f(node) }

// StepCost returns the non-negative cost of stepping from one node to the next.
type StepCost interface {
	Compute(from, to *FootstepNode) float64
}

// StepCostFunc adapts a function to StepCost.
type StepCostFunc func(from, to *FootstepNode) float64

// Compute calls f(from, to).
func (f StepCostFunc) Compute(from, to *FootstepNode) float64 { return f(from, to) }

// CostToGo estimates the non-negative remaining cost from node to goal.
type CostToGo interface {
	Compute(node, goal *FootstepNode) float64
}

// CostToGoFunc adapts a function to CostToGo.
type CostToGoFunc func(node, goal *FootstepNode) float64

// Compute calls f(node, goal).
func (f CostToGoFunc) Compute(node, goal *FootstepNode) float64 { return f(node, goal) }

// Heuristics is the cost-to-go consulted by the search together with the
// inflation weight applied to it. A weight above 1 forfeits optimality.
type Heuristics interface {
	CostToGo
	Weight() float64
}

// VelocityProvider supplies the nominal walking direction at a node.
type VelocityProvider interface {
	GoalAware
	Velocity(node *FootstepNode) r2.Point
}

// Listener observes a search. Calls happen synchronously on the planning
// goroutine and must not block.
type Listener interface {
	NodeAdded(node, parent *FootstepNode)
	Rejection(node, parent *FootstepNode, reason RejectionReason)
	Tick()
	PlannerFinished(result Result)
}

// NopListener implements Listener with no-ops. Embed it to override a subset.
type NopListener struct{}

func (NopListener) NodeAdded(node, parent *FootstepNode)                         {}
func (NopListener) Rejection(node, parent *FootstepNode, reason RejectionReason) {}
func (NopListener) Tick()                                                        {}
func (NopListener) PlannerFinished(result Result)                                {}

// StartAndGoalListener is notified with the stance-center poses of the start
// and goal whenever they are set.
type StartAndGoalListener interface {
	SetInitialPose(pose Pose)
	SetGoalPose(pose Pose)
}
