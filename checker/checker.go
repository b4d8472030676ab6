// Package checker provides the default node and transition validity policies
// and the all-of combinators that compose them.
package checker

import (
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/terrain"
)

// NodeAllOf accepts a node only when every member accepts it. The first
// rejection wins.
type NodeAllOf struct {
	checkers []core.NodeChecker
}

// AllNodes composes node checkers. Nil checkers are skipped.
func AllNodes(checkers ...core.NodeChecker) *NodeAllOf {
	a := &NodeAllOf{}
	for _, c := range checkers {
		if c != nil {
			a.checkers = append(a.checkers, c)
		}
	}
	return a
}

// CheckNode implements core.NodeChecker.
func (a *NodeAllOf) CheckNode(node, previous *core.FootstepNode) core.RejectionReason {
	for _, c := range a.checkers {
		if r := c.CheckNode(node, previous); r.Rejected() {
			return r
		}
	}
	return core.ReasonNone
}

// SetPlanarRegions forwards the terrain to terrain-aware members.
func (a *NodeAllOf) SetPlanarRegions(regions *terrain.PlanarRegionsList) {
	forwardRegions(regions, a.checkers)
}

// AddStartNode forwards the start node to members that track it.
func (a *NodeAllOf) AddStartNode(start *core.FootstepNode, snaps [core.NumQuadrants]core.SnapData) {
	forwardStart(start, snaps, a.checkers)
}

// TransitionAllOf accepts a transition only when every member accepts it.
type TransitionAllOf struct {
	checkers []core.TransitionChecker
}

// AllTransitions composes transition checkers. Nil checkers are skipped.
func AllTransitions(checkers ...core.TransitionChecker) *TransitionAllOf {
	a := &TransitionAllOf{}
	for _, c := range checkers {
		if c != nil {
			a.checkers = append(a.checkers, c)
		}
	}
	return a
}

// CheckTransition implements core.TransitionChecker.
func (a *TransitionAllOf) CheckTransition(node, previous *core.FootstepNode) core.RejectionReason {
	for _, c := range a.checkers {
		if r := c.CheckTransition(node, previous); r.Rejected() {
			return r
		}
	}
	return core.ReasonNone
}

// SetPlanarRegions forwards the terrain to terrain-aware members.
func (a *TransitionAllOf) SetPlanarRegions(regions *terrain.PlanarRegionsList) {
	forwardRegions(regions, a.checkers)
}

// AddStartNode forwards the start node to members that track it.
func (a *TransitionAllOf) AddStartNode(start *core.FootstepNode, snaps [core.NumQuadrants]core.SnapData) {
	forwardStart(start, snaps, a.checkers)
}

func forwardRegions[T any](regions *terrain.PlanarRegionsList, members []T) {
	for _, m := range members {
		if ra, ok := any(m).(terrain.RegionsAware); ok {
			ra.SetPlanarRegions(regions)
		}
	}
}

func forwardStart[T any](start *core.FootstepNode, snaps [core.NumQuadrants]core.SnapData, members []T) {
	for _, m := range members {
		if sa, ok := any(m).(core.StartNodeAware); ok {
			sa.AddStartNode(start, snaps)
		}
	}
}
