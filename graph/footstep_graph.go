// Package graph holds the search tree discovered by the footstep planner.
package graph

import (
	"math"

	"github.com/petal-labs/footplan/core"
)

type entry struct {
	node     *core.FootstepNode
	parent   *core.FootstepNode
	edgeCost float64
	cost     float64
}

// FootstepGraph maps every discovered node to its cheapest known parent and
// its cost from the start. It is reset by Initialize and append-only after.
// A FootstepGraph is not safe for concurrent use.
type FootstepGraph struct {
	start   *core.FootstepNode
	entries map[core.NodeKey]*entry
}

// New returns an empty graph. Initialize must be called before use.
func New() *FootstepGraph {
	return &FootstepGraph{entries: make(map[core.NodeKey]*entry)}
}

// Initialize clears the graph and inserts start with zero cost and no parent.
func (g *FootstepGraph) Initialize(start *core.FootstepNode) {
	g.start = start
	clear(g.entries)
	g.entries[start.Key()] = &entry{node: start}
}

// Start returns the root of the graph, or nil before Initialize.
func (g *FootstepGraph) Start() *core.FootstepNode { return g.start }

// CheckAndSetEdge records from as the parent of to when to is unknown or the
// edge strictly improves its cost from the start. It reports whether the edge
// was accepted. The edge is refused when from is not in the graph or the cost
// is negative or NaN, so parent pointers can never form a cycle.
func (g *FootstepGraph) CheckAndSetEdge(from, to *core.FootstepNode, edgeCost float64) bool {
	if edgeCost < 0 || math.IsNaN(edgeCost) {
		return false
	}
	parent, ok := g.entries[from.Key()]
	if !ok {
		return false
	}
	cost := parent.cost + edgeCost
	if existing, ok := g.entries[to.Key()]; ok {
		if cost >= existing.cost {
			return false
		}
		existing.node = to
		existing.parent = parent.node
		existing.edgeCost = edgeCost
		existing.cost = cost
		return true
	}
	g.entries[to.Key()] = &entry{node: to, parent: parent.node, edgeCost: edgeCost, cost: cost}
	return true
}

// DoesNodeExist reports whether the node has been discovered.
func (g *FootstepGraph) DoesNodeExist(n *core.FootstepNode) bool {
	_, ok := g.entries[n.Key()]
	return ok
}

// CostFromStart returns the cheapest known cost to n, or +Inf when unknown.
func (g *FootstepGraph) CostFromStart(n *core.FootstepNode) float64 {
	if e, ok := g.entries[n.Key()]; ok {
		return e.cost
	}
	return math.Inf(1)
}

// EdgeCost returns the cost of the edge into n. It is zero for the start and
// for unknown nodes.
func (g *FootstepGraph) EdgeCost(n *core.FootstepNode) float64 {
	if e, ok := g.entries[n.Key()]; ok {
		return e.edgeCost
	}
	return 0
}

// Parent returns the recorded parent of n. The start node has none.
func (g *FootstepGraph) Parent(n *core.FootstepNode) (*core.FootstepNode, bool) {
	e, ok := g.entries[n.Key()]
	if !ok || e.parent == nil {
		return nil, false
	}
	return e.parent, true
}

// Node returns the stored instance equal to n. The stored instance carries
// the moving quadrant of the edge that discovered it.
func (g *FootstepGraph) Node(n *core.FootstepNode) (*core.FootstepNode, bool) {
	e, ok := g.entries[n.Key()]
	if !ok {
		return nil, false
	}
	return e.node, true
}

// PathFromStart returns the nodes from the start to n inclusive, or nil when
// n is unknown.
func (g *FootstepGraph) PathFromStart(n *core.FootstepNode) []*core.FootstepNode {
	e, ok := g.entries[n.Key()]
	if !ok {
		return nil
	}
	var path []*core.FootstepNode
	for {
		path = append(path, e.node)
		if e.parent == nil {
			break
		}
		e = g.entries[e.parent.Key()]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Len returns the number of discovered nodes.
func (g *FootstepGraph) Len() int { return len(g.entries) }
