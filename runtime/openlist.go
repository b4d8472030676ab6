package runtime

import (
	"container/heap"

	"github.com/petal-labs/footplan/core"
)

type openItem struct {
	node *core.FootstepNode
	f    float64
	seq  uint64
}

// openQueue is a min-heap on f, ties broken by insertion order.
type openQueue []openItem

func (q openQueue) Len() int { return len(q) }

func (q openQueue) Less(i, j int) bool {
	if q[i].f != q[j].f {
		return q[i].f < q[j].f
	}
	return q[i].seq < q[j].seq
}

func (q openQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *openQueue) Push(x any) { *q = append(*q, x.(openItem)) }

func (q *openQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = openItem{}
	*q = old[:n-1]
	return item
}

// openList is the search frontier. Duplicate entries for the same node are
// allowed; the closed set filters them on pop.
type openList struct {
	queue openQueue
	seq   uint64
}

func (l *openList) push(node *core.FootstepNode, f float64) {
	l.seq++
	heap.Push(&l.queue, openItem{node: node, f: f, seq: l.seq})
}

func (l *openList) pop() (*core.FootstepNode, bool) {
	if len(l.queue) == 0 {
		return nil, false
	}
	return heap.Pop(&l.queue).(openItem).node, true
}

func (l *openList) len() int { return len(l.queue) }

func (l *openList) clear() {
	l.queue = l.queue[:0]
	l.seq = 0
}
