package scheduler

import (
	"container/heap"

	"github.com/sentineld/sentineld/pkg/types"
)

// queueItem is one entry in the priority queue: priority strictly
// dominates insertion sequence, and insertion sequence gives FIFO order
// within a tier (spec.md §4.9/§8: "stable with respect to insertion time
// within a priority tier").
type queueItem struct {
	task     types.Task
	priority types.Priority
	seq      int64
	index    int
}

// priorityQueue implements container/heap.Interface. A hand-rolled heap is
// used rather than a generic priority-queue library (DESIGN.md): the
// 4-tier-plus-FIFO-tiebreak invariant is a ~40-line Less/Swap/Push/Pop, and
// keeping it explicit keeps the tiebreak auditable rather than hidden
// behind an opaque dependency.
type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority < pq[j].priority // PriorityCritical(0) sorts first
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[:n-1]
	return item
}

// taskQueue wraps priorityQueue with a monotone sequence counter so callers
// never construct queueItem directly.
type taskQueue struct {
	pq     priorityQueue
	nextSeq int64
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	heap.Init(&q.pq)
	return q
}

func (q *taskQueue) push(task types.Task) {
	q.nextSeq++
	heap.Push(&q.pq, &queueItem{task: task, priority: task.Priority, seq: q.nextSeq})
}

func (q *taskQueue) pop() (types.Task, bool) {
	if q.pq.Len() == 0 {
		return types.Task{}, false
	}
	item := heap.Pop(&q.pq).(*queueItem)
	return item.task, true
}

func (q *taskQueue) len() int { return q.pq.Len() }
