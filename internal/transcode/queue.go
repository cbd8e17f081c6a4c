package transcode

import (
	"container/heap"
	"sync"
)

// heapItem is one entry in the priority heap: higher Priority value
// pops first, ties broken by lower seq (submission order), giving FIFO
// within a priority level.
type heapItem struct {
	job *Job
}

type jobHeap []*heapItem

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].job.seq < h[j].job.seq
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*heapItem))
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// PriorityQueue is an in-memory, four-level priority queue feeding the
// worker Pool. It is not durable: transcode jobs are re-derivable from
// a media ID + profile name, so a process restart simply re-submits
// whatever the player next requests rather than replaying a durable
// log, unlike the scan orchestrator's queue.
type PriorityQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	h       jobHeap
	nextSeq uint64
	closed  bool
}

func NewPriorityQueue() *PriorityQueue {
	q := &PriorityQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit adds a job to the queue, waking one waiting dequeuer.
func (q *PriorityQueue) Submit(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.seq = q.nextSeq
	q.nextSeq++
	job.Status = StatusQueued
	heap.Push(&q.h, &heapItem{job: job})
	q.cond.Signal()
}

// TryDequeue pops the highest-priority job without blocking, or
// returns false if the queue is empty.
func (q *PriorityQueue) TryDequeue() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.h.Len() == 0 {
		return nil, false
	}
	item := heap.Pop(&q.h).(*heapItem)
	return item.job, true
}

// Depth returns the number of jobs currently waiting.
func (q *PriorityQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.h.Len()
}

// Close wakes any blocked waiters so worker goroutines can exit.
func (q *PriorityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
