// Package eventq is the priority queue between the scanner and the
// dispatcher. Events pop lowest priority value first and FIFO within a
// priority. The queue is unbounded; depth is reported, not limited.
package eventq

import (
	"container/heap"
	"sync"

	"github.com/October-1030/AAOKX-sub001/internal/domain"
)

type eventHeap []domain.Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].Sequence < h[j].Sequence
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x any)   { *h = append(*h, x.(domain.Event)) }
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = domain.Event{}
	*h = old[:n-1]
	return ev
}

// Queue is safe for concurrent use.
type Queue struct {
	mu   sync.Mutex
	h    eventHeap
	next uint64
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue stamps ev with the next sequence number, inserts it and returns the
// sequence.
func (q *Queue) Enqueue(ev domain.Event) uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	ev.Sequence = q.next
	heap.Push(&q.h, ev)
	return ev.Sequence
}

// DrainBatch removes and returns up to max events in priority order. It
// never blocks and returns nil when the queue is empty.
func (q *Queue) DrainBatch(max int) []domain.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.h))
	if n <= 0 {
		return nil
	}
	out := make([]domain.Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, heap.Pop(&q.h).(domain.Event))
	}
	return out
}

// Len returns the current depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.h)
}
