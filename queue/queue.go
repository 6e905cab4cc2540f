// Package queue provides the priority queues used by graph traversals.
package queue

import (
	"container/heap"

	"github.com/hupe1980/segdag/model"
)

// Compile time check to ensure idHeap satisfies the heap interface.
var _ heap.Interface = (*idHeap)(nil)

// idHeap implements heap.Interface over a plain id slice.
type idHeap []model.Id

func (h idHeap) Len() int { return len(h) }

func (h idHeap) Less(i, j int) bool { return h[i] > h[j] }

func (h idHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push adds x to the heap.
func (h *idHeap) Push(x any) {
	*h = append(*h, x.(model.Id))
}

// Pop removes and returns the last element of the heap.
func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	id := old[n-1]
	*h = old[:n-1]
	return id
}

// MaxIdHeap pops ids in descending order. Traversals rely on the
// max-first order so a covering segment is visited before the ids it
// covers.
type MaxIdHeap struct {
	h idHeap
}

// NewMaxIdHeap creates a heap seeded with the given ids.
func NewMaxIdHeap(ids ...model.Id) *MaxIdHeap {
	h := make(idHeap, len(ids))
	copy(h, ids)
	heap.Init(&h)
	return &MaxIdHeap{h: h}
}

// Len returns the number of ids in the heap.
func (q *MaxIdHeap) Len() int {
	return len(q.h)
}

// PushID inserts an id while maintaining the heap invariant.
func (q *MaxIdHeap) PushID(id model.Id) {
	heap.Push(&q.h, id)
}

// PopID removes and returns the largest id.
func (q *MaxIdHeap) PopID() (model.Id, bool) {
	if len(q.h) == 0 {
		return 0, false
	}
	return heap.Pop(&q.h).(model.Id), true
}
