// Package queue provides the bounded priority queue used for top-k
// selection during similarity search.
package queue

import (
	"container/heap"

	"github.com/hupe1980/melodex/model"
)

// Compile-time check to ensure TopK satisfies the heap interface.
var _ heap.Interface = (*TopK)(nil)

// Item is one candidate held by the queue.
type Item struct {
	SongID   model.SongID
	Distance float32
}

// worse reports whether a should be evicted before b, i.e. a is farther,
// or equally far with the lexicographically larger SongID. The SongID
// tie-break keeps query results deterministic.
func worse(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.SongID > b.SongID
}

// TopK is a bounded max-heap keeping the k nearest candidates seen so
// far: the root is always the worst retained candidate, so a better one
// replaces it in O(log k).
type TopK struct {
	k     int
	items []Item
}

// NewTopK creates a queue retaining at most k items.
func NewTopK(k int) *TopK {
	return &TopK{k: k, items: make([]Item, 0, k)}
}

// Len returns the number of retained candidates.
func (q *TopK) Len() int { return len(q.items) }

// Less orders the heap so the worst candidate is at the root.
func (q *TopK) Less(i, j int) bool { return worse(q.items[i], q.items[j]) }

// Swap swaps the elements with indexes i and j.
func (q *TopK) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

// Push adds x to the queue. Used by container/heap; callers use Offer.
func (q *TopK) Push(x any) {
	item, _ := x.(Item)
	q.items = append(q.items, item)
}

// Pop removes and returns the worst retained candidate.
func (q *TopK) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[:n-1]
	return item
}

// Offer considers a candidate, keeping it only if it belongs to the
// current top k.
func (q *TopK) Offer(songID model.SongID, dist float32) {
	item := Item{SongID: songID, Distance: dist}

	if len(q.items) < q.k {
		heap.Push(q, item)
		return
	}
	if worse(item, q.items[0]) {
		return
	}
	q.items[0] = item
	heap.Fix(q, 0)
}

// Drain removes all retained candidates and returns them ordered from
// nearest to farthest (SongID ascending on equal distance).
func (q *TopK) Drain() []Item {
	out := make([]Item, len(q.items))
	for i := len(q.items) - 1; i >= 0; i-- {
		out[i] = heap.Pop(q).(Item)
	}
	return out
}
