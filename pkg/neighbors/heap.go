package neighbors

import (
	"container/heap"
	"sort"
)

// worse orders neighbors so that the farthest, then highest index, comes first.
func worse(a, b Neighbor) bool {
	if a.Distance != b.Distance {
		return a.Distance > b.Distance
	}
	return a.Index > b.Index
}

// kBest keeps the k best neighbors seen so far in a max-heap keyed by worse.
type kBest struct {
	k     int
	items []Neighbor
}

func newKBest(k int) *kBest {
	return &kBest{k: k, items: make([]Neighbor, 0, k)}
}

func (h *kBest) Len() int           { return len(h.items) }
func (h *kBest) Less(i, j int) bool { return worse(h.items[i], h.items[j]) }
func (h *kBest) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *kBest) Push(x any)         { h.items = append(h.items, x.(Neighbor)) }

func (h *kBest) Pop() any {
	n := len(h.items) - 1
	x := h.items[n]
	h.items = h.items[:n]
	return x
}

// offer admits n if the heap is not full or n beats the current worst.
func (h *kBest) offer(n Neighbor) {
	if len(h.items) < h.k {
		heap.Push(h, n)
		return
	}
	if worse(h.items[0], n) {
		h.items[0] = n
		heap.Fix(h, 0)
	}
}

// full reports whether k neighbors have been collected.
func (h *kBest) full() bool {
	return len(h.items) == h.k
}

// bound is the distance of the current worst neighbor.
func (h *kBest) bound() float64 {
	return h.items[0].Distance
}

// sorted returns the neighbors nearest first.
func (h *kBest) sorted() []Neighbor {
	out := append([]Neighbor(nil), h.items...)
	sort.Slice(out, func(i, j int) bool { return worse(out[j], out[i]) })
	return out
}
