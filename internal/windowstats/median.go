package windowstats

import (
	"fmt"
	"sort"
)

// SlidingMedian keeps the last Capacity samples together with a sorted copy
// of them, so the median can be read without sorting.
//
// sorted[:samples] always holds exactly the live samples of values in
// ascending order, equal samples adjacent.
type SlidingMedian[T Number] struct {
	values   []T
	sorted   []T
	position int
	samples  int
}

// NewSlidingMedian returns an empty window holding up to capacity samples.
func NewSlidingMedian[T Number](capacity int) (*SlidingMedian[T], error) {
	if err := checkCapacity[T](capacity); err != nil {
		return nil, err
	}
	return &SlidingMedian[T]{
		values: make([]T, capacity),
		sorted: make([]T, capacity),
	}, nil
}

// Push adds v to the window, evicting the oldest sample once the window is
// full. It costs O(log n) to locate positions and O(n) to shift.
func (w *SlidingMedian[T]) Push(v T) {
	if w.samples == len(w.values) {
		w.remove(w.values[w.position])
	} else {
		w.samples++
	}

	w.insert(v)
	w.values[w.position] = v
	w.position = (w.position + 1) % len(w.values)
}

// PushMedian pushes v and returns the resulting median.
func (w *SlidingMedian[T]) PushMedian(v T) T {
	w.Push(v)
	return w.Median()
}

// Median returns the middle sample of the window, the mean of the two middle
// samples when the count is even, or zero when it is empty. Integer sample
// types truncate toward zero.
func (w *SlidingMedian[T]) Median() T {
	n := w.samples
	switch {
	case n == 0:
		return 0
	case n%2 == 1:
		return w.sorted[n/2]
	default:
		return (w.sorted[n/2-1] + w.sorted[n/2]) / 2
	}
}

// Clear empties the window without releasing its buffers.
func (w *SlidingMedian[T]) Clear() {
	clear(w.values)
	clear(w.sorted)
	w.position = 0
	w.samples = 0
}

func (w *SlidingMedian[T]) Capacity() int { return len(w.values) }

func (w *SlidingMedian[T]) Count() int { return w.samples }

func (w *SlidingMedian[T]) Full() bool { return w.samples == len(w.values) }

// Values returns a copy of the window, oldest sample first.
func (w *SlidingMedian[T]) Values() []T {
	return windowValues(w.values, w.position, w.samples)
}

// Sorted returns a copy of the window in ascending order.
func (w *SlidingMedian[T]) Sorted() []T {
	out := make([]T, w.samples)
	copy(out, w.sorted[:w.samples])
	return out
}

func (w *SlidingMedian[T]) String() string {
	return fmt.Sprint(w.Median())
}

// insert places v into sorted, which currently holds samples-1 entries.
func (w *SlidingMedian[T]) insert(v T) {
	n := w.samples - 1
	i := lowerBound(w.sorted[:n], v)
	copy(w.sorted[i+1:n+1], w.sorted[i:n])
	w.sorted[i] = v
}

// remove drops the leftmost occurrence of v from sorted, which holds samples
// entries. v must be present.
func (w *SlidingMedian[T]) remove(v T) {
	n := w.samples
	i := lowerBound(w.sorted[:n], v)
	copy(w.sorted[i:n-1], w.sorted[i+1:n])
	w.sorted[n-1] = 0
}

// lowerBound returns the smallest index i with s[i] >= v, or len(s).
func lowerBound[T Number](s []T, v T) int {
	return sort.Search(len(s), func(i int) bool { return s[i] >= v })
}
