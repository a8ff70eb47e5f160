package windowstats

import "fmt"

// SlidingAverage keeps the last Capacity samples and their running sum.
type SlidingAverage[T Number] struct {
	values   []T
	position int
	samples  int
	sum      T
}

// NewSlidingAverage returns an empty window holding up to capacity samples.
func NewSlidingAverage[T Number](capacity int) (*SlidingAverage[T], error) {
	if err := checkCapacity[T](capacity); err != nil {
		return nil, err
	}
	return &SlidingAverage[T]{
		values: make([]T, capacity),
	}, nil
}

// Push adds v to the window, evicting the oldest sample once the window is full.
func (w *SlidingAverage[T]) Push(v T) {
	if w.samples == len(w.values) {
		w.sum -= w.values[w.position]
	} else {
		w.samples++
	}

	w.values[w.position] = v
	w.sum += v
	w.position = (w.position + 1) % len(w.values)
}

// PushAverage pushes v and returns the resulting average.
func (w *SlidingAverage[T]) PushAverage(v T) T {
	w.Push(v)
	return w.Average()
}

// Average returns the mean of the window, or zero when it is empty.
// Integer sample types truncate toward zero.
func (w *SlidingAverage[T]) Average() T {
	if w.samples == 0 {
		return 0
	}
	return w.sum / T(w.samples)
}

// Clear empties the window without releasing its buffer.
func (w *SlidingAverage[T]) Clear() {
	clear(w.values)
	w.position = 0
	w.samples = 0
	w.sum = 0
}

func (w *SlidingAverage[T]) Capacity() int { return len(w.values) }

func (w *SlidingAverage[T]) Count() int { return w.samples }

func (w *SlidingAverage[T]) Full() bool { return w.samples == len(w.values) }

// Values returns a copy of the window, oldest sample first.
func (w *SlidingAverage[T]) Values() []T {
	return windowValues(w.values, w.position, w.samples)
}

func (w *SlidingAverage[T]) String() string {
	return fmt.Sprint(w.Average())
}

// windowValues copies the live part of a circular buffer in push order.
func windowValues[T Number](buf []T, position, samples int) []T {
	out := make([]T, 0, samples)
	start := position - samples
	if start < 0 {
		start += len(buf)
	}
	for i := 0; i < samples; i++ {
		out = append(out, buf[(start+i)%len(buf)])
	}
	return out
}
