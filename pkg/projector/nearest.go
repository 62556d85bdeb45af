// Package projector resolves a lap relative time to the coordinate space of
// a view (chart pixels, map position).
package projector

import (
	"math"
	"sort"
)

// Nearest returns the index of the sample whose time is closest to t.
// Samples must be ordered by non-decreasing time. On ties the lowest index
// wins. Times outside the sample range resolve to the respective endpoint.
// ok is false for an empty sequence.
func Nearest[S any](samples []S, t float64, timeOf func(S) float64) (idx int, ok bool) {
	n := len(samples)
	if n == 0 {
		return 0, false
	}
	if math.IsNaN(t) {
		return 0, true
	}
	after := sort.Search(n, func(i int) bool { return timeOf(samples[i]) >= t })
	switch {
	case after == 0:
		return 0, true
	case after == n:
		return firstWithSameTime(samples, n-1, timeOf), true
	}
	before := after - 1
	if t-timeOf(samples[before]) <= timeOf(samples[after])-t {
		return firstWithSameTime(samples, before, timeOf), true
	}
	return after, true
}

func firstWithSameTime[S any](samples []S, idx int, timeOf func(S) float64) int {
	ref := timeOf(samples[idx])
	for idx > 0 && timeOf(samples[idx-1]) == ref {
		idx--
	}
	return idx
}

// clamp limits v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Viewport is the drawing area of a view in pixels.
type Viewport struct {
	Width  float64
	Height float64
}

func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}
