package projector

import (
	"github.com/samber/lo"

	"github.com/mpapenbr/lapsync/pkg/model"
)

// ChartCursor is the rendered position of the cursor on the chart.
type ChartCursor struct {
	// X follows the raw time continuously, Y snaps to the nearest sample.
	X      float64
	Y      float64
	Index  int
	Sample model.ChannelSample
}

// Chart maps lap relative time onto the chart's pixel space. The x domain
// spans the first to the last sample time, the y domain the value range.
type Chart struct {
	samples []model.ChannelSample
	minT    float64
	maxT    float64
	minV    float64
	maxV    float64
}

func sampleTime(s model.ChannelSample) float64 { return s.Time }

// NewChart expects samples ordered by time. The slice is not copied and must
// not be modified afterwards.
func NewChart(samples []model.ChannelSample) *Chart {
	c := &Chart{samples: samples}
	if len(samples) == 0 {
		return c
	}
	c.minT = samples[0].Time
	c.maxT = samples[len(samples)-1].Time
	c.minV = lo.MinBy(samples, func(a, b model.ChannelSample) bool {
		return a.Value < b.Value
	}).Value
	c.maxV = lo.MaxBy(samples, func(a, b model.ChannelSample) bool {
		return a.Value > b.Value
	}).Value
	return c
}

func (c *Chart) Samples() []model.ChannelSample {
	return c.samples
}

func (c *Chart) Empty() bool {
	return len(c.samples) == 0
}

// Domain returns the covered time range.
func (c *Chart) Domain() (start, end float64) {
	return c.minT, c.maxT
}

// Project resolves t to a cursor. ok is false when there is nothing to
// render (no samples or unknown viewport).
func (c *Chart) Project(t float64, vp Viewport) (ChartCursor, bool) {
	if c.Empty() || !vp.Valid() {
		return ChartCursor{}, false
	}
	idx, _ := Nearest(c.samples, t, sampleTime)
	s := c.samples[idx]
	return ChartCursor{
		X:      c.XForTime(t, vp),
		Y:      c.yForValue(s.Value, vp),
		Index:  idx,
		Sample: s,
	}, true
}

// XForTime maps a time to the horizontal pixel position, clamped to the
// sample range.
func (c *Chart) XForTime(t float64, vp Viewport) float64 {
	if c.Empty() || !vp.Valid() || c.maxT <= c.minT {
		return 0
	}
	t = clamp(t, c.minT, c.maxT)
	return (t - c.minT) / (c.maxT - c.minT) * vp.Width
}

// TimeAt is the inverse of XForTime snapped to the nearest sample. It backs
// the pointer hover detection.
func (c *Chart) TimeAt(x float64, vp Viewport) (float64, bool) {
	if c.Empty() || !vp.Valid() {
		return 0, false
	}
	raw := c.minT
	if c.maxT > c.minT {
		raw = c.minT + clamp(x, 0, vp.Width)/vp.Width*(c.maxT-c.minT)
	}
	idx, _ := Nearest(c.samples, raw, sampleTime)
	return c.samples[idx].Time, true
}

// higher values are drawn closer to the top
func (c *Chart) yForValue(v float64, vp Viewport) float64 {
	if c.maxV <= c.minV {
		return vp.Height / 2
	}
	return vp.Height - (v-c.minV)/(c.maxV-c.minV)*vp.Height
}
