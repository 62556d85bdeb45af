package projector

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapsync/pkg/model"
)

func samples(times ...float64) []model.ChannelSample {
	ret := make([]model.ChannelSample, len(times))
	for i, t := range times {
		ret[i] = model.ChannelSample{Time: t, Value: float64(i * 10)}
	}
	return ret
}

// reference: linear scan, first minimum wins
func nearestLinear(s []model.ChannelSample, t float64) int {
	best := 0
	for i := range s {
		if math.Abs(s[i].Time-t) < math.Abs(s[best].Time-t) {
			best = i
		}
	}
	return best
}

func TestNearest(t *testing.T) {
	tests := []struct {
		name string
		in   []model.ChannelSample
		t    float64
		want int
	}{
		{name: "single", in: samples(1), t: 5, want: 0},
		{name: "exact", in: samples(0, 1, 2, 3), t: 2, want: 2},
		{name: "closer to next", in: samples(0, 1, 2, 3), t: 1.6, want: 2},
		{name: "closer to prev", in: samples(0, 1, 2, 3), t: 1.4, want: 1},
		{name: "tie lowest index", in: samples(0, 1, 2, 3), t: 1.5, want: 1},
		{name: "before range", in: samples(10, 11), t: -4, want: 0},
		{name: "after range", in: samples(10, 11), t: 400, want: 1},
		{name: "duplicates exact", in: samples(0, 1, 1, 1, 2), t: 1, want: 1},
		{name: "duplicates after range", in: samples(0, 2, 2), t: 9, want: 1},
		{name: "duplicates tie", in: samples(0, 1, 1, 3), t: 2, want: 1},
		{name: "nan", in: samples(3, 4), t: math.NaN(), want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Nearest(tt.in, tt.t, sampleTime)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	_, ok := Nearest([]model.ChannelSample{}, 1, sampleTime)
	assert.False(t, ok)
}

func TestNearest_matchesLinearScan(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	for round := 0; round < 500; round++ {
		n := 1 + rnd.Intn(40)
		times := make([]float64, n)
		for i := range times {
			// coarse grid provokes duplicates and ties
			times[i] = float64(rnd.Intn(30)) / 2
		}
		sort.Float64s(times)
		in := samples(times...)
		q := float64(rnd.Intn(80))/4 - 2
		got, ok := Nearest(in, q, sampleTime)
		require.True(t, ok)
		assert.Equal(t, nearestLinear(in, q), got, "times=%v q=%v", times, q)
	}
}

func TestChart_Project(t *testing.T) {
	in := []model.ChannelSample{
		{Time: 0, Value: 100},
		{Time: 10, Value: 200},
		{Time: 20, Value: 300},
	}
	c := NewChart(in)
	vp := Viewport{Width: 200, Height: 100}

	cur, ok := c.Project(12.3, vp)
	require.True(t, ok)
	assert.Equal(t, 1, cur.Index)
	assert.InDelta(t, 123.0, cur.X, 1e-9, "x follows the raw time")
	assert.InDelta(t, 50.0, cur.Y, 1e-9, "y follows the nearest sample")
	assert.Equal(t, in[1], cur.Sample)

	cur, ok = c.Project(-5, vp)
	require.True(t, ok)
	assert.Zero(t, cur.X)
	assert.InDelta(t, 100.0, cur.Y, 1e-9)

	cur, ok = c.Project(99, vp)
	require.True(t, ok)
	assert.InDelta(t, 200.0, cur.X, 1e-9)
	assert.Zero(t, cur.Y)
}

func TestChart_ProjectIdempotent(t *testing.T) {
	c := NewChart(samples(0, 0.5, 1.25, 3, 7))
	vp := Viewport{Width: 640, Height: 240}
	first, ok := c.Project(2.2, vp)
	require.True(t, ok)
	for i := 0; i < 10; i++ {
		again, _ := c.Project(2.2, vp)
		assert.Equal(t, first, again)
	}
}

func TestChart_nothingToRender(t *testing.T) {
	_, ok := NewChart(nil).Project(1, Viewport{Width: 10, Height: 10})
	assert.False(t, ok)
	_, ok = NewChart(samples(1, 2)).Project(1, Viewport{Width: 0, Height: 10})
	assert.False(t, ok)
	_, ok = NewChart(samples(1, 2)).Project(1, Viewport{Width: 10, Height: -1})
	assert.False(t, ok)
	_, ok = NewChart(nil).TimeAt(3, Viewport{Width: 10, Height: 10})
	assert.False(t, ok)
}

func TestChart_flatAndSingle(t *testing.T) {
	vp := Viewport{Width: 100, Height: 50}
	c := NewChart([]model.ChannelSample{{Time: 4, Value: 1}})
	cur, ok := c.Project(10, vp)
	require.True(t, ok)
	assert.Zero(t, cur.X)
	assert.InDelta(t, 25.0, cur.Y, 1e-9)
	got, ok := c.TimeAt(80, vp)
	require.True(t, ok)
	assert.InDelta(t, 4.0, got, 1e-9)
}

func TestChart_TimeAt(t *testing.T) {
	c := NewChart(samples(0, 1, 2, 4, 8))
	vp := Viewport{Width: 800, Height: 100}
	tests := []struct {
		x    float64
		want float64
	}{
		{x: 0, want: 0},
		{x: 290, want: 2},  // raw 2.9
		{x: 210, want: 2},  // raw 2.1
		{x: 310, want: 4},  // raw 3.1
		{x: 1200, want: 8}, // clamped
		{x: -40, want: 0},  // clamped
	}
	for _, tt := range tests {
		got, ok := c.TimeAt(tt.x, vp)
		require.True(t, ok)
		assert.InDelta(t, tt.want, got, 1e-9, "x=%v", tt.x)
	}
}

func TestTrack_Project(t *testing.T) {
	in := []model.TrackSample{
		{Time: 0, Lat: 50.0, Lng: 6.0},
		{Time: 1, Lat: 50.1, Lng: 6.1},
		{Time: 2, Lat: 50.2, Lng: 6.0},
	}
	m := NewTrack(in)
	vp := Viewport{Width: 300, Height: 300}

	mk, ok := m.Project(1.4, vp)
	require.True(t, ok)
	assert.Equal(t, 1, mk.Index)
	assert.Equal(t, model.LatLng{Lat: 50.1, Lng: 6.1}, mk.Position())

	mk, ok = m.Project(100, vp)
	require.True(t, ok)
	assert.Equal(t, 2, mk.Index)

	_, ok = m.Project(1, Viewport{})
	assert.False(t, ok)
	_, ok = NewTrack(nil).Project(1, vp)
	assert.False(t, ok)

	mk, ok = m.NearestToPosition(model.LatLng{Lat: 50.19, Lng: 6.01})
	require.True(t, ok)
	assert.Equal(t, 2, mk.Index)

	b, ok := m.Bounds()
	require.True(t, ok)
	assert.Equal(t, model.LatLng{Lat: 50.0, Lng: 6.0}, b.SouthWest)
	assert.Equal(t, model.LatLng{Lat: 50.2, Lng: 6.1}, b.NorthEast)

	_, ok = m.At(3)
	assert.False(t, ok)
}
