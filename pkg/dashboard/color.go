package dashboard

import (
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/projector"
)

// DefaultSegmentColor is used when no speed data is available.
const DefaultSegmentColor = "#3388ff"

// SpeedColor maps f in [0,1] onto a green, yellow, red gradient. Values
// outside the range are clamped.
func SpeedColor(f float64) string {
	if math.IsNaN(f) {
		f = 0
	}
	f = math.Min(math.Max(f, 0), 1)
	var r, g float64
	if f < 0.5 {
		r, g = 510*f, 255
	} else {
		r, g = 255, 510*(1-f)
	}
	return fmt.Sprintf("#%02x%02x00", int(math.Round(r)), int(math.Round(g)))
}

// Segments builds the polyline of the track colored by the speed sampled
// nearest to the start of each segment.
func Segments(track []model.TrackSample, speed []model.ChannelSample) []Segment {
	if len(track) < 2 {
		return nil
	}
	colorAt := func(float64) string { return DefaultSegmentColor }
	if len(speed) > 0 {
		minV := lo.MinBy(speed, func(a, b model.ChannelSample) bool { return a.Value < b.Value }).Value
		maxV := lo.MaxBy(speed, func(a, b model.ChannelSample) bool { return a.Value > b.Value }).Value
		colorAt = func(t float64) string {
			idx, _ := projector.Nearest(speed, t,
				func(s model.ChannelSample) float64 { return s.Time })
			if maxV <= minV {
				return SpeedColor(0)
			}
			return SpeedColor((speed[idx].Value - minV) / (maxV - minV))
		}
	}
	ret := make([]Segment, 0, len(track)-1)
	for i := range len(track) - 1 {
		ret = append(ret, Segment{
			From:  track[i].Position(),
			To:    track[i+1].Position(),
			Color: colorAt(track[i].Time),
		})
	}
	return ret
}
