package telemetry

import (
	"cmp"
	"math"
	"slices"

	"github.com/mpapenbr/lapsync/pkg/model"
)

// DefaultPairTolerance is the max time difference in seconds between a
// latitude and a longitude sample to be considered the same position.
const DefaultPairTolerance = 0.05

// SortSamples orders samples by time if they are not already. Equal times
// keep their relative order.
func SortSamples(in []model.ChannelSample) []model.ChannelSample {
	byTime := func(a, b model.ChannelSample) int { return cmp.Compare(a.Time, b.Time) }
	if !slices.IsSortedFunc(in, byTime) {
		slices.SortStableFunc(in, byTime)
	}
	return in
}

// PairTrack pairs latitude and longitude samples by timestamp. Both inputs
// must be ordered by time. A pair is formed when the timestamps differ by at
// most tol; samples without a partner (including unmatched tails) are
// dropped. The resulting sample uses the latitude timestamp.
func PairTrack(lat, lng []model.ChannelSample, tol float64) []model.TrackSample {
	ret := make([]model.TrackSample, 0, min(len(lat), len(lng)))
	i, j := 0, 0
	for i < len(lat) && j < len(lng) {
		dt := lat[i].Time - lng[j].Time
		switch {
		case math.Abs(dt) <= tol:
			// prefer the closer longitude if the next one matches better
			if j+1 < len(lng) &&
				math.Abs(lat[i].Time-lng[j+1].Time) < math.Abs(dt) {
				j++
				continue
			}
			ret = append(ret, model.TrackSample{
				Time: lat[i].Time, Lat: lat[i].Value, Lng: lng[j].Value,
			})
			i++
			j++
		case dt < 0:
			i++
		default:
			j++
		}
	}
	return ret
}

// PairTrackByIndex pairs both channels position by position, ignoring the
// timestamps. Surplus samples of the longer channel are dropped.
func PairTrackByIndex(lat, lng []model.ChannelSample) []model.TrackSample {
	n := min(len(lat), len(lng))
	ret := make([]model.TrackSample, n)
	for i := 0; i < n; i++ {
		ret[i] = model.TrackSample{Time: lat[i].Time, Lat: lat[i].Value, Lng: lng[i].Value}
	}
	return ret
}
