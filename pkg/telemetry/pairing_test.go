package telemetry

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mpapenbr/lapsync/pkg/model"
)

func cs(pairs ...float64) []model.ChannelSample {
	ret := make([]model.ChannelSample, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		ret = append(ret, model.ChannelSample{Time: pairs[i], Value: pairs[i+1]})
	}
	return ret
}

func TestPairTrack(t *testing.T) {
	tests := []struct {
		name string
		lat  []model.ChannelSample
		lng  []model.ChannelSample
		want []model.TrackSample
	}{
		{
			name: "aligned",
			lat:  cs(0, 50, 1, 51),
			lng:  cs(0, 6, 1, 7),
			want: []model.TrackSample{{Time: 0, Lat: 50, Lng: 6}, {Time: 1, Lat: 51, Lng: 7}},
		},
		{
			name: "slight misalignment",
			lat:  cs(0, 50, 1, 51),
			lng:  cs(0.02, 6, 1.03, 7),
			want: []model.TrackSample{{Time: 0, Lat: 50, Lng: 6}, {Time: 1, Lat: 51, Lng: 7}},
		},
		{
			name: "unmatched tail dropped",
			lat:  cs(0, 50, 1, 51, 2, 52),
			lng:  cs(0, 6, 1, 7),
			want: []model.TrackSample{{Time: 0, Lat: 50, Lng: 6}, {Time: 1, Lat: 51, Lng: 7}},
		},
		{
			name: "gap in one channel",
			lat:  cs(0, 50, 1, 51, 2, 52),
			lng:  cs(0, 6, 2, 8),
			want: []model.TrackSample{{Time: 0, Lat: 50, Lng: 6}, {Time: 2, Lat: 52, Lng: 8}},
		},
		{
			name: "closer partner wins",
			lat:  cs(1, 51),
			lng:  cs(0.96, 6, 0.99, 7),
			want: []model.TrackSample{{Time: 1, Lat: 51, Lng: 7}},
		},
		{
			name: "empty",
			lat:  nil,
			lng:  cs(0, 6),
			want: []model.TrackSample{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PairTrack(tt.lat, tt.lng, DefaultPairTolerance)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("PairTrack() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPairTrackByIndex(t *testing.T) {
	got := PairTrackByIndex(cs(0, 50, 1, 51, 2, 52), cs(5, 6, 6, 7))
	want := []model.TrackSample{{Time: 0, Lat: 50, Lng: 6}, {Time: 1, Lat: 51, Lng: 7}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PairTrackByIndex() mismatch (-want +got):\n%s", diff)
	}
}

func TestSortSamples(t *testing.T) {
	got := SortSamples(cs(2, 1, 0, 2, 2, 3, 1, 4))
	want := cs(0, 2, 1, 4, 2, 1, 2, 3)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SortSamples() mismatch (-want +got):\n%s", diff)
	}
}
