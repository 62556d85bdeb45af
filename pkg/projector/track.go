package projector

import (
	"math"

	"github.com/mpapenbr/lapsync/pkg/model"
)

// Marker is the position of the map marker.
type Marker struct {
	Index  int
	Sample model.TrackSample
}

func (m Marker) Position() model.LatLng {
	return m.Sample.Position()
}

// Track snaps lap relative time to the nearest GPS sample.
type Track struct {
	samples []model.TrackSample
}

func trackTime(s model.TrackSample) float64 { return s.Time }

// NewTrack expects samples ordered by time.
func NewTrack(samples []model.TrackSample) *Track {
	return &Track{samples: samples}
}

func (m *Track) Samples() []model.TrackSample {
	return m.samples
}

func (m *Track) Empty() bool {
	return len(m.samples) == 0
}

// Project resolves t to the marker of the nearest sample. No interpolation
// takes place.
func (m *Track) Project(t float64, vp Viewport) (Marker, bool) {
	if m.Empty() || !vp.Valid() {
		return Marker{}, false
	}
	idx, _ := Nearest(m.samples, t, trackTime)
	return Marker{Index: idx, Sample: m.samples[idx]}, true
}

// NearestToPosition returns the sample closest to the given coordinates
// (used for map clicks). Distance is measured on an equirectangular
// approximation which is fine for the extent of a race track.
func (m *Track) NearestToPosition(pos model.LatLng) (Marker, bool) {
	if m.Empty() {
		return Marker{}, false
	}
	best := 0
	bestDist := math.Inf(1)
	cosLat := math.Cos(pos.Lat * math.Pi / 180)
	for i, s := range m.samples {
		dx := (s.Lng - pos.Lng) * cosLat
		dy := s.Lat - pos.Lat
		if d := dx*dx + dy*dy; d < bestDist {
			best, bestDist = i, d
		}
	}
	return Marker{Index: best, Sample: m.samples[best]}, true
}

func (m *Track) At(idx int) (Marker, bool) {
	if idx < 0 || idx >= len(m.samples) {
		return Marker{}, false
	}
	return Marker{Index: idx, Sample: m.samples[idx]}, true
}

// Bounds returns the bounding box of all samples.
func (m *Track) Bounds() (model.Bounds, bool) {
	if m.Empty() {
		return model.Bounds{}, false
	}
	b := model.Bounds{
		SouthWest: m.samples[0].Position(),
		NorthEast: m.samples[0].Position(),
	}
	for _, s := range m.samples[1:] {
		b.SouthWest.Lat = math.Min(b.SouthWest.Lat, s.Lat)
		b.SouthWest.Lng = math.Min(b.SouthWest.Lng, s.Lng)
		b.NorthEast.Lat = math.Max(b.NorthEast.Lat, s.Lat)
		b.NorthEast.Lng = math.Max(b.NorthEast.Lng, s.Lng)
	}
	return b, true
}
