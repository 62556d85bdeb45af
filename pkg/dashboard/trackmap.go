package dashboard

import (
	"context"
	"errors"
	"sync"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/hover"
	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/projector"
	"github.com/mpapenbr/lapsync/pkg/utils/loader"
)

var ErrNoMap = errors.New("no map available")

// MapView shows the track of the selected lap and the car marker.
type MapView struct {
	bus    *hover.Broadcaster
	loader *loader.Loader[MapWidget]
	l      *log.Logger
	sub    *hover.Subscription

	mu      sync.Mutex
	track   *projector.Track
	speed   []model.ChannelSample
	vp      projector.Viewport
	widget  MapWidget
	err     error
	marker  *projector.Marker
	drawn   bool
	pending *float64
	gen     uint64
}

//nolint:whitespace // can't make both editor and linter happy
func newMapView(
	bus *hover.Broadcaster, factory MapFactory, vp projector.Viewport, l *log.Logger,
) *MapView {
	v := &MapView{
		bus:   bus,
		l:     l,
		track: projector.NewTrack(nil),
		vp:    vp,
	}
	v.loader = loader.New("map", func(ctx context.Context) (MapWidget, error) {
		if factory == nil {
			return nil, ErrNoMap
		}
		return factory(ctx)
	}, loader.WithLogger[MapWidget](l))
	v.sub = bus.Subscribe("map", v.handle)
	return v
}

func (v *MapView) handle(e hover.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := e.Value()
	if !ok {
		v.pending = nil
		v.clearMarkerLocked()
		return
	}
	v.pending = &t
	v.placeLocked(t)
}

func (v *MapView) placeLocked(t float64) {
	m, ok := v.track.Project(t, v.vp)
	if !ok {
		v.clearMarkerLocked()
		return
	}
	v.marker = &m
	if v.widget != nil {
		v.widget.SetMarker(m.Position())
	}
}

func (v *MapView) clearMarkerLocked() {
	if v.marker != nil {
		v.marker = nil
		if v.widget != nil {
			v.widget.ClearMarker()
		}
	}
}

// Marker returns the marker currently shown.
func (v *MapView) Marker() (projector.Marker, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.marker == nil {
		return projector.Marker{}, false
	}
	return *v.marker, true
}

func (v *MapView) Samples() []model.TrackSample {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.track.Samples()
}

// Err returns the error of the last data fetch or map load.
func (v *MapView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *MapView) LoaderState() loader.State {
	return v.loader.State()
}

func (v *MapView) Resize(vp projector.Viewport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vp = vp
}

// Click seeks the video to the track sample with the given index.
func (v *MapView) Click(idx int) bool {
	v.mu.Lock()
	m, ok := v.track.At(idx)
	v.mu.Unlock()
	if !ok {
		return false
	}
	v.bus.Publish(hover.SeekTo(m.Sample.Time))
	return true
}

// ClickNearest seeks to the track sample closest to a clicked position.
func (v *MapView) ClickNearest(pos model.LatLng) bool {
	v.mu.Lock()
	m, ok := v.track.NearestToPosition(pos)
	v.mu.Unlock()
	if !ok {
		return false
	}
	v.bus.Publish(hover.SeekTo(m.Sample.Time))
	return true
}

// clear drops the track of a previous lap. Only results of gen are applied
// afterwards.
func (v *MapView) clear(gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen = gen
	v.track = projector.NewTrack(nil)
	v.speed = nil
	v.drawn = false
	v.err = nil
	v.clearMarkerLocked()
	if v.widget != nil {
		v.widget.DrawPolyline(nil)
	}
}

//nolint:whitespace // can't make both editor and linter happy
func (v *MapView) setTrack(
	ctx context.Context, gen uint64, track []model.TrackSample, speed []model.ChannelSample,
) bool {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.track = projector.NewTrack(track)
	v.speed = speed
	v.drawn = false
	v.err = nil
	v.mu.Unlock()
	v.l.Debug("track data", log.Int("samples", len(track)), log.Int("speed", len(speed)))
	v.draw(ctx)
	return true
}

func (v *MapView) setError(gen uint64, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return false
	}
	v.err = err
	v.l.Warn("track data not available", log.ErrorField(err))
	return true
}

// draw loads the map widget if needed and renders the current track.
func (v *MapView) draw(ctx context.Context) {
	w, err := v.loader.Get(ctx)
	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.err = err
		v.l.Warn("map not available", log.ErrorField(err))
		return
	}
	v.widget = w
	if v.drawn || v.track.Empty() {
		return
	}
	w.DrawPolyline(Segments(v.track.Samples(), v.speed))
	if b, ok := v.track.Bounds(); ok {
		w.FitBounds(b)
	}
	v.drawn = true
	if v.pending != nil {
		v.placeLocked(*v.pending)
	}
}

// retry resets a failed map load and draws again.
func (v *MapView) retry(ctx context.Context) {
	if v.loader.State() == loader.StateFailed {
		v.loader.Reset()
	}
	v.mu.Lock()
	v.err = nil
	v.mu.Unlock()
	v.draw(ctx)
}

func (v *MapView) unmount() {
	v.sub.Cancel()
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clearMarkerLocked()
}
