package dashboard

import (
	"context"

	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/projector"
)

// CursorSink renders the chart cursor.
type CursorSink interface {
	ShowCursor(c projector.ChartCursor)
	HideCursor()
}

// Segment is one colored piece of the track polyline.
type Segment struct {
	From  model.LatLng
	To    model.LatLng
	Color string
}

// MapWidget is the capability set of the embedded map.
type MapWidget interface {
	DrawPolyline(segments []Segment)
	SetMarker(pos model.LatLng)
	ClearMarker()
	FitBounds(b model.Bounds)
}

// MapFactory loads the map library and creates the widget. It is called at
// most once per successful load.
type MapFactory func(ctx context.Context) (MapWidget, error)

// DataSource delivers session metadata and samples. *telemetry.Client is the
// production implementation.
type DataSource interface {
	GetSession(ctx context.Context, sessionID string) (*model.Session, error)
	GetChannelData(ctx context.Context, sessionID string, lap int, channel string) (
		[]model.ChannelSample, error)
	GetTrack(ctx context.Context, sessionID string, lap int, latChannel, lngChannel string) (
		[]model.TrackSample, error)
}

type nopCursorSink struct{}

func (nopCursorSink) ShowCursor(projector.ChartCursor) {}
func (nopCursorSink) HideCursor()                      {}
