package replay

import (
	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/dashboard"
	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/projector"
)

// consoleCursor logs the chart cursor whenever it moves to another sample.
type consoleCursor struct {
	l    *log.Logger
	last int
	seen bool
}

func (c *consoleCursor) ShowCursor(cur projector.ChartCursor) {
	if c.seen && cur.Index == c.last {
		return
	}
	c.seen, c.last = true, cur.Index
	c.l.Info("cursor",
		log.Float64("t", cur.Sample.Time),
		log.Float64("value", cur.Sample.Value),
		log.Float64("x", cur.X))
}

func (c *consoleCursor) HideCursor() {
	c.seen = false
	c.l.Debug("cursor hidden")
}

type consoleMap struct {
	l *log.Logger
}

func (m *consoleMap) DrawPolyline(segments []dashboard.Segment) {
	m.l.Info("track drawn", log.Int("segments", len(segments)))
}

func (m *consoleMap) SetMarker(pos model.LatLng) {
	m.l.Debug("marker", log.Float64("lat", pos.Lat), log.Float64("lng", pos.Lng))
}

func (m *consoleMap) ClearMarker() {
	m.l.Debug("marker cleared")
}

func (m *consoleMap) FitBounds(b model.Bounds) {
	m.l.Info("bounds",
		log.Float64("swLat", b.SouthWest.Lat), log.Float64("swLng", b.SouthWest.Lng),
		log.Float64("neLat", b.NorthEast.Lat), log.Float64("neLng", b.NorthEast.Lng))
}
