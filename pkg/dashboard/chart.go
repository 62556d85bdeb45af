package dashboard

import (
	"sync"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/hover"
	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/projector"
	"github.com/mpapenbr/lapsync/pkg/syncstate"
)

// ChartView is the time series chart of the selected channel.
type ChartView struct {
	bus   *hover.Broadcaster
	state *syncstate.State
	sink  CursorSink
	l     *log.Logger
	sub   *hover.Subscription

	mu      sync.Mutex
	chart   *projector.Chart
	vp      projector.Viewport
	channel string
	err     error
	cursor  *projector.ChartCursor
	// gen is the selection the view currently belongs to
	gen uint64
}

//nolint:whitespace // can't make both editor and linter happy
func newChartView(
	bus *hover.Broadcaster, state *syncstate.State, sink CursorSink,
	vp projector.Viewport, l *log.Logger,
) *ChartView {
	v := &ChartView{
		bus:   bus,
		state: state,
		sink:  sink,
		l:     l,
		chart: projector.NewChart(nil),
		vp:    vp,
	}
	v.sub = bus.Subscribe("chart", v.handle)
	return v
}

func (v *ChartView) handle(e hover.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	t, ok := e.Value()
	if !ok {
		v.hideLocked()
		return
	}
	c, ok := v.chart.Project(t, v.vp)
	if !ok {
		v.hideLocked()
		return
	}
	v.cursor = &c
	v.sink.ShowCursor(c)
}

func (v *ChartView) hideLocked() {
	if v.cursor != nil {
		v.cursor = nil
		v.sink.HideCursor()
	}
}

// Cursor returns the cursor currently shown.
func (v *ChartView) Cursor() (projector.ChartCursor, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cursor == nil {
		return projector.ChartCursor{}, false
	}
	return *v.cursor, true
}

func (v *ChartView) Samples() []model.ChannelSample {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chart.Samples()
}

func (v *ChartView) Channel() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channel
}

// Err returns the error of the last data fetch.
func (v *ChartView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

func (v *ChartView) Resize(vp projector.Viewport) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vp = vp
}

// PointerMove handles a hover at pixel x. While the video drives the cursor
// hovering has no effect. Returns whether an event was published.
func (v *ChartView) PointerMove(x float64) bool {
	if v.state.IsAuthorityActive() {
		return false
	}
	t, ok := v.timeAt(x)
	if !ok {
		return false
	}
	v.bus.Publish(hover.At(t, true))
	return true
}

// PointerLeave removes the hover cursor unless the video drives it.
func (v *ChartView) PointerLeave() {
	if v.state.IsAuthorityActive() {
		return
	}
	v.bus.Publish(hover.Cleared(true))
}

// Scrub handles a click or drag at pixel x and repositions the video.
func (v *ChartView) Scrub(x float64) bool {
	t, ok := v.timeAt(x)
	if !ok {
		return false
	}
	v.bus.Publish(hover.SeekTo(t))
	return true
}

func (v *ChartView) timeAt(x float64) (float64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.chart.TimeAt(x, v.vp)
}

// clear drops the samples of a previous selection. Only results of gen are
// applied afterwards.
func (v *ChartView) clear(channel string, gen uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gen = gen
	v.chart = projector.NewChart(nil)
	v.channel = channel
	v.err = nil
	v.hideLocked()
}

//nolint:whitespace // can't make both editor and linter happy
func (v *ChartView) setSamples(
	gen uint64, channel string, samples []model.ChannelSample,
) bool {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return false
	}
	v.chart = projector.NewChart(samples)
	v.channel = channel
	v.err = nil
	v.mu.Unlock()
	v.l.Debug("chart data",
		log.String("channel", channel), log.Int("samples", len(samples)))
	v.mounted(samples)
	return true
}

func (v *ChartView) setError(gen uint64, err error) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if gen != v.gen {
		return false
	}
	v.err = err
	v.l.Warn("chart data not available", log.ErrorField(err))
	return true
}

// mounted announces the first sample so every view starts at the lap
// start. The driver takes over as soon as it plays.
func (v *ChartView) mounted(samples []model.ChannelSample) {
	if len(samples) == 0 || v.state.IsAuthorityActive() {
		return
	}
	v.bus.Publish(hover.At(samples[0].Time, false))
}

func (v *ChartView) unmount() {
	v.bus.Publish(hover.Cleared(false))
	v.sub.Cancel()
}
