// Package dashboard wires a mounted dashboard: the shared sync state, the
// hover broadcaster, the playback driver and the chart and map views.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/hover"
	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/playback"
	"github.com/mpapenbr/lapsync/pkg/projector"
	"github.com/mpapenbr/lapsync/pkg/syncstate"
	"github.com/mpapenbr/lapsync/pkg/utils/broadcast"
)

var (
	ErrStaleSelection = errors.New("selection superseded")
	ErrUnknownLap     = errors.New("unknown lap")
	ErrNotLoaded      = errors.New("session not loaded")
	ErrClosed         = errors.New("session closed")
)

// Channels names the telemetry channels used by the views.
type Channels struct {
	Chart string
	Lat   string
	Lng   string
	Speed string
}

var DefaultChannels = Channels{Chart: "speed", Lat: "lat", Lng: "lng", Speed: "speed"}

type Option func(*Session)

func WithChannels(c Channels) Option {
	return func(s *Session) {
		s.channels = c
	}
}

func WithPlayerFactory(f playback.PlayerFactory) Option {
	return func(s *Session) {
		s.playerFactory = f
	}
}

func WithMapFactory(f MapFactory) Option {
	return func(s *Session) {
		s.mapFactory = f
	}
}

func WithCursorSink(sink CursorSink) Option {
	return func(s *Session) {
		s.sink = sink
	}
}

func WithChartViewport(vp projector.Viewport) Option {
	return func(s *Session) {
		s.chartVP = vp
	}
}

func WithMapViewport(vp projector.Viewport) Option {
	return func(s *Session) {
		s.mapVP = vp
	}
}

func WithDriverOptions(opts ...playback.Option) Option {
	return func(s *Session) {
		s.driverOpts = append(s.driverOpts, opts...)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Session) {
		s.l = l
	}
}

// selection identifies what the views currently show. Fetch results are only
// applied while their selection is still current.
type selection struct {
	lapGen  uint64
	chanGen uint64
}

type Session struct {
	id            uuid.UUID
	sessionID     string
	source        DataSource
	channels      Channels
	playerFactory playback.PlayerFactory
	mapFactory    MapFactory
	sink          CursorSink
	chartVP       projector.Viewport
	mapVP         projector.Viewport
	driverOpts    []playback.Option
	l             *log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	state  *syncstate.State
	bus    *hover.Broadcaster
	driver *playback.Driver
	chart  *ChartView
	track  *MapView

	statusSrc chan playback.Status
	status    broadcast.BroadcastServer[playback.Status]

	relayMu     sync.Mutex
	lastRelayed *float64

	mu         sync.Mutex
	meta       *model.Session
	lap        model.Lap
	hasLap     bool
	sel        selection
	lapCancel  context.CancelFunc
	chanCancel context.CancelFunc
	closed     bool
}

//nolint:whitespace // can't make both editor and linter happy
func New(
	ctx context.Context, source DataSource, sessionID string, opts ...Option,
) *Session {
	s := &Session{
		id:        uuid.New(),
		sessionID: sessionID,
		source:    source,
		channels:  DefaultChannels,
		sink:      nopCursorSink{},
		chartVP:   projector.Viewport{Width: 1000, Height: 300},
		mapVP:     projector.Viewport{Width: 600, Height: 600},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.l == nil {
		s.l = log.Default().Named("dashboard")
	}
	s.l = s.l.With(log.String("dashboard", s.id.String()))
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.state = syncstate.New()
	s.bus = hover.NewBroadcaster(s.id.String(), hover.WithLogger(s.l.Named("hover")))
	s.chart = newChartView(s.bus, s.state, s.sink, s.chartVP, s.l.Named("chart"))
	s.track = newMapView(s.bus, s.mapFactory, s.mapVP, s.l.Named("map"))
	s.state.OnChange(s.relay)
	s.statusSrc = make(chan playback.Status, 16)
	s.status = broadcast.NewBroadcastServer("status", s.statusSrc,
		broadcast.WithBufferSize[playback.Status](16),
		broadcast.WithLogger[playback.Status](s.l.Named("status")))
	if s.playerFactory != nil {
		dopts := append([]playback.Option{
			playback.WithLogger(s.l.Named("playback")),
			playback.WithStatusListener(s.feedStatus),
		}, s.driverOpts...)
		s.driver = playback.NewDriver(s.ctx, s.state, s.playerFactory, dopts...)
		s.bus.Subscribe("playback", s.driver.HandleHover)
	}
	return s
}

// relay forwards graph time changes to the views while the driver holds
// authority.
func (s *Session) relay(snap syncstate.Snapshot) {
	g, ok := snap.GraphTime()
	s.relayMu.Lock()
	if !ok {
		s.lastRelayed = nil
		s.relayMu.Unlock()
		return
	}
	if s.lastRelayed != nil && *s.lastRelayed == g {
		s.relayMu.Unlock()
		return
	}
	s.lastRelayed = &g
	s.relayMu.Unlock()
	s.bus.Publish(hover.At(g, false))
}

// feedStatus runs on the driver loop. Intermediate updates are dropped when
// the buffer is full, a stopped or failed state waits for room.
func (s *Session) feedStatus(st playback.Status) {
	select {
	case s.statusSrc <- st:
		return
	default:
	}
	switch st.PlayerState {
	case playback.StatePaused, playback.StateEnded, playback.StateError:
		select {
		case s.statusSrc <- st:
		case <-s.ctx.Done():
		}
	case playback.StateUnstarted, playback.StateReady, playback.StatePlaying:
		s.l.Debug("status update dropped", log.String("state", st.PlayerState.String()))
	}
}

// SubscribeStatus returns a channel receiving the driver status changes. The
// channel is closed when the session is closed.
func (s *Session) SubscribeStatus() <-chan playback.Status {
	return s.status.Subscribe()
}

func (s *Session) CancelStatus(ch <-chan playback.Status) {
	s.status.CancelSubscription(ch)
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() *syncstate.State { return s.state }

func (s *Session) Broadcaster() *hover.Broadcaster { return s.bus }

func (s *Session) Chart() *ChartView { return s.chart }

func (s *Session) Map() *MapView { return s.track }

// Driver returns nil if the session was created without a player factory.
func (s *Session) Driver() *playback.Driver { return s.driver }

func (s *Session) Meta() *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Lap returns the selected lap.
func (s *Session) Lap() (model.Lap, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lap, s.hasLap
}

// Load fetches the session metadata and creates the player. It does not
// select a lap.
func (s *Session) Load(ctx context.Context) error {
	meta, err := s.source.GetSession(ctx, s.sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", s.sessionID, err)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.meta = meta
	s.mu.Unlock()
	s.l.Info("session loaded",
		log.String("session", meta.ID),
		log.String("driver", meta.Driver),
		log.Int("laps", len(meta.Laps)),
		log.Float64("syncOffset", meta.SyncOffset()))
	if s.driver != nil {
		s.driver.Load(meta.VideoURL)
	}
	return nil
}

// SelectLap switches all views to the lap. The previous selection's fetches
// are cancelled and their results discarded. Returns ErrStaleSelection if a
// newer selection superseded this one while fetching.
//
//nolint:funlen // sequence matters
func (s *Session) SelectLap(ctx context.Context, lapNumber int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.meta == nil {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	lap, ok := s.meta.FindLap(lapNumber)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrUnknownLap, lapNumber)
	}
	window := s.meta.LapWindow(lap)
	s.sel.lapGen++
	s.sel.chanGen++
	sel := s.sel
	s.cancelFetchesLocked()
	fctx, cancel := context.WithCancel(ctx)
	s.lapCancel = cancel
	s.lap, s.hasLap = lap, true
	channels := s.channels

	s.l.Debug("lap selected",
		log.Int("lap", lap.Number),
		log.Float64("start", window.Start), log.Float64("end", window.End))

	// reset before fetching so nothing from the previous lap survives. This
	// stays under mu so concurrent selections reset in generation order.
	s.state.SetLapStartVideoTime(window.Start)
	s.chart.clear(channels.Chart, sel.chanGen)
	s.track.clear(sel.lapGen)
	if s.driver != nil {
		s.driver.SetLapWindow(window)
	}
	s.mu.Unlock()
	defer cancel()

	var (
		chartData []model.ChannelSample
		speed     []model.ChannelSample
		trackData []model.TrackSample
		chartErr  error
		trackErr  error
	)
	g := errgroup.Group{}
	g.Go(func() error {
		chartData, chartErr = s.source.GetChannelData(fctx, s.sessionID, lap.Number, channels.Chart)
		return nil
	})
	g.Go(func() error {
		trackData, trackErr = s.source.GetTrack(fctx, s.sessionID, lap.Number,
			channels.Lat, channels.Lng)
		if trackErr != nil || channels.Speed == "" {
			return nil
		}
		var err error
		if speed, err = s.source.GetChannelData(fctx, s.sessionID, lap.Number,
			channels.Speed); err != nil {
			// the track is drawn in the default color
			s.l.Debug("no speed data for coloring", log.ErrorField(err))
			speed = nil
		}
		return nil
	})
	_ = g.Wait()

	s.mu.Lock()
	lapCurrent := !s.closed && s.sel.lapGen == sel.lapGen
	s.mu.Unlock()
	if !lapCurrent {
		s.l.Debug("discarding stale lap data", log.Int("lap", lap.Number))
		return ErrStaleSelection
	}

	// the views re-check the generation, a newer selection may have reset
	// them since
	if chartErr != nil {
		s.chart.setError(sel.chanGen, chartErr)
	} else {
		s.chart.setSamples(sel.chanGen, channels.Chart, chartData)
	}
	var applied bool
	if trackErr != nil {
		applied = s.track.setError(sel.lapGen, trackErr)
	} else {
		applied = s.track.setTrack(s.ctx, sel.lapGen, trackData, speed)
	}
	if !applied {
		s.l.Debug("discarding stale lap data", log.Int("lap", lap.Number))
		return ErrStaleSelection
	}
	return errors.Join(chartErr, trackErr)
}

// SelectChannel switches the chart to another channel of the current lap.
func (s *Session) SelectChannel(ctx context.Context, channel string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if !s.hasLap {
		s.mu.Unlock()
		return ErrNotLoaded
	}
	s.sel.chanGen++
	sel := s.sel
	if s.chanCancel != nil {
		s.chanCancel()
	}
	fctx, cancel := context.WithCancel(ctx)
	s.chanCancel = cancel
	s.channels.Chart = channel
	lap := s.lap
	s.chart.clear(channel, sel.chanGen)
	s.mu.Unlock()
	defer cancel()

	data, err := s.source.GetChannelData(fctx, s.sessionID, lap.Number, channel)

	s.mu.Lock()
	current := !s.closed && s.sel == sel
	s.mu.Unlock()
	if !current {
		s.l.Debug("discarding stale channel data", log.String("channel", channel))
		return ErrStaleSelection
	}
	if err != nil {
		if !s.chart.setError(sel.chanGen, err) {
			return ErrStaleSelection
		}
		return err
	}
	if !s.chart.setSamples(sel.chanGen, channel, data) {
		s.l.Debug("discarding stale channel data", log.String("channel", channel))
		return ErrStaleSelection
	}
	return nil
}

// RetryData fetches the data of the current selection again.
func (s *Session) RetryData(ctx context.Context) error {
	lap, ok := s.Lap()
	if !ok {
		return ErrNotLoaded
	}
	return s.SelectLap(ctx, lap.Number)
}

// RetryVideo recreates the player.
func (s *Session) RetryVideo() {
	if s.driver != nil {
		s.driver.Retry()
	}
}

// RetryMap resets a failed map load.
func (s *Session) RetryMap(ctx context.Context) {
	s.track.retry(ctx)
}

func (s *Session) cancelFetchesLocked() {
	if s.lapCancel != nil {
		s.lapCancel()
		s.lapCancel = nil
	}
	if s.chanCancel != nil {
		s.chanCancel()
		s.chanCancel = nil
	}
}

// Close unmounts the views, cancels pending fetches and stops the driver.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cancelFetchesLocked()
	s.mu.Unlock()

	s.chart.unmount()
	s.track.unmount()
	if s.driver != nil {
		s.driver.Close()
	}
	s.cancel()
	s.status.Close()
	s.bus.Close()
	s.l.Debug("dashboard closed")
}
