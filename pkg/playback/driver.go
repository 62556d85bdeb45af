// Package playback drives the shared video time from an embedded player.
//
// All driver state is owned by a single goroutine (the driver loop). Player
// events, poll ticks and commands are serialized through it, so at most one
// polling ticker exists at any time.
package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/hover"
	"github.com/mpapenbr/lapsync/pkg/laptime"
	"github.com/mpapenbr/lapsync/pkg/syncstate"
	"github.com/mpapenbr/lapsync/pkg/video"
)

const DefaultPollInterval = 50 * time.Millisecond

var (
	ErrNoVideo        = errors.New("no valid video")
	ErrPlayerLoad     = errors.New("player could not be created")
	ErrPlayerNotReady = errors.New("player not ready")
	ErrClosed         = errors.New("driver closed")
)

// Status is a snapshot of the driver for the view layer.
type Status struct {
	PlayerState PlayerState
	Owner       AuthorityOwner
	Polling     bool
	VideoID     string
	// Err is set while the driver is in the error state. Retry recreates the
	// player.
	Err error
}

func (s Status) Retryable() bool {
	return s.Err != nil
}

func (s Status) equal(o Status) bool {
	return s.PlayerState == o.PlayerState &&
		s.Owner == o.Owner &&
		s.Polling == o.Polling &&
		s.VideoID == o.VideoID &&
		errText(s.Err) == errText(o.Err)
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

type driverEvent struct {
	generation uint64
	state      PlayerState
	err        error
}

type Driver struct {
	state    *syncstate.State
	factory  PlayerFactory
	interval time.Duration
	autoPlay bool
	l        *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan driverEvent
	cmds   chan func()
	done   chan struct{}

	// latest seek requested by a hover event, coalesced
	seekMu      sync.Mutex
	pendingSeek *float64
	seekSignal  chan struct{}

	// owned by the loop goroutine
	player         PlayerHandle
	generation     uint64
	playerState    PlayerState
	owner          AuthorityOwner
	ticker         *time.Ticker
	window         laptime.Window
	pauseRequested bool
	videoURL       string
	videoID        string
	lastErr        error

	statusMu sync.RWMutex
	status   Status
	onStatus []func(Status)
}

type Option func(*Driver)

func WithPollInterval(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.interval = d
		}
	}
}

// WithAutoPlay starts playback as soon as the player is ready.
func WithAutoPlay(b bool) Option {
	return func(drv *Driver) {
		drv.autoPlay = b
	}
}

func WithLogger(l *log.Logger) Option {
	return func(drv *Driver) {
		drv.l = l
	}
}

// WithStatusListener registers a callback invoked (on the driver loop) after
// every status change.
func WithStatusListener(f func(Status)) Option {
	return func(drv *Driver) {
		drv.onStatus = append(drv.onStatus, f)
	}
}

//nolint:whitespace // can't make both editor and linter happy
func NewDriver(
	ctx context.Context, state *syncstate.State, factory PlayerFactory, opts ...Option,
) *Driver {
	d := &Driver{
		state:      state,
		factory:    factory,
		interval:   DefaultPollInterval,
		l:          log.Default().Named("playback"),
		events:     make(chan driverEvent, 16),
		cmds:       make(chan func(), 16),
		done:       make(chan struct{}),
		seekSignal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(ctx)
	go d.run()
	return d
}

func (d *Driver) Status() Status {
	d.statusMu.RLock()
	defer d.statusMu.RUnlock()
	return d.status
}

// Load (re)creates the player for the given video URL. A previous player is
// disposed first.
func (d *Driver) Load(videoURL string) {
	d.enqueue(func() { d.load(videoURL) })
}

// Retry recreates the player from the last loaded URL.
func (d *Driver) Retry() {
	d.enqueue(func() {
		d.l.Info("retrying player creation", log.String("url", d.videoURL))
		d.load(d.videoURL)
	})
}

// SetLapWindow sets the initial seek position (window start) and the end
// bound at which playback is paused. If a player is idle it is moved to the
// window start right away.
func (d *Driver) SetLapWindow(w laptime.Window) {
	d.enqueue(func() {
		d.window = w
		d.pauseRequested = false
		if d.player == nil {
			return
		}
		switch d.playerState {
		case StateReady, StatePaused, StateEnded:
			d.player.Seek(w.Start)
			d.state.SetVideoTime(w.Start)
		case StatePlaying:
			d.player.Seek(w.Start)
		case StateUnstarted, StateError:
		}
	})
}

// SeekTo repositions the video to the absolute video time t. The seek claims
// authority until the next poll tick consumed it. With resumeIfWasPlaying
// false a playing video is paused.
func (d *Driver) SeekTo(t float64, resumeIfWasPlaying bool) {
	d.enqueue(func() { d.seek(t, resumeIfWasPlaying) })
}

func (d *Driver) Play() {
	d.enqueue(func() {
		if d.player == nil {
			d.l.Debug("play ignored", log.ErrorField(ErrPlayerNotReady))
			return
		}
		d.pauseRequested = false
		d.player.Play()
	})
}

func (d *Driver) Pause() {
	d.enqueue(func() {
		if d.player != nil {
			d.player.Pause()
		}
	})
}

// HandleHover is the broadcast subscriber of the driver. It only reacts to
// user initiated events that request a seek, never to the events relayed
// from its own ticks.
//
// HandleHover never blocks: the broadcaster may deliver on the driver loop
// goroutine itself. Seeks arriving faster than the loop handles them are
// coalesced to the latest one.
func (d *Driver) HandleHover(e hover.Event) {
	if !e.UserInitiated || !e.Seek {
		return
	}
	t, ok := e.Value()
	if !ok {
		return
	}
	target := laptime.VideoTime(t, d.state.LapStartVideoTime())
	d.seekMu.Lock()
	d.pendingSeek = &target
	d.seekMu.Unlock()
	select {
	case d.seekSignal <- struct{}{}:
	default:
	}
}

func (d *Driver) takePendingSeek() (float64, bool) {
	d.seekMu.Lock()
	defer d.seekMu.Unlock()
	if d.pendingSeek == nil {
		return 0, false
	}
	t := *d.pendingSeek
	d.pendingSeek = nil
	return t, true
}

// Close stops the loop, the polling and disposes the player.
func (d *Driver) Close() {
	d.cancel()
	<-d.done
}

// Done is closed once the driver loop terminated.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

func (d *Driver) enqueue(f func()) {
	select {
	case d.cmds <- f:
	case <-d.ctx.Done():
		d.l.Debug("command dropped", log.ErrorField(ErrClosed))
	}
}

// barrier blocks until all previously enqueued commands were executed.
func (d *Driver) barrier() {
	done := make(chan struct{})
	d.enqueue(func() { close(done) })
	select {
	case <-done:
	case <-d.done:
	}
}

func (d *Driver) run() {
	defer close(d.done)
	defer d.teardown()
	for {
		var tickC <-chan time.Time
		if d.ticker != nil {
			tickC = d.ticker.C
		}
		select {
		case <-d.ctx.Done():
			return
		case ev := <-d.events:
			d.handleEvent(ev)
		case <-tickC:
			d.tick()
		case cmd := <-d.cmds:
			cmd()
		case <-d.seekSignal:
			if t, ok := d.takePendingSeek(); ok {
				d.seek(t, true)
			}
		}
		d.updateStatus()
	}
}

func (d *Driver) teardown() {
	d.stopPolling()
	d.disposePlayer()
	d.state.SetAuthorityActive(false)
	d.l.Debug("driver stopped")
}

func (d *Driver) load(videoURL string) {
	d.stopPolling()
	d.disposePlayer()
	d.generation++
	d.owner = OwnerDriver
	d.playerState = StateUnstarted
	d.pauseRequested = false
	d.lastErr = nil
	d.videoURL = videoURL
	d.state.SetAuthorityActive(false)

	id, ok := video.ExtractID(videoURL)
	if !ok {
		d.fail(fmt.Errorf("%w: %q", ErrNoVideo, videoURL))
		return
	}
	d.videoID = id
	p, err := d.factory(d.ctx, id, &playerEvents{d: d, generation: d.generation})
	if err != nil {
		d.fail(fmt.Errorf("%w: %w", ErrPlayerLoad, err))
		return
	}
	d.player = p
	d.l.Debug("player created",
		log.String("videoId", id), log.Uint64("generation", d.generation))
}

func (d *Driver) disposePlayer() {
	if d.player != nil {
		d.player.Dispose()
		d.player = nil
	}
}

func (d *Driver) fail(err error) {
	d.stopPolling()
	d.playerState = StateError
	d.lastErr = err
	d.state.SetAuthorityActive(false)
	d.l.Warn("player failed", log.ErrorField(err))
}

func (d *Driver) handleEvent(ev driverEvent) {
	if ev.generation != d.generation {
		d.l.Debug("event of disposed player dropped",
			log.Uint64("generation", ev.generation), log.String("state", ev.state.String()))
		return
	}
	if d.playerState == StateError {
		// only load or Retry leave the error state
		d.l.Debug("event of failed player dropped", log.String("state", ev.state.String()))
		return
	}
	if ev.err != nil {
		d.fail(ev.err)
		return
	}
	d.l.Debug("player state",
		log.String("from", d.playerState.String()), log.String("to", ev.state.String()))
	d.playerState = ev.state
	switch ev.state {
	case StateReady:
		d.onReady()
	case StatePlaying:
		d.onPlaying()
	case StatePaused, StateEnded:
		d.onStopped()
	case StateError:
		d.fail(ErrPlayerLoad)
	case StateUnstarted:
	}
}

func (d *Driver) onReady() {
	d.state.SetAuthorityActive(false)
	if d.owner == OwnerManualSeek {
		d.l.Debug("initial seek suppressed by manual seek")
	} else if d.window.Start > 0 {
		d.player.Seek(d.window.Start)
		d.state.SetVideoTime(d.window.Start)
	}
	if d.autoPlay {
		d.player.Play()
	}
}

func (d *Driver) onPlaying() {
	if d.owner == OwnerDriver {
		d.state.SetAuthorityActive(true)
	}
	d.startPolling()
}

func (d *Driver) onStopped() {
	d.stopPolling()
	d.pauseRequested = false
	d.state.SetAuthorityActive(false)
	if d.player != nil {
		d.state.SetVideoTime(d.player.CurrentPosition())
	}
}

func (d *Driver) tick() {
	if d.player == nil {
		d.stopPolling()
		return
	}
	pos := d.player.CurrentPosition()
	d.state.SetVideoTime(pos)
	if d.owner == OwnerManualSeek {
		d.owner = OwnerDriver
		d.l.Debug("manual seek consumed", log.Float64("pos", pos))
		if d.playerState == StatePlaying {
			d.state.SetAuthorityActive(true)
		}
	}
	if d.window.HasEnd() && pos >= d.window.End && !d.pauseRequested {
		d.l.Debug("lap end reached",
			log.Float64("pos", pos), log.Float64("end", d.window.End))
		d.pauseRequested = true
		d.player.Pause()
	}
}

func (d *Driver) seek(t float64, resumeIfWasPlaying bool) {
	if d.player == nil || d.playerState == StateError {
		d.l.Debug("seek ignored", log.Float64("t", t), log.ErrorField(ErrPlayerNotReady))
		return
	}
	wasPlaying := d.playerState == StatePlaying
	d.owner = OwnerManualSeek
	d.pauseRequested = false
	d.state.SetAuthorityActive(false)
	d.player.Seek(t)
	d.state.SetVideoTime(t)
	if wasPlaying && !resumeIfWasPlaying {
		d.player.Pause()
	}
	d.l.Debug("manual seek",
		log.Float64("t", t), log.Bool("wasPlaying", wasPlaying))
}

func (d *Driver) startPolling() {
	d.stopPolling()
	d.ticker = time.NewTicker(d.interval)
}

func (d *Driver) stopPolling() {
	if d.ticker != nil {
		d.ticker.Stop()
		d.ticker = nil
	}
}

func (d *Driver) updateStatus() {
	s := Status{
		PlayerState: d.playerState,
		Owner:       d.owner,
		Polling:     d.ticker != nil,
		VideoID:     d.videoID,
		Err:         d.lastErr,
	}
	d.statusMu.Lock()
	changed := !s.equal(d.status)
	d.status = s
	d.statusMu.Unlock()
	if changed {
		for _, f := range d.onStatus {
			f(s)
		}
	}
}

type playerEvents struct {
	d          *Driver
	generation uint64
}

func (p *playerEvents) StateChanged(s PlayerState) {
	p.send(driverEvent{generation: p.generation, state: s})
}

func (p *playerEvents) Failed(err error) {
	if err == nil {
		err = ErrPlayerLoad
	}
	p.send(driverEvent{generation: p.generation, state: StateError, err: err})
}

func (p *playerEvents) send(ev driverEvent) {
	select {
	case p.d.events <- ev:
	case <-p.d.ctx.Done():
	}
}
