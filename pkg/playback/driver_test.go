package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpapenbr/lapsync/pkg/hover"
	"github.com/mpapenbr/lapsync/pkg/laptime"
	"github.com/mpapenbr/lapsync/pkg/syncstate"
)

const (
	validURL = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	waitFor  = 2 * time.Second
	waitTick = 5 * time.Millisecond
)

type fakePlayer struct {
	mu       sync.Mutex
	events   PlayerEvents
	pos      float64
	seeks    []float64
	plays    int
	pauses   int
	disposed bool
}

func (f *fakePlayer) CurrentPosition() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

func (f *fakePlayer) Seek(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = t
	f.seeks = append(f.seeks, t)
}

func (f *fakePlayer) Play() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plays++
}

func (f *fakePlayer) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pauses++
}

func (f *fakePlayer) Dispose() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disposed = true
}

func (f *fakePlayer) setPos(t float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pos = t
}

func (f *fakePlayer) seekCalls() []float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]float64(nil), f.seeks...)
}

func (f *fakePlayer) pauseCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pauses
}

func (f *fakePlayer) isDisposed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disposed
}

type fakeFactory struct {
	mu      sync.Mutex
	players []*fakePlayer
	ids     []string
	err     error
}

//nolint:whitespace // can't make both editor and linter happy
func (ff *fakeFactory) create(
	ctx context.Context, videoID string, events PlayerEvents,
) (PlayerHandle, error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.ids = append(ff.ids, videoID)
	if ff.err != nil {
		return nil, ff.err
	}
	p := &fakePlayer{events: events}
	ff.players = append(ff.players, p)
	return p, nil
}

func (ff *fakeFactory) last() *fakePlayer {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if len(ff.players) == 0 {
		return nil
	}
	return ff.players[len(ff.players)-1]
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.players)
}

func (ff *fakeFactory) setErr(err error) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	ff.err = err
}

type fixture struct {
	state   *syncstate.State
	factory *fakeFactory
	driver  *Driver
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{state: syncstate.New(), factory: &fakeFactory{}}
	opts = append([]Option{WithPollInterval(5 * time.Millisecond)}, opts...)
	f.driver = NewDriver(context.Background(), f.state, f.factory.create, opts...)
	t.Cleanup(f.driver.Close)
	return f
}

// loaded creates a player and waits until the driver saw it.
func (f *fixture) loaded(t *testing.T) *fakePlayer {
	t.Helper()
	f.driver.Load(validURL)
	f.driver.barrier()
	p := f.factory.last()
	require.NotNil(t, p)
	return p
}

func (f *fixture) emit(t *testing.T, p *fakePlayer, s PlayerState) {
	t.Helper()
	p.events.StateChanged(s)
	assert.Eventually(t, func() bool {
		return f.driver.Status().PlayerState == s
	}, waitFor, waitTick)
}

func TestLoadInvalidURL(t *testing.T) {
	f := newFixture(t)
	f.driver.Load("https://vimeo.com/12345")
	f.driver.barrier()

	st := f.driver.Status()
	assert.Equal(t, StateError, st.PlayerState)
	assert.ErrorIs(t, st.Err, ErrNoVideo)
	assert.True(t, st.Retryable())
	assert.Equal(t, 0, f.factory.count())
}

func TestLoadFailureAndRetry(t *testing.T) {
	f := newFixture(t)
	f.factory.setErr(errors.New("script blocked"))
	f.driver.Load(validURL)
	f.driver.barrier()

	st := f.driver.Status()
	assert.Equal(t, StateError, st.PlayerState)
	assert.ErrorIs(t, st.Err, ErrPlayerLoad)

	f.factory.setErr(nil)
	f.driver.Retry()
	f.driver.barrier()
	st = f.driver.Status()
	assert.Equal(t, StateUnstarted, st.PlayerState)
	assert.NoError(t, st.Err)
	assert.Equal(t, "dQw4w9WgXcQ", st.VideoID)
	assert.Equal(t, 1, f.factory.count())
}

func TestPlayerReportedError(t *testing.T) {
	f := newFixture(t)
	p := f.loaded(t)
	f.emit(t, p, StatePlaying)
	assert.True(t, f.state.IsAuthorityActive())

	p.events.Failed(errors.New("stream broken"))
	assert.Eventually(t, func() bool {
		return f.driver.Status().PlayerState == StateError
	}, waitFor, waitTick)
	assert.False(t, f.state.IsAuthorityActive())
	assert.False(t, f.driver.Status().Polling)
}

func TestErrorIsTerminalForLoadAttempt(t *testing.T) {
	f := newFixture(t, WithAutoPlay(true))
	p := f.loaded(t)
	p.events.Failed(errors.New("stream broken"))
	require.Eventually(t, func() bool {
		return f.driver.Status().PlayerState == StateError
	}, waitFor, waitTick)

	p.events.StateChanged(StateReady)
	p.events.StateChanged(StatePlaying)
	assert.Never(t, func() bool {
		return f.driver.Status().PlayerState != StateError
	}, 100*time.Millisecond, waitTick)
	st := f.driver.Status()
	assert.EqualError(t, st.Err, "stream broken")
	assert.False(t, st.Polling)
	assert.False(t, f.state.IsAuthorityActive())
	p.mu.Lock()
	assert.Zero(t, p.plays)
	p.mu.Unlock()

	// a retry starts a new attempt which reacts to events again
	f.driver.Retry()
	f.driver.barrier()
	next := f.factory.last()
	require.NotSame(t, p, next)
	f.emit(t, next, StateReady)
	assert.NoError(t, f.driver.Status().Err)
}

func TestInitialSeekOnReady(t *testing.T) {
	f := newFixture(t)
	f.driver.SetLapWindow(laptime.Window{Start: 112.5, End: 200})
	p := f.loaded(t)
	f.emit(t, p, StateReady)

	assert.Equal(t, []float64{112.5}, p.seekCalls())
	assert.InDelta(t, 112.5, f.state.VideoTime(), 1e-9)
	assert.False(t, f.state.IsAuthorityActive())
}

func TestPlayingTakesAuthorityAndPolls(t *testing.T) {
	f := newFixture(t)
	f.state.SetLapStartVideoTime(100)
	p := f.loaded(t)
	f.emit(t, p, StateReady)
	p.setPos(112.3)
	f.emit(t, p, StatePlaying)

	assert.True(t, f.driver.Status().Polling)
	assert.Eventually(t, func() bool {
		g, ok := f.state.GraphTime()
		return ok && g > 12.29 && g < 12.31
	}, waitFor, waitTick)
}

func TestPauseStopsPollingWithFinalRead(t *testing.T) {
	f := newFixture(t)
	p := f.loaded(t)
	f.emit(t, p, StatePlaying)
	p.setPos(42.25)
	f.emit(t, p, StatePaused)

	st := f.driver.Status()
	assert.False(t, st.Polling)
	assert.False(t, f.state.IsAuthorityActive())
	assert.InDelta(t, 42.25, f.state.VideoTime(), 1e-9)

	// no more ticks after the pause
	p.setPos(50)
	time.Sleep(30 * time.Millisecond)
	assert.InDelta(t, 42.25, f.state.VideoTime(), 1e-9)
}

func TestEndTimePause(t *testing.T) {
	f := newFixture(t)
	f.driver.SetLapWindow(laptime.Window{Start: 10, End: 20})
	p := f.loaded(t)
	f.emit(t, p, StateReady)
	f.emit(t, p, StatePlaying)

	p.setPos(19.9)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, p.pauseCalls())

	p.setPos(20.05)
	assert.Eventually(t, func() bool { return p.pauseCalls() == 1 }, waitFor, waitTick)
	// the pause is requested once even if more ticks arrive before the
	// player confirms
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, p.pauseCalls())

	f.emit(t, p, StatePaused)
	assert.False(t, f.state.IsAuthorityActive())
	assert.InDelta(t, 20.05, f.state.VideoTime(), 1e-9)
}

func TestManualSeekTokenConsumedByTick(t *testing.T) {
	f := newFixture(t, WithPollInterval(time.Hour))
	p := f.loaded(t)
	f.emit(t, p, StatePlaying)
	require.True(t, f.state.IsAuthorityActive())

	f.driver.SeekTo(130, true)
	f.driver.barrier()
	st := f.driver.Status()
	assert.Equal(t, OwnerManualSeek, st.Owner)
	assert.False(t, f.state.IsAuthorityActive())
	assert.InDelta(t, 130, f.state.VideoTime(), 1e-9)
	assert.Equal(t, 0, p.pauseCalls())

	f.driver.enqueue(f.driver.tick)
	f.driver.barrier()
	assert.Equal(t, OwnerDriver, f.driver.Status().Owner)
	assert.True(t, f.state.IsAuthorityActive())
}

func TestManualSeekSuppressesInitialSeek(t *testing.T) {
	f := newFixture(t)
	f.driver.SetLapWindow(laptime.Window{Start: 50, End: 90})
	p := f.loaded(t)
	f.driver.SeekTo(70, true)
	f.driver.barrier()
	f.emit(t, p, StateReady)

	assert.Equal(t, []float64{70}, p.seekCalls())
	assert.InDelta(t, 70, f.state.VideoTime(), 1e-9)
}

func TestSeekWithoutResumePauses(t *testing.T) {
	f := newFixture(t)
	p := f.loaded(t)
	f.emit(t, p, StatePlaying)
	f.driver.SeekTo(12, false)
	f.driver.barrier()
	assert.Equal(t, 1, p.pauseCalls())
}

func TestSeekBeforePlayerIgnored(t *testing.T) {
	f := newFixture(t)
	f.driver.SeekTo(12, true)
	f.driver.barrier()
	assert.Equal(t, OwnerDriver, f.driver.Status().Owner)
	assert.Zero(t, f.state.VideoTime())
}

func TestHandleHover(t *testing.T) {
	tests := []struct {
		name  string
		event hover.Event
		want  []float64
	}{
		{name: "user seek", event: hover.SeekTo(5), want: []float64{105}},
		{name: "plain hover", event: hover.At(5, true)},
		{name: "driver relay", event: hover.At(5, false)},
		{name: "cleared", event: hover.Cleared(true)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.state.SetLapStartVideoTime(100)
			p := f.loaded(t)
			f.driver.HandleHover(tt.event)
			if tt.want != nil {
				assert.Eventually(t, func() bool {
					return len(p.seekCalls()) == len(tt.want)
				}, waitFor, waitTick)
			} else {
				time.Sleep(20 * time.Millisecond)
				f.driver.barrier()
			}
			assert.Equal(t, tt.want, p.seekCalls())
		})
	}
}

func TestRecreateDisposesAndDropsStaleEvents(t *testing.T) {
	f := newFixture(t)
	first := f.loaded(t)
	second := f.loaded(t)

	assert.True(t, first.isDisposed())
	assert.False(t, second.isDisposed())

	first.events.StateChanged(StatePlaying)
	f.driver.barrier()
	time.Sleep(10 * time.Millisecond)
	st := f.driver.Status()
	assert.Equal(t, StateUnstarted, st.PlayerState)
	assert.False(t, st.Polling)
}

func TestSinglePollingTicker(t *testing.T) {
	f := newFixture(t)
	p := f.loaded(t)
	for range 5 {
		f.emit(t, p, StatePlaying)
		p.events.StateChanged(StatePlaying)
	}
	f.driver.barrier()
	assert.True(t, f.driver.Status().Polling)
	f.emit(t, p, StatePaused)
	assert.False(t, f.driver.Status().Polling)
}

func TestLapWindowMovesIdlePlayer(t *testing.T) {
	f := newFixture(t)
	p := f.loaded(t)
	f.emit(t, p, StatePaused)
	f.driver.SetLapWindow(laptime.Window{Start: 300, End: 390})
	f.driver.barrier()
	assert.Equal(t, []float64{300}, p.seekCalls())
	assert.InDelta(t, 300, f.state.VideoTime(), 1e-9)
}

func TestCloseDisposes(t *testing.T) {
	state := syncstate.New()
	ff := &fakeFactory{}
	var statuses []Status
	var mu sync.Mutex
	d := NewDriver(context.Background(), state, ff.create,
		WithStatusListener(func(s Status) {
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, s)
		}))
	d.Load(validURL)
	d.barrier()
	d.Close()

	select {
	case <-d.Done():
	default:
		t.Fatal("driver loop still running")
	}
	assert.True(t, ff.last().isDisposed())
	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, statuses)
	// commands after close are dropped without blocking
	d.SeekTo(1, true)
}
