// Package sim provides a wall-clock driven video player for headless
// replays and tests.
package sim

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/lapsync/pkg/playback"
)

type Player struct {
	mu       sync.Mutex
	videoID  string
	rate     float64
	duration float64
	now      func() time.Time
	state    playback.PlayerState
	pos      float64
	anchor   time.Time
	queue    chan func(playback.PlayerEvents)
	events   playback.PlayerEvents
	stop     chan struct{}
	disposed bool
}

type Option func(*config)

type config struct {
	rate      float64
	duration  float64
	loadDelay time.Duration
	loadErr   error
	now       func() time.Time
	created   func(*Player)
}

// WithRate sets the playback rate. Position advances rate seconds per wall
// clock second.
func WithRate(r float64) Option {
	return func(c *config) {
		if r > 0 {
			c.rate = r
		}
	}
}

// WithDuration sets the video length. Reaching it ends the playback.
func WithDuration(d float64) Option {
	return func(c *config) { c.duration = d }
}

// WithLoadDelay delays the ready event.
func WithLoadDelay(d time.Duration) Option {
	return func(c *config) { c.loadDelay = d }
}

// WithLoadError makes the factory fail.
func WithLoadError(err error) Option {
	return func(c *config) { c.loadErr = err }
}

func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithCreated is invoked for each player the factory creates.
func WithCreated(f func(*Player)) Option {
	return func(c *config) { c.created = f }
}

// Factory returns a playback.PlayerFactory producing simulated players.
func Factory(opts ...Option) playback.PlayerFactory {
	cfg := config{rate: 1, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	//nolint:whitespace // can't make both editor and linter happy
	return func(
		ctx context.Context, videoID string, events playback.PlayerEvents,
	) (playback.PlayerHandle, error) {
		if cfg.loadErr != nil {
			return nil, cfg.loadErr
		}
		p := &Player{
			videoID:  videoID,
			rate:     cfg.rate,
			duration: cfg.duration,
			now:      cfg.now,
			state:    playback.StateUnstarted,
			anchor:   cfg.now(),
			queue:    make(chan func(playback.PlayerEvents), 32),
			events:   events,
			stop:     make(chan struct{}),
		}
		go p.dispatch()
		go func() {
			select {
			case <-time.After(cfg.loadDelay):
				p.becomeReady()
			case <-ctx.Done():
			case <-p.stop:
			}
		}()
		if cfg.created != nil {
			cfg.created(p)
		}
		return p, nil
	}
}

func (p *Player) VideoID() string {
	return p.videoID
}

func (p *Player) State() playback.PlayerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Player) CurrentPosition() float64 {
	p.mu.Lock()
	pos := p.positionLocked()
	ended := p.state == playback.StatePlaying && p.duration > 0 && pos >= p.duration
	if ended {
		p.pos = p.duration
		p.anchor = p.now()
		p.setStateLocked(playback.StateEnded)
	}
	p.mu.Unlock()
	return pos
}

func (p *Player) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t < 0 {
		t = 0
	}
	if p.duration > 0 && t > p.duration {
		t = p.duration
	}
	p.pos = t
	p.anchor = p.now()
}

func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == playback.StatePlaying || p.state == playback.StateError || p.disposed {
		return
	}
	p.anchor = p.now()
	p.setStateLocked(playback.StatePlaying)
}

func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != playback.StatePlaying {
		return
	}
	p.pos = p.positionLocked()
	p.anchor = p.now()
	p.setStateLocked(playback.StatePaused)
}

// Fail reports an error to the driver as a real player would on a broken
// stream.
func (p *Player) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = playback.StateError
	p.post(func(ev playback.PlayerEvents) { ev.Failed(err) })
}

func (p *Player) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	close(p.stop)
	p.mu.Unlock()
}

func (p *Player) becomeReady() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != playback.StateUnstarted {
		return
	}
	p.setStateLocked(playback.StateReady)
}

func (p *Player) positionLocked() float64 {
	if p.state != playback.StatePlaying {
		return p.pos
	}
	pos := p.pos + p.now().Sub(p.anchor).Seconds()*p.rate
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

// setStateLocked never leaves StateError, a failed player stays failed.
func (p *Player) setStateLocked(s playback.PlayerState) {
	if p.disposed || p.state == playback.StateError {
		return
	}
	p.state = s
	p.post(func(ev playback.PlayerEvents) { ev.StateChanged(s) })
}

// post keeps the event order. Must be called with mu held.
func (p *Player) post(f func(playback.PlayerEvents)) {
	select {
	case p.queue <- f:
	case <-p.stop:
	}
}

func (p *Player) dispatch() {
	for {
		select {
		case f := <-p.queue:
			f(p.events)
		case <-p.stop:
			return
		}
	}
}
