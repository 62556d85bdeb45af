// Package loader loads a shared resource at most once. Concurrent callers
// share the in-flight attempt. A failure is kept until Reset is called.
package loader

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/mpapenbr/lapsync/log"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var ErrNoLoadFunc = errors.New("no load function")

type LoadFunc[T any] func(ctx context.Context) (T, error)

type Loader[T any] struct {
	name  string
	load  LoadFunc[T]
	l     *log.Logger
	group singleflight.Group

	mu    sync.Mutex
	state State
	value T
	err   error
	// generation is bumped on Reset so an attempt started before the reset
	// does not overwrite the fresh state.
	generation uint64
}

type Option[T any] func(*Loader[T])

func WithLogger[T any](l *log.Logger) Option[T] {
	return func(ld *Loader[T]) {
		ld.l = l
	}
}

func New[T any](name string, load LoadFunc[T], opts ...Option[T]) *Loader[T] {
	ld := &Loader[T]{
		name: name,
		load: load,
		l:    log.Default().Named("loader"),
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

func (ld *Loader[T]) State() State {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	return ld.state
}

// Get returns the loaded value, starting the load if nothing happened yet.
// A cancelled ctx only stops the wait of this caller, the shared attempt
// continues.
func (ld *Loader[T]) Get(ctx context.Context) (T, error) {
	ld.mu.Lock()
	switch ld.state {
	case StateLoaded:
		defer ld.mu.Unlock()
		return ld.value, nil
	case StateFailed:
		defer ld.mu.Unlock()
		var zero T
		return zero, ld.err
	case StateIdle, StateLoading:
	}
	if ld.load == nil {
		ld.mu.Unlock()
		var zero T
		return zero, ErrNoLoadFunc
	}
	ld.state = StateLoading
	gen := ld.generation
	ld.mu.Unlock()

	ch := ld.group.DoChan(ld.name, func() (any, error) {
		ld.l.Debug("loading", log.String("name", ld.name))
		v, err := ld.load(context.WithoutCancel(ctx))
		ld.finish(gen, v, err)
		return v, err
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Err
		}
		v, _ := res.Val.(T)
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (ld *Loader[T]) finish(gen uint64, v T, err error) {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	if gen != ld.generation {
		ld.l.Debug("discarding result of reset attempt", log.String("name", ld.name))
		return
	}
	if err != nil {
		ld.state = StateFailed
		ld.err = err
		ld.l.Warn("load failed", log.String("name", ld.name), log.ErrorField(err))
		return
	}
	ld.state = StateLoaded
	ld.value = v
	ld.err = nil
}

// Reset forgets any result so the next Get loads again.
func (ld *Loader[T]) Reset() {
	ld.mu.Lock()
	defer ld.mu.Unlock()
	ld.generation++
	ld.state = StateIdle
	ld.err = nil
	var zero T
	ld.value = zero
	ld.group.Forget(ld.name)
}
