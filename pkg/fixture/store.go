// Package fixture serves recorded sessions from a directory of YAML files.
//
// Each file <dir>/<sessionId>.yaml holds the session metadata plus the
// channel samples per lap:
//
//	id: abc
//	driver: Jane Doe
//	laps: [{lap: 1, start: 0, end: 92.4}]
//	channels: [speed, lat, lng]
//	videoUrl: https://youtu.be/dQw4w9WgXcQ
//	syncTime: "00:01:12.500"
//	data:
//	  1:
//	    speed: [{s: 0, d: 120.5}, {s: 0.1, d: 121}]
package fixture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mpapenbr/lapsync/log"
	"github.com/mpapenbr/lapsync/pkg/model"
	"github.com/mpapenbr/lapsync/pkg/utils/cache"
	"github.com/mpapenbr/lapsync/pkg/utils/cache/loadercache"
)

const fileExt = ".yaml"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidID    = errors.New("invalid session id")
	ErrUnknownLap   = errors.New("unknown lap")
	ErrUnknownChan  = errors.New("unknown channel")
	ErrBrokenFile   = errors.New("fixture could not be parsed")
	errNotDirectory = errors.New("not a directory")
)

type Fixture struct {
	model.Session `yaml:",inline"`
	Data          map[int]map[string][]model.ChannelSample `yaml:"data"`
}

type Store struct {
	dir   string
	l     *log.Logger
	cache cache.Cache[string, Fixture]
}

type Option func(*options)

type options struct {
	expiration time.Duration
	l          *log.Logger
}

func WithExpiration(d time.Duration) Option {
	return func(o *options) { o.expiration = d }
}

func WithLogger(l *log.Logger) Option {
	return func(o *options) { o.l = l }
}

func NewStore(dir string, opts ...Option) (*Store, error) {
	o := options{expiration: 5 * time.Minute, l: log.Default().Named("fixture")}
	for _, opt := range opts {
		opt(&o)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("data dir %s: %w", dir, errNotDirectory)
	}
	s := &Store{dir: dir, l: o.l}
	s.cache = loadercache.New(
		loadercache.WithLoader[string, Fixture](s.read),
		loadercache.WithExpiration[string, Fixture](o.expiration),
		loadercache.WithLogger[string, Fixture](o.l.Named("cache")),
	)
	return s, nil
}

func (s *Store) Session(ctx context.Context, id string) (*model.Session, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	sess := f.Session
	if sess.ID == "" {
		sess.ID = id
	}
	return &sess, nil
}

//nolint:whitespace // can't make both editor and linter happy
func (s *Store) Channel(
	ctx context.Context, id string, lap int, channel string,
) ([]model.ChannelSample, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	byChannel, ok := f.Data[lap]
	if !ok {
		return nil, fmt.Errorf("%w %d: %w", ErrUnknownLap, lap, ErrNotFound)
	}
	samples, ok := byChannel[channel]
	if !ok {
		return nil, fmt.Errorf("%w %q: %w", ErrUnknownChan, channel, ErrNotFound)
	}
	return samples, nil
}

func (s *Store) get(ctx context.Context, id string) (*Fixture, error) {
	if id == "" || id != filepath.Base(id) || strings.HasPrefix(id, ".") {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidID, id, ErrNotFound)
	}
	return s.cache.Get(ctx, id)
}

func (s *Store) read(ctx context.Context, id string) (*Fixture, error) {
	name := filepath.Join(s.dir, id+fileExt)
	data, err := os.ReadFile(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, err
	}
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrBrokenFile, name, err)
	}
	s.l.Debug("fixture loaded",
		log.String("file", name), log.Int("laps", len(f.Laps)))
	return &f, nil
}

// Watch invalidates cached sessions when their files change. It blocks until
// ctx is done.
//
//nolint:gocognit // event loop
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("could not create fsnotify watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("could not watch %s: %w", s.dir, err)
	}
	s.l.Info("watching fixtures", log.String("dir", s.dir))
	for {
		select {
		case <-ctx.Done():
			s.l.Debug("context done, stopping watcher")
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Ext(event.Name) != fileExt {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(event.Name), fileExt)
			s.l.Info("fixture changed",
				log.String("session", id), log.String("op", event.Op.String()))
			s.cache.Invalidate(ctx, id)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.l.Error("watcher error", log.ErrorField(err))
		}
	}
}

// Write stores a fixture. Used to record sessions and by tests.
func Write(dir string, f *Fixture) error {
	if f.ID == "" {
		return ErrInvalidID
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, f.ID+fileExt), data, 0o600)
}
