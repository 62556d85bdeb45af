// Package hover provides the broadcast channel shared by the chart, the map
// and the playback driver.
package hover

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mpapenbr/lapsync/log"
)

type Handler func(Event)

type listener struct {
	id      uint64
	name    string
	handler Handler
	active  atomic.Bool
}

type pending struct {
	event     Event
	listeners []*listener
}

// Broadcaster delivers events in publish order to all listeners registered
// at the time of the publish.
//
// Delivery runs on the publishing goroutine and Publish returns once every
// listener got the event. While a delivery is running, any further publish
// is queued and Publish returns at once. This covers publishes from within a
// handler as well as those from other goroutines. The goroutine that is
// delivering hands out the queued events before its own Publish returns.
type Broadcaster struct {
	name      string
	l         *log.Logger
	mu        sync.Mutex
	listeners []*listener
	nextID    uint64
	queue     []pending
	draining  bool
	closed    bool
	numRcv    atomic.Int64
	numSnd    atomic.Int64
	numDrop   atomic.Int64
}

type Option func(*Broadcaster)

func WithLogger(l *log.Logger) Option {
	return func(b *Broadcaster) {
		b.l = l
	}
}

func NewBroadcaster(name string, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		name: name,
		l:    log.Default().Named("hover"),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.setupMetrics()
	return b
}

// Subscription identifies a registered handler.
type Subscription struct {
	b *Broadcaster
	l *listener
}

// Cancel removes the handler. Events already queued for it are skipped.
func (s *Subscription) Cancel() {
	s.b.remove(s.l)
}

func (b *Broadcaster) Subscribe(name string, h Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	ls := &listener{id: b.nextID, name: name, handler: h}
	ls.active.Store(!b.closed)
	if !b.closed {
		b.listeners = append(b.listeners, ls)
	}
	b.l.Debug("listener added",
		log.String("name", b.name), log.String("listener", name),
		log.Int("len", len(b.listeners)))
	return &Subscription{b: b, l: ls}
}

func (b *Broadcaster) remove(ls *listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ls.active.Store(false)
	for i, entry := range b.listeners {
		if entry == ls {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			b.l.Debug("listener removed",
				log.String("name", b.name), log.String("listener", ls.name),
				log.Int("len", len(b.listeners)))
			return
		}
	}
}

func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.numDrop.Add(1)
		return
	}
	b.numRcv.Add(1)
	snapshot := make([]*listener, len(b.listeners))
	copy(snapshot, b.listeners)
	b.queue = append(b.queue, pending{event: e, listeners: snapshot})
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()
		b.deliver(next)
		b.mu.Lock()
	}
	b.draining = false
	b.mu.Unlock()
}

func (b *Broadcaster) deliver(p pending) {
	for _, ls := range p.listeners {
		if !ls.active.Load() {
			continue
		}
		ls.handler(p.event)
		b.numSnd.Add(1)
	}
}

func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.l.Info("Closing broadcaster",
		log.String("name", b.name),
		log.Int64("rcv", b.numRcv.Load()),
		log.Int64("snd", b.numSnd.Load()),
		log.Int64("drop", b.numDrop.Load()))
	for _, ls := range b.listeners {
		ls.active.Store(false)
	}
	b.listeners = nil
	b.queue = nil
	b.closed = true
}

func (b *Broadcaster) NumListeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

func (b *Broadcaster) setupMetrics() {
	meter := otel.GetMeterProvider().Meter(fmt.Sprintf("lapsync.hover.%s", b.name))
	register := func(metricName, desc string, valueProvider func() int64) {
		if _, err := meter.Int64ObservableGauge(
			metricName,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(valueProvider(),
					metric.WithAttributes(attribute.String("name", b.name)))
				return nil
			})); err != nil {
			b.l.Error("failed to register metric",
				log.String("metric", metricName),
				log.ErrorField(err))
		}
	}
	register("lapsync.hover.rcv", "Number of published events", b.numRcv.Load)
	register("lapsync.hover.snd", "Number of delivered events", b.numSnd.Load)
	register("lapsync.hover.drop", "Number of events published after close",
		b.numDrop.Load)
	register("lapsync.hover.listener", "Number of listeners", func() int64 {
		return int64(b.NumListeners())
	})
}
