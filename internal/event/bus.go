// Package event is the in-process plugin.EventBus that carries alarm,
// equipment and sync notifications between modules.
package event

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/HerbHall/alarmdesk/pkg/plugin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var _ plugin.EventBus = (*Bus)(nil)

var (
	publishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmdesk_events_published_total",
		Help: "Events published on the in-process bus, by topic.",
	}, []string{"topic"})
	handlerPanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alarmdesk_event_handler_panics_total",
		Help: "Event handlers that panicked, by topic.",
	}, []string{"topic"})
)

// Match reports whether topic is selected by pattern. Topics are dotted
// ("alarm.created"). A pattern is an exact topic, "*" for everything, or
// "prefix.*" for every topic below prefix ("sync.*" matches
// "sync.alarms.completed").
func Match(pattern, topic string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(topic, pattern[:len(pattern)-1])
	default:
		return pattern == topic
	}
}

// Bus delivers events to subscribers whose pattern matches the topic.
// Publish runs handlers in the caller's goroutine; PublishAsync runs each in
// its own goroutine on a context detached from the publisher, and Drain
// waits for those to finish.
type Bus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	logger *zap.Logger

	inflight sync.WaitGroup
}

type subscription struct {
	id      uint64
	pattern string
	handler plugin.EventHandler
}

// NewBus creates an empty bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{logger: logger}
}

// Publish delivers event synchronously. Handler panics are logged and
// counted; the remaining handlers still run.
func (b *Bus) Publish(ctx context.Context, event plugin.Event) error {
	for _, h := range b.route(&event) {
		b.deliver(ctx, h, event)
	}
	return nil
}

// PublishAsync delivers event in the background. Handlers keep the
// publisher's context values but not its cancellation: an alarm acknowledged
// over HTTP still reaches the webhook after the request has returned.
func (b *Bus) PublishAsync(ctx context.Context, event plugin.Event) {
	handlers := b.route(&event)
	if len(handlers) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)
	b.inflight.Add(len(handlers))
	for _, h := range handlers {
		go func() {
			defer b.inflight.Done()
			b.deliver(ctx, h, event)
		}()
	}
}

// Drain blocks until every handler started by PublishAsync has returned or
// ctx is done, whichever comes first.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// route stamps the event and snapshots the matching handlers.
func (b *Bus) route(event *plugin.Event) []plugin.EventHandler {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	publishedTotal.WithLabelValues(event.Topic).Inc()

	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []plugin.EventHandler
	for _, s := range b.subs {
		if Match(s.pattern, event.Topic) {
			out = append(out, s.handler)
		}
	}
	return out
}

// Subscribe registers handler for every topic pattern selects.
func (b *Bus) Subscribe(pattern string, handler plugin.EventHandler) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// SubscribeAll is Subscribe("*", handler).
func (b *Bus) SubscribeAll(handler plugin.EventHandler) (unsubscribe func()) {
	return b.Subscribe("*", handler)
}

func (b *Bus) deliver(ctx context.Context, handler plugin.EventHandler, event plugin.Event) {
	defer func() {
		if r := recover(); r != nil {
			handlerPanicsTotal.WithLabelValues(event.Topic).Inc()
			b.logger.Error("event handler panicked",
				zap.String("topic", event.Topic),
				zap.String("source", event.Source),
				zap.Any("panic", r),
			)
		}
	}()
	handler(ctx, event)
}
