// Package bus provides synchronous topic-based publish/subscribe.
//
// Publish invokes every subscriber of a topic on the calling goroutine, in
// subscription order. The subscriber list is snapshotted before dispatch and
// no lock is held while callbacks run, so a callback may subscribe,
// unsubscribe or publish again without deadlocking.
package bus

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/randalmurphal/platformcore/pkg/platform/guard"
	"github.com/randalmurphal/platformcore/pkg/platform/observability"
)

// Message is an immutable value delivered to subscribers.
type Message struct {
	Topic     string
	Payload   string
	Timestamp time.Time
}

// NewMessage builds a Message stamped with the current time.
func NewMessage(topic, payload string) Message {
	return Message{
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}

// Subscriber receives messages. Each call gets its own copy of the Message.
type Subscriber func(Message)

// SubscriptionID identifies a subscription. Valid IDs start at 1.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Subscriber
}

// Bus routes messages by topic.
// The zero value is not usable; construct with New.
type Bus struct {
	logger  *slog.Logger
	metrics observability.MetricsRecorder

	mu     sync.RWMutex
	topics map[string][]subscription

	nextID atomic.Uint64
	panics atomic.Uint64
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics recorder. Default: observability.NoopMetrics.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(b *Bus) {
		if m != nil {
			b.metrics = m
		}
	}
}

// New creates an empty bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger:  slog.Default(),
		metrics: observability.NoopMetrics{},
		topics:  make(map[string][]subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers fn for topic and returns its ID.
// A nil fn registers nothing and returns 0.
func (b *Bus) Subscribe(topic string, fn Subscriber) SubscriptionID {
	if fn == nil {
		return 0
	}
	id := SubscriptionID(b.nextID.Add(1))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.topics[topic] = append(b.topics[topic], subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes the subscription with id.
// It returns false if no such subscription exists.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	if id == 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.topics {
		i := slices.IndexFunc(subs, func(s subscription) bool { return s.id == id })
		if i < 0 {
			continue
		}
		// Build a fresh slice; in-flight snapshots still reference the old one.
		rest := slices.Delete(slices.Clone(subs), i, i+1)
		if len(rest) == 0 {
			delete(b.topics, topic)
		} else {
			b.topics[topic] = rest
		}
		return true
	}
	return false
}

// Publish delivers msg to every subscriber of msg.Topic and returns how
// many callbacks were invoked. A panicking callback is logged and counted;
// the remaining callbacks still run.
//
// Subscriptions added or removed during dispatch take effect from the next
// Publish.
func (b *Bus) Publish(msg Message) int {
	b.mu.RLock()
	subs := b.topics[msg.Topic]
	b.mu.RUnlock()

	// Subscribe appends under the write lock, which may reuse spare capacity
	// of the backing array but never touches indices below len(subs).
	for _, s := range subs {
		b.deliver(s, msg)
	}

	b.metrics.RecordPublish(context.Background(), msg.Topic, len(subs))
	return len(subs)
}

// PublishPayload is Publish(NewMessage(topic, payload)).
func (b *Bus) PublishPayload(topic, payload string) int {
	return b.Publish(NewMessage(topic, payload))
}

func (b *Bus) deliver(s subscription, msg Message) {
	perr := guard.Run("bus:"+msg.Topic, func() { s.fn(msg) })
	if perr == nil {
		return
	}
	b.panics.Add(1)
	b.metrics.RecordCallbackPanic(context.Background(), msg.Topic)
	observability.LogPanic(b.logger, perr.Component, perr.Value, perr.Stack)
}

// SubscriberCount returns the number of subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Topics returns the topics with at least one subscriber, sorted.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.topics))
	for topic := range b.topics {
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}

// Panics returns how many callbacks have panicked.
func (b *Bus) Panics() uint64 {
	return b.panics.Load()
}
