package events

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/waypoint/pkg/audit"
)

const auditScope = "events"

// Event is a notification of a completed state change
type Event struct {
	ID        string                 `json:"id"`
	Topic     string                 `json:"topic"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler receives events. A returned error is logged and does not stop delivery.
type Handler func(Event) error

// SubscriptionID identifies a subscription for Unsubscribe
type SubscriptionID string

// Stats summarizes publication counts
type Stats struct {
	Topics         int              `json:"topics"`
	TotalPublished int64            `json:"total_published"`
	PerTopic       map[string]int64 `json:"per_topic"`
}

// Recorder receives bus activity, typically for metrics
type Recorder interface {
	EventPublished(topic string)
	EventHandlerFailed(topic string)
}

// Config configures a Bus
type Config struct {
	Audit    *audit.Logger
	Recorder Recorder
	Logger   *logrus.Logger
}

type subscription struct {
	id      SubscriptionID
	pattern string
	handler Handler
}

// Bus is a synchronous in-process publish/subscribe hub.
// Subscribers are called in subscription order on the publishing goroutine.
type Bus struct {
	mu        sync.RWMutex
	subs      []subscription
	published map[string]int64
	total     int64

	audit    *audit.Logger
	recorder Recorder
	log      *logrus.Logger
	now      func() time.Time
}

// NewBus creates an event bus
func NewBus(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Bus{
		published: make(map[string]int64),
		audit:     cfg.Audit,
		recorder:  cfg.Recorder,
		log:       cfg.Logger,
		now:       time.Now,
	}
}

// Subscribe registers handler for pattern. A pattern is an exact topic,
// "*" for every topic, or "prefix.*" for every topic starting with "prefix.".
func (b *Bus) Subscribe(pattern string, handler Handler) SubscriptionID {
	id := SubscriptionID(uuid.New().String())

	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, pattern: pattern, handler: handler})
	b.mu.Unlock()

	return id
}

// Unsubscribe removes a subscription and reports whether it existed
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Publish delivers an event with no source to every matching subscriber
func (b *Bus) Publish(topic string, payload map[string]interface{}) Event {
	return b.PublishFrom("", topic, payload)
}

// PublishFrom delivers an event to every matching subscriber, in subscription
// order. A failing or panicking subscriber is logged and skipped.
func (b *Bus) PublishFrom(source, topic string, payload map[string]interface{}) Event {
	event := Event{
		ID:        uuid.New().String(),
		Topic:     topic,
		Payload:   payload,
		Source:    source,
		Timestamp: b.now().UTC(),
	}

	b.mu.Lock()
	b.published[topic]++
	b.total++
	var targets []subscription
	for _, sub := range b.subs {
		if Matches(sub.pattern, topic) {
			targets = append(targets, sub)
		}
	}
	b.mu.Unlock()

	if b.recorder != nil {
		b.recorder.EventPublished(topic)
	}
	if b.audit != nil {
		b.audit.Logf(audit.LevelDebug, auditScope, "published %s from %q to %d subscribers", topic, source, len(targets))
	}

	for _, sub := range targets {
		if err := deliver(sub.handler, event); err != nil {
			b.handlerFailed(sub, event, err)
		}
	}

	return event
}

func deliver(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return handler(event)
}

func (b *Bus) handlerFailed(sub subscription, event Event, err error) {
	if b.recorder != nil {
		b.recorder.EventHandlerFailed(event.Topic)
	}
	if b.audit != nil {
		b.audit.Logf(audit.LevelError, auditScope, "subscriber %s failed on %s: %v", sub.id, event.Topic, err)
	}
	b.log.WithFields(logrus.Fields{
		"topic":           event.Topic,
		"subscription_id": sub.id,
	}).Warnf("event subscriber failed: %v", err)
}

// Stats returns publication counts. Topics counts distinct topics ever published.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	perTopic := make(map[string]int64, len(b.published))
	for topic, n := range b.published {
		perTopic[topic] = n
	}
	return Stats{
		Topics:         len(b.published),
		TotalPublished: b.total,
		PerTopic:       perTopic,
	}
}

// SubscriberCount returns the number of subscriptions whose pattern matches topic
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, sub := range b.subs {
		if Matches(sub.pattern, topic) {
			n++
		}
	}
	return n
}

// Topics returns the distinct published topics, sorted
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]string, 0, len(b.published))
	for topic := range b.published {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Matches reports whether a subscription pattern accepts topic
func Matches(pattern, topic string) bool {
	switch {
	case pattern == "*":
		return true
	case strings.HasSuffix(pattern, ".*"):
		return strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == topic
	}
}
