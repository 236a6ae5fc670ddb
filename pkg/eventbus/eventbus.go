package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// EventType names a class of domain events.
type EventType string

// SubscriberID identifies a registered handler.
type SubscriberID int

// HandlerFunc receives a published event.
type HandlerFunc func(Event)

// Event wraps a domain payload with its type and publish time.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      interface{}
}

// NewEvent stamps a payload with the current time.
func NewEvent(eventType EventType, data interface{}) Event {
	return Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data}
}

// Bus is an in-process publish/subscribe hub. Handlers run synchronously on
// the publishing goroutine; slow work belongs in a job queue behind the handler.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType]map[SubscriberID]HandlerFunc
	lastID      SubscriberID
	logger      *zap.Logger

	published *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// New constructs a Bus. The registerer may be nil.
func New(registerer prometheus.Registerer, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		subscribers: make(map[EventType]map[SubscriberID]HandlerFunc),
		logger:      logger,
	}
	if registerer != nil {
		b.published = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_events_published_total",
			Help: "Domain events published by type",
		}, []string{"type"})
		b.failures = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "domain_event_handler_failures_total",
			Help: "Domain event handlers that panicked, by type",
		}, []string{"type"})
		registerer.MustRegister(b.published, b.failures)
	}
	return b
}

// Subscribe registers fn for events of the given type.
func (b *Bus) Subscribe(eventType EventType, fn HandlerFunc) SubscriberID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	id := b.lastID
	if _, ok := b.subscribers[eventType]; !ok {
		b.subscribers[eventType] = make(map[SubscriberID]HandlerFunc)
	}
	b.subscribers[eventType][id] = fn
	return id
}

// Unsubscribe removes a handler. Unknown ids are ignored.
func (b *Bus) Unsubscribe(eventType EventType, id SubscriberID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if subs, ok := b.subscribers[eventType]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(b.subscribers, eventType)
		}
	}
}

// Publish delivers the payload to every handler subscribed to eventType.
// A panicking handler is logged and does not affect the others.
func (b *Bus) Publish(eventType EventType, data interface{}) {
	if b == nil {
		return
	}
	evt := NewEvent(eventType, data)

	b.mu.RLock()
	handlers := make([]HandlerFunc, 0, len(b.subscribers[eventType]))
	for _, fn := range b.subscribers[eventType] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	if b.published != nil {
		b.published.WithLabelValues(string(eventType)).Inc()
	}
	for _, fn := range handlers {
		if err := b.deliver(fn, evt); err != nil {
			b.logger.Error("event handler failed", zap.String("type", string(eventType)), zap.Error(err))
			if b.failures != nil {
				b.failures.WithLabelValues(string(eventType)).Inc()
			}
		}
	}
}

// SubscriberCount returns the number of handlers for eventType.
func (b *Bus) SubscriberCount(eventType EventType) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[eventType])
}

func (b *Bus) deliver(fn HandlerFunc, evt Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	fn(evt)
	return nil
}
