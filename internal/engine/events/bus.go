package events

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler is a callback invoked for every published event of a subscribed type.
type Handler func(Event)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a synchronous publish/subscribe hub. Handlers for a type run in
// registration order. A handler may publish further events; those nested
// publishes are queued and flushed after the current dispatch completes, so
// delivery order is preserved and subscriber iteration is never corrupted.
type Bus struct {
	mu       sync.Mutex
	logger   *zap.Logger
	subs     map[Type][]subscription
	nextID   int
	dispatch bool
	pending  []Event
}

// NewBus constructs a fresh event bus.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		logger: logger,
		subs:   make(map[Type][]subscription),
	}
}

// Subscribe registers a handler for the given event type and returns a
// function that removes it. Calling the returned function more than once is
// safe.
func (b *Bus) Subscribe(eventType Type, handler Handler) func() {
	if handler == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType Type, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the event to the current subscribers of its type. When
// called from within a handler the event is queued; the outermost Publish
// drains the queue in FIFO order once its own dispatch has finished.
func (b *Bus) Publish(eventType Type, payload Payload) {
	event := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	if b.dispatch {
		b.pending = append(b.pending, event)
		b.mu.Unlock()
		return
	}
	b.dispatch = true
	b.mu.Unlock()

	b.deliver(event)
	for {
		b.mu.Lock()
		if len(b.pending) == 0 {
			b.dispatch = false
			b.mu.Unlock()
			return
		}
		next := b.pending[0]
		b.pending = b.pending[1:]
		b.mu.Unlock()
		b.deliver(next)
	}
}

// deliver snapshots the subscriber list so handlers that subscribe or
// unsubscribe mid-dispatch do not affect the in-flight delivery.
func (b *Bus) deliver(event Event) {
	b.mu.Lock()
	subs := make([]subscription, len(b.subs[event.Type]))
	copy(subs, b.subs[event.Type])
	b.mu.Unlock()

	b.logger.Debug("publishing event",
		zap.String("type", string(event.Type)),
		zap.Int("subscribers", len(subs)),
	)

	for _, sub := range subs {
		b.invoke(sub, event)
	}
}

// invoke runs one handler, containing panics so a misbehaving subscriber
// cannot abort the dispatch loop and leave queued events undelivered.
func (b *Bus) invoke(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("type", string(event.Type)),
				zap.Int("subscription_id", sub.id),
				zap.Any("panic", r),
			)
		}
	}()
	sub.handler(event)
}

// SubscriberCount reports how many handlers are registered for a type.
func (b *Bus) SubscriberCount(eventType Type) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[eventType])
}

// Clear removes every subscription. Intended for session teardown.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Type][]subscription)
	b.pending = nil
}
