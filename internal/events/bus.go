package events

import (
	"context"
	"sync"
	"time"
)

const (
	// TopicCartUpdated fires after any settled cart mutation or refetch.
	TopicCartUpdated = "cart-updated"
	// TopicRxStoreUpdated fires after any prescription/notification write.
	TopicRxStoreUpdated = "rx-store-updated"
)

// Event carries no payload beyond its routing data; consumers re-read the
// documents they care about rather than trusting an in-memory copy.
type Event struct {
	Topic string
	Key   string
	Time  time.Time
}

type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
}

func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  16,
	}
}

// Subscribe registers a listener for a topic. The returned channel is
// buffered and drops events when the consumer lags; the cancel func (and the
// context) both release the subscription.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan Event, func()) {
	if topic == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     b.nextSequence(),
		stream: make(chan Event, b.bufferSize),
	}
	b.register(topic, sub)
	cleanup := func() {
		b.unregister(topic, sub.id)
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return sub.stream, cleanup
}

func (b *Bus) Publish(event Event) {
	if event.Topic == "" {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	b.mu.RLock()
	subscribers := b.subscribers[event.Topic]
	if len(subscribers) == 0 {
		b.mu.RUnlock()
		return
	}
	copies := make([]*subscriber, 0, len(subscribers))
	for _, sub := range subscribers {
		copies = append(copies, sub)
	}
	b.mu.RUnlock()
	for _, sub := range copies {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

func (b *Bus) nextSequence() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	return b.nextID
}

func (b *Bus) register(topic string, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[topic]; !ok {
		b.subscribers[topic] = make(map[int64]*subscriber)
	}
	b.subscribers[topic][sub.id] = sub
}

func (b *Bus) unregister(topic string, subscriberID int64) {
	b.mu.Lock()
	subscribers := b.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(b.subscribers, topic)
		}
	}
	b.mu.Unlock()
}
