// Package bus implements the in-process event bus: topic-scoped
// publish/subscribe with a bounded, drop-oldest queue per subscriber.
// Publish never blocks; a full subscriber queue sheds its oldest element
// and counts the drop.
package bus

import (
	"sync"

	"github.com/nexuscore/agentrt/pkg/models"
)

const defaultQueueSize = 64

// Subscription is a live subscriber handle. Events arrive on C in
// publication order for this (topic, subscriber) pair; when the queue is
// full, the oldest queued event is discarded to make room for the new one
// and Dropped is incremented.
type Subscription struct {
	C       <-chan models.Event
	Dropped func() uint64

	bus   *Bus
	topic models.Topic
	ch    chan models.Event
}

// Unsubscribe removes the subscription; the channel is closed and no
// further events are delivered to it.
func (s *Subscription) Unsubscribe() {
	s.bus.unsubscribe(s.topic, s.ch)
}

// Bus is the shared pub/sub hub. All methods are safe for concurrent use.
type Bus struct {
	mu          sync.Mutex
	subscribers map[models.Topic][]*subscriber
	queueSize   int
}

type subscriber struct {
	mu      sync.Mutex
	ch      chan models.Event
	dropped uint64
	closed  bool
}

// New creates a Bus whose per-subscriber queues hold queueSize events
// before dropping the oldest. queueSize <= 0 uses the default of 64.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Bus{
		subscribers: make(map[models.Topic][]*subscriber),
		queueSize:   queueSize,
	}
}

// Subscribe registers a new subscriber for topic.
func (b *Bus) Subscribe(topic models.Topic) *Subscription {
	sub := &subscriber{ch: make(chan models.Event, b.queueSize)}

	b.mu.Lock()
	b.subscribers[topic] = append(b.subscribers[topic], sub)
	b.mu.Unlock()

	return &Subscription{
		C:       sub.ch,
		Dropped: sub.droppedCount,
		bus:     b,
		topic:   topic,
		ch:      sub.ch,
	}
}

func (s *subscriber) droppedCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Publish delivers ev to every current subscriber of ev.Topic. Delivery to
// each subscriber is independent: a full queue drops its own oldest entry
// and does not affect other subscribers.
func (b *Bus) Publish(ev models.Event) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subscribers[ev.Topic]...)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(ev)
	}
}

// deliver enqueues ev, dropping the oldest queued event first if the queue
// is full. The mutex serializes concurrent publishers against this
// subscriber so the drop-then-send pair is atomic.
func (s *subscriber) deliver(ev models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for {
		select {
		case s.ch <- ev:
			return
		default:
		}

		select {
		case <-s.ch:
			s.dropped++
		default:
			// Raced with a concurrent receive; loop and retry the send.
		}
	}
}

func (b *Bus) unsubscribe(topic models.Topic, ch chan models.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, sub := range subs {
		if sub.ch == ch {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			sub.mu.Lock()
			sub.closed = true
			close(ch)
			sub.mu.Unlock()
			return
		}
	}
}
