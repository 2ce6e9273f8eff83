package pubsub

import "sync"

// subscriberBuffer bounds each subscriber's queue. A subscriber that falls
// this far behind starts losing events; its view is expected to re-fetch the
// authoritative board instead of replaying the gap.
const subscriberBuffer = 16

// Broadcaster fans one stream of values out to any number of subscribers.
// Delivery is at-most-once per live subscriber and never blocks the
// publisher: when a subscriber's buffer is full the event is dropped for
// that subscriber only.
type Broadcaster[T any] struct {
	mu   sync.Mutex
	subs map[chan T]struct{}
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[chan T]struct{}),
	}
}

// Subscribe registers a new subscriber and returns its receive channel plus a
// cancel function. Cancel is idempotent and closes the channel, so a ranging
// consumer terminates on its own.
func (b *Broadcaster[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers value to every current subscriber, skipping any whose
// buffer is full.
func (b *Broadcaster[T]) Publish(value T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- value:
		default:
		}
	}
}

// Subscribers reports the number of live subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
