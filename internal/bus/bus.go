package bus

import (
	"strings"
	"sync"
	"time"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
// Delivery to a given subscriber preserves publish order; a full subscriber
// buffer drops the event rather than blocking the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
	seq  uint64
}

type subscription struct {
	namespace string
	ch        chan Event
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*subscription),
	}
}

// Publish stamps the event with a sequence number and timestamp (if unset)
// and delivers it to every subscriber whose namespace prefixes evt.Kind.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	evt.Seq = b.seq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				// Subscriber is full; drop rather than block the publisher.
			}
		}
	}
}

// Subscribe returns a channel that receives events matching the namespace
// prefix. The empty namespace matches everything. bufSize controls the
// channel buffer. Returns the channel and an unsubscribe function.
func (b *Bus) Subscribe(namespace string, bufSize int) (<-chan Event, func()) {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = &subscription{namespace: namespace, ch: ch}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
