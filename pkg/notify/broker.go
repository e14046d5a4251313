package notify

import (
	"log/slog"
	"sync"

	"github.com/rhuss/chatserver/pkg/observability"
)

// DefaultBufferSize is the per-subscriber queue length.
const DefaultBufferSize = 16

// Event is a single notification. An empty Type is sent as the default
// "message" event.
type Event struct {
	Type string
	Data string
}

// Broker distributes published events to all current subscribers.
// It is safe for concurrent use.
type Broker struct {
	mu     sync.RWMutex
	subs   map[chan Event]struct{}
	closed bool

	buffer int
	logger *slog.Logger
}

// NewBroker creates a broker whose subscribers queue up to buffer events.
func NewBroker(buffer int, logger *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[chan Event]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel; calling it more than once is
// safe. After Close the returned channel is already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	observability.NotifySubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() { b.remove(ch) })
	}
}

func (b *Broker) remove(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; !ok {
		return
	}
	delete(b.subs, ch)
	close(ch)
	observability.NotifySubscribers.Dec()
}

// Publish delivers ev to every subscriber without blocking. A subscriber
// whose queue is full misses the event.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	dropped := 0
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		b.logger.Warn("dropped notification for slow subscribers",
			slog.String("type", ev.Type),
			slog.Int("subscribers", dropped),
		)
	}
}

// Len returns the number of current subscribers.
func (b *Broker) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close disconnects every subscriber. Later subscriptions are closed
// immediately and Publish becomes a no-op.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
		observability.NotifySubscribers.Dec()
	}
}
