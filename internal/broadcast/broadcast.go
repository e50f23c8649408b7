// Package broadcast provides the bounded per-room fan-out channel. Every
// subscriber sees messages in publish order; a subscriber that falls behind
// loses its oldest pending messages and observes a lag count instead of
// ever stalling the publisher.
package broadcast

import (
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the pending-message bound per subscriber.
const DefaultCapacity = 500

type Broadcaster struct {
	mu       sync.Mutex
	capacity int
	subs     map[*Subscriber]struct{}
	closed   bool
}

func New(capacity int) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Broadcaster{
		capacity: capacity,
		subs:     make(map[*Subscriber]struct{}),
	}
}

// Subscribe registers a new consumer. Only messages published after the
// call are delivered to it.
func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{
		b:  b,
		ch: make(chan string, b.capacity),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers msg to every current subscriber. It never blocks: when a
// subscriber's buffer is full its oldest pending message is discarded and
// the subscriber's lag counter grows.
func (b *Broadcaster) Publish(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.ch <- msg:
			continue
		default:
		}
		// Full. Make room by dropping the oldest entry; the consumer may
		// race us and drain one itself, so both selects stay non-blocking.
		select {
		case <-s.ch:
			s.lagged.Add(1)
		default:
		}
		select {
		case s.ch <- msg:
		default:
			s.lagged.Add(1)
		}
	}
}

// Close detaches and closes all subscribers. Further Publish calls are
// no-ops.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type Subscriber struct {
	b      *Broadcaster
	ch     chan string
	lagged atomic.Uint64
	once   sync.Once
}

// Recv exposes the subscriber's delivery channel. It is closed when the
// subscriber or the broadcaster is closed.
func (s *Subscriber) Recv() <-chan string {
	return s.ch
}

// Lagged reports how many messages were dropped for this subscriber so far.
func (s *Subscriber) Lagged() uint64 {
	return s.lagged.Load()
}

// Close detaches the subscriber and closes its channel. Safe to call more
// than once.
func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		defer s.b.mu.Unlock()
		if _, ok := s.b.subs[s]; ok {
			delete(s.b.subs, s)
			close(s.ch)
		}
	})
}
