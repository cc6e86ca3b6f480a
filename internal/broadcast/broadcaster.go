// Package broadcast fans out encoded market-data snapshots to a dynamic
// set of subscribers, per spec.md §4.7. Each subscriber gets its own
// bounded channel; a slow or closed subscriber is dropped rather than
// stalling the product event loop that produced the snapshot.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriberQueueDepth bounds how many pending snapshots a subscriber can
// be behind before it is dropped as backpressure (§5 "Backpressure").
const subscriberQueueDepth = 64

// Subscriber is a single client's outbound sink. Send is called from the
// subscriber's own delivery goroutine, so a slow Send holds up only that
// subscriber's queue; any non-nil error from Send removes the subscriber.
type Subscriber interface {
	ID() string
	Send(msg []byte) error
}

type subscription struct {
	sub   Subscriber
	queue chan []byte
	done  chan struct{}
}

// Broadcaster holds the dynamic subscriber set for one logical stream
// (typically one per product, so per-product ordering is trivially
// preserved — there is no cross-product ordering guarantee, per §4.7).
type Broadcaster struct {
	log zerolog.Logger

	mu     sync.Mutex
	subs   map[string]*subscription
	onDrop func()
}

// New creates an empty broadcaster.
func New(log zerolog.Logger) *Broadcaster {
	return &Broadcaster{log: log, subs: make(map[string]*subscription)}
}

// SetDropHook installs a callback invoked once per subscriber dropped for
// a full queue, so a caller can wire it to a metrics counter.
func (b *Broadcaster) SetDropHook(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onDrop = fn
}

// Subscribe registers a sink and starts its delivery goroutine. Calling
// Subscribe again with the same Subscriber ID replaces the prior entry.
func (b *Broadcaster) Subscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.subs[sub.ID()]; ok {
		close(existing.done)
	}

	s := &subscription{sub: sub, queue: make(chan []byte, subscriberQueueDepth), done: make(chan struct{})}
	b.subs[sub.ID()] = s
	go b.deliver(s)
}

// Unsubscribe removes a sink; it is a no-op if the id is unknown.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.subs[id]; ok {
		close(s.done)
		delete(b.subs, id)
	}
}

// Broadcast enqueues msg for every current subscriber. Messages for a
// single broadcaster are delivered to each subscriber in the order this
// method is called; a subscriber whose queue is full is dropped rather
// than letting it stall the caller.
func (b *Broadcaster) Broadcast(msg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, s := range b.subs {
		select {
		case s.queue <- msg:
		default:
			b.log.Warn().Str("subscriber", id).Msg("broadcast queue full, dropping subscriber")
			close(s.done)
			delete(b.subs, id)
			if b.onDrop != nil {
				b.onDrop()
			}
		}
	}
}

// Count reports the current subscriber count.
func (b *Broadcaster) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *Broadcaster) deliver(s *subscription) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.sub.Send(msg); err != nil {
				b.log.Debug().Str("subscriber", s.sub.ID()).Err(err).Msg("subscriber send failed, removing")
				b.mu.Lock()
				if current, ok := b.subs[s.sub.ID()]; ok && current == s {
					delete(b.subs, s.sub.ID())
				}
				b.mu.Unlock()
				return
			}
		}
	}
}
