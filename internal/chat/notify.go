package chat

import (
	"sync"
	"sync/atomic"
)

const subscriptionBuffer = 64

// Subscription receives server events until it is closed or the server stops.
type Subscription struct {
	hub  *notifier
	ch   chan Event
	done chan struct{}
	once sync.Once

	// mu guards sends on ch against its close.
	mu     sync.RWMutex
	closed bool
}

// C returns the event channel. It is closed after Close or after the server
// has published its final event.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes. Pending publishers blocked on this subscription are released.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

// deliver hands ev to the subscriber without blocking. With a non-nil wait it
// blocks on a full buffer until the subscriber drains, unsubscribes or wait
// is closed. It reports whether a live subscriber missed the event.
func (s *Subscription) deliver(ev Event, wait <-chan struct{}) (dropped bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return false
	default:
	}
	if wait == nil {
		return true
	}

	select {
	case s.ch <- ev:
		return false
	case <-s.done:
		return false
	case <-wait:
		return true
	}
}

func (s *Subscription) shutdown() {
	close(s.done)
	s.mu.Lock()
	s.closed = true
	close(s.ch)
	s.mu.Unlock()
}

// notifier fans events out to subscribers. A subscriber that falls behind
// loses events instead of stalling the publisher.
type notifier struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	closed  bool
	dropped atomic.Uint64
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[*Subscription]struct{})}
}

func (n *notifier) subscribe() *Subscription {
	sub := &Subscription{
		hub:  n,
		ch:   make(chan Event, subscriptionBuffer),
		done: make(chan struct{}),
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		sub.once.Do(sub.shutdown)
		return sub
	}
	n.subs[sub] = struct{}{}
	return sub
}

func (n *notifier) unsubscribe(sub *Subscription) {
	sub.once.Do(func() {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()

		sub.shutdown()
	})
}

// publish delivers ev to every current subscriber. See Subscription.deliver
// for the meaning of wait.
func (n *notifier) publish(ev Event, wait <-chan struct{}) {
	n.mu.Lock()
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		if sub.deliver(ev, wait) {
			n.dropped.Add(1)
		}
	}
}

// closeAll ends every subscription and rejects new ones.
func (n *notifier) closeAll() {
	n.mu.Lock()
	n.closed = true
	subs := make([]*Subscription, 0, len(n.subs))
	for sub := range n.subs {
		subs = append(subs, sub)
	}
	n.mu.Unlock()

	for _, sub := range subs {
		n.unsubscribe(sub)
	}
}
