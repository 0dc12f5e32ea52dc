// Package eventbus is the process-wide publish/subscribe channel that tells
// outer layers about completed mutations.
//
// Each subscription owns a goroutine and an unbounded queue: events reach a
// subscriber in publish order, and a slow subscriber never blocks publishers
// or other subscribers.
package eventbus

import (
	"context"
	"strings"
	"sync"

	"github.com/dmitrijs2005/datawallet/internal/logging"
)

// Event is one namespaced domain event.
type Event struct {
	Namespace string
	Account   string
	ObjectID  string
	Data      any
}

// Publisher is what producers of domain events depend on.
type Publisher interface {
	Publish(ev Event)
}

type Bus struct {
	log logging.Logger

	mu     sync.RWMutex
	subs   map[int]*subscription
	nextID int
	closed bool
	wg     sync.WaitGroup
}

func New(log logging.Logger) *Bus {
	if log == nil {
		log = logging.Nop()
	}
	return &Bus{log: log.With("module", "eventbus"), subs: map[int]*subscription{}}
}

type subscription struct {
	pattern string
	fn      func(Event)

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	stopped bool
}

// Matches reports whether namespace matches pattern. An empty pattern or "*"
// matches everything, a trailing "*" matches by prefix.
func Matches(pattern, namespace string) bool {
	switch {
	case pattern == "" || pattern == "*":
		return true
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(namespace, strings.TrimSuffix(pattern, "*"))
	default:
		return pattern == namespace
	}
}

// Subscribe registers fn for events whose namespace matches pattern and
// returns a function that cancels the subscription. Events already queued
// for the subscriber are still delivered after cancellation.
func (b *Bus) Subscribe(pattern string, fn func(Event)) (unsubscribe func()) {
	s := &subscription{pattern: pattern, fn: fn}
	s.cond = sync.NewCond(&s.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = s
	b.wg.Add(1)
	b.mu.Unlock()

	go b.deliver(s)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			s.stop()
		})
	}
}

func (b *Bus) deliver(s *subscription) {
	defer b.wg.Done()
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		b.call(s, ev)
	}
}

func (b *Bus) call(s *subscription, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			b.log.Error(context.Background(), "subscriber panicked", "namespace", ev.Namespace, "panic", p)
		}
	}()
	s.fn(ev)
}

func (s *subscription) push(ev Event) {
	s.mu.Lock()
	if !s.stopped {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *subscription) stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Signal()
	s.mu.Unlock()
}

// Publish queues ev for every matching subscriber. It never blocks on
// subscribers. Publishing on a closed bus is a no-op.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, s := range b.subs {
		if Matches(s.pattern, ev.Namespace) {
			s.push(ev)
		}
	}
}

// Close stops accepting events, delivers what is queued and waits for every
// subscriber goroutine to finish.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = map[int]*subscription{}
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
	b.wg.Wait()
}
