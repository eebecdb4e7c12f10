// Package stream is a keyed in-process fan-out. Producers publish by key and
// every live Subscription for that key receives a copy.
package stream

import "sync"

const DefaultBuffer = 64

type Hub[T any] struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription[T]]struct{}
	buffer int
}

func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub[T]{
		subs:   make(map[string]map[*Subscription[T]]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber for key. The caller must Cancel it.
func (h *Hub[T]) Subscribe(key string) *Subscription[T] {
	s := &Subscription[T]{
		hub: h,
		key: key,
		ch:  make(chan T, h.buffer),
	}
	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*Subscription[T]]struct{})
		h.subs[key] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish never blocks. A subscriber whose buffer is full misses v. It
// returns how many subscribers received v.
func (h *Hub[T]) Publish(key string, v T) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for s := range h.subs[key] {
		select {
		case s.ch <- v:
			delivered++
		default:
		}
	}
	return delivered
}

func (h *Hub[T]) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[key])
}

func (h *Hub[T]) remove(s *Subscription[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[s.key]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.key)
	}
	close(s.ch)
}

// Subscription is a handle on one key of a Hub.
type Subscription[T any] struct {
	hub  *Hub[T]
	key  string
	ch   chan T
	once sync.Once
}

// C is closed once the subscription is cancelled.
func (s *Subscription[T]) C() <-chan T { return s.ch }

func (s *Subscription[T]) Key() string { return s.key }

// Cancel is idempotent. Values published after it returns are never seen.
func (s *Subscription[T]) Cancel() {
	s.once.Do(func() { s.hub.remove(s) })
}
