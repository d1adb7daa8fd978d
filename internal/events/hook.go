// Package events provides the typed callback surface through which the client
// notifies application code of session, room and gameplay changes.
package events

import (
	"sync/atomic"

	deadlock "github.com/sasha-s/go-deadlock"
)

// Hook is an ordered list of handlers for values of type T.
type Hook[T any] struct {
	mu       deadlock.Mutex
	nextID   uint64
	handlers []*handler[T]
}

type handler[T any] struct {
	id      uint64
	fn      func(T)
	removed atomic.Bool
}

// Subscription removes its handler from a hook when Unsubscribe is called.
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe removes the handler. Calling it more than once, or on a zero
// Subscription, is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.unsubscribe == nil {
		return
	}
	s.unsubscribe()
	s.unsubscribe = nil
}

// Subscribe appends fn to the hook.
//
// Precondition: fn must not be nil.
// Postcondition: fn is invoked on every subsequent Emit until the returned
// Subscription is unsubscribed.
func (h *Hook[T]) Subscribe(fn func(T)) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.handlers = append(h.handlers, &handler[T]{id: id, fn: fn})
	return &Subscription{unsubscribe: func() { h.remove(id) }}
}

func (h *Hook[T]) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, hd := range h.handlers {
		if hd.id == id {
			hd.removed.Store(true)
			h.handlers = append(h.handlers[:i:i], h.handlers[i+1:]...)
			return
		}
	}
}

// Emit invokes every handler subscribed at the time of the call, in
// subscription order. A handler subscribed during Emit runs from the next
// Emit; one unsubscribed during Emit is skipped if it has not run yet.
func (h *Hook[T]) Emit(v T) {
	h.mu.Lock()
	snapshot := append([]*handler[T](nil), h.handlers...)
	h.mu.Unlock()

	for _, hd := range snapshot {
		if hd.removed.Load() {
			continue
		}
		hd.fn(v)
	}
}

// Len returns the number of subscribed handlers.
func (h *Hook[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.handlers)
}
