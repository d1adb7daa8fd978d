// Package transport owns the reliable (websocket) and unreliable (UDP)
// channels to the relay server and buffers inbound frames until the tick
// goroutine drains them.
package transport

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// Inbox is an unbounded multi-producer FIFO of raw frames.
type Inbox struct {
	mu    deadlock.Mutex
	queue [][]byte
}

// NewInbox returns an empty Inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// Push appends a frame. The caller must not modify data afterwards.
func (b *Inbox) Push(data []byte) {
	b.mu.Lock()
	b.queue = append(b.queue, data)
	b.mu.Unlock()
}

// Drain removes and returns every queued frame in arrival order.
//
// Postcondition: the inbox is empty; frames pushed concurrently either appear
// in the result or remain for the next Drain.
func (b *Inbox) Drain() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

// Len returns the number of queued frames.
func (b *Inbox) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
