package engine

import (
	"sync"

	"github.com/roach88/tipsync/internal/tip"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeChain reports activity on a subscribed address.
	EventTypeChain EventType = iota + 1
	// EventTypeRemoveTip asks the loop to drop a tip.
	EventTypeRemoveTip
	// EventTypeSetPolicy replaces the eligibility policy.
	EventTypeSetPolicy
)

func (t EventType) String() string {
	switch t {
	case EventTypeChain:
		return "chain"
	case EventTypeRemoveTip:
		return "remove_tip"
	case EventTypeSetPolicy:
		return "set_policy"
	default:
		return "unknown"
	}
}

// Event is work handed to the reconciliation loop from another goroutine.
type Event struct {
	Type EventType

	// Fingerprint is set for EventTypeChain.
	Fingerprint string

	// TipID is set for EventTypeRemoveTip.
	TipID string

	// Policy is set for EventTypeSetPolicy.
	Policy *tip.Policy
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that a burst of chain notifications never
// blocks the chain client's callback goroutine.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // Signals event availability (buffered, size 1)
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: a buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Nil out the slot so the policy can be collected.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
