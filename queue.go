package hsm

import (
	"sync"

	"github.com/google/uuid"
	"github.com/latticehsm/hsm/variant"
)

// completion is the one-shot notification a synchronous waiter blocks
// on (spec §4.2, §9 "Synchronous waiters"). The engine delivers a
// terminal EventStatus exactly once.
type completion struct {
	done   chan EventStatus
	once   sync.Once
}

func newCompletion() *completion {
	return &completion{done: make(chan EventStatus, 1)}
}

// deliver sends the terminal status, idempotently.
func (c *completion) deliver(status EventStatus) {
	if c == nil {
		return
	}
	c.once.Do(func() {
		c.done <- status
	})
}

// pendingEvent is a queued event awaiting dispatch (spec §3 "Pending
// event").
type pendingEvent struct {
	id         string // per-event correlation id, not identity; not written to the debug log
	event      EventID
	args       []variant.Value
	completion *completion

	// cascadeDepth counts synthesized final-state exit events chained
	// from the externally posted event that started this dispatch (spec
	// §9 Open Question 2). Zero for events posted by the application.
	cascadeDepth int
}

func newPendingEvent(event EventID, args []variant.Value) *pendingEvent {
	return &pendingEvent{id: uuid.NewString(), event: event, args: args}
}

// newCascadeEvent builds the synthesized exit event pushed to the front
// of the queue when a transition lands on a final state.
func newCascadeEvent(event EventID, args []variant.Value, depth int) *pendingEvent {
	return &pendingEvent{id: uuid.NewString(), event: event, args: args, cascadeDepth: depth}
}

// eventQueue is the Event Queue (C2): an ordered append-tail, remove-head
// buffer guarded by a mutex (spec §4.2). On a platform without threads
// the same mutex degrades to an interrupt-masked section with identical
// contract (spec §5); this implementation always uses sync.Mutex, which
// is the Go-idiomatic equivalent the teacher and the rest of the pack
// use throughout.
type eventQueue struct {
	mu      sync.Mutex
	pending []*pendingEvent
}

func newEventQueue() *eventQueue {
	return &eventQueue{}
}

// pushBack appends a pending event to the tail of the queue.
func (q *eventQueue) pushBack(p *pendingEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, p)
}

// pushFront inserts a pending event at the head, ahead of everything
// already queued. Used to make a synthesized final-state exit event
// process immediately after the transition that produced it (spec
// §4.4.1 step 5, §5).
func (q *eventQueue) pushFront(p *pendingEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append([]*pendingEvent{p}, q.pending...)
}

// pushFrontClearOthers atomically discards every queued event and
// replaces the queue with a single new one (transition_with_queue_clear,
// spec §4.4, §8 "Queue clearing atomicity"). Discarded events are
// returned so the caller can cancel their waiters.
func (q *eventQueue) pushFrontClearOthers(p *pendingEvent) []*pendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	discarded := q.pending
	q.pending = []*pendingEvent{p}
	return discarded
}

// popFront removes and returns the head of the queue, or nil if empty.
// Contract: never called reentrantly for the same queue head (spec
// §4.2) — the engine serializes dispatch per Hsm instance with its
// dispatchMu.
func (q *eventQueue) popFront() *pendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil
	}
	p := q.pending[0]
	q.pending = q.pending[1:]
	return p
}

// drainAll removes and returns every currently queued event, used by
// Release to cancel outstanding waiters.
func (q *eventQueue) drainAll() []*pendingEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := q.pending
	q.pending = nil
	return drained
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
