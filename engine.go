package hsm

import (
	"sync"
	"time"

	"github.com/latticehsm/hsm/debug"
	"github.com/latticehsm/hsm/variant"
)

// FailedTransitionCallback is invoked when a posted event yields no
// successful transition: either nothing in the currently active ancestor
// chains matches it, or every matching candidate was vetoed or could not
// resolve its entry (spec §4.4.1 step 7, §7 error table). It is also
// invoked when a final-state exit-event chain exceeds
// maxFinalCascadeDepth.
type FailedTransitionCallback func(active []StateID, event EventID, args []variant.Value)

// maxFinalCascadeDepth bounds the chain of synthesized final-state exit
// events a single externally posted event may trigger, breaking the
// ping-pong cycle described in spec §9 Open Question 2.
const maxFinalCascadeDepth = 64

// Hsm is the Execution Engine (C4): it owns a Structure Store and an
// Event Queue, and drives the transition algorithm described in spec
// §4.4 whenever its Dispatcher wakes it.
//
// Hsm is safe for concurrent use: Transition, TransitionSync,
// TransitionWithQueueClear and TransitionInterruptSafe may be called
// from any goroutine; dispatch itself is always serialized onto the
// dispatcher's own handler invocation.
type Hsm struct {
	store *Store
	queue *eventQueue

	mu         sync.Mutex
	active     []StateID
	dispatcher Dispatcher
	evHandler  HandlerID
	twHandler  HandlerID
	initialized bool
	released   bool

	dispatchMu sync.Mutex // serializes onDispatcherWake against itself

	failedMu sync.RWMutex
	failed   FailedTransitionCallback

	obsMu     sync.RWMutex
	observers []Observer

	debugLogger *debug.Logger
}

// New creates an Hsm bound to store. The store must be fully populated
// (via its Register* methods and SetInitialState) before Initialize is
// called.
func New(store *Store) *Hsm {
	return &Hsm{
		store:       store,
		queue:       newEventQueue(),
		debugLogger: debug.NewLogger(),
	}
}

// EnableHsmDebugging turns on the structured transition log (spec §6),
// writing to path (or HSMCPP_DUMP_PATH, or the package default).
func (h *Hsm) EnableHsmDebugging(path string) error {
	return h.debugLogger.Enable(path)
}

// EnableHsmDebuggingSink is like EnableHsmDebugging but writes to an
// already-constructed sink (e.g. an in-memory buffer in tests).
func (h *Hsm) EnableHsmDebuggingSink(sink debug.Sink) {
	h.debugLogger.EnableSink(sink)
}

// DisableHsmDebugging turns off the structured transition log.
func (h *Hsm) DisableHsmDebugging() {
	h.debugLogger.Disable()
}

// RegisterFailedTransitionCallback installs the callback invoked when a
// posted event yields no successful transition.
func (h *Hsm) RegisterFailedTransitionCallback(cb FailedTransitionCallback) {
	h.failedMu.Lock()
	defer h.failedMu.Unlock()
	h.failed = cb
}

func (h *Hsm) invokeFailedCallback(active []StateID, event EventID, args []variant.Value) {
	h.failedMu.RLock()
	cb := h.failed
	h.failedMu.RUnlock()
	if cb != nil {
		cb(active, event, args)
	}
}

// Initialize wires the engine to dispatcher and descends into the
// store's initial state (spec §4.4, "Initialize"). Returns false if
// already initialized, no initial state was set, or the initial
// entry chain is vetoed by an on_entering callback.
func (h *Hsm) Initialize(d Dispatcher) bool {
	h.mu.Lock()
	if h.initialized {
		h.mu.Unlock()
		return false
	}
	initial := h.store.InitialState()
	if initial == InvalidState {
		h.mu.Unlock()
		return false
	}
	h.mu.Unlock()

	h.mu.Lock()
	h.dispatcher = d
	h.mu.Unlock()

	entrySet, ok := h.resolveEntryInto(InvalidState, initial, InvalidEvent, nil)
	if !ok {
		return false
	}

	for _, st := range entrySet {
		rec := h.store.stateRec(st)
		if rec != nil && rec.callbacks.OnEntering != nil && !rec.callbacks.OnEntering(nil) {
			return false
		}
	}
	for _, st := range entrySet {
		h.runStateActions(st, OnEntry, nil)
		h.notifyStateEnter(st)
	}

	h.mu.Lock()
	h.active = entrySet
	h.mu.Unlock()

	h.evHandler = d.RegisterEventHandler(h.onDispatcherWake)
	h.twHandler = d.RegisterTimerHandler(h.onTimerFired)

	for _, st := range entrySet {
		rec := h.store.stateRec(st)
		if rec != nil && rec.callbacks.OnState != nil {
			rec.callbacks.OnState(nil)
		}
	}

	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()

	d.Start()
	return true
}

// Release tears the engine down: outstanding waiters are canceled,
// timers stopped, and the dispatcher handlers unregistered (spec §4.1,
// §5 "Cancellation").
func (h *Hsm) Release() {
	h.mu.Lock()
	if !h.initialized || h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	d := h.dispatcher
	h.active = nil
	h.mu.Unlock()

	for _, t := range h.store.timers {
		d.StopTimer(t.id)
	}
	for _, p := range h.queue.drainAll() {
		p.completion.deliver(Canceled)
	}
	d.UnregisterEventHandler(h.evHandler)
	d.UnregisterTimerHandler(h.twHandler)
}

func (h *Hsm) isUsable() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized && !h.released
}

// Transition posts event asynchronously; it is processed the next time
// the dispatcher drains the engine's queue.
func (h *Hsm) Transition(event EventID, args ...variant.Value) {
	if !h.isUsable() {
		return
	}
	p := newPendingEvent(event, args)
	h.queue.pushBack(p)
	h.dispatcher.EmitEvent(h.evHandler)
}

// TransitionSync posts event and blocks until it has been processed (or
// timeoutMs elapses), returning whether it completed with DoneOk.
func (h *Hsm) TransitionSync(timeoutMs int64, event EventID, args ...variant.Value) bool {
	if !h.isUsable() {
		return false
	}
	p := newPendingEvent(event, args)
	p.completion = newCompletion()
	h.queue.pushBack(p)
	h.dispatcher.EmitEvent(h.evHandler)

	if timeoutMs <= 0 {
		return <-p.completion.done == DoneOk
	}
	select {
	case status := <-p.completion.done:
		return status == DoneOk
	case <-time.After(time.Duration(timeoutMs) * time.Millisecond):
		return false
	}
}

// TransitionWithQueueClear atomically discards every currently queued
// event and replaces the queue with event (spec §4.4, §8 "Queue
// clearing atomicity"). Discarded waiters are delivered Canceled.
func (h *Hsm) TransitionWithQueueClear(event EventID, args ...variant.Value) {
	if !h.isUsable() {
		return
	}
	p := newPendingEvent(event, args)
	discarded := h.queue.pushFrontClearOthers(p)
	for _, d := range discarded {
		d.completion.deliver(Canceled)
	}
	h.dispatcher.EmitEvent(h.evHandler)
}

// TransitionInterruptSafe posts event through the dispatcher's
// interrupt-safe bounded path (spec §4.3 "enqueue_event"). It returns
// false if the dispatcher's buffer is full; no args are supported, as
// this path must not allocate on the hot path.
func (h *Hsm) TransitionInterruptSafe(event EventID) bool {
	if !h.isUsable() {
		return false
	}
	return h.dispatcher.EnqueueEvent(h.evHandler, event)
}

// ActiveStates returns the current active-state set, outermost
// ancestors first within each region.
func (h *Hsm) ActiveStates() []StateID {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StateID, len(h.active))
	copy(out, h.active)
	return out
}

// LastActiveState returns the most recently entered leaf state, or
// InvalidState if the engine has not been initialized.
func (h *Hsm) LastActiveState() StateID {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.active) == 0 {
		return InvalidState
	}
	return h.active[len(h.active)-1]
}

// IsStateActive reports whether id is currently active.
func (h *Hsm) IsStateActive(id StateID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.active {
		if s == id {
			return true
		}
	}
	return false
}

func (h *Hsm) isActiveNowLocked(id StateID) bool {
	for _, s := range h.active {
		if s == id {
			return true
		}
	}
	return false
}

// IsTransitionPossible reports whether event (with args) currently
// matches any internal or external transition, without executing it.
func (h *Hsm) IsTransitionPossible(event EventID, args ...variant.Value) bool {
	if !h.isUsable() {
		return false
	}
	h.mu.Lock()
	active := append([]StateID{}, h.active...)
	h.mu.Unlock()
	internal, external := h.computeCandidates(active, event, args)
	return len(internal) > 0 || len(external) > 0
}

// StartTimer arms timer directly (outside of a state action), posting
// its bound event when it fires.
func (h *Hsm) StartTimer(timer TimerID, intervalMs int64, singleShot bool) {
	if !h.isUsable() {
		return
	}
	h.dispatcher.StartTimer(h.twHandler, timer, intervalMs, singleShot)
}

// RestartTimer restarts an already-configured timer with its previous
// parameters.
func (h *Hsm) RestartTimer(timer TimerID) {
	if !h.isUsable() {
		return
	}
	h.dispatcher.RestartTimer(timer)
}

// StopTimer cancels a running timer.
func (h *Hsm) StopTimer(timer TimerID) {
	if !h.isUsable() {
		return
	}
	h.dispatcher.StopTimer(timer)
}

// IsTimerRunning reports whether timer is currently armed.
func (h *Hsm) IsTimerRunning(timer TimerID) bool {
	if !h.isUsable() {
		return false
	}
	return h.dispatcher.IsTimerRunning(timer)
}
