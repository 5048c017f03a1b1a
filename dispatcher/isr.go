package dispatcher

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/latticehsm/hsm"
)

// Interrupt is a dispatcher whose EnqueueEvent is safe to call from an
// interrupt handler or any context that cannot block: it pushes into a
// fixed-capacity ring buffer guarded by a single mutex and returns
// false immediately if the buffer is full (TimerQueueFull territory,
// spec §4.3), never allocating on that path. A Limiter throttles the
// accept rate so a runaway interrupt source cannot starve the engine's
// own queue; nil disables throttling.
//
// Event delivery itself (RegisterEventHandler/EmitEvent) is the same
// wake-on-signal scheme as Threaded, since something still has to run
// the engine's dispatch loop on a normal goroutine stack.
type Interrupt struct {
	mu           sync.Mutex
	eventHandler hsm.EventHandlerFunc
	eventID      hsm.HandlerID
	timerHandler hsm.TimerHandlerFunc
	timerID      hsm.HandlerID
	nextHandler  hsm.HandlerID

	wake chan struct{}

	ring     []hsm.EventID
	head     int
	tail     int
	size     int
	capacity int

	limiter *rate.Limiter

	timers sync.Map // hsm.TimerID -> bool (running)

	startOnce sync.Once
}

// NewInterrupt creates an Interrupt dispatcher with the given ring
// buffer capacity. limiter may be nil to accept every EnqueueEvent
// call up to the capacity bound.
func NewInterrupt(capacity int, limiter *rate.Limiter) *Interrupt {
	if capacity <= 0 {
		capacity = 1
	}
	return &Interrupt{
		wake:     make(chan struct{}, 1),
		ring:     make([]hsm.EventID, capacity),
		capacity: capacity,
		limiter:  limiter,
	}
}

func (in *Interrupt) RegisterEventHandler(h hsm.EventHandlerFunc) hsm.HandlerID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.nextHandler++
	in.eventID = in.nextHandler
	in.eventHandler = h
	return in.eventID
}

func (in *Interrupt) UnregisterEventHandler(id hsm.HandlerID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id == in.eventID {
		in.eventHandler = nil
	}
}

func (in *Interrupt) EmitEvent(hsm.HandlerID) {
	select {
	case in.wake <- struct{}{}:
	default:
	}
}

// EnqueueEvent pushes event into the ring buffer and wakes the
// dispatch loop. Safe to call without blocking from any context.
func (in *Interrupt) EnqueueEvent(_ hsm.HandlerID, event hsm.EventID) bool {
	if in.limiter != nil && !in.limiter.Allow() {
		return false
	}

	in.mu.Lock()
	if in.size == in.capacity {
		in.mu.Unlock()
		return false
	}
	in.ring[in.tail] = event
	in.tail = (in.tail + 1) % in.capacity
	in.size++
	in.mu.Unlock()

	in.EmitEvent(in.eventID)
	return true
}

// PollInterruptEvent drains one event from the ring buffer, oldest
// first.
func (in *Interrupt) PollInterruptEvent() (hsm.EventID, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.size == 0 {
		return hsm.InvalidEvent, false
	}
	ev := in.ring[in.head]
	in.head = (in.head + 1) % in.capacity
	in.size--
	return ev, true
}

func (in *Interrupt) RegisterTimerHandler(h hsm.TimerHandlerFunc) hsm.HandlerID {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.nextHandler++
	in.timerID = in.nextHandler
	in.timerHandler = h
	return in.timerID
}

func (in *Interrupt) UnregisterTimerHandler(id hsm.HandlerID) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if id == in.timerID {
		in.timerHandler = nil
	}
}

// StartTimer/RestartTimer/StopTimer/IsTimerRunning are intentionally
// minimal here: an interrupt-driven host typically schedules its own
// hardware timer and delivers fires through EnqueueEvent/PollInterruptEvent
// rather than through this engine-facing timer API, so Interrupt only
// tracks running state for IsTimerRunning's sake.
func (in *Interrupt) StartTimer(_ hsm.HandlerID, timer hsm.TimerID, _ int64, _ bool) {
	in.timers.Store(timer, true)
}

func (in *Interrupt) RestartTimer(timer hsm.TimerID) {
	in.timers.Store(timer, true)
}

func (in *Interrupt) StopTimer(timer hsm.TimerID) {
	in.timers.Delete(timer)
}

func (in *Interrupt) IsTimerRunning(timer hsm.TimerID) bool {
	v, ok := in.timers.Load(timer)
	return ok && v.(bool)
}

// Start launches the dispatch loop goroutine. Idempotent. The host
// machine's lifetime matches the process, so unlike Threaded there's no
// errgroup-coordinated shutdown here.
func (in *Interrupt) Start() {
	in.startOnce.Do(func() { go in.run() })
}

func (in *Interrupt) run() {
	for range in.wake {
		in.mu.Lock()
		h := in.eventHandler
		in.mu.Unlock()
		if h != nil {
			h()
		}
	}
}
