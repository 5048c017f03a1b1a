package dispatcher

import (
	"sync"
	"time"

	"github.com/latticehsm/hsm"
)

// Cooperative is a host-polled dispatcher: it owns no goroutine of its
// own. EmitEvent only sets a pending flag; the host must call
// DispatchEvents (typically from its own main loop, e.g. once per
// iteration) to actually invoke the registered handler. This is the
// shape a single-threaded embedded host uses, where there is no
// scheduler to hand a background goroutine to.
type Cooperative struct {
	mu           sync.Mutex
	eventHandler hsm.EventHandlerFunc
	eventPending bool
	eventID      hsm.HandlerID

	timerHandler hsm.TimerHandlerFunc
	timerIDField hsm.HandlerID
	nextHandler  hsm.HandlerID

	timers  map[hsm.TimerID]*coopTimer
	started bool
}

type coopTimer struct {
	deadline   time.Time
	interval   time.Duration
	singleShot bool
	running    bool
}

// NewCooperative creates a Cooperative dispatcher.
func NewCooperative() *Cooperative {
	return &Cooperative{timers: make(map[hsm.TimerID]*coopTimer)}
}

func (c *Cooperative) RegisterEventHandler(h hsm.EventHandlerFunc) hsm.HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandler++
	c.eventID = c.nextHandler
	c.eventHandler = h
	return c.eventID
}

func (c *Cooperative) UnregisterEventHandler(id hsm.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.eventID {
		c.eventHandler = nil
	}
}

func (c *Cooperative) EmitEvent(hsm.HandlerID) {
	c.mu.Lock()
	c.eventPending = true
	c.mu.Unlock()
}

// EnqueueEvent is unsupported: Cooperative has no interrupt-safe
// buffer of its own. Pair it with an Interrupt dispatcher's buffer if
// ISR-originated events are needed alongside a cooperative host loop.
func (c *Cooperative) EnqueueEvent(hsm.HandlerID, hsm.EventID) bool {
	return false
}

func (c *Cooperative) PollInterruptEvent() (hsm.EventID, bool) {
	return hsm.InvalidEvent, false
}

func (c *Cooperative) RegisterTimerHandler(h hsm.TimerHandlerFunc) hsm.HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandler++
	c.timerIDField = c.nextHandler
	c.timerHandler = h
	return c.timerIDField
}

func (c *Cooperative) UnregisterTimerHandler(id hsm.HandlerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id == c.timerIDField {
		c.timerHandler = nil
	}
}

func (c *Cooperative) StartTimer(_ hsm.HandlerID, timer hsm.TimerID, intervalMs int64, singleShot bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	interval := time.Duration(intervalMs) * time.Millisecond
	c.timers[timer] = &coopTimer{deadline: time.Now().Add(interval), interval: interval, singleShot: singleShot, running: true}
}

func (c *Cooperative) RestartTimer(timer hsm.TimerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[timer]
	if !ok {
		return
	}
	t.deadline = time.Now().Add(t.interval)
	t.running = true
}

func (c *Cooperative) StopTimer(timer hsm.TimerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.timers, timer)
}

func (c *Cooperative) IsTimerRunning(timer hsm.TimerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[timer]
	return ok && t.running
}

// Start marks the dispatcher ready to be pumped. It does not spawn
// anything; the host's own loop must call DispatchEvents/Tick.
func (c *Cooperative) Start() {
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
}

// DispatchEvents runs the registered event handler once if EmitEvent
// was called since the last DispatchEvents, clearing the pending flag
// first so a handler invocation that itself calls EmitEvent is not
// lost. The host calls this from its own loop.
func (c *Cooperative) DispatchEvents() {
	c.mu.Lock()
	pending := c.eventPending
	c.eventPending = false
	h := c.eventHandler
	c.mu.Unlock()
	if pending && h != nil {
		h()
	}
}

// Tick fires any timers whose deadline has passed. The host calls this
// periodically from its own loop, at whatever granularity it schedules
// itself at.
func (c *Cooperative) Tick(now time.Time) {
	c.mu.Lock()
	var fired []hsm.TimerID
	for id, t := range c.timers {
		if !t.running || now.Before(t.deadline) {
			continue
		}
		fired = append(fired, id)
		if t.singleShot {
			t.running = false
		} else {
			t.deadline = now.Add(t.interval)
		}
	}
	h := c.timerHandler
	c.mu.Unlock()

	if h == nil {
		return
	}
	for _, id := range fired {
		h(id)
	}
}
