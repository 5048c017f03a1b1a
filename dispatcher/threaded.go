// Package dispatcher provides concrete hsm.Dispatcher adapters: a
// dedicated-goroutine dispatcher, a cooperative (host-polled) one, and
// an interrupt-safe bounded-buffer one. None of them know anything
// about the engine's transition algorithm — they only satisfy the
// hsm.Dispatcher contract (spec §4.3).
package dispatcher

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticehsm/hsm"
)

// Threaded owns a dedicated goroutine that wakes whenever EmitEvent is
// called, invoking the registered event handler exactly once per wake
// (multiple EmitEvent calls before the goroutine next runs coalesce
// into a single invocation, as the Dispatcher contract allows).
type Threaded struct {
	mu           sync.Mutex
	eventHandler hsm.EventHandlerFunc
	eventID      hsm.HandlerID
	timerHandler hsm.TimerHandlerFunc
	timerID      hsm.HandlerID
	nextHandler  hsm.HandlerID

	wake chan struct{}

	timers sync.Map // hsm.TimerID -> *timerState

	group  *errgroup.Group
	cancel context.CancelFunc
	once   sync.Once
}

type timerState struct {
	mu         sync.Mutex
	cancel     context.CancelFunc
	interval   time.Duration
	singleShot bool
	running    bool
}

// NewThreaded creates a Threaded dispatcher. Events are handled only
// after Start; timers run as soon as StartTimer is called.
func NewThreaded() *Threaded {
	return &Threaded{wake: make(chan struct{}, 1)}
}

func (t *Threaded) RegisterEventHandler(h hsm.EventHandlerFunc) hsm.HandlerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextHandler++
	t.eventID = t.nextHandler
	t.eventHandler = h
	return t.eventID
}

func (t *Threaded) UnregisterEventHandler(id hsm.HandlerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.eventID {
		t.eventHandler = nil
	}
}

func (t *Threaded) EmitEvent(hsm.HandlerID) {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// EnqueueEvent is unsupported on the threaded dispatcher: there is no
// bounded interrupt-safe buffer here, only the ISR dispatcher provides
// one.
func (t *Threaded) EnqueueEvent(hsm.HandlerID, hsm.EventID) bool {
	return false
}

func (t *Threaded) PollInterruptEvent() (hsm.EventID, bool) {
	return hsm.InvalidEvent, false
}

func (t *Threaded) RegisterTimerHandler(h hsm.TimerHandlerFunc) hsm.HandlerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextHandler++
	t.timerID = t.nextHandler
	t.timerHandler = h
	return t.timerID
}

func (t *Threaded) UnregisterTimerHandler(id hsm.HandlerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.timerID {
		t.timerHandler = nil
	}
}

func (t *Threaded) StartTimer(_ hsm.HandlerID, timer hsm.TimerID, intervalMs int64, singleShot bool) {
	t.StopTimer(timer)

	ctx, cancel := context.WithCancel(context.Background())
	st := &timerState{cancel: cancel, interval: time.Duration(intervalMs) * time.Millisecond, singleShot: singleShot, running: true}
	t.timers.Store(timer, st)

	if t.group != nil {
		t.group.Go(func() error {
			t.runTimer(ctx, timer, st)
			return nil
		})
	} else {
		go t.runTimer(ctx, timer, st)
	}
}

func (t *Threaded) runTimer(ctx context.Context, timer hsm.TimerID, st *timerState) {
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.mu.Lock()
			h := t.timerHandler
			t.mu.Unlock()
			if h != nil {
				h(timer)
			}
			if st.singleShot {
				st.mu.Lock()
				st.running = false
				st.mu.Unlock()
				return
			}
		}
	}
}

func (t *Threaded) RestartTimer(timer hsm.TimerID) {
	v, ok := t.timers.Load(timer)
	if !ok {
		return
	}
	st := v.(*timerState)
	st.mu.Lock()
	interval, singleShot := st.interval, st.singleShot
	st.mu.Unlock()
	t.StartTimer(0, timer, interval.Milliseconds(), singleShot)
}

func (t *Threaded) StopTimer(timer hsm.TimerID) {
	v, ok := t.timers.LoadAndDelete(timer)
	if !ok {
		return
	}
	st := v.(*timerState)
	st.mu.Lock()
	st.running = false
	st.mu.Unlock()
	st.cancel()
}

func (t *Threaded) IsTimerRunning(timer hsm.TimerID) bool {
	v, ok := t.timers.Load(timer)
	if !ok {
		return false
	}
	st := v.(*timerState)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

// Start launches the dispatch goroutine under an errgroup, so Shutdown
// can wait for a clean exit. Idempotent.
func (t *Threaded) Start() {
	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		g, gctx := errgroup.WithContext(ctx)
		t.group = g
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-t.wake:
					t.mu.Lock()
					h := t.eventHandler
					t.mu.Unlock()
					if h != nil {
						h()
					}
				}
			}
		})
	})
}

// Shutdown cancels the dispatch loop and every running timer. It waits
// for the dispatch loop and for timers started after Start; timers
// started before Start are canceled but not waited for.
func (t *Threaded) Shutdown() error {
	if t.cancel != nil {
		t.cancel()
	}
	t.timers.Range(func(key, value any) bool {
		value.(*timerState).cancel()
		t.timers.Delete(key)
		return true
	})
	if t.group != nil {
		return t.group.Wait()
	}
	return nil
}
