package dispatcher_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehsm/hsm"
	"github.com/latticehsm/hsm/dispatcher"
)

func TestThreadedEmitEventInvokesHandler(t *testing.T) {
	d := dispatcher.NewThreaded()
	var calls int32
	var wg sync.WaitGroup
	wg.Add(1)
	id := d.RegisterEventHandler(func() {
		atomic.AddInt32(&calls, 1)
		wg.Done()
	})
	d.Start()
	defer d.Shutdown()

	d.EmitEvent(id)
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestThreadedUnregisterStopsFutureInvocations(t *testing.T) {
	d := dispatcher.NewThreaded()
	var calls int32
	id := d.RegisterEventHandler(func() { atomic.AddInt32(&calls, 1) })
	d.Start()
	defer d.Shutdown()

	d.UnregisterEventHandler(id)
	d.EmitEvent(id)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestThreadedTimerSingleShotStopsAfterFiring(t *testing.T) {
	d := dispatcher.NewThreaded()
	fired := make(chan hsm.TimerID, 1)
	d.RegisterTimerHandler(func(id hsm.TimerID) { fired <- id })
	d.Start()
	defer d.Shutdown()

	d.StartTimer(0, hsm.TimerID(1), 10, true)
	require.True(t, d.IsTimerRunning(hsm.TimerID(1)))

	select {
	case id := <-fired:
		assert.Equal(t, hsm.TimerID(1), id)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}

	require.Eventually(t, func() bool {
		return !d.IsTimerRunning(hsm.TimerID(1))
	}, time.Second, 5*time.Millisecond)
}

func TestThreadedStopTimerPreventsFiring(t *testing.T) {
	d := dispatcher.NewThreaded()
	fired := make(chan hsm.TimerID, 1)
	d.RegisterTimerHandler(func(id hsm.TimerID) { fired <- id })
	d.Start()
	defer d.Shutdown()

	d.StartTimer(0, hsm.TimerID(2), 50, false)
	d.StopTimer(hsm.TimerID(2))
	assert.False(t, d.IsTimerRunning(hsm.TimerID(2)))

	select {
	case <-fired:
		t.Fatal("stopped timer must not fire")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestThreadedEnqueueEventUnsupported(t *testing.T) {
	d := dispatcher.NewThreaded()
	ok := d.EnqueueEvent(0, hsm.EventID(1))
	assert.False(t, ok)
	_, ok = d.PollInterruptEvent()
	assert.False(t, ok)
}

func TestCooperativeDispatchEventsOnlyRunsWhenPending(t *testing.T) {
	c := dispatcher.NewCooperative()
	var calls int
	id := c.RegisterEventHandler(func() { calls++ })
	c.Start()

	c.DispatchEvents()
	assert.Equal(t, 0, calls, "no EmitEvent yet, so DispatchEvents is a no-op")

	c.EmitEvent(id)
	c.DispatchEvents()
	assert.Equal(t, 1, calls)

	c.DispatchEvents()
	assert.Equal(t, 1, calls, "pending flag must be cleared after the first DispatchEvents")
}

func TestCooperativeTickFiresDueTimers(t *testing.T) {
	c := dispatcher.NewCooperative()
	var fired []hsm.TimerID
	c.RegisterTimerHandler(func(id hsm.TimerID) { fired = append(fired, id) })

	c.StartTimer(0, hsm.TimerID(1), 10, true)
	now := time.Now()
	c.Tick(now) // not due yet
	assert.Empty(t, fired)

	c.Tick(now.Add(20 * time.Millisecond))
	require.Len(t, fired, 1)
	assert.Equal(t, hsm.TimerID(1), fired[0])
	assert.False(t, c.IsTimerRunning(hsm.TimerID(1)), "single-shot timer must stop after firing")
}

func TestCooperativeTickRepeatingTimerReschedules(t *testing.T) {
	c := dispatcher.NewCooperative()
	var fireCount int
	c.RegisterTimerHandler(func(hsm.TimerID) { fireCount++ })

	c.StartTimer(0, hsm.TimerID(1), 10, false)
	now := time.Now()
	c.Tick(now.Add(15 * time.Millisecond))
	c.Tick(now.Add(30 * time.Millisecond))

	assert.Equal(t, 2, fireCount)
	assert.True(t, c.IsTimerRunning(hsm.TimerID(1)))
}

func TestInterruptEnqueueEventRingBufferBounded(t *testing.T) {
	in := dispatcher.NewInterrupt(2, nil)
	assert.True(t, in.EnqueueEvent(0, hsm.EventID(1)))
	assert.True(t, in.EnqueueEvent(0, hsm.EventID(2)))
	assert.False(t, in.EnqueueEvent(0, hsm.EventID(3)), "buffer at capacity must reject further enqueues")

	ev, ok := in.PollInterruptEvent()
	require.True(t, ok)
	assert.Equal(t, hsm.EventID(1), ev)

	ev, ok = in.PollInterruptEvent()
	require.True(t, ok)
	assert.Equal(t, hsm.EventID(2), ev)

	_, ok = in.PollInterruptEvent()
	assert.False(t, ok)
}

func TestInterruptEnqueueEventWakesHandler(t *testing.T) {
	in := dispatcher.NewInterrupt(4, nil)
	done := make(chan struct{})
	id := in.RegisterEventHandler(func() { close(done) })
	in.Start()

	require.True(t, in.EnqueueEvent(id, hsm.EventID(7)))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("EnqueueEvent must wake the dispatch loop")
	}
}
