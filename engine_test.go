package hsm_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehsm/hsm"
	"github.com/latticehsm/hsm/dispatcher"
	"github.com/latticehsm/hsm/variant"
)

func TestSimpleToggle(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Off", hsm.StateCallbacks{})
	b.AddState("On", hsm.StateCallbacks{})
	b.AddTransition("Off", "On", "TOGGLE", nil, nil, false)
	b.AddTransition("On", "Off", "TOGGLE", nil, nil, false)
	b.WithInitialState("Off")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	assert.True(t, m.IsStateActive(b.StateID("Off")))

	ok := m.TransitionSync(500, b.EventID("TOGGLE"))
	assert.True(t, ok)
	assert.True(t, m.IsStateActive(b.StateID("On")))

	ok = m.TransitionSync(500, b.EventID("TOGGLE"))
	assert.True(t, ok)
	assert.True(t, m.IsStateActive(b.StateID("Off")))
}

func TestCompositeEntryPoint(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Outer", hsm.StateCallbacks{})
	b.AddState("Idle", hsm.StateCallbacks{})
	b.AddState("Busy", hsm.StateCallbacks{})
	b.AddChild("Outer", "Idle")
	b.AddChild("Outer", "Busy")
	b.AddEntryPoint("Outer", "Idle", "", nil, false)
	b.AddState("Start", hsm.StateCallbacks{})
	b.AddTransition("Start", "Outer", "GO", nil, nil, false)
	b.WithInitialState("Start")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	require.True(t, m.TransitionSync(500, b.EventID("GO")))
	assert.True(t, m.IsStateActive(b.StateID("Idle")))
	assert.True(t, m.IsStateActive(b.StateID("Outer")))
}

func TestConditionalEntryPoints(t *testing.T) {
	var useBusy bool
	busyGuard := func([]variant.Value) bool { return useBusy }

	b := hsm.NewBuilder()
	b.AddState("Outer", hsm.StateCallbacks{})
	b.AddState("Idle", hsm.StateCallbacks{})
	b.AddState("Busy", hsm.StateCallbacks{})
	b.AddChild("Outer", "Idle")
	b.AddChild("Outer", "Busy")
	b.AddEntryPoint("Outer", "Busy", "", busyGuard, true)
	b.AddEntryPoint("Outer", "Idle", "", nil, false)
	b.AddState("Start", hsm.StateCallbacks{})
	b.AddTransition("Start", "Outer", "GO", nil, nil, false)
	b.AddTransition("Outer", "Start", "RESET", nil, nil, false)
	b.WithInitialState("Start")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	useBusy = false
	require.True(t, m.TransitionSync(500, b.EventID("GO")))
	assert.True(t, m.IsStateActive(b.StateID("Idle")))

	require.True(t, m.TransitionSync(500, b.EventID("RESET")))
	useBusy = true
	require.True(t, m.TransitionSync(500, b.EventID("GO")))
	assert.True(t, m.IsStateActive(b.StateID("Busy")))
}

func TestShallowHistory(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Security", hsm.StateCallbacks{})
	b.AddState("Disarmed", hsm.StateCallbacks{})
	b.AddState("Armed", hsm.StateCallbacks{})
	b.AddState("Maintenance", hsm.StateCallbacks{})
	b.AddChild("Security", "Disarmed")
	b.AddChild("Security", "Armed")
	b.AddEntryPoint("Security", "Disarmed", "", nil, false)
	b.AddHistory("Security", "SecurityHistory", hsm.Shallow, "Disarmed", nil)

	b.AddTransition("Disarmed", "Armed", "ARM", nil, nil, false)
	b.AddTransition("Security", "Maintenance", "MAINTAIN", nil, nil, false)
	b.AddTransition("Maintenance", "SecurityHistory", "RESUME", nil, nil, false)
	b.WithInitialState("Security")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	require.True(t, m.TransitionSync(500, b.EventID("ARM")))
	assert.True(t, m.IsStateActive(b.StateID("Armed")))

	require.True(t, m.TransitionSync(500, b.EventID("MAINTAIN")))
	assert.True(t, m.IsStateActive(b.StateID("Maintenance")))

	require.True(t, m.TransitionSync(500, b.EventID("RESUME")))
	assert.True(t, m.IsStateActive(b.StateID("Armed")), "history should restore Armed, not the default Disarmed entry point")
}

func TestGuardVeto(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Locked", hsm.StateCallbacks{})
	b.AddState("Unlocked", hsm.StateCallbacks{})
	allow := func([]variant.Value) bool { return false }
	b.AddTransition("Locked", "Unlocked", "UNLOCK", nil, allow, true)
	b.WithInitialState("Locked")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	ok := m.TransitionSync(500, b.EventID("UNLOCK"))
	assert.False(t, ok)
	assert.True(t, m.IsStateActive(b.StateID("Locked")))
}

func TestTimerDrivenTransition(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Waiting", hsm.StateCallbacks{})
	b.AddState("Done", hsm.StateCallbacks{})
	b.AddTransition("Waiting", "Done", "TIMEOUT", nil, nil, false)
	b.AddTimer("timeout_timer", "TIMEOUT")
	b.AddStateAction("Waiting", hsm.OnEntry, hsm.StartTimer, "timeout_timer", 20, true, "")
	b.WithInitialState("Waiting")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	require.Eventually(t, func() bool {
		return m.IsStateActive(b.StateID("Done"))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSelfTransitionReenters(t *testing.T) {
	var enters int
	b := hsm.NewBuilder()
	b.AddState("Active", hsm.StateCallbacks{
		OnState: func([]variant.Value) bool {
			enters++
			return true
		},
	})
	b.AddSelfTransition("Active", "PING", hsm.External, nil, nil, false)
	b.WithInitialState("Active")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	require.Equal(t, 1, enters)
	require.True(t, m.TransitionSync(500, b.EventID("PING")))
	assert.Equal(t, 2, enters, "an External self-transition must exit and re-enter, running on_state again")
}

func TestNoMatchingTransitionFails(t *testing.T) {
	b := hsm.NewBuilder()
	b.AddState("Idle", hsm.StateCallbacks{})
	b.WithInitialState("Idle")

	store, err := b.Build()
	require.NoError(t, err)

	m := hsm.New(store)
	d := dispatcher.NewThreaded()
	require.True(t, m.Initialize(d))
	defer func() { m.Release(); _ = d.Shutdown() }()

	ok := m.TransitionSync(500, b.EventID("UNKNOWN"))
	assert.False(t, ok)
}
