package hsm

// Builder is a fluent, name-based front end over Store (following the
// teacher's StateMachineBuilder): it assigns stable StateID/EventID/
// TimerID values to names on first use, so application code can wire a
// machine together by name and still get back the opaque ids the
// engine itself operates on.
type Builder struct {
	store *Store

	stateIDs map[string]StateID
	eventIDs map[string]EventID
	timerIDs map[string]TimerID
	nextState StateID
	nextEvent EventID
	nextTimer TimerID

	lastErr error
}

// NewBuilder creates a Builder over a fresh Store.
func NewBuilder() *Builder {
	return &Builder{
		store:    NewStore(),
		stateIDs: make(map[string]StateID),
		eventIDs: make(map[string]EventID),
		timerIDs: make(map[string]TimerID),
	}
}

// StateID returns the id assigned to name, assigning a fresh one on
// first use.
func (b *Builder) StateID(name string) StateID {
	if id, ok := b.stateIDs[name]; ok {
		return id
	}
	id := b.nextState
	b.nextState++
	b.stateIDs[name] = id
	return id
}

// EventID returns the id assigned to name, assigning a fresh one on
// first use.
func (b *Builder) EventID(name string) EventID {
	if id, ok := b.eventIDs[name]; ok {
		return id
	}
	id := b.nextEvent
	b.nextEvent++
	b.eventIDs[name] = id
	return id
}

// TimerID returns the id assigned to name, assigning a fresh one on
// first use.
func (b *Builder) TimerID(name string) TimerID {
	if id, ok := b.timerIDs[name]; ok {
		return id
	}
	id := b.nextTimer
	b.nextTimer++
	b.timerIDs[name] = id
	return id
}

func (b *Builder) fail(what string) {
	if b.lastErr == nil {
		b.lastErr = newErr(CodeStructural, "builder: "+what)
	}
}

// AddState registers a regular state by name.
func (b *Builder) AddState(name string, callbacks StateCallbacks) *Builder {
	if !b.store.RegisterState(b.StateID(name), callbacks) {
		b.fail("AddState(" + name + ")")
	}
	return b
}

// AddFinalState registers name as a final state. exitEventName may be
// "", meaning the triggering event is reused (spec §3).
func (b *Builder) AddFinalState(name, exitEventName string, callbacks StateCallbacks) *Builder {
	exitEvent := InvalidEvent
	if exitEventName != "" {
		exitEvent = b.EventID(exitEventName)
	}
	if !b.store.RegisterFinalState(b.StateID(name), exitEvent, callbacks) {
		b.fail("AddFinalState(" + name + ")")
	}
	return b
}

// AddChild registers child as a plain substate of parent.
func (b *Builder) AddChild(parent, child string) *Builder {
	if !b.store.RegisterSubstate(b.StateID(parent), b.StateID(child)) {
		b.fail("AddChild(" + parent + "," + child + ")")
	}
	return b
}

// AddEntryPoint registers child as an entry point of parent, optionally
// filtered by event and guarded.
func (b *Builder) AddEntryPoint(parent, child, eventName string, guard Guard, expected bool) *Builder {
	event := InvalidEvent
	if eventName != "" {
		event = b.EventID(eventName)
	}
	if !b.store.RegisterSubstateEntryPoint(b.StateID(parent), b.StateID(child), event, guard, expected) {
		b.fail("AddEntryPoint(" + parent + "," + child + ")")
	}
	return b
}

// AddTransition registers an external transition.
func (b *Builder) AddTransition(from, to, event string, callback Callback, guard Guard, expected bool) *Builder {
	if !b.store.RegisterTransition(b.StateID(from), b.StateID(to), b.EventID(event), callback, guard, expected) {
		b.fail("AddTransition(" + from + "," + to + "," + event + ")")
	}
	return b
}

// AddSelfTransition registers an Internal or External self-transition.
func (b *Builder) AddSelfTransition(state, event string, kind TransitionKind, callback Callback, guard Guard, expected bool) *Builder {
	if !b.store.RegisterSelfTransition(b.StateID(state), b.EventID(event), kind, callback, guard, expected) {
		b.fail("AddSelfTransition(" + state + "," + event + ")")
	}
	return b
}

// AddHistory registers a history pseudo-state under parent.
func (b *Builder) AddHistory(parent, historyName string, kind HistoryKind, defaultTargetName string, callback Callback) *Builder {
	defaultTarget := InvalidState
	if defaultTargetName != "" {
		defaultTarget = b.StateID(defaultTargetName)
	}
	if !b.store.RegisterHistory(b.StateID(parent), b.StateID(historyName), kind, defaultTarget, callback) {
		b.fail("AddHistory(" + parent + "," + historyName + ")")
	}
	return b
}

// AddTimer binds timerName to eventName.
func (b *Builder) AddTimer(timerName, eventName string) *Builder {
	if !b.store.RegisterTimer(b.TimerID(timerName), b.EventID(eventName)) {
		b.fail("AddTimer(" + timerName + "," + eventName + ")")
	}
	return b
}

// AddStateAction registers a StartTimer/StopTimer/RestartTimer/
// Transition action on state.
func (b *Builder) AddStateAction(state string, trigger ActionTrigger, kind ActionKind, timerName string, intervalMs int64, singleShot bool, eventName string) *Builder {
	timer := InvalidTimer
	if timerName != "" {
		timer = b.TimerID(timerName)
	}
	event := InvalidEvent
	if eventName != "" {
		event = b.EventID(eventName)
	}
	if !b.store.RegisterStateAction(b.StateID(state), trigger, kind, timer, intervalMs, singleShot, InvalidState, event) {
		b.fail("AddStateAction(" + state + ")")
	}
	return b
}

// WithInitialState declares the machine's initial state by name.
func (b *Builder) WithInitialState(name string) *Builder {
	b.store.SetInitialState(b.StateID(name))
	return b
}

// Err returns the first registration failure encountered, if any.
func (b *Builder) Err() error {
	return b.lastErr
}

// Build returns the populated Store, or an error if any Add* call
// failed.
func (b *Builder) Build() (*Store, error) {
	if b.lastErr != nil {
		return nil, b.lastErr
	}
	return b.store, nil
}
