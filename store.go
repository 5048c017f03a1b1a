package hsm

import (
	"fmt"
	"sync"

	"github.com/latticehsm/hsm/variant"
)

// Guard evaluates a condition against event args; ExpectedValue is
// compared against its return value to decide whether a transition,
// entry point or history restoration applies (spec §3).
type Guard func(args []variant.Value) bool

// Callback runs as a transition action, or as on_state/on_entering/
// on_exiting for a state. Entering/exiting callbacks may veto by
// returning false; transition and on_state callbacks never veto.
type Callback func(args []variant.Value) bool

// StateCallbacks holds the optional user callbacks a state may declare.
type StateCallbacks struct {
	// OnEntering fires before the state is entered; returning false
	// vetoes the transition.
	OnEntering Callback
	// OnState fires after the state has been entered.
	OnState Callback
	// OnExiting fires before the state is exited; returning false
	// vetoes the transition.
	OnExiting Callback
}

type stateRecord struct {
	id        StateID
	callbacks StateCallbacks
	isFinal   bool
	exitEvent EventID // InvalidEvent => inherit the triggering event
	isHistory bool
}

type entryPointRecord struct {
	parent        StateID
	child         StateID
	eventFilter   EventID // InvalidEvent => unfiltered
	guard         Guard
	expected      bool
}

type transitionRecord struct {
	from     StateID
	to       StateID
	event    EventID
	callback Callback
	guard    Guard
	expected bool
	kind     TransitionKind
}

type historyRecord struct {
	parent       StateID
	id           StateID // the history pseudo-state's own id
	kind         HistoryKind
	defaultTgt   StateID
	callback     Callback
	savedSet     []StateID // descendants of parent at time of last exit
	savedChild   StateID   // direct child of parent (shallow convenience)
}

type timerRecord struct {
	id    TimerID
	event EventID
}

type stateActionRecord struct {
	state   StateID
	trigger ActionTrigger
	kind    ActionKind
	timer   TimerID
	interval int64
	singleShot bool
	target  StateID // for TransitionAction
	event   EventID // for TransitionAction
}

// Store is the Structure Store (C1): the static topology of states,
// parent/child relations, entry points, transitions, history
// pseudo-states, timers and state actions. The application populates it
// before Initialize; after that the engine accesses it without
// synchronization and only reads it, except for the saved sets of
// history records, which saveHistory updates during dispatch (spec §5).
type Store struct {
	mu sync.Mutex

	states      map[StateID]*stateRecord
	parentOf    map[StateID]StateID
	childrenOf  map[StateID][]StateID
	entryPoints map[StateID][]*entryPointRecord
	transitions map[StateID][]*transitionRecord // keyed by `from`
	histories   map[StateID]*historyRecord       // keyed by history pseudo-state id
	historyOf   map[StateID]*historyRecord       // keyed by owning parent
	timers      map[TimerID]*timerRecord
	actions     map[StateID][]*stateActionRecord

	initialState StateID
}

// NewStore creates an empty Structure Store.
func NewStore() *Store {
	return &Store{
		states:      make(map[StateID]*stateRecord),
		parentOf:    make(map[StateID]StateID),
		childrenOf:  make(map[StateID][]StateID),
		entryPoints: make(map[StateID][]*entryPointRecord),
		transitions: make(map[StateID][]*transitionRecord),
		histories:   make(map[StateID]*historyRecord),
		historyOf:   make(map[StateID]*historyRecord),
		timers:      make(map[TimerID]*timerRecord),
		actions:     make(map[StateID][]*stateActionRecord),
		initialState: InvalidState,
	}
}

// SetInitialState declares which state Initialize descends from. Must
// be called before Initialize.
func (s *Store) SetInitialState(id StateID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialState = id
}

// InitialState returns the state registered via SetInitialState.
func (s *Store) InitialState() StateID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialState
}

// RegisterState defines a regular state, or replaces its callbacks if
// already registered.
func (s *Store) RegisterState(id StateID, callbacks StateCallbacks) bool {
	if id == InvalidState {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.states[id]
	if !exists {
		rec = &stateRecord{id: id, exitEvent: InvalidEvent}
		s.states[id] = rec
	}
	rec.callbacks = callbacks
	return true
}

// RegisterFinalState defines a final state. exitEvent may be
// InvalidEvent, in which case the engine synthesizes the triggering
// event as the exit event (spec §3, §4.4.1 step 5).
func (s *Store) RegisterFinalState(id StateID, exitEvent EventID, callbacks StateCallbacks) bool {
	if id == InvalidState {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.states[id]
	if !exists {
		rec = &stateRecord{id: id}
		s.states[id] = rec
	}
	rec.callbacks = callbacks
	rec.isFinal = true
	rec.exitEvent = exitEvent
	return true
}

// isAncestorLocked reports whether candidate is an ancestor of id (used for
// cycle detection). Must be called with s.mu held.
func (s *Store) isAncestorLocked(candidate, id StateID) bool {
	cur := id
	for {
		parent, ok := s.parentOf[cur]
		if !ok {
			return false
		}
		if parent == candidate {
			return true
		}
		cur = parent
	}
}

// RegisterSubstate registers child as a plain (unconditional, unfiltered)
// child of parent. Returns false if this would create a cycle or
// reparent a child that already belongs to a different parent.
func (s *Store) RegisterSubstate(parent, child StateID) bool {
	return s.registerEntryPointInternal(parent, child, InvalidEvent, nil, false, true)
}

// RegisterSubstateEntryPoint registers child as an entry point of
// parent, optionally filtered by event and/or guarded.
func (s *Store) RegisterSubstateEntryPoint(parent, child StateID, event EventID, guard Guard, expected bool) bool {
	return s.registerEntryPointInternal(parent, child, event, guard, expected, false)
}

func (s *Store) registerEntryPointInternal(parent, child StateID, event EventID, guard Guard, expected bool, plain bool) bool {
	if parent == InvalidState || child == InvalidState || parent == child {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingParent, ok := s.parentOf[child]; ok && existingParent != parent {
		return false
	}
	if s.isAncestorLocked(child, parent) || parent == child {
		return false
	}

	if _, ok := s.parentOf[child]; !ok {
		s.parentOf[child] = parent
		s.childrenOf[parent] = append(s.childrenOf[parent], child)
	}

	if plain {
		return true
	}

	s.entryPoints[parent] = append(s.entryPoints[parent], &entryPointRecord{
		parent:      parent,
		child:       child,
		eventFilter: event,
		guard:       guard,
		expected:    expected,
	})
	return true
}

// RegisterTransition registers an external transition from -> to on
// event, with an optional guard and callback.
func (s *Store) RegisterTransition(from, to StateID, event EventID, callback Callback, guard Guard, expected bool) bool {
	return s.registerTransition(from, to, event, callback, guard, expected, External)
}

// RegisterSelfTransition registers a transition whose from == to,
// either Internal (no exit/entry) or External (full exit/entry cycle).
func (s *Store) RegisterSelfTransition(state StateID, event EventID, kind TransitionKind, callback Callback, guard Guard, expected bool) bool {
	if kind == EntryPoint {
		return false
	}
	return s.registerTransition(state, state, event, callback, guard, expected, kind)
}

func (s *Store) registerTransition(from, to StateID, event EventID, callback Callback, guard Guard, expected bool, kind TransitionKind) bool {
	if from == InvalidState || to == InvalidState || event == InvalidEvent {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transitions[from] = append(s.transitions[from], &transitionRecord{
		from: from, to: to, event: event,
		callback: callback, guard: guard, expected: expected, kind: kind,
	})
	return true
}

// RegisterHistory registers a history pseudo-state owned by parent.
func (s *Store) RegisterHistory(parent, historyState StateID, kind HistoryKind, defaultTarget StateID, callback Callback) bool {
	if parent == InvalidState || historyState == InvalidState {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.historyOf[parent]; exists {
		return false
	}

	rec := &historyRecord{
		parent:     parent,
		id:         historyState,
		kind:       kind,
		defaultTgt: defaultTarget,
		callback:   callback,
		savedChild: InvalidState,
	}
	s.histories[historyState] = rec
	s.historyOf[parent] = rec

	if _, ok := s.states[historyState]; !ok {
		s.states[historyState] = &stateRecord{id: historyState, exitEvent: InvalidEvent}
	}
	s.states[historyState].isHistory = true
	return true
}

// RegisterTimer binds timerID to the event it posts when it fires.
func (s *Store) RegisterTimer(timerID TimerID, event EventID) bool {
	if timerID == InvalidTimer || event == InvalidEvent {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timers[timerID] = &timerRecord{id: timerID, event: event}
	return true
}

// RegisterStateAction registers a StartTimer/StopTimer/RestartTimer/
// Transition action to run when state is entered or exited.
func (s *Store) RegisterStateAction(state StateID, trigger ActionTrigger, kind ActionKind, timer TimerID, interval int64, singleShot bool, target StateID, event EventID) bool {
	if state == InvalidState {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions[state] = append(s.actions[state], &stateActionRecord{
		state: state, trigger: trigger, kind: kind,
		timer: timer, interval: interval, singleShot: singleShot,
		target: target, event: event,
	})
	return true
}

// --- Queries used by the engine (read-only, lock-free after Initialize) ---

func (s *Store) parentOfState(id StateID) (StateID, bool) {
	p, ok := s.parentOf[id]
	return p, ok
}

func (s *Store) childrenOfState(id StateID) []StateID {
	return s.childrenOf[id]
}

func (s *Store) isComposite(id StateID) bool {
	return len(s.childrenOf[id]) > 0
}

func (s *Store) isFinal(id StateID) bool {
	rec, ok := s.states[id]
	return ok && rec.isFinal
}

func (s *Store) isHistoryState(id StateID) bool {
	rec, ok := s.states[id]
	return ok && rec.isHistory
}

func (s *Store) stateRec(id StateID) *stateRecord {
	return s.states[id]
}

func (s *Store) historyOfParent(parent StateID) *historyRecord {
	return s.historyOf[parent]
}

func (s *Store) historyByID(id StateID) *historyRecord {
	return s.histories[id]
}

// entryPointsFor returns the entry points of parent that match event,
// applying "filtered-by-event wins over unfiltered" (spec §4.4.2).
func (s *Store) entryPointsFor(parent StateID, event EventID, args []variant.Value) []*entryPointRecord {
	all := s.entryPoints[parent]
	if len(all) == 0 {
		return nil
	}

	var filtered, unfiltered []*entryPointRecord
	for _, ep := range all {
		if ep.eventFilter != InvalidEvent && ep.eventFilter != event {
			continue
		}
		if ep.guard != nil && ep.guard(args) != ep.expected {
			continue
		}
		if ep.eventFilter == event && event != InvalidEvent {
			filtered = append(filtered, ep)
		} else {
			unfiltered = append(unfiltered, ep)
		}
	}

	if len(filtered) > 0 {
		return filtered
	}
	return unfiltered
}

// transitionsFor returns every registered transition on `from` whose
// event matches and whose guard (if any) evaluates to its expected
// value. Ancestor walking happens in the engine, not here.
func (s *Store) transitionsFor(from StateID, event EventID, args []variant.Value) []*transitionRecord {
	var out []*transitionRecord
	for _, t := range s.transitions[from] {
		if t.event != event {
			continue
		}
		if t.guard != nil && t.guard(args) != t.expected {
			continue
		}
		out = append(out, t)
	}
	return out
}

// hasAnyTransitionDeclared reports whether `from` declares any
// transition (regardless of guard) on event. IsTransitionPossible does
// not use it; it goes through computeCandidates, which honors guards.
func (s *Store) hasAnyTransitionDeclared(from StateID, event EventID) bool {
	for _, t := range s.transitions[from] {
		if t.event == event {
			return true
		}
	}
	return false
}

// lca returns the least common ancestor of a and b (spec GLOSSARY). It
// may be InvalidState if the states share no ancestor (i.e. the LCA is
// the implicit root).
func (s *Store) lca(a, b StateID) StateID {
	ancestors := map[StateID]struct{}{}
	for cur := a; ; {
		ancestors[cur] = struct{}{}
		p, ok := s.parentOf[cur]
		if !ok {
			break
		}
		cur = p
	}
	for cur := b; ; {
		if _, ok := ancestors[cur]; ok {
			return cur
		}
		p, ok := s.parentOf[cur]
		if !ok {
			return InvalidState
		}
		cur = p
	}
}

// isProperAncestor reports whether ancestor is a strict ancestor of id.
func (s *Store) isProperAncestor(ancestor, id StateID) bool {
	if ancestor == InvalidState {
		return true // the implicit root is an ancestor of everything
	}
	cur := id
	for {
		p, ok := s.parentOf[cur]
		if !ok {
			return false
		}
		if p == ancestor {
			return true
		}
		cur = p
	}
}

// ancestorChainOutermostFirst returns id and every ancestor of id, root
// first (outermost-first), ending with id itself.
func (s *Store) ancestorChainOutermostFirst(id StateID) []StateID {
	var chain []StateID
	for cur := id; cur != InvalidState; {
		chain = append([]StateID{cur}, chain...)
		p, ok := s.parentOf[cur]
		if !ok {
			break
		}
		cur = p
	}
	return chain
}

// chainFromTo returns the states strictly below lca down to and
// including dest, outermost-first. lca == InvalidState means "from the
// implicit root", i.e. the full ancestor chain of dest.
func (s *Store) chainFromTo(lca, dest StateID) []StateID {
	full := s.ancestorChainOutermostFirst(dest)
	if lca == InvalidState {
		return full
	}
	for i, st := range full {
		if st == lca {
			return append([]StateID{}, full[i+1:]...)
		}
	}
	return full
}

func (s *Store) describeState(id StateID) string {
	if id == InvalidState {
		return "<invalid>"
	}
	return fmt.Sprintf("state(%d)", id)
}
