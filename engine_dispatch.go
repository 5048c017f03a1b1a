package hsm

import (
	"github.com/latticehsm/hsm/debug"
	"github.com/latticehsm/hsm/variant"
)

// onDispatcherWake is the handler registered with the Dispatcher (spec
// §4.3 "register_event_handler"). It folds any interrupt-safe events
// into the engine's own queue, then drains the queue to exhaustion,
// processing one pending event at a time.
func (h *Hsm) onDispatcherWake() {
	h.dispatchMu.Lock()
	defer h.dispatchMu.Unlock()

	for {
		for {
			ev, ok := h.dispatcher.PollInterruptEvent()
			if !ok {
				break
			}
			h.queue.pushBack(newPendingEvent(ev, nil))
		}
		p := h.queue.popFront()
		if p == nil {
			h.debugLogger.Log(debug.Record{Action: debug.ActionIdle})
			return
		}
		h.processPending(p)
	}
}

func (h *Hsm) onTimerFired(timer TimerID) {
	h.notifyTimerFire(timer)
	rec, ok := h.store.timers[timer]
	if !ok {
		return
	}
	h.Transition(rec.event)
}

// processPending runs the full matching + execution algorithm for one
// popped event (spec §4.4.1).
func (h *Hsm) processPending(p *pendingEvent) {
	h.mu.Lock()
	activeSnapshot := append([]StateID{}, h.active...)
	h.mu.Unlock()

	internal, external := h.computeCandidates(activeSnapshot, p.event, p.args)

	anySuccess := false

	for _, c := range internal {
		if c.callback != nil {
			c.callback(p.args)
		}
		anySuccess = true
		h.logTransition(c, p.event, p.args, false)
		h.notifyTransition(c.from, c.to, p.event, false)
	}

	// firedFrom lets every transition declared on one source fan out even
	// after the first of them has exited that source.
	firedFrom := map[StateID]bool{}
	for _, c := range external {
		h.mu.Lock()
		stillActive := h.isActiveNowLocked(c.from)
		h.mu.Unlock()
		if !stillActive && !firedFrom[c.from] {
			continue
		}
		ok := h.executeCandidate(c, p.event, p.args, p.cascadeDepth)
		h.logTransition(c, p.event, p.args, !ok)
		h.notifyTransition(c.from, c.to, p.event, !ok)
		if ok {
			anySuccess = true
			firedFrom[c.from] = true
		}
	}

	if !anySuccess {
		h.mu.Lock()
		active := append([]StateID{}, h.active...)
		h.mu.Unlock()
		h.invokeFailedCallback(active, p.event, p.args)
		h.notifyEventProcessed(p.event, DoneFailed)
		p.completion.deliver(DoneFailed)
		return
	}
	h.notifyEventProcessed(p.event, DoneOk)
	p.completion.deliver(DoneOk)
}

func (h *Hsm) logTransition(c *transitionRecord, event EventID, args []variant.Value, failed bool) {
	h.debugLogger.Log(debug.Record{
		Action: debug.ActionTransition,
		Source: int32(c.from),
		Target: int32(c.to),
		Event:  int32(event),
		Failed: failed,
		Args:   variant.StringSlice(args),
	})
}

// computeCandidates walks from each currently active state toward the
// root, stopping at the first ancestor declaring a transition whose
// event and guard match (spec §4.4.1 step 2, "innermost ancestor
// wins"). A guard-rejected declaration is treated as no match for that
// candidate, so the walk continues upward (spec §7).
func (h *Hsm) computeCandidates(active []StateID, event EventID, args []variant.Value) (internal, external []*transitionRecord) {
	seen := map[*transitionRecord]bool{}
	for _, leaf := range active {
		cur := leaf
		for cur != InvalidState {
			matches := h.store.transitionsFor(cur, event, args)
			if len(matches) > 0 {
				for _, m := range matches {
					if seen[m] {
						continue
					}
					seen[m] = true
					if m.kind == Internal {
						internal = append(internal, m)
					} else {
						external = append(external, m)
					}
				}
				break
			}
			p, ok := h.store.parentOfState(cur)
			if !ok {
				break
			}
			cur = p
		}
	}
	return internal, external
}

// executeCandidate runs one External (or External self-) transition:
// exit set, on_exiting veto check, exit actions, transition callback,
// entry set resolution, on_entering veto check, entry actions, on_state
// callbacks (spec §4.4.1 steps 3-6). Nothing is committed to the active
// set unless every veto check passes.
func (h *Hsm) executeCandidate(c *transitionRecord, event EventID, args []variant.Value, cascadeDepth int) bool {
	h.mu.Lock()
	working := append([]StateID{}, h.active...)
	h.mu.Unlock()

	exitSet := h.computeExitSet(working, c.from, c.to)

	for _, st := range exitSet {
		rec := h.store.stateRec(st)
		if rec != nil && rec.callbacks.OnExiting != nil {
			h.debugLogger.Log(debug.Record{Action: debug.ActionCallbackExit, Source: int32(st), Event: int32(event)})
			if !rec.callbacks.OnExiting(args) {
				return false
			}
		}
	}

	h.debugLogger.Log(debug.Record{Action: debug.ActionOnExitActions, Source: int32(c.from), Event: int32(event)})
	for _, st := range exitSet {
		h.runStateActions(st, OnExit, args)
		h.notifyStateExit(st)
	}

	working = removeAll(working, exitSet)

	if c.callback != nil {
		c.callback(args)
	}

	entrySet, ok := h.resolveEntryInto(c.from, c.to, event, args)
	if !ok {
		return false
	}

	for _, st := range entrySet {
		rec := h.store.stateRec(st)
		if rec != nil && rec.callbacks.OnEntering != nil {
			h.debugLogger.Log(debug.Record{Action: debug.ActionCallbackEnter, Target: int32(st), Event: int32(event)})
			if !rec.callbacks.OnEntering(args) {
				return false
			}
		}
	}

	h.debugLogger.Log(debug.Record{Action: debug.ActionOnEnterActions, Target: int32(c.to), Event: int32(event)})
	for _, st := range entrySet {
		h.runStateActions(st, OnEntry, args)
		h.notifyStateEnter(st)
	}

	working = appendDistinct(working, entrySet)

	h.mu.Lock()
	h.active = working
	h.mu.Unlock()

	h.saveHistory(exitSet)

	for _, st := range entrySet {
		rec := h.store.stateRec(st)
		if rec != nil && rec.callbacks.OnState != nil {
			h.debugLogger.Log(debug.Record{Action: debug.ActionCallbackState, Target: int32(st), Event: int32(event)})
			rec.callbacks.OnState(args)
		}
	}

	h.cascadeFinalStates(entrySet, event, args, cascadeDepth)
	return true
}

// computeExitSet returns, innermost-first, every active state that must
// be exited: the active descendants of source, then source itself and
// its ancestors strictly below the LCA of source and dest, each only if
// still active (spec GLOSSARY "exit set").
func (h *Hsm) computeExitSet(active []StateID, source, dest StateID) []StateID {
	lca := h.transitionLCA(source, dest)

	var descendants []StateID
	var walk func(StateID)
	walk = func(s StateID) {
		for _, child := range h.store.childrenOfState(s) {
			if containsState(active, child) {
				walk(child)
				descendants = append(descendants, child)
			}
		}
	}
	walk(source)

	var upper []StateID
	for cur := source; cur != lca && cur != InvalidState; {
		if containsState(active, cur) {
			upper = append(upper, cur)
		}
		p, ok := h.store.parentOfState(cur)
		if !ok {
			break
		}
		cur = p
	}

	return append(descendants, upper...)
}

// cascadeFinalStates synthesizes an exit event for every newly entered
// leaf that is a final state (spec §4.4.1 step 5, §3 "Final state").
// The synthesized event carries no completion handle; a chain deeper
// than maxFinalCascadeDepth is dropped and reported through the failed-
// transition callback instead of looping forever (spec §9 Open
// Question 2).
func (h *Hsm) cascadeFinalStates(entrySet []StateID, triggeringEvent EventID, args []variant.Value, cascadeDepth int) {
	for _, st := range leaves(h.store, entrySet) {
		rec := h.store.stateRec(st)
		if rec == nil || !rec.isFinal {
			continue
		}
		exitEvent := rec.exitEvent
		if exitEvent == InvalidEvent {
			exitEvent = triggeringEvent
		}
		if cascadeDepth+1 > maxFinalCascadeDepth {
			h.invokeFailedCallback(h.ActiveStates(), exitEvent, args)
			continue
		}
		h.queue.pushFront(newCascadeEvent(exitEvent, args, cascadeDepth+1))
	}
}

// saveHistory records, for every history-owning composite in exitSet,
// the descendants that were active immediately before this exit (spec
// §3 "History pseudo-state"). History is engine-owned runtime state
// mutated only from within the single-flight dispatch handler, so it
// needs no additional synchronization beyond that serialization.
func (h *Hsm) saveHistory(exitSet []StateID) {
	exited := map[StateID]bool{}
	for _, s := range exitSet {
		exited[s] = true
	}
	for _, s := range exitSet {
		histRec := h.store.historyOfParent(s)
		if histRec == nil {
			continue
		}
		var savedSet []StateID
		var savedChild StateID = InvalidState
		for _, other := range exitSet {
			if other == s {
				continue
			}
			if p, ok := h.store.parentOfState(other); ok && p == s {
				savedChild = other
			}
			if h.store.isProperAncestor(s, other) {
				savedSet = append(savedSet, other)
			}
		}
		reverseStates(savedSet)
		histRec.savedSet = savedSet
		histRec.savedChild = savedChild
	}
}

func (h *Hsm) runStateActions(state StateID, trigger ActionTrigger, args []variant.Value) {
	for _, act := range h.store.actions[state] {
		if act.trigger != trigger {
			continue
		}
		switch act.kind {
		case StartTimer:
			h.dispatcher.StartTimer(h.twHandler, act.timer, act.interval, act.singleShot)
			h.notifyTimerStart(act.timer)
		case RestartTimer:
			h.dispatcher.RestartTimer(act.timer)
			h.notifyTimerStart(act.timer)
		case StopTimer:
			h.dispatcher.StopTimer(act.timer)
		case TransitionAction:
			h.Transition(act.event, args...)
		}
	}
}

// transitionLCA is store.lca, except for an External self-transition
// (source == dest), where the plain LCA of a state with itself would be
// the state itself; a self-transition must still fully exit and
// re-enter source, so its effective LCA is source's parent.
func (h *Hsm) transitionLCA(source, dest StateID) StateID {
	if source == dest {
		p, ok := h.store.parentOfState(source)
		if !ok {
			return InvalidState
		}
		return p
	}
	return h.store.lca(source, dest)
}

func containsState(set []StateID, id StateID) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

func removeAll(set []StateID, remove []StateID) []StateID {
	out := set[:0:0]
	for _, s := range set {
		if !containsState(remove, s) {
			out = append(out, s)
		}
	}
	return out
}

func appendDistinct(set []StateID, add []StateID) []StateID {
	out := append([]StateID{}, set...)
	for _, s := range add {
		if !containsState(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func reverseStates(s []StateID) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// leaves returns the subset of states that have no other state in set
// as their child, i.e. the deepest states actually entered.
func leaves(store *Store, set []StateID) []StateID {
	parents := map[StateID]bool{}
	for _, s := range set {
		if p, ok := store.parentOfState(s); ok {
			parents[p] = true
		}
	}
	var out []StateID
	for _, s := range set {
		if !parents[s] {
			out = append(out, s)
		}
	}
	return out
}
