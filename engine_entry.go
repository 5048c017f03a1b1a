package hsm

import "github.com/latticehsm/hsm/variant"

// resolveEntryInto computes the entry set for a transition (or the
// initial descent, when source == InvalidState) from source's LCA with
// dest down into dest, outermost-first (spec §4.4.2). If dest is a
// history pseudo-state, it resolves to the state(s) history actually
// restores. ok is false if a composite along the way has no matching
// entry point (spec §7 "EntryPointUnresolved").
func (h *Hsm) resolveEntryInto(source, dest StateID, event EventID, args []variant.Value) ([]StateID, bool) {
	lca := h.transitionLCA(source, dest)

	target := dest
	isHistoryTarget := h.store.isHistoryState(dest)
	var histRec *historyRecord
	if isHistoryTarget {
		histRec = h.store.historyByID(dest)
		target = histRec.parent
	}

	chain := h.store.chainFromTo(lca, target)

	var tail []StateID
	var ok bool
	if isHistoryTarget {
		tail, ok = h.resolveHistoryEntry(histRec, event, args)
	} else {
		tail, ok = h.resolveStateEntry(target, event, args)
	}
	if !ok {
		return nil, false
	}
	return append(chain, tail...), true
}

// resolveStateEntry descends into state's declared entry points,
// recursively, until it reaches leaves. Returns the descendant chain
// below state (not including state itself).
func (h *Hsm) resolveStateEntry(state StateID, event EventID, args []variant.Value) ([]StateID, bool) {
	if !h.store.isComposite(state) {
		return nil, true
	}
	eps := h.store.entryPointsFor(state, event, args)
	if len(eps) == 0 {
		return nil, false
	}

	var result []StateID
	for _, ep := range eps {
		tail, ok := h.resolveStateEntry(ep.child, event, args)
		if !ok {
			return nil, false
		}
		result = append(result, ep.child)
		result = append(result, tail...)
	}
	return result, true
}

// resolveHistoryEntry restores a saved set, falls back to the history's
// default target, or finally to the owning parent's regular entry
// points (spec §3 "History pseudo-state").
func (h *Hsm) resolveHistoryEntry(rec *historyRecord, event EventID, args []variant.Value) ([]StateID, bool) {
	if len(rec.savedSet) > 0 || rec.savedChild != InvalidState {
		if rec.kind == Shallow {
			tail, ok := h.resolveStateEntry(rec.savedChild, event, args)
			if !ok {
				return nil, false
			}
			h.runHistoryCallback(rec, args)
			return append([]StateID{rec.savedChild}, tail...), true
		}
		h.runHistoryCallback(rec, args)
		return append([]StateID{}, rec.savedSet...), true
	}

	if rec.defaultTgt != InvalidState {
		tail, ok := h.resolveStateEntry(rec.defaultTgt, event, args)
		if !ok {
			return nil, false
		}
		h.runHistoryCallback(rec, args)
		return append([]StateID{rec.defaultTgt}, tail...), true
	}

	return h.resolveStateEntry(rec.parent, event, args)
}

func (h *Hsm) runHistoryCallback(rec *historyRecord, args []variant.Value) {
	if rec.callback != nil {
		rec.callback(args)
	}
}
