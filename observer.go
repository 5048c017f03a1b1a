package hsm

// Observer receives lifecycle notifications as the engine runs. Unlike
// the debug log (package debug), observers are a first-class Go API:
// any number may be attached, and none of them may veto — they exist
// purely to watch, not to participate in the transition algorithm.
type Observer interface {
	OnStateEnter(state StateID)
	OnStateExit(state StateID)
	OnTransition(from, to StateID, event EventID, failed bool)
	OnEventProcessed(event EventID, status EventStatus)
	OnTimerStart(timer TimerID)
	OnTimerFire(timer TimerID)
	OnError(err error)
}

// AttachObserver registers o to receive future notifications. Observers
// accumulate; there is no detach, matching the teacher's observer chain.
func (h *Hsm) AttachObserver(o Observer) {
	h.obsMu.Lock()
	defer h.obsMu.Unlock()
	h.observers = append(h.observers, o)
}

func (h *Hsm) notifyStateEnter(state StateID) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnStateEnter(state)
	}
}

func (h *Hsm) notifyStateExit(state StateID) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnStateExit(state)
	}
}

func (h *Hsm) notifyTransition(from, to StateID, event EventID, failed bool) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnTransition(from, to, event, failed)
	}
}

func (h *Hsm) notifyEventProcessed(event EventID, status EventStatus) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnEventProcessed(event, status)
	}
}

func (h *Hsm) notifyTimerStart(timer TimerID) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnTimerStart(timer)
	}
}

func (h *Hsm) notifyTimerFire(timer TimerID) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnTimerFire(timer)
	}
}

func (h *Hsm) notifyError(err error) {
	h.obsMu.RLock()
	defer h.obsMu.RUnlock()
	for _, o := range h.observers {
		o.OnError(err)
	}
}
