package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/latticehsm/hsm"
)

// MetricsObserver is a Prometheus-backed hsm.Observer: real collectors
// registered against the supplied Registerer, replacing a hand-rolled
// counter map with the library the rest of the pack uses for the same
// purpose.
type MetricsObserver struct {
	stateVisits       *prometheus.CounterVec
	transitionsTotal  *prometheus.CounterVec
	eventsTotal       *prometheus.CounterVec
	timerStarts       *prometheus.CounterVec
	timerFires        *prometheus.CounterVec
	errorsTotal       prometheus.Counter
}

// NewMetricsObserver registers a fresh set of collectors against
// registerer. A nil registerer uses prometheus.DefaultRegisterer.
func NewMetricsObserver(registerer prometheus.Registerer) *MetricsObserver {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(registerer)
	return &MetricsObserver{
		stateVisits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_state_visits_total",
			Help: "Number of times each state was entered.",
		}, []string{"state"}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_transitions_total",
			Help: "Number of transitions executed, by outcome.",
		}, []string{"from", "to", "event", "outcome"}),
		eventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_events_processed_total",
			Help: "Number of events drained from the queue, by terminal status.",
		}, []string{"event", "status"}),
		timerStarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_timer_starts_total",
			Help: "Number of timer (re)starts, by timer id.",
		}, []string{"timer"}),
		timerFires: f.NewCounterVec(prometheus.CounterOpts{
			Name: "hsm_timer_fires_total",
			Help: "Number of timer fires, by timer id.",
		}, []string{"timer"}),
		errorsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "hsm_errors_total",
			Help: "Number of errors reported through the observer chain.",
		}),
	}
}

func (m *MetricsObserver) OnStateEnter(state hsm.StateID) {
	m.stateVisits.WithLabelValues(strconv.Itoa(int(state))).Inc()
}

func (m *MetricsObserver) OnStateExit(hsm.StateID) {}

func (m *MetricsObserver) OnTransition(from, to hsm.StateID, event hsm.EventID, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.transitionsTotal.WithLabelValues(
		strconv.Itoa(int(from)), strconv.Itoa(int(to)), strconv.Itoa(int(event)), outcome,
	).Inc()
}

func (m *MetricsObserver) OnEventProcessed(event hsm.EventID, status hsm.EventStatus) {
	m.eventsTotal.WithLabelValues(strconv.Itoa(int(event)), status.String()).Inc()
}

func (m *MetricsObserver) OnTimerStart(timer hsm.TimerID) {
	m.timerStarts.WithLabelValues(strconv.Itoa(int(timer))).Inc()
}

func (m *MetricsObserver) OnTimerFire(timer hsm.TimerID) {
	m.timerFires.WithLabelValues(strconv.Itoa(int(timer))).Inc()
}

func (m *MetricsObserver) OnError(error) {
	m.errorsTotal.Inc()
}
