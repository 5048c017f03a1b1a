package observability_test

import (
	"bytes"
	"log"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticehsm/hsm"
	"github.com/latticehsm/hsm/observability"
)

func TestLoggingObserverRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)
	o := observability.NewLoggingObserver(observability.LogWarning, logger)

	o.OnStateEnter(hsm.StateID(1)) // Info, filtered out
	assert.Empty(t, buf.String())

	o.OnTransition(hsm.StateID(1), hsm.StateID(2), hsm.EventID(3), true) // Warning, kept
	assert.Contains(t, buf.String(), "WARN")
	assert.Contains(t, buf.String(), "failed")
}

func TestLoggingObserverDefaultsToStandardLogger(t *testing.T) {
	assert.NotPanics(t, func() {
		o := observability.NewLoggingObserver(observability.LogDebug, nil)
		o.OnError(assertError{})
	})
}

type assertError struct{}

func (assertError) Error() string { return "boom" }

func TestMetricsObserverCountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsObserver(reg)

	m.OnTransition(hsm.StateID(1), hsm.StateID(2), hsm.EventID(9), false)
	m.OnTransition(hsm.StateID(1), hsm.StateID(2), hsm.EventID(9), true)
	m.OnTimerStart(hsm.TimerID(1))
	m.OnTimerFire(hsm.TimerID(1))
	m.OnError(assertError{})

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, fam := range families {
		for _, metric := range fam.Metric {
			counts[fam.GetName()] += metricValue(metric)
		}
	}

	assert.Equal(t, float64(2), counts["hsm_transitions_total"])
	assert.Equal(t, float64(1), counts["hsm_timer_starts_total"])
	assert.Equal(t, float64(1), counts["hsm_timer_fires_total"])
	assert.Equal(t, float64(1), counts["hsm_errors_total"])
}

func metricValue(m *dto.Metric) float64 {
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return 0
}
