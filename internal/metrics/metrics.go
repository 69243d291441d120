package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsStarted counts new consultations.
	SessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medtriage_sessions_started_total",
		Help: "Number of triage sessions created.",
	})

	// Escalations counts transitions into the urgent state by trigger
	// ("keyword" or "manual").
	Escalations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtriage_escalations_total",
		Help: "Number of urgent escalations by trigger.",
	}, []string{"trigger"})

	// SweepTransitions counts timeout-sweep state changes by pass
	// ("soft" or "hard").
	SweepTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "medtriage_sweep_transitions_total",
		Help: "Number of sessions moved by the idle-timeout sweeper.",
	}, []string{"pass"})

	// SummaryFallbacks counts intake completions that fell back to the
	// placeholder summary text.
	SummaryFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medtriage_summary_fallbacks_total",
		Help: "Number of intake summaries replaced by the placeholder.",
	})

	// UrgentCases is the number of sessions currently in the urgent state,
	// refreshed on every nurse-queue listing.
	UrgentCases = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "medtriage_urgent_cases",
		Help: "Sessions currently in the urgent state.",
	})
)
