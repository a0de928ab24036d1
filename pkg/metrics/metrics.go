// Package metrics holds the Prometheus collectors of the gateway.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "withdrawal_gateway"

var (
	// QuotationsTotal counts quotation requests by outcome (issued, rejected, error).
	QuotationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "quotations_total",
		Help:      "Quotation requests by outcome.",
	}, []string{"outcome"})

	// SigningOutcomesTotal counts terminal signing states (success, rejected, sign_error, submit_error).
	SigningOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signing_outcomes_total",
		Help:      "Terminal signing states by outcome.",
	}, []string{"outcome"})

	// SubmissionsTotal counts ledger submissions by result (accepted, rejected, replayed, duplicate, error).
	SubmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "submissions_total",
		Help:      "Ledger submissions by result.",
	}, []string{"result"})

	// SubmissionDuration observes how long a submission takes once signed.
	SubmissionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "submission_duration_seconds",
		Help:      "Time from signed artifact to submission outcome.",
		Buckets:   prometheus.DefBuckets,
	})

	// BalanceFeedFailuresTotal counts balance feeds closed by an error, per source.
	BalanceFeedFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "balance_feed_failures_total",
		Help:      "Balance feeds that ended with an error.",
	}, []string{"source"})

	// OpenSessions is the number of live withdrawal sessions.
	OpenSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "open_sessions",
		Help:      "Withdrawal sessions currently open.",
	})
)

var registerOnce sync.Once

// MustRegisterMetrics registers every collector with the default registry.
// Safe to call more than once.
func MustRegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			QuotationsTotal,
			SigningOutcomesTotal,
			SubmissionsTotal,
			SubmissionDuration,
			BalanceFeedFailuresTotal,
			OpenSessions,
		)
	})
}
