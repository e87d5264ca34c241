package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "connector_hub"
)

const (
	StageAuthorize = "authorize"
	StageCallback  = "callback"
	StageRevoke    = "revoke"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

var (
	exchangeDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

	// OAuth Flow Metrics
	OAuthFlowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oauth_flows_total",
		Help:      "Count of OAuth flow steps by outcome.",
	}, []string{"connector", "stage", "outcome"})

	TokenExchangeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "oauth_token_exchange_duration_seconds",
		Help:      "Time taken by the provider token exchange.",
		Buckets:   exchangeDurationBuckets,
	}, []string{"connector"})

	// Connection Lifecycle Metrics
	ConnectionTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connection_transitions_total",
		Help:      "Count of connection status transitions.",
	}, []string{"connector", "to"})

	CredentialRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credential_refresh_total",
		Help:      "Count of credential refresh attempts by outcome.",
	}, []string{"connector", "outcome"})

	ConnectorTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connector_test_total",
		Help:      "Count of connection tests by result.",
	}, []string{"connector", "healthy"})

	RefreshSweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_sweep_duration_seconds",
		Help:      "Time taken by one credential refresh sweep.",
		Buckets:   prometheus.DefBuckets,
	})
)

// Outcome maps an error to the outcome label.
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}
