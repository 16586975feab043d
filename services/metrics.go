// services/metrics.go
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "proof_reward"

// Metrics groups every collector the service exports. One instance per registry, passed explicitly.
type Metrics struct {
	SubmissionsTotal     prometheus.Counter
	DecisionsTotal       *prometheus.CounterVec
	ClaimsTotal          *prometheus.CounterVec
	DistributionDuration prometheus.Histogram
	ReconciliationGaps   prometheus.Counter
	RecordsByStatus      *prometheus.GaugeVec
	HTTPRequestsTotal    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SubmissionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "submissions_total",
			Help:      "Accepted proof submissions",
		}),
		DecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decisions_total",
			Help:      "Moderator decisions applied",
		}, []string{"decision"}), // approved, rejected
		ClaimsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "claims_total",
			Help:      "Claim attempts by outcome",
		}, []string{"outcome"}), // claimed, claimed_late, already_claimed, unrecorded, not_approved, failed, pending, in_progress, invalid
		DistributionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "distribution_duration_seconds",
			Help:      "Time spent in the reward collaborator",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}),
		ReconciliationGaps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reconciliation_gaps_total",
			Help:      "Transfers reported by the collaborator that could not be recorded as claimed",
		}),
		RecordsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "records",
			Help:      "Submission records by lifecycle status",
		}, []string{"status"}),
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
	}
}
