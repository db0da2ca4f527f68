// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GateEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gate_evaluations_total",
			Help: "Total number of access-gate evaluations by outcome",
		},
		[]string{"outcome"},
	)

	MembershipChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_checks_total",
			Help: "Total number of membership oracle queries by result",
		},
		[]string{"result"},
	)

	OracleLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "membership_oracle_duration_seconds",
			Help: "Duration of membership oracle queries in seconds",
		},
		[]string{"method"},
	)

	CreditsDebited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_debited_total",
			Help: "Total credits debited at post creation",
		},
	)

	PostsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "posts_created_total",
			Help: "Total gated posts created",
		},
	)

	UpdatesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_processed_total",
			Help: "Total Telegram updates processed by kind",
		},
		[]string{"kind"},
	)
)
