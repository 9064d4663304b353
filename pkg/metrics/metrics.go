package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AccessChecks counts coach-to-client access evaluations by result (granted|denied|error).
	AccessChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutriplan_access_checks_total",
			Help: "Total number of coach access checks",
		},
		[]string{"result"},
	)

	// ApprovalOutcomes counts client decisions on invitations by action (accept|decline) and outcome.
	ApprovalOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutriplan_approval_outcomes_total",
			Help: "Total number of invitation approval attempts by outcome",
		},
		[]string{"action", "outcome"},
	)

	// InvitationsIssued counts invitations created by coaches, including resends.
	InvitationsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutriplan_invitations_issued_total",
			Help: "Total number of invitation tokens issued",
		},
		[]string{"kind"},
	)

	// InvitationDeliveryFailures counts invitation emails that could not be delivered.
	InvitationDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nutriplan_invitation_delivery_failures_total",
			Help: "Total number of invitation emails that failed to send",
		},
	)

	// InvitationsExpired counts pending invitations closed by the maintenance job.
	InvitationsExpired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nutriplan_invitations_expired_total",
			Help: "Total number of pending invitations closed after expiry",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutriplan_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
