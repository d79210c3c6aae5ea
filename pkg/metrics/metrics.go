// Package metrics holds the Prometheus collectors for webhook processing,
// ledger transitions and KYC reservations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remittance",
			Name:      "webhooks_total",
			Help:      "Webhook deliveries by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	WebhookDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remittance",
			Name:      "webhook_duration_seconds",
			Help:      "Time spent reconciling one webhook",
			Buckets: []float64{
				0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5,
			},
		},
		[]string{"provider"},
	)

	LedgerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remittance",
			Name:      "ledger_transitions_total",
			Help:      "Committed payment status transitions",
		},
		[]string{"gateway", "status"},
	)

	KYCReservationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remittance",
			Name:      "kyc_reservations_total",
			Help:      "KYC limit reservation attempts by result",
		},
		[]string{"result"},
	)

	PaymentsInitiatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remittance",
			Name:      "payments_initiated_total",
			Help:      "Client-initiated payments by gateway and resulting status",
		},
		[]string{"gateway", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		WebhooksTotal,
		WebhookDuration,
		LedgerTransitionsTotal,
		KYCReservationsTotal,
		PaymentsInitiatedTotal,
	)
}

func ObserveWebhook(provider, outcome string, seconds float64) {
	WebhooksTotal.WithLabelValues(provider, outcome).Inc()
	WebhookDuration.WithLabelValues(provider).Observe(seconds)
}

func IncTransition(gateway, status string) {
	LedgerTransitionsTotal.WithLabelValues(gateway, status).Inc()
}

func IncReservation(result string) {
	KYCReservationsTotal.WithLabelValues(result).Inc()
}

func IncInitiated(gateway, status string) {
	PaymentsInitiatedTotal.WithLabelValues(gateway, status).Inc()
}
