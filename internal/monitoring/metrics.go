package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	upstreamAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nganya_upstream_attempts_total",
			Help: "HTTP attempts against the backend API, including retries",
		},
		[]string{"endpoint"},
	)

	upstreamRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nganya_upstream_retries_total",
			Help: "Retried attempts after a transient backend failure",
		},
	)

	bookings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nganya_bookings_total",
			Help: "Booking submissions by payment method and outcome",
		},
		[]string{"method", "outcome"},
	)

	paymentPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nganya_payment_polls_total",
			Help: "Payment status queries by observed result",
		},
		[]string{"result"},
	)

	activePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nganya_active_payment_polls",
			Help: "Currently running payment poll loops",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nganya_active_sessions",
			Help: "Currently live booking sessions",
		},
	)
)

func UpstreamAttempt(endpoint string) {
	upstreamAttempts.WithLabelValues(endpoint).Inc()
}

func UpstreamRetry() {
	upstreamRetries.Inc()
}

func BookingSubmitted(method, outcome string) {
	bookings.WithLabelValues(method, outcome).Inc()
}

func PaymentPoll(result string) {
	paymentPolls.WithLabelValues(result).Inc()
}

func PollStarted() {
	activePolls.Inc()
}

func PollStopped() {
	activePolls.Dec()
}

func SessionOpened() {
	activeSessions.Inc()
}

func SessionClosed() {
	activeSessions.Dec()
}
