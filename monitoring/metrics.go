package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketScans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_scans_total",
		Help: "Ticket redemption attempts by outcome.",
	}, []string{"outcome"})

	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketing_orders_created_total",
		Help: "Pending transactions created.",
	})

	ordersDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ticketing_orders_deduplicated_total",
		Help: "Checkout submissions answered with an existing transaction.",
	})

	paymentsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_payments_completed_total",
		Help: "Payment captures applied by processor.",
	}, []string{"processor"})

	rateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ticketing_rate_limited_total",
		Help: "Requests rejected by the rate limiter.",
	}, []string{"path"})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ticketing_scan_duration_seconds",
		Help:    "Wall time of a single redemption attempt.",
		Buckets: prometheus.DefBuckets,
	})
)

func TrackScan(outcome string) {
	ticketScans.WithLabelValues(outcome).Inc()
}

func TrackScanDuration(seconds float64) {
	scanDuration.Observe(seconds)
}

func TrackOrderCreated() {
	ordersCreated.Inc()
}

func TrackOrderDeduplicated() {
	ordersDeduplicated.Inc()
}

func TrackPaymentCompleted(processor string) {
	paymentsCompleted.WithLabelValues(processor).Inc()
}

func TrackRateLimited(path string) {
	rateLimited.WithLabelValues(path).Inc()
}
