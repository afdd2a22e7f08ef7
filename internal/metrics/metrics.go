package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	rangeCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glowdesk",
			Name:      "range_cache_lookups_total",
			Help:      "Calendar date-range cache lookups by result.",
		},
		[]string{"result"},
	)

	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glowdesk",
			Name:      "booking_api_requests_total",
			Help:      "Requests to the upstream booking API by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glowdesk",
			Name:      "booking_created_total",
			Help:      "Count of bookings confirmed through this frontend by status.",
		},
		[]string{"status"},
	)

	otpSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glowdesk",
			Name:      "otp_sent_total",
			Help:      "Count of one-time codes requested.",
		},
	)

	otpThrottled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "glowdesk",
			Name:      "otp_throttled_total",
			Help:      "Count of one-time code requests rejected by rate limiting.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(rangeCacheLookups, apiRequests, bookingCreated, otpSent, otpThrottled)
	})
}

func IncRangeCacheHit()  { rangeCacheLookups.WithLabelValues("hit").Inc() }
func IncRangeCacheMiss() { rangeCacheLookups.WithLabelValues("miss").Inc() }

func IncAPIRequest(endpoint, outcome string) {
	apiRequests.WithLabelValues(endpoint, outcome).Inc()
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncOTPSent()      { otpSent.Inc() }
func IncOTPThrottled() { otpThrottled.Inc() }
