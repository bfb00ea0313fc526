package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "liyaqa_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_bookings_total",
			Help: "Total number of bookings",
		},
		[]string{"status", "charge_source"},
	)

	BookingConflictsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liyaqa_booking_conflicts_total",
			Help: "Booking transactions retried to exhaustion on conflicts",
		},
	)

	BookingCancellationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_booking_cancellations_total",
			Help: "Total number of booking cancellations",
		},
		[]string{"refunded"},
	)

	CheckInsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liyaqa_checkins_total",
			Help: "Total number of class check-ins",
		},
	)

	WaitlistPromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liyaqa_waitlist_promotions_total",
			Help: "Waitlist entries promoted to confirmed bookings",
		},
	)

	LedgerDebitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_ledger_debits_total",
			Help: "Entitlement debits by source",
		},
		[]string{"source"},
	)

	LedgerCreditsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_ledger_credits_total",
			Help: "Entitlement reversals by source",
		},
		[]string{"source"},
	)

	WalletTopUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liyaqa_wallet_topups_total",
			Help: "Total number of wallet top-ups",
		},
	)

	SubscriptionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "liyaqa_subscription_transitions_total",
			Help: "Subscription lifecycle transitions",
		},
		[]string{"to"},
	)

	EmailsSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "liyaqa_emails_sent_total",
			Help: "Total number of emails sent",
		},
	)

	EmailQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "liyaqa_email_queue_length",
			Help: "Current length of email queue",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordBooking(status, chargeSource string) {
	BookingsTotal.WithLabelValues(status, chargeSource).Inc()
}

func RecordCancellation(refunded bool) {
	if refunded {
		BookingCancellationsTotal.WithLabelValues("true").Inc()
		return
	}
	BookingCancellationsTotal.WithLabelValues("false").Inc()
}

func RecordBookingConflict() {
	BookingConflictsTotal.Inc()
}

func RecordCheckIn() {
	CheckInsTotal.Inc()
}

func RecordWaitlistPromotion() {
	WaitlistPromotionsTotal.Inc()
}

func RecordLedgerDebit(source string) {
	LedgerDebitsTotal.WithLabelValues(source).Inc()
}

func RecordLedgerCredit(source string) {
	LedgerCreditsTotal.WithLabelValues(source).Inc()
}

func RecordWalletTopUp() {
	WalletTopUpsTotal.Inc()
}

func RecordSubscriptionTransition(to string) {
	SubscriptionTransitionsTotal.WithLabelValues(to).Inc()
}

func RecordEmailSent() {
	EmailsSentTotal.Inc()
}
