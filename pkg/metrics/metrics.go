package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "clinic"

// Metrics holds all application metrics
type Metrics struct {
	// Booking metrics
	VisitsBooked      *prometheus.CounterVec
	BookingRejections *prometheus.CounterVec
	VisitsClosed      prometheus.Counter

	// Auth metrics
	OTPIssued        prometheus.Counter
	OTPVerifications *prometheus.CounterVec
	Logins           *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec

	// Reminder metrics
	RemindersEnqueued prometheus.Counter
	RemindersSent     prometheus.Counter
	RemindersFailed   prometheus.Counter
	ReminderRetries   prometheus.Counter
	ReminderLatency   prometheus.Histogram
}

// New registers all application metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		VisitsBooked: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_booked_total",
			Help:      "Total number of visits booked or rescheduled",
		}, []string{"operation"}),
		BookingRejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Total number of rejected booking attempts by reason",
		}, []string{"reason"}),
		VisitsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "visits_closed_total",
			Help:      "Total number of visits closed by doctors",
		}),

		OTPIssued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_issued_total",
			Help:      "Total number of one-time codes issued",
		}),
		OTPVerifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "otp_verifications_total",
			Help:      "Total number of one-time code checks by result",
		}, []string{"result"}),
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Total number of login attempts",
		}, []string{"method", "result"}),
		TokensIssued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Total number of time-boxed tokens issued",
		}, []string{"kind"}),

		RemindersEnqueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "enqueued_total",
			Help:      "Total number of reminder jobs enqueued",
		}),
		RemindersSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "sent_total",
			Help:      "Total number of reminders delivered",
		}),
		RemindersFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "failed_total",
			Help:      "Total number of reminder jobs that exhausted their retries",
		}),
		ReminderRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "retries_total",
			Help:      "Total number of reminder delivery retries",
		}),
		ReminderLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reminder",
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing one reminder job",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}
