package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "installbot"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	messagesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_processed_total",
			Help:      "Inbound messages by stage they were handled in and outcome.",
		},
		[]string{"stage", "outcome"},
	)

	bookings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Booking commit attempts by result.",
		},
		[]string{"result"},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel, event kind and result.",
		},
		[]string{"channel", "kind", "result"},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_sent_total",
			Help:      "Customer reminders dispatched by the sweeper.",
		},
	)

	sessionsPurged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_purged_total",
			Help:      "Idle sessions removed by the janitor.",
		},
	)

	handleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "message_handle_seconds",
			Help:      "Time spent handling one inbound message.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			messagesProcessed,
			bookings,
			notifications,
			remindersSent,
			sessionsPurged,
			handleDuration,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncMessage(stage, outcome string) {
	messagesProcessed.WithLabelValues(stage, outcome).Inc()
}

func IncBooking(result string) {
	bookings.WithLabelValues(result).Inc()
}

func IncNotification(channel, kind, result string) {
	notifications.WithLabelValues(channel, kind, result).Inc()
}

func AddReminders(n int) {
	remindersSent.Add(float64(n))
}

func AddPurgedSessions(n int64) {
	sessionsPurged.Add(float64(n))
}

func ObserveHandle(seconds float64) {
	handleDuration.Observe(seconds)
}
