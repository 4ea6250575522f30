package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncMessage("COLLECTING_NAME", "advanced")
		IncNotification("email", "confirmed", "ok")
		AddPurgedSessions(0)
		ObserveHandle(0.01)
	})
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(bookings.WithLabelValues("created"))
	IncBooking("created")
	assert.Equal(t, before+1, testutil.ToFloat64(bookings.WithLabelValues("created")))

	r := testutil.ToFloat64(remindersSent)
	AddReminders(3)
	assert.Equal(t, r+3, testutil.ToFloat64(remindersSent))
}
