package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"installbot/internal/config"
	"installbot/internal/events"
	"installbot/internal/models"
	"installbot/internal/worker"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentMessage struct {
	To   string
	Body string
}

type fakeMessages struct {
	mu       sync.Mutex
	sent     []sentMessage
	failFor  map[string]int
	attempts map[string]int
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{failFor: map[string]int{}, attempts: map[string]int{}}
}

func (f *fakeMessages) Send(_ context.Context, to, body string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts[to]++
	if f.attempts[to] <= f.failFor[to] {
		return "", errors.New("provider unavailable")
	}
	f.sent = append(f.sent, sentMessage{To: to, Body: body})
	return "SM" + to, nil
}

func (f *fakeMessages) Sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
	html []bool
	err  error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string, html bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to+"|"+subject+"|"+body)
	f.html = append(f.html, html)
	return nil
}

type fakeSummary struct {
	byDate map[string][]*models.Appointment
	stats  *models.Stats
}

func (f *fakeSummary) AppointmentsByDate(_ context.Context, date string) ([]*models.Appointment, error) {
	return f.byDate[date], nil
}

func (f *fakeSummary) Stats(_ context.Context, _ string) (*models.Stats, error) {
	return f.stats, nil
}

var fixedNow = time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)

func sampleAppointment() *models.Appointment {
	return &models.Appointment{
		ID:          42,
		Identity:    "whatsapp:+15551234567",
		Name:        "Jane Doe",
		Phone:       "+15551234567",
		Email:       "jane@example.com",
		Address:     "123 Main Street, Springfield",
		ServiceType: "Solar Panel Installation",
		Date:        "2026-03-10",
		TimeSlot:    "10:00 AM",
		Status:      models.StatusConfirmed,
	}
}

func newTestDispatcher(t *testing.T, msgs *fakeMessages, mail *fakeEmail, extra ...Channel) *Dispatcher {
	t.Helper()
	logger := zerolog.Nop()
	now := func() time.Time { return fixedNow }

	opts := Options{
		Channels: append([]Channel{
			NewEmailChannel(mail, "Installation Service"),
			NewCustomerMessageChannel(msgs, "+15550000000"),
		}, extra...),
		Staff:    NewStaffChannel(msgs, []string{"+15559990001", "+15559990002"}, now),
		Messages: msgs,
		Email:    mail,
		Retry:    worker.RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2},
		Timeout:  time.Second,
		PoolSize: 2,
		Location: time.UTC,
		Now:      now,
	}
	d, err := NewDispatcher(opts, &logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestDispatchConfirmed(t *testing.T) {
	msgs := newFakeMessages()
	mail := &fakeEmail{}
	d := newTestDispatcher(t, msgs, mail)

	require.NoError(t, d.Dispatch(context.Background(), models.EventConfirmed, sampleAppointment()))

	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0], "jane@example.com|Appointment Confirmation - #42|")
	assert.Contains(t, mail.sent[0], "Tuesday, March 10, 2026")

	sent := msgs.Sent()
	require.Len(t, sent, 2, "only staff get messages on confirmation")
	for _, m := range sent {
		assert.True(t, strings.HasPrefix(m.To, "+1555999"))
		assert.Contains(t, m.Body, "NEW APPOINTMENT BOOKED")
		assert.Contains(t, m.Body, "02:30 PM")
	}
}

func TestDispatchReminderAndCancel(t *testing.T) {
	msgs := newFakeMessages()
	mail := &fakeEmail{}
	d := newTestDispatcher(t, msgs, mail)
	appt := sampleAppointment()

	require.NoError(t, d.Dispatch(context.Background(), models.EventReminder, appt))
	require.NoError(t, d.Dispatch(context.Background(), models.EventCancelled, appt))
	assert.Empty(t, mail.sent)

	var customer, staff []string
	for _, m := range msgs.Sent() {
		if m.To == appt.Identity {
			customer = append(customer, m.Body)
		} else {
			staff = append(staff, m.Body)
		}
	}
	require.Len(t, customer, 2)
	assert.Contains(t, customer[0], "APPOINTMENT REMINDER")
	assert.Contains(t, customer[1], "APPOINTMENT CANCELLED")
	assert.Contains(t, customer[1], "+15550000000")
	require.Len(t, staff, 4)
}

func TestDispatchFailureIsolated(t *testing.T) {
	msgs := newFakeMessages()
	msgs.failFor["+15559990001"] = 10
	mail := &fakeEmail{err: errors.New("smtp down")}
	d := newTestDispatcher(t, msgs, mail)

	err := d.Dispatch(context.Background(), models.EventConfirmed, sampleAppointment())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "email")
	assert.Contains(t, err.Error(), "staff")
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, []string{models.ChannelEmail, models.ChannelStaff}, de.FailedChannel())

	sent := msgs.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "+15559990002", sent[0].To)
	assert.Equal(t, 3, msgs.attempts["+15559990001"], "initial attempt plus two retries")
}

func TestDispatchRetriesTransientFailure(t *testing.T) {
	msgs := newFakeMessages()
	msgs.failFor["+15559990001"] = 1
	d := newTestDispatcher(t, msgs, &fakeEmail{})

	require.NoError(t, d.Dispatch(context.Background(), models.EventConfirmed, sampleAppointment()))
	assert.Len(t, msgs.Sent(), 2)
}

func TestDispatchRejectsUnknownKind(t *testing.T) {
	d := newTestDispatcher(t, newFakeMessages(), &fakeEmail{})
	assert.Error(t, d.Dispatch(context.Background(), models.EventKind(0), sampleAppointment()))
	assert.Error(t, d.Dispatch(context.Background(), models.EventConfirmed, nil))
}

func TestDispatchAsyncViaBus(t *testing.T) {
	msgs := newFakeMessages()
	mail := &fakeEmail{}
	d := newTestDispatcher(t, msgs, mail)

	bus := events.NewEventBus()
	d.Subscribe(bus)

	payload := events.AppointmentEventPayload{Kind: models.EventConfirmed, Appointment: sampleAppointment()}
	require.NoError(t, bus.PublishJSON(events.EventAppointmentConfirmed, payload))
	d.Wait()

	assert.Len(t, mail.sent, 1)
	assert.Len(t, msgs.Sent(), 2)
}

type blockingChannel struct {
	started   chan struct{}
	release   chan struct{}
	delivered atomic.Int32
}

func (c *blockingChannel) Name() string { return "blocking" }

func (c *blockingChannel) Deliveries(_ models.EventKind, a *models.Appointment) []Delivery {
	return []Delivery{{Channel: c.Name(), To: a.Identity, Send: func(ctx context.Context) error {
		select {
		case c.started <- struct{}{}:
		default:
		}
		select {
		case <-c.release:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.delivered.Add(1)
		return nil
	}}}
}

func TestDispatchAsyncDoesNotBlockOnBusyPool(t *testing.T) {
	logger := zerolog.Nop()
	slow := &blockingChannel{started: make(chan struct{}, 1), release: make(chan struct{})}
	d, err := NewDispatcher(Options{
		Channels:  []Channel{slow},
		Retry:     worker.RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond},
		Timeout:   5 * time.Second,
		PoolSize:  1,
		QueueSize: 2,
		Location:  time.UTC,
	}, &logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)

	d.DispatchAsync(models.EventConfirmed, sampleAppointment())
	select {
	case <-slow.started:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first event")
	}

	const total = 10
	start := time.Now()
	for i := 1; i < total; i++ {
		d.DispatchAsync(models.EventConfirmed, sampleAppointment())
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond, "publishers must not wait for a free worker")

	close(slow.release)
	d.Wait()

	// one running, one held by the feeder, two queued; the rest overflow
	delivered := int(slow.delivered.Load())
	assert.GreaterOrEqual(t, delivered, 3)
	assert.LessOrEqual(t, delivered, 4)
}

func TestDispatchAsyncAfterClose(t *testing.T) {
	msgs := newFakeMessages()
	d := newTestDispatcher(t, msgs, &fakeEmail{})
	d.Close()

	d.DispatchAsync(models.EventConfirmed, sampleAppointment())
	d.Wait()
	assert.Empty(t, msgs.Sent())
}

func TestWebhookChannel(t *testing.T) {
	var got WebhookPayload
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	hook := NewWebhookChannel(srv.URL, time.Second, func() time.Time { return fixedNow })
	d := newTestDispatcher(t, newFakeMessages(), &fakeEmail{}, hook)

	require.NoError(t, d.Dispatch(context.Background(), models.EventReminder, sampleAppointment()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "appointment_reminder", got.EventType)
	assert.Equal(t, int64(42), got.AppointmentID)
	assert.Equal(t, "Jane Doe", got.UserData.Name)
	assert.Equal(t, "2026-03-10", got.AppointmentData.Date)
	assert.Equal(t, "10:00 AM", got.AppointmentData.Time)
}

func TestWebhookChannelNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	hook := NewWebhookChannel(srv.URL, time.Second, nil)
	ds := hook.Deliveries(models.EventCancelled, sampleAppointment())
	require.Len(t, ds, 1)
	assert.Error(t, ds[0].Send(context.Background()))
}

func TestHTTPMessageSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req sendRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Message == "" {
			_, _ = io.WriteString(w, `{"success":false,"error":"empty message"}`)
			return
		}
		assert.Equal(t, "whatsapp:+15559990001", req.To)
		_, _ = io.WriteString(w, `{"success":true,"message_sid":"SM123"}`)
	}))
	defer srv.Close()

	s := NewHTTPMessageSender(config.OutboundConfig{URL: srv.URL, Token: "secret", From: "whatsapp:+14155238886"}, time.Second)
	require.True(t, s.Configured())

	sid, err := s.Send(context.Background(), "+15559990001", "hello")
	require.NoError(t, err)
	assert.Equal(t, "SM123", sid)

	_, err = s.Send(context.Background(), "+15559990001", "")
	assert.ErrorContains(t, err, "empty message")

	_, err = NewHTTPMessageSender(config.OutboundConfig{}, 0).Send(context.Background(), "x", "y")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSMTPSender(t *testing.T) {
	s := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "bot@example.com", Password: "pw"})
	require.True(t, s.Configured())

	var captured []byte
	s.sendMail = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "smtp.example.com:587", addr)
		assert.NotNil(t, a)
		assert.Equal(t, "bot@example.com", from)
		assert.Equal(t, []string{"jane@example.com"}, to)
		captured = msg
		return nil
	}

	require.NoError(t, s.Send(context.Background(), "jane@example.com", "Hi", "<b>x</b>", true))
	assert.Contains(t, string(captured), "Content-Type: text/html; charset=utf-8")
	assert.Contains(t, string(captured), "Subject: Hi\r\n")

	assert.False(t, NewSMTPSender(config.SMTPConfig{}).Configured())
}

func TestSendDailySummary(t *testing.T) {
	msgs := newFakeMessages()
	d := newTestDispatcher(t, msgs, &fakeEmail{})
	today := sampleAppointment()
	today.Date = "2026-03-09"
	cancelled := sampleAppointment()
	cancelled.Date = "2026-03-09"
	cancelled.TimeSlot = "01:00 PM"
	cancelled.Status = models.StatusCancelled
	d.store = &fakeSummary{
		byDate: map[string][]*models.Appointment{"2026-03-09": {today, cancelled}},
		stats:  &models.Stats{TotalAppointments: 7, ConfirmedAppointments: 5, ActiveSessions: 3},
	}

	require.NoError(t, d.SendDailySummary(context.Background()))
	sent := msgs.Sent()
	require.Len(t, sent, 2)
	body := sent[0].Body
	assert.Contains(t, body, "DAILY APPOINTMENT SUMMARY")
	assert.Contains(t, body, "TODAY (2 appointments)")
	assert.Contains(t, body, "✅ 10:00 AM - Jane Doe (Solar Panel Installation)")
	assert.Contains(t, body, "❌ 01:00 PM - Jane Doe")
	assert.Contains(t, body, "_No appointments tomorrow_")
	assert.Contains(t, body, "• Total appointments: 7")
}

func TestSendScheduleEmail(t *testing.T) {
	mail := &fakeEmail{}
	d := newTestDispatcher(t, newFakeMessages(), mail)
	appt := sampleAppointment()
	appt.Name = "<script>x</script>"
	d.store = &fakeSummary{byDate: map[string][]*models.Appointment{"2026-03-10": {appt}}}

	require.NoError(t, d.SendScheduleEmail(context.Background(), "2026-03-10", "boss@example.com"))
	require.Len(t, mail.sent, 1)
	assert.True(t, mail.html[0])
	assert.Contains(t, mail.sent[0], "Daily Appointment Schedule - 2026-03-10")
	assert.Contains(t, mail.sent[0], "Tuesday, March 10, 2026")
	assert.NotContains(t, mail.sent[0], "<script>")
}

func TestSendTestNotifications(t *testing.T) {
	msgs := newFakeMessages()
	mail := &fakeEmail{}
	d := newTestDispatcher(t, msgs, mail)

	require.NoError(t, d.SendTestNotifications(context.Background(), "+15551112222", "t@example.com"))
	require.Len(t, mail.sent, 1)
	assert.Contains(t, mail.sent[0], "#999")
	assert.Contains(t, mail.sent[0], "123 Test Street, Test City")

	require.NoError(t, d.SendStaffTest(context.Background()))
	assert.Len(t, msgs.Sent(), 4)
}

func TestStaffMissing(t *testing.T) {
	logger := zerolog.Nop()
	d, err := NewDispatcher(Options{}, &logger)
	require.NoError(t, err)
	defer d.Close()

	assert.ErrorIs(t, d.SendStaffTest(context.Background()), ErrNoRecipients)
	assert.ErrorIs(t, d.SendDailySummary(context.Background()), ErrNoRecipients)
	_, err = d.SendText(context.Background(), "+1", "x")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.NoError(t, d.Dispatch(context.Background(), models.EventConfirmed, sampleAppointment()))
}
