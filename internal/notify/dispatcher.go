package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"installbot/internal/config"
	"installbot/internal/events"
	"installbot/internal/logging"
	"installbot/internal/metrics"
	"installbot/internal/models"
	"installbot/internal/worker"

	"github.com/cenkalti/backoff/v4"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

// ErrNoRecipients means there was nobody to deliver to.
var ErrNoRecipients = errors.New("no notification recipients configured")

// testAppointmentID marks synthetic appointments used by admin test endpoints.
const testAppointmentID = 999

// SummarySource is the read side the digests need.
type SummarySource interface {
	AppointmentsByDate(ctx context.Context, date string) ([]*models.Appointment, error)
	Stats(ctx context.Context, today string) (*models.Stats, error)
}

type Options struct {
	Channels  []Channel
	Staff     *StaffChannel
	Messages  MessageSender
	Email     EmailSender
	Store     SummarySource
	Retry     worker.RetryPolicy
	Timeout   time.Duration
	PoolSize  int
	QueueSize int
	Location  *time.Location
	Now       func() time.Time
}

// DeliveryError is one delivery that still failed after retries.
type DeliveryError struct {
	Channel string
	To      string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s to %s: %v", e.Channel, e.To, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// FailedChannel names the channel the delivery belonged to.
func (e *DeliveryError) FailedChannel() string { return e.Channel }

type job struct {
	kind models.EventKind
	appt *models.Appointment
}

// Dispatcher fans appointment events out to every channel.
type Dispatcher struct {
	channels []Channel
	staff    *StaffChannel
	messages MessageSender
	email    EmailSender
	store    SummarySource
	policy   worker.RetryPolicy
	timeout  time.Duration
	loc      *time.Location
	now      func() time.Time
	pool     *ants.PoolWithFunc
	pending  sync.WaitGroup
	logger   *zerolog.Logger

	// queue decouples publishers from pool capacity; feed drains it into the pool.
	queue  chan job
	fed    chan struct{}
	mu     sync.RWMutex
	closed bool
}

// FromConfig builds the transports that are configured and wires them into channels.
func FromConfig(cfg config.NotificationsConfig, store SummarySource, loc *time.Location, logger *zerolog.Logger) (*Dispatcher, error) {
	opts := Options{
		Store:     store,
		Retry:     worker.PolicyFromConfig(cfg.Retry),
		Timeout:   cfg.Timeout,
		PoolSize:  cfg.PoolSize,
		QueueSize: cfg.QueueSize,
		Location:  loc,
	}

	if smtpSender := NewSMTPSender(cfg.SMTP); smtpSender.Configured() {
		opts.Email = smtpSender
		opts.Channels = append(opts.Channels, NewEmailChannel(smtpSender, cfg.CompanyName))
	}
	if msgSender := NewHTTPMessageSender(cfg.Outbound, cfg.Timeout); msgSender.Configured() {
		opts.Messages = msgSender
		opts.Channels = append(opts.Channels, NewCustomerMessageChannel(msgSender, cfg.SupportNumber))
		if numbers := nonBlank(cfg.StaffNumbers); len(numbers) > 0 {
			opts.Staff = NewStaffChannel(msgSender, numbers, nil)
		}
	}
	if cfg.WebhookURL != "" {
		opts.Channels = append(opts.Channels, NewWebhookChannel(cfg.WebhookURL, cfg.Timeout, nil))
	}

	return NewDispatcher(opts, logger)
}

// nonBlank drops entries left empty by unset environment variables.
func nonBlank(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func NewDispatcher(opts Options, logger *zerolog.Logger) (*Dispatcher, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 32
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = models.NotificationQueueSize
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	d := &Dispatcher{
		channels: opts.Channels,
		staff:    opts.Staff,
		messages: opts.Messages,
		email:    opts.Email,
		store:    opts.Store,
		policy:   opts.Retry,
		timeout:  opts.Timeout,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   logging.Component(logger, "notify"),
		queue:    make(chan job, opts.QueueSize),
		fed:      make(chan struct{}),
	}
	if d.staff != nil {
		d.channels = append(d.channels, d.staff)
	}

	pool, err := ants.NewPoolWithFunc(opts.PoolSize, func(i interface{}) {
		defer d.pending.Done()
		j, ok := i.(job)
		if !ok {
			d.logger.Error().Msgf("unexpected notification job %T", i)
			return
		}
		ctx := context.Background()
		if err := d.Dispatch(ctx, j.kind, j.appt); err != nil {
			d.logger.Warn().Err(err).Int64("appointment_id", j.appt.ID).Str("kind", j.kind.String()).Msg("notification dispatch incomplete")
		}
	},
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(p interface{}) {
			d.logger.Error().Interface("panic", p).Msg("panic recovered in notification worker")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create notification pool: %w", err)
	}
	d.pool = pool
	go d.feed()

	names := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		names = append(names, c.Name())
	}
	d.logger.Info().Strs("channels", names).Int("pool_size", opts.PoolSize).Int("queue_size", opts.QueueSize).Msg("notification dispatcher ready")
	return d, nil
}

// Subscribe routes appointment events from the bus into the worker pool.
func (d *Dispatcher) Subscribe(bus *events.EventBus) {
	handler := func(ev *events.Event) error {
		p, err := ev.Decode()
		if err != nil {
			return err
		}
		d.DispatchAsync(p.Kind, p.Appointment)
		return nil
	}
	bus.Subscribe(events.EventAppointmentConfirmed, handler)
	bus.Subscribe(events.EventAppointmentReminder, handler)
	bus.Subscribe(events.EventAppointmentCancelled, handler)
}

// Dispatch delivers the event on every channel concurrently and joins the failures.
func (d *Dispatcher) Dispatch(ctx context.Context, kind models.EventKind, a *models.Appointment) error {
	if a == nil {
		return errors.New("nil appointment")
	}
	if _, err := events.TypeFor(kind); err != nil {
		return err
	}

	var deliveries []Delivery
	for _, c := range d.channels {
		deliveries = append(deliveries, c.Deliveries(kind, a)...)
	}
	return d.run(ctx, kind.String(), deliveries)
}

// DispatchAsync queues the event and returns immediately. A full queue drops the event.
func (d *Dispatcher) DispatchAsync(kind models.EventKind, a *models.Appointment) {
	if a == nil {
		return
	}
	snapshot := *a

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.IncNotification("pool", kind.String(), "dropped")
		d.logger.Error().Int64("appointment_id", a.ID).Msg("dispatcher closed, event dropped")
		return
	}

	d.pending.Add(1)
	select {
	case d.queue <- job{kind: kind, appt: &snapshot}:
	default:
		d.pending.Done()
		metrics.IncNotification("pool", kind.String(), "dropped")
		d.logger.Error().Int64("appointment_id", a.ID).Msg("notification queue full, event dropped")
	}
}

// feed hands queued jobs to the pool, waiting for a free worker when needed.
func (d *Dispatcher) feed() {
	defer close(d.fed)
	for j := range d.queue {
		if err := d.pool.Invoke(j); err != nil {
			d.pending.Done()
			metrics.IncNotification("pool", j.kind.String(), "dropped")
			d.logger.Error().Err(err).Int64("appointment_id", j.appt.ID).Msg("submit notification")
		}
	}
}

// Wait blocks until queued events are processed.
func (d *Dispatcher) Wait() {
	d.pending.Wait()
}

// Close stops accepting events, drains the queue and releases the pool.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.fed
	d.pending.Wait()
	d.pool.Release()
}

func (d *Dispatcher) run(ctx context.Context, label string, deliveries []Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	errs := make([]error, len(deliveries))
	var wg sync.WaitGroup
	for i, del := range deliveries {
		wg.Add(1)
		go func(i int, del Delivery) {
			defer wg.Done()
			errs[i] = d.deliver(ctx, label, del)
		}(i, del)
	}
	wg.Wait()
	return errors.Join(errs...)
}

func (d *Dispatcher) deliver(ctx context.Context, label string, del Delivery) error {
	op := func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		err := del.Send(attemptCtx)
		if errors.Is(err, ErrNotConfigured) {
			return backoff.Permanent(err)
		}
		return err
	}
	onRetry := func(err error, wait time.Duration) {
		d.logger.Debug().Err(err).Str("channel", del.Channel).Dur("after", wait).Msg("retrying notification")
	}

	if err := backoff.RetryNotify(op, d.policy.Backoff(ctx), onRetry); err != nil {
		metrics.IncNotification(del.Channel, label, "failure")
		d.logger.Warn().Err(err).Str("channel", del.Channel).Str("to", logging.MaskIdentity(del.To)).Str("kind", label).Msg("notification failed")
		return &DeliveryError{Channel: del.Channel, To: logging.MaskIdentity(del.To), Err: err}
	}
	metrics.IncNotification(del.Channel, label, "success")
	d.logger.Info().Str("channel", del.Channel).Str("to", logging.MaskIdentity(del.To)).Str("kind", label).Msg("notification sent")
	return nil
}

// SendDailySummary sends today's and tomorrow's bookings plus stats to staff.
func (d *Dispatcher) SendDailySummary(ctx context.Context) error {
	if d.staff == nil || d.store == nil {
		return ErrNoRecipients
	}

	now := d.now().In(d.loc)
	today := now.Format(models.DateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(models.DateLayout)

	todayAppts, err := d.store.AppointmentsByDate(ctx, today)
	if err != nil {
		return fmt.Errorf("load today's appointments: %w", err)
	}
	tomorrowAppts, err := d.store.AppointmentsByDate(ctx, tomorrow)
	if err != nil {
		return fmt.Errorf("load tomorrow's appointments: %w", err)
	}
	stats, err := d.store.Stats(ctx, today)
	if err != nil {
		return fmt.Errorf("load stats: %w", err)
	}

	deliveries := d.staff.Broadcast(DailySummary(now, todayAppts, tomorrowAppts, stats))
	if len(deliveries) == 0 {
		return ErrNoRecipients
	}
	return d.run(ctx, "daily_summary", deliveries)
}

// SendScheduleEmail emails the HTML schedule for date to the given address.
func (d *Dispatcher) SendScheduleEmail(ctx context.Context, date, to string) error {
	if d.email == nil {
		return ErrNotConfigured
	}
	if d.store == nil {
		return errors.New("no appointment store")
	}

	appts, err := d.store.AppointmentsByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("load appointments: %w", err)
	}
	subject, body, err := ScheduleEmail(date, appts)
	if err != nil {
		return err
	}
	return d.run(ctx, "schedule", []Delivery{{
		Channel: "email",
		To:      to,
		Send: func(ctx context.Context) error {
			return d.email.Send(ctx, to, subject, body, true)
		},
	}})
}

// TestAppointment builds the synthetic booking used by the admin test endpoints.
func (d *Dispatcher) TestAppointment(phone, email string) *models.Appointment {
	now := d.now().In(d.loc)
	return &models.Appointment{
		ID:          testAppointmentID,
		Identity:    phone,
		Name:        "Test Customer",
		Phone:       phone,
		Email:       email,
		Address:     "123 Test Street, Test City",
		ServiceType: "Test Installation",
		Date:        now.AddDate(0, 0, 1).Format(models.DateLayout),
		TimeSlot:    "10:00 AM",
		Status:      models.StatusConfirmed,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// SendTestNotifications runs a full confirmation round for a synthetic appointment.
func (d *Dispatcher) SendTestNotifications(ctx context.Context, phone, email string) error {
	return d.Dispatch(ctx, models.EventConfirmed, d.TestAppointment(phone, email))
}

// SendStaffTest sends a synthetic new-booking notice to staff only.
func (d *Dispatcher) SendStaffTest(ctx context.Context) error {
	if d.staff == nil {
		return ErrNoRecipients
	}
	deliveries := d.staff.Deliveries(models.EventConfirmed, d.TestAppointment("+1234567890", "test@example.com"))
	if len(deliveries) == 0 {
		return ErrNoRecipients
	}
	return d.run(ctx, "staff_test", deliveries)
}

// SendText sends a free-form message through the outbound API.
func (d *Dispatcher) SendText(ctx context.Context, to, body string) (string, error) {
	if d.messages == nil {
		return "", ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	sid, err := d.messages.Send(ctx, to, body)
	result := "success"
	if err != nil {
		result = "failure"
	}
	metrics.IncNotification("customer_message", "direct", result)
	return sid, err
}
