package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"installbot/internal/events"
	"installbot/internal/models"
)

// Delivery is one send attempt target produced by a channel.
type Delivery struct {
	Channel string
	To      string
	Send    func(ctx context.Context) error
}

// Channel turns an event into zero or more deliveries.
type Channel interface {
	Name() string
	Deliveries(kind models.EventKind, a *models.Appointment) []Delivery
}

// EmailChannel emails the customer on confirmation.
type EmailChannel struct {
	sender  EmailSender
	company string
}

func NewEmailChannel(sender EmailSender, company string) *EmailChannel {
	return &EmailChannel{sender: sender, company: company}
}

func (c *EmailChannel) Name() string { return models.ChannelEmail }

func (c *EmailChannel) Deliveries(kind models.EventKind, a *models.Appointment) []Delivery {
	if kind != models.EventConfirmed || strings.TrimSpace(a.Email) == "" {
		return nil
	}
	subject, body := ConfirmationEmail(a, c.company)
	return []Delivery{{
		Channel: c.Name(),
		To:      a.Email,
		Send: func(ctx context.Context) error {
			return c.sender.Send(ctx, a.Email, subject, body, false)
		},
	}}
}

// CustomerMessageChannel messages the customer on the chat identity they booked from.
type CustomerMessageChannel struct {
	sender        MessageSender
	supportNumber string
}

func NewCustomerMessageChannel(sender MessageSender, supportNumber string) *CustomerMessageChannel {
	return &CustomerMessageChannel{sender: sender, supportNumber: supportNumber}
}

func (c *CustomerMessageChannel) Name() string { return models.ChannelCustomerMessage }

func (c *CustomerMessageChannel) Deliveries(kind models.EventKind, a *models.Appointment) []Delivery {
	var body string
	switch kind {
	case models.EventReminder:
		body = ReminderMessage(a)
	case models.EventCancelled:
		body = CancellationMessage(a, c.supportNumber)
	default:
		return nil
	}

	to := a.Identity
	if to == "" {
		to = a.Phone
	}
	if to == "" {
		return nil
	}
	return []Delivery{{
		Channel: c.Name(),
		To:      to,
		Send: func(ctx context.Context) error {
			_, err := c.sender.Send(ctx, to, body)
			return err
		},
	}}
}

// StaffChannel forwards every event to all staff numbers.
type StaffChannel struct {
	sender  MessageSender
	numbers []string
	now     func() time.Time
}

func NewStaffChannel(sender MessageSender, numbers []string, now func() time.Time) *StaffChannel {
	if now == nil {
		now = time.Now
	}
	return &StaffChannel{sender: sender, numbers: append([]string(nil), numbers...), now: now}
}

func (c *StaffChannel) Name() string { return models.ChannelStaff }

func (c *StaffChannel) Deliveries(kind models.EventKind, a *models.Appointment) []Delivery {
	return c.Broadcast(StaffMessage(kind, a, c.now()))
}

// Broadcast builds one delivery per staff number for an arbitrary body.
func (c *StaffChannel) Broadcast(body string) []Delivery {
	out := make([]Delivery, 0, len(c.numbers))
	for _, n := range c.numbers {
		number := strings.TrimSpace(n)
		if number == "" {
			continue
		}
		out = append(out, Delivery{
			Channel: c.Name(),
			To:      number,
			Send: func(ctx context.Context) error {
				_, err := c.sender.Send(ctx, number, body)
				return err
			},
		})
	}
	return out
}

type webhookUser struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

type webhookAppointment struct {
	ServiceType string `json:"service_type"`
	Date        string `json:"date"`
	Time        string `json:"time"`
}

// WebhookPayload is the JSON body posted to the external webhook.
type WebhookPayload struct {
	EventType       string             `json:"event_type"`
	AppointmentID   int64              `json:"appointment_id"`
	Timestamp       string             `json:"timestamp"`
	UserData        webhookUser        `json:"user_data"`
	AppointmentData webhookAppointment `json:"appointment_data"`
}

// WebhookChannel posts every event to an external URL.
type WebhookChannel struct {
	url  string
	http *http.Client
	now  func() time.Time
}

func NewWebhookChannel(url string, timeout time.Duration, now func() time.Time) *WebhookChannel {
	if now == nil {
		now = time.Now
	}
	return &WebhookChannel{url: strings.TrimSpace(url), http: &http.Client{Timeout: timeout}, now: now}
}

func (c *WebhookChannel) Name() string { return models.ChannelWebhook }

func (c *WebhookChannel) Deliveries(kind models.EventKind, a *models.Appointment) []Delivery {
	eventType, err := events.TypeFor(kind)
	if err != nil || c.url == "" {
		return nil
	}
	payload := WebhookPayload{
		EventType:     eventType,
		AppointmentID: a.ID,
		Timestamp:     c.now().Format(time.RFC3339),
		UserData: webhookUser{
			Name: a.Name, Phone: a.Phone, Email: a.Email, Address: a.Address,
		},
		AppointmentData: webhookAppointment{
			ServiceType: a.ServiceType, Date: a.Date, Time: a.TimeSlot,
		},
	}
	return []Delivery{{
		Channel: c.Name(),
		To:      c.url,
		Send: func(ctx context.Context) error {
			return c.post(ctx, payload)
		},
	}}
}

func (c *WebhookChannel) post(ctx context.Context, payload WebhookPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
