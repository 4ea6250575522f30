package models

import "fmt"

// EventKind is the reason a notification is dispatched.
type EventKind uint8

const (
	EventConfirmed EventKind = iota + 1
	EventReminder
	EventCancelled
)

func (k EventKind) String() string {
	switch k {
	case EventConfirmed:
		return "confirmed"
	case EventReminder:
		return "reminder"
	case EventCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

func ParseEventKind(s string) (EventKind, error) {
	switch s {
	case "confirmed":
		return EventConfirmed, nil
	case "reminder":
		return EventReminder, nil
	case "cancelled":
		return EventCancelled, nil
	}
	return 0, fmt.Errorf("unknown event kind %q", s)
}

func (k EventKind) MarshalText() ([]byte, error) {
	switch k {
	case EventConfirmed, EventReminder, EventCancelled:
		return []byte(k.String()), nil
	}
	return nil, fmt.Errorf("invalid event kind %d", uint8(k))
}

func (k *EventKind) UnmarshalText(text []byte) error {
	parsed, err := ParseEventKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Notification channel names.
const (
	ChannelEmail           = "email"
	ChannelCustomerMessage = "customer_message"
	ChannelStaff           = "staff"
	ChannelWebhook         = "webhook"
)
