package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"installbot/internal/models"
)

// BookedSlotSource reports which slots of a date are already held.
type BookedSlotSource interface {
	BookedSlots(ctx context.Context, date string) ([]string, error)
}

// Calendar answers "which dates" and "which slots" questions for the dialogue.
type Calendar struct {
	store       BookedSlotSource
	slots       []string
	horizonDays int
	closed      time.Weekday
}

func New(store BookedSlotSource, slots []string, horizonDays int, closed time.Weekday) *Calendar {
	if len(slots) == 0 {
		slots = models.DefaultTimeSlots
	}
	if horizonDays <= 0 {
		horizonDays = models.DefaultHorizonDays
	}
	return &Calendar{
		store:       store,
		slots:       append([]string(nil), slots...),
		horizonDays: horizonDays,
		closed:      closed,
	}
}

// Slots returns the full fixed slot list.
func (c *Calendar) Slots() []string {
	return append([]string(nil), c.slots...)
}

// Dates returns the bookable dates after today.
func (c *Calendar) Dates(today time.Time) []time.Time {
	return AvailableDates(today, c.horizonDays, c.closed)
}

// AvailableSlots is the full slot list minus slots held by non-cancelled
// appointments on date, in list order. It is a snapshot and holds no lock.
func (c *Calendar) AvailableSlots(ctx context.Context, date string) ([]string, error) {
	booked, err := c.store.BookedSlots(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked slots: %w", err)
	}
	return FreeSlots(c.slots, booked), nil
}

// AvailableDates lists the dates from tomorrow over horizonDays calendar days,
// skipping the closed weekday. Results are midnight in today's location.
func AvailableDates(today time.Time, horizonDays int, closed time.Weekday) []time.Time {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	dates := make([]time.Time, 0, horizonDays)
	for i := 1; i <= horizonDays; i++ {
		d := start.AddDate(0, 0, i)
		if d.Weekday() == closed {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// FreeSlots filters booked out of full, keeping full's order.
func FreeSlots(full, booked []string) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, s := range booked {
		taken[s] = struct{}{}
	}
	free := make([]string, 0, len(full))
	for _, s := range full {
		if _, ok := taken[s]; !ok {
			free = append(free, s)
		}
	}
	return free
}

// SortBySlot orders appointments by date, then by the slot's position in slots.
// Unknown slots sort last.
func SortBySlot(appts []*models.Appointment, slots []string) {
	pos := make(map[string]int, len(slots))
	for i, s := range slots {
		pos[s] = i
	}
	rank := func(s string) int {
		if p, ok := pos[s]; ok {
			return p
		}
		return len(slots)
	}
	sort.SliceStable(appts, func(i, j int) bool {
		if appts[i].Date != appts[j].Date {
			return appts[i].Date < appts[j].Date
		}
		return rank(appts[i].TimeSlot) < rank(appts[j].TimeSlot)
	})
}

// FormatDates renders dates in storage layout.
func FormatDates(dates []time.Time) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(models.DateLayout)
	}
	return out
}

// DisplayDate renders a stored date for customers, falling back to the raw value.
func DisplayDate(date string) string {
	d, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return d.Format(models.DisplayDateLayout)
}
