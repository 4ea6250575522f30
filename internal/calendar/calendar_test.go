package calendar

import (
	"context"
	"errors"
	"testing"
	"time"

	"installbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSlots map[string][]string

func (f fakeSlots) BookedSlots(_ context.Context, date string) ([]string, error) {
	if date == "broken" {
		return nil, errors.New("db down")
	}
	return f[date], nil
}

func TestAvailableDates_SkipsSunday(t *testing.T) {
	// Friday 2025-05-30
	today := time.Date(2025, 5, 30, 15, 30, 0, 0, time.UTC)
	dates := AvailableDates(today, 7, time.Sunday)

	got := FormatDates(dates)
	assert.Equal(t, []string{
		"2025-05-31", // Sat
		"2025-06-02", // Mon
		"2025-06-03",
		"2025-06-04",
		"2025-06-05",
		"2025-06-06",
	}, got)
	for _, d := range dates {
		assert.NotEqual(t, time.Sunday, d.Weekday())
		assert.Equal(t, 0, d.Hour())
	}
}

func TestAvailableDates_NoClosedDayInRange(t *testing.T) {
	// Sunday 2025-06-01: the next seven days are Mon..Sun, Sunday is dropped
	today := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	dates := AvailableDates(today, 7, time.Sunday)
	assert.Len(t, dates, 6)
	assert.Equal(t, "2025-06-02", dates[0].Format(models.DateLayout))
}

func TestAvailableDates_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	today := time.Date(2025, 6, 2, 23, 0, 0, 0, loc)
	dates := AvailableDates(today, 1, time.Sunday)
	require.Len(t, dates, 1)
	assert.Equal(t, "2025-06-03", dates[0].Format(models.DateLayout))
	assert.Equal(t, loc, dates[0].Location())
}

func TestAvailableSlots(t *testing.T) {
	cal := New(fakeSlots{"2025-06-03": {"10:00 AM", "02:00 PM"}}, models.DefaultTimeSlots, 7, time.Sunday)
	ctx := context.Background()

	free, err := cal.AvailableSlots(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00 AM", "11:00 AM", "12:00 PM", "01:00 PM", "03:00 PM", "04:00 PM"}, free)

	// subset of the full list, no booked slot present
	full := cal.Slots()
	for _, s := range free {
		assert.Contains(t, full, s)
	}
	assert.NotContains(t, free, "10:00 AM")

	free, err = cal.AvailableSlots(ctx, "2025-06-04")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTimeSlots, free)

	_, err = cal.AvailableSlots(ctx, "broken")
	assert.Error(t, err)
}

func TestAvailableSlots_FullyBooked(t *testing.T) {
	cal := New(fakeSlots{"2025-06-03": models.DefaultTimeSlots}, nil, 0, time.Sunday)
	free, err := cal.AvailableSlots(context.Background(), "2025-06-03")
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestSortBySlot(t *testing.T) {
	appts := []*models.Appointment{
		{ID: 1, Date: "2025-06-03", TimeSlot: "01:00 PM"},
		{ID: 2, Date: "2025-06-03", TimeSlot: "09:00 AM"},
		{ID: 3, Date: "2025-06-02", TimeSlot: "04:00 PM"},
		{ID: 4, Date: "2025-06-03", TimeSlot: "whenever"},
	}
	SortBySlot(appts, models.DefaultTimeSlots)

	var ids []int64
	for _, a := range appts {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []int64{3, 2, 1, 4}, ids)
}

func TestDisplayDate(t *testing.T) {
	assert.Equal(t, "Tuesday, June 03, 2025", DisplayDate("2025-06-03"))
	assert.Equal(t, "tomorrow", DisplayDate("tomorrow"))
}
