package database

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"installbot/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func fakeBooking(date, slot string) *models.BookingRequest {
	return &models.BookingRequest{
		Identity:    "whatsapp:+1" + gofakeit.Numerify("##########"),
		Name:        gofakeit.Name(),
		Phone:       gofakeit.Numerify("555-###-####"),
		Email:       gofakeit.Email(),
		Address:     gofakeit.Street() + ", " + gofakeit.City(),
		ServiceType: "Home Theater Setup",
		Date:        date,
		TimeSlot:    slot,
	}
}

func TestAppendHistory(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	appt, err := db.BookAppointment(ctx, fakeBooking("2025-06-04", "02:00 PM"))
	require.NoError(t, err)

	require.NoError(t, db.AppendHistory(ctx, appt.ID, "NOTE_ADDED",
		map[string]interface{}{"notes": ""},
		map[string]interface{}{"notes": "gate code 1234"},
		models.ActorAdmin))
	require.NoError(t, db.AppendHistory(ctx, appt.ID, "VIEWED", nil, nil, models.ActorSystem))

	history, err := db.History(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, models.HistoryCreated, history[0].Action)

	note := history[1]
	assert.Equal(t, "NOTE_ADDED", note.Action)
	assert.Equal(t, models.ActorAdmin, note.ChangedBy)
	assert.Equal(t, appt.ID, note.AppointmentID)
	var oldValues, newValues map[string]interface{}
	require.NoError(t, json.Unmarshal(note.OldValues, &oldValues))
	require.NoError(t, json.Unmarshal(note.NewValues, &newValues))
	assert.Equal(t, "", oldValues["notes"])
	assert.Equal(t, "gate code 1234", newValues["notes"])

	assert.Equal(t, "VIEWED", history[2].Action)
	assert.Nil(t, history[2].OldValues)
	assert.Nil(t, history[2].NewValues)
}

func TestNewDB_FileCreatesDirectory(t *testing.T) {
	logger := zerolog.Nop()
	path := filepath.Join(t.TempDir(), "nested", "appointments.db")
	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, path, db.Path())
	assert.NoError(t, db.Ping(context.Background()))
}

func TestBookAppointment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	req := fakeBooking("2025-06-03", "10:00 AM")
	appt, err := db.BookAppointment(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, appt.ID)
	assert.Equal(t, models.StatusConfirmed, appt.Status)

	stored, err := db.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, req.Name, stored.Name)
	assert.Equal(t, req.Email, stored.Email)
	assert.Equal(t, req.Phone, stored.Phone)
	assert.Equal(t, "2025-06-03", stored.Date)
	assert.Equal(t, "10:00 AM", stored.TimeSlot)
	assert.Nil(t, stored.ReminderSentAt)

	history, err := db.History(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.HistoryCreated, history[0].Action)
	assert.Equal(t, models.ActorChatbot, history[0].ChangedBy)
	assert.Nil(t, history[0].OldValues)

	var newValues map[string]interface{}
	require.NoError(t, json.Unmarshal(history[0].NewValues, &newValues))
	assert.Equal(t, "10:00 AM", newValues["appointment_time"])
}

func TestBookAppointment_SlotTaken(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	_, err := db.BookAppointment(ctx, fakeBooking("2025-06-03", "10:00 AM"))
	require.NoError(t, err)

	_, err = db.BookAppointment(ctx, fakeBooking("2025-06-03", "10:00 AM"))
	assert.ErrorIs(t, err, ErrSlotTaken)

	// other slot on the same day is fine
	_, err = db.BookAppointment(ctx, fakeBooking("2025-06-03", "11:00 AM"))
	assert.NoError(t, err)
}

func TestCreateAppointment_UniqueIndex(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	userID, err := db.UpsertUser(ctx, &models.User{Identity: "+15550001111", Name: "Jane"})
	require.NoError(t, err)

	_, err = db.CreateAppointment(ctx, userID, "+15550001111", "Other", "2025-06-04", "09:00 AM")
	require.NoError(t, err)

	_, err = db.CreateAppointment(ctx, userID, "+15550001111", "Other", "2025-06-04", "09:00 AM")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestUpsertUser_LastWriteWins(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	id1, err := db.UpsertUser(ctx, &models.User{Identity: "+15550001111", Name: "Jane", Email: "a@b.co"})
	require.NoError(t, err)
	id2, err := db.UpsertUser(ctx, &models.User{Identity: "+15550001111", Name: "Jane Doe", Email: "jane@x.com"})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	u, err := db.GetUserByIdentity(ctx, "+15550001111")
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", u.Name)
	assert.Equal(t, "jane@x.com", u.Email)

	_, err = db.GetUserByIdentity(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = db.UpsertUser(ctx, &models.User{})
	assert.Error(t, err)
}

func TestUpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	appt, err := db.BookAppointment(ctx, fakeBooking("2025-06-03", "01:00 PM"))
	require.NoError(t, err)

	updated, err := db.UpdateStatus(ctx, appt.ID, models.StatusCancelled, models.ActorAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, updated.Status)

	history, err := db.History(ctx, appt.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.HistoryStatusChanged, history[1].Action)
	assert.JSONEq(t, `{"status":"confirmed"}`, string(history[1].OldValues))
	assert.JSONEq(t, `{"status":"cancelled"}`, string(history[1].NewValues))
	assert.Equal(t, models.ActorAdmin, history[1].ChangedBy)

	// cancelled slot is free again
	slots, err := db.BookedSlots(ctx, "2025-06-03")
	require.NoError(t, err)
	assert.Empty(t, slots)
	_, err = db.BookAppointment(ctx, fakeBooking("2025-06-03", "01:00 PM"))
	assert.NoError(t, err)

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.UpdateStatus(ctx, 9999, models.StatusCompleted, models.ActorAdmin)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("InvalidStatus", func(t *testing.T) {
		_, err := db.UpdateStatus(ctx, appt.ID, "pending", models.ActorAdmin)
		assert.ErrorIs(t, err, ErrInvalidStatus)
	})

	t.Run("ReconfirmIntoTakenSlot", func(t *testing.T) {
		_, err := db.UpdateStatus(ctx, appt.ID, models.StatusConfirmed, models.ActorAdmin)
		assert.ErrorIs(t, err, ErrSlotTaken)
	})
}

func TestQueries(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	req := fakeBooking("2025-06-03", "02:00 PM")
	_, err := db.BookAppointment(ctx, req)
	require.NoError(t, err)

	second := fakeBooking("2025-06-05", "09:00 AM")
	second.Identity = req.Identity
	_, err = db.BookAppointment(ctx, second)
	require.NoError(t, err)

	_, err = db.BookAppointment(ctx, fakeBooking("2025-06-03", "09:00 AM"))
	require.NoError(t, err)

	t.Run("ByIdentityNewestFirst", func(t *testing.T) {
		list, err := db.AppointmentsByIdentity(ctx, req.Identity)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "2025-06-05", list[0].Date)
	})

	t.Run("ByDateOrderedBySlot", func(t *testing.T) {
		list, err := db.AppointmentsByDate(ctx, "2025-06-03")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "02:00 PM", list[0].TimeSlot) // lexical slot order
	})

	t.Run("InRange", func(t *testing.T) {
		list, err := db.AppointmentsInRange(ctx, "2025-06-01", "2025-06-04")
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("BookedSlots", func(t *testing.T) {
		slots, err := db.BookedSlots(ctx, "2025-06-03")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"02:00 PM", "09:00 AM"}, slots)
	})

	t.Run("Stats", func(t *testing.T) {
		require.NoError(t, db.SaveSession(ctx, models.NewSession("x")))
		st, err := db.Stats(ctx, "2025-06-03")
		require.NoError(t, err)
		assert.Equal(t, int64(2), st.TotalUsers)
		assert.Equal(t, int64(3), st.TotalAppointments)
		assert.Equal(t, int64(3), st.ConfirmedAppointments)
		assert.Equal(t, int64(2), st.AppointmentsToday)
		assert.Equal(t, int64(1), st.ActiveSessions)
	})
}

func TestReminders(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	a, err := db.BookAppointment(ctx, fakeBooking("2025-06-04", "09:00 AM"))
	require.NoError(t, err)
	b, err := db.BookAppointment(ctx, fakeBooking("2025-06-04", "10:00 AM"))
	require.NoError(t, err)
	_, err = db.UpdateStatus(ctx, b.ID, models.StatusCancelled, models.ActorAdmin)
	require.NoError(t, err)

	due, err := db.DueReminders(ctx, "2025-06-04")
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, a.ID, due[0].ID)

	marked, err := db.MarkReminderSent(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, marked)

	marked, err = db.MarkReminderSent(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, marked)

	due, err = db.DueReminders(ctx, "2025-06-04")
	require.NoError(t, err)
	assert.Empty(t, due)

	stored, err := db.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReminderSentAt)

	history, err := db.History(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.HistoryReminderSent, history[len(history)-1].Action)
}

func TestSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s, err := db.GetSession(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Nil(t, s)

	sess := models.NewSession("+15551234567")
	sess.Stage = models.StageSelectingDate
	sess.UserInfo = models.UserInfo{Name: "Jane Doe", Phone: "5551234567", Email: "jane@x.com", Address: "12 Main Street, Springfield"}
	sess.AppointmentInfo.ServiceType = "Home Theater Setup"
	sess.AvailableDates = []string{"2025-06-03", "2025-06-04"}
	sess.UpdatedAt = time.Now()
	require.NoError(t, db.SaveSession(ctx, sess))

	loaded, err := db.GetSession(ctx, "+15551234567")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, sess.Stage, loaded.Stage)
	assert.Equal(t, sess.UserInfo, loaded.UserInfo)
	assert.Equal(t, sess.AppointmentInfo, loaded.AppointmentInfo)
	assert.Equal(t, sess.AvailableDates, loaded.AvailableDates)

	require.NoError(t, db.DeleteSession(ctx, "+15551234567"))
	loaded, err = db.GetSession(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	assert.Error(t, db.SaveSession(ctx, &models.Session{}))
}

func TestPurgeSessions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	old := models.NewSession("old")
	old.UpdatedAt = time.Now().AddDate(0, 0, -10)
	require.NoError(t, db.SaveSession(ctx, old))

	fresh := models.NewSession("fresh")
	fresh.UpdatedAt = time.Now()
	require.NoError(t, db.SaveSession(ctx, fresh))

	n, err := db.PurgeSessionsOlderThan(ctx, time.Now().AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	count, err := db.CountSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSeedServiceTypes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SeedServiceTypes(ctx, models.DefaultServiceTypes))
	list := db.ServiceTypes()
	require.Len(t, list, 5)
	assert.Equal(t, "1", list[0].Code)
	assert.Equal(t, "Solar Panel Installation", list[0].Name)

	// seeding is a one-time operation
	require.NoError(t, db.SeedServiceTypes(ctx, []models.ServiceType{{Code: "9", Name: "Other", Active: true}}))
	assert.Len(t, db.ServiceTypes(), 5)

	// returned slice is a copy
	list[0].Name = "changed"
	assert.Equal(t, "Solar Panel Installation", db.ServiceTypes()[0].Name)
}

func TestSyncServiceTypes(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SeedServiceTypes(ctx, models.DefaultServiceTypes))

	created, updated, err := db.SyncServiceTypes(ctx, []models.ServiceType{
		{Code: "6", Name: "EV Charger Installation", Active: true},
		{Code: "1", Name: "Solar Panel Installation", Active: true},
		{Code: "3", Name: "Security System Installation", Active: false},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created)
	assert.Equal(t, 2, updated)

	list := db.ServiceTypes()
	require.Len(t, list, 5)
	// new order first, untouched services keep their old position
	assert.Equal(t, "6", list[0].Code)
	for _, s := range list {
		assert.NotEqual(t, "3", s.Code)
	}
}
