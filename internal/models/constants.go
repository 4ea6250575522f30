package models

const (
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	switch s {
	case StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

const (
	HistoryCreated       = "CREATED"
	HistoryStatusChanged = "STATUS_CHANGED"
	HistoryReminderSent  = "REMINDER_SENT"
)

const (
	ActorChatbot = "chatbot"
	ActorAdmin   = "admin"
	ActorSystem  = "system"
)

const (
	// DateLayout формат хранения даты записи
	DateLayout = "2006-01-02"

	// DisplayDateLayout формат даты в сообщениях клиенту
	DisplayDateLayout = "Monday, January 02, 2006"

	// DefaultHorizonDays сколько календарных дней вперёд предлагать
	DefaultHorizonDays = 7

	// DefaultSessionIdleDays через сколько дней простоя удалять сессию
	DefaultSessionIdleDays = 7

	// DefaultSessionCacheSize максимальное число сессий в памяти
	DefaultSessionCacheSize = 10000

	// DefaultSessionCacheTTL время жизни сессии в кэше
	DefaultSessionCacheTTL = 24 * 60 * 60 // 24 часа в секундах

	// ReminderHour час, в который отправляются напоминания
	ReminderHour = 9

	// SummaryHour час ежедневной сводки для сотрудников
	SummaryHour = 8

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 30

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// NotificationQueueSize размер очереди уведомлений
	NotificationQueueSize = 1000
)

// DefaultTimeSlots is the fixed daily slot list.
var DefaultTimeSlots = []string{
	"09:00 AM", "10:00 AM", "11:00 AM", "12:00 PM",
	"01:00 PM", "02:00 PM", "03:00 PM", "04:00 PM",
}

// DefaultRestartKeywords reset a conversation from any stage.
var DefaultRestartKeywords = []string{"start", "restart", "begin"}
