package service

import (
	"fmt"
	"strings"

	"installbot/internal/calendar"
	"installbot/internal/models"
)

const (
	PromptWelcome = "🔧 Welcome to our Installation Service!\n\n" +
		"I'll help you schedule an installation appointment. " +
		"Let's start by collecting some basic information.\n\n" +
		"What's your full name?"

	PromptInvalidName    = "Please enter a valid name (at least 2 characters)."
	PromptInvalidPhone   = "Please enter a valid phone number. Examples: +1234567890, (123) 456-7890, or 123-456-7890"
	PromptEmail          = "Great! 📧\n\nWhat's your email address?"
	PromptInvalidEmail   = "Please enter a valid email address (e.g., example@email.com)"
	PromptAddress        = "Perfect! 🏠\n\nPlease provide your installation address:"
	PromptInvalidAddress = "Please provide a complete address including street, city, and zip code."
	PromptInvalidNumber  = "Please enter a valid number."
	PromptNoSlots        = "Sorry, no time slots are available for this date. " +
		"Please go back and select a different date by typing 'start'."
	PromptNoDates       = "Sorry, there are no dates open for booking right now. Please try again later by typing 'start'."
	PromptConfirmChoice = "Please reply 'YES' to confirm the appointment or 'NO' to cancel."
	PromptAborted       = "❌ Appointment cancelled.\n\n" +
		"No problem! Type 'start' when you're ready to schedule an appointment."
	PromptCommitFailed = "❌ Sorry, there was an error saving your appointment. " +
		"Please reply 'YES' to try again, or type 'start' to begin again."
	PromptFallback    = "I'm not sure how to help with that. Type 'start' to begin scheduling an appointment."
	PromptApology     = "Sorry, I'm having trouble processing your message. Please try again."
	PromptRateLimited = "⏳ You're sending messages too quickly. Please wait a moment and try again."
)

func promptPhone(name string) string {
	return fmt.Sprintf("Thanks %s! 📱\n\nNow, please provide your phone number:", name)
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		fmt.Fprintf(b, "%d. %s\n", i+1, item)
	}
}

func promptServiceMenu(services []models.ServiceType) string {
	var b strings.Builder
	b.WriteString("What type of installation do you need? 🔧\n\n")
	for _, s := range services {
		fmt.Fprintf(&b, "%s. %s\n", s.Code, s.Name)
	}
	fmt.Fprintf(&b, "\nPlease reply with the number (1-%d):", len(services))
	return b.String()
}

func promptInvalidService(services []models.ServiceType) string {
	lines := make([]string, len(services))
	for i, s := range services {
		lines[i] = fmt.Sprintf("%s. %s", s.Code, s.Name)
	}
	return fmt.Sprintf("Please select a valid option (1-%d):\n", len(services)) + strings.Join(lines, "\n")
}

func promptDateMenu(dates []string) string {
	display := make([]string, len(dates))
	for i, d := range dates {
		display[i] = calendar.DisplayDate(d)
	}
	var b strings.Builder
	b.WriteString("Great choice! 📅\n\nPlease select your preferred date:\n\n")
	writeNumbered(&b, display)
	fmt.Fprintf(&b, "\nReply with the number (1-%d):", len(dates))
	return b.String()
}

func promptInvalidDate(n int) string {
	return fmt.Sprintf("Please select a valid option (1-%d)", n)
}

func promptTimeMenu(slots []string) string {
	var b strings.Builder
	b.WriteString("Perfect! ⏰\n\nPlease select your preferred time:\n\n")
	writeNumbered(&b, slots)
	fmt.Fprintf(&b, "\nReply with the number (1-%d):", len(slots))
	return b.String()
}

func promptInvalidTime(n int) string {
	return fmt.Sprintf("Please select a valid time slot (1-%d)", n)
}

func promptSlotTaken(s *models.Session, slot string, free []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⚠️ Sorry, %s on %s was just booked by someone else.\n\nPlease select another time:\n\n",
		slot, calendar.DisplayDate(s.AppointmentInfo.Date))
	writeNumbered(&b, free)
	fmt.Fprintf(&b, "\nReply with the number (1-%d):", len(free))
	return b.String()
}

func promptSummary(s *models.Session) string {
	return "📋 *APPOINTMENT SUMMARY*\n\n" +
		fmt.Sprintf("*Name:* %s\n", s.UserInfo.Name) +
		fmt.Sprintf("*Phone:* %s\n", s.UserInfo.Phone) +
		fmt.Sprintf("*Email:* %s\n", s.UserInfo.Email) +
		fmt.Sprintf("*Address:* %s\n", s.UserInfo.Address) +
		fmt.Sprintf("*Service:* %s\n", s.AppointmentInfo.ServiceType) +
		fmt.Sprintf("*Date:* %s\n", calendar.DisplayDate(s.AppointmentInfo.Date)) +
		fmt.Sprintf("*Time:* %s\n\n", s.AppointmentInfo.Time) +
		"Is this information correct?\n" +
		"Reply 'YES' to confirm or 'NO' to cancel."
}

func promptConfirmed(a *models.Appointment) string {
	return "✅ *APPOINTMENT CONFIRMED!*\n\n" +
		fmt.Sprintf("Your %s appointment has been scheduled for %s at %s.\n\n",
			a.ServiceType, a.DisplayDate(), a.TimeSlot) +
		fmt.Sprintf("📋 Appointment ID: #%d\n", a.ID) +
		"📧 You'll receive a confirmation email shortly.\n" +
		"📱 We'll send you a reminder 24 hours before your appointment.\n\n" +
		"Thank you for choosing our service! 🔧\n\n" +
		"Type 'start' if you need to schedule another appointment."
}
