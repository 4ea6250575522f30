package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"installbot/internal/models"
)

const clockLayout = "03:04 PM"

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}

// ConfirmationEmail renders the customer confirmation email.
func ConfirmationEmail(a *models.Appointment, company string) (string, string) {
	subject := fmt.Sprintf("Appointment Confirmation - #%d", a.ID)
	body := fmt.Sprintf(`Dear %s,

Thank you for scheduling an appointment with us! Here are your appointment details:

📋 APPOINTMENT DETAILS:
• Appointment ID: #%d
• Service: %s
• Date: %s
• Time: %s
• Location: %s

📞 CONTACT INFORMATION:
• Name: %s
• Phone: %s
• Email: %s

⏰ IMPORTANT REMINDERS:
• Please be available at the scheduled time
• Ensure easy access to the installation area
• Someone 18+ should be present during installation
• You'll receive a reminder 24 hours before your appointment

If you need to reschedule or cancel, please contact us as soon as possible.

Thank you for choosing our services!

Best regards,
%s Team`,
		a.Name, a.ID, a.ServiceType, a.DisplayDate(), a.TimeSlot, a.Address,
		a.Name, orNA(a.Phone), a.Email, company)
	return subject, body
}

// ReminderMessage is sent to the customer the day before the visit.
func ReminderMessage(a *models.Appointment) string {
	return fmt.Sprintf(`🔧 *APPOINTMENT REMINDER*

Hi %s! 👋

This is a friendly reminder for your appointment *tomorrow*:

📅 *Date:* %s
⏰ *Time:* %s
🔧 *Service:* %s
📍 *Location:* %s
🆔 *ID:* #%d

*Please ensure:*
• Someone 18+ is available
• Easy access to installation area
• All necessary permissions ready

Need to reschedule? Reply to this message!

Thank you for choosing our services! 🙏`,
		a.Name, a.DisplayDate(), a.TimeSlot, a.ServiceType, a.Address, a.ID)
}

// CancellationMessage tells the customer the booking no longer stands.
func CancellationMessage(a *models.Appointment, supportNumber string) string {
	msg := fmt.Sprintf(`❌ *APPOINTMENT CANCELLED*

Hi %s, your appointment has been cancelled:

🆔 *ID:* #%d
🔧 *Service:* %s
📅 *Date:* %s
⏰ *Time:* %s

To book a new appointment, type *start*.`,
		a.Name, a.ID, a.ServiceType, a.DisplayDate(), a.TimeSlot)
	if supportNumber != "" {
		msg += "\nQuestions? Call us at " + supportNumber + "."
	}
	return msg
}

// StaffMessage renders the staff forward for an event.
func StaffMessage(kind models.EventKind, a *models.Appointment, at time.Time) string {
	clock := at.Format(clockLayout)
	switch kind {
	case models.EventConfirmed:
		return fmt.Sprintf(`🆕 *NEW APPOINTMENT BOOKED*

📋 *Appointment Details:*
• ID: #%d
• Service: %s
• Date: %s
• Time: %s

👤 *Customer Details:*
• Name: %s
• Phone: %s
• Email: %s
• Address: %s

✅ Confirmation email sent to customer
⏰ Reminder will be sent 24h before appointment

_Booked via chat at %s_`,
			a.ID, a.ServiceType, a.DisplayDate(), a.TimeSlot,
			a.Name, orNA(a.Phone), a.Email, a.Address, clock)
	case models.EventReminder:
		return fmt.Sprintf(`⏰ *REMINDER SENT TO CUSTOMER*

📋 *Tomorrow's Appointment:*
• ID: #%d
• Customer: %s
• Service: %s
• Time: %s
• Phone: %s
• Address: %s

📱 Reminder sent to customer

_Reminder sent at %s_`,
			a.ID, a.Name, a.ServiceType, a.TimeSlot, orNA(a.Phone), a.Address, clock)
	case models.EventCancelled:
		return fmt.Sprintf(`❌ *APPOINTMENT CANCELLED*

📋 *Cancelled Appointment:*
• ID: #%d
• Customer: %s
• Service: %s
• Date: %s
• Time: %s
• Phone: %s

_Cancelled at %s_`,
			a.ID, a.Name, a.ServiceType, a.DisplayDate(), a.TimeSlot, orNA(a.Phone), clock)
	}
	return fmt.Sprintf(`📋 *APPOINTMENT UPDATE*

Event: %s
ID: #%d
Customer: %s
Service: %s
Date: %s
Time: %s`,
		kind, a.ID, a.Name, a.ServiceType, a.DisplayDate(), a.TimeSlot)
}

func statusMark(status string) string {
	switch status {
	case models.StatusConfirmed:
		return "✅"
	case models.StatusCancelled:
		return "❌"
	}
	return "⏳"
}

func writeDay(b *strings.Builder, label string, appts []*models.Appointment, empty string) {
	fmt.Fprintf(b, "📅 *%s (%d appointments):*", label, len(appts))
	if len(appts) == 0 {
		b.WriteString("\n_" + empty + "_")
		return
	}
	for _, a := range appts {
		fmt.Fprintf(b, "\n%s %s - %s (%s)", statusMark(a.Status), a.TimeSlot, a.Name, a.ServiceType)
	}
}

// DailySummary renders the staff digest for today and tomorrow.
func DailySummary(at time.Time, today, tomorrow []*models.Appointment, stats *models.Stats) string {
	var b strings.Builder
	b.WriteString("📊 *DAILY APPOINTMENT SUMMARY*\n")
	b.WriteString("_" + at.Format(models.DisplayDateLayout) + "_\n\n")
	writeDay(&b, "TODAY", today, "No appointments today")
	b.WriteString("\n\n")
	writeDay(&b, "TOMORROW", tomorrow, "No appointments tomorrow")

	if stats == nil {
		stats = &models.Stats{}
	}
	fmt.Fprintf(&b, `

📈 *QUICK STATS:*
• Total appointments: %d
• Confirmed: %d
• Active chat sessions: %d

_Summary sent at %s_`,
		stats.TotalAppointments, stats.ConfirmedAppointments, stats.ActiveSessions, at.Format(clockLayout))
	return b.String()
}

var scheduleTmpl = template.Must(template.New("schedule").Parse(`<h2>📅 Appointment Schedule for {{.Date}}</h2>
{{- if .Appointments}}
<p><strong>Total Appointments:</strong> {{len .Appointments}}</p>
<table border="1" style="border-collapse: collapse; width: 100%;">
<tr style="background-color: #f2f2f2;"><th>Time</th><th>Customer</th><th>Service</th><th>Phone</th><th>Address</th><th>Status</th></tr>
{{- range .Appointments}}
<tr><td>{{.TimeSlot}}</td><td>{{.Name}}</td><td>{{.ServiceType}}</td><td>{{.Phone}}</td><td>{{.Address}}</td><td>{{.Status}}</td></tr>
{{- end}}
</table>
{{- else}}
<p><strong>No appointments scheduled for this date.</strong></p>
{{- end}}
`))

// ScheduleEmail renders the HTML schedule for one day.
func ScheduleEmail(date string, appts []*models.Appointment) (string, string, error) {
	display := date
	if d, err := time.Parse(models.DateLayout, date); err == nil {
		display = d.Format(models.DisplayDateLayout)
	}

	var buf bytes.Buffer
	err := scheduleTmpl.Execute(&buf, struct {
		Date         string
		Appointments []*models.Appointment
	}{Date: display, Appointments: appts})
	if err != nil {
		return "", "", fmt.Errorf("render schedule: %w", err)
	}
	return "Daily Appointment Schedule - " + date, buf.String(), nil
}
