package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"installbot/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet       = "Appointments"
	exportDefaultDays = 30
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportColumns = []string{
	"ID", "Date", "Time", "Service", "Status", "Name", "Phone", "Email", "Address", "Identity", "Reminder Sent", "Created",
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	if from == "" {
		from = s.today().Format(models.DateLayout)
	}
	fromDate, err := time.Parse(models.DateLayout, from)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; expected YYYY-MM-DD")
		return
	}
	to := strings.TrimSpace(q.Get("to"))
	if to == "" {
		to = fromDate.AddDate(0, 0, exportDefaultDays).Format(models.DateLayout)
	}
	if _, err := time.Parse(models.DateLayout, to); err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date; expected YYYY-MM-DD")
		return
	}

	appts, err := s.deps.Appointments.InRange(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	buf, err := buildExport(from, to, appts)
	if err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="appointments_%s_to_%s.xlsx"`, from, to))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// buildExport renders appointments into a single sheet workbook.
func buildExport(from, to string, appts []*models.Appointment) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	_ = f.SetCellValue(exportSheet, "A1", fmt.Sprintf("Period: %s - %s", from, to))
	lastCol, _ := excelize.ColumnNumberToName(len(exportColumns))
	_ = f.MergeCell(exportSheet, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(exportSheet, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, name := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(exportSheet, cell, name)
		_ = f.SetCellStyle(exportSheet, cell, cell, headerStyle)
	}

	cancelledStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Strike: true, Color: "#808080"},
	})
	for i, a := range appts {
		row := i + 3
		reminder := ""
		if a.ReminderSentAt != nil {
			reminder = a.ReminderSentAt.Format(time.RFC3339)
		}
		values := []any{
			a.ID, a.Date, a.TimeSlot, a.ServiceType, a.Status, a.Name, a.Phone, a.Email, a.Address,
			a.Identity, reminder, a.CreatedAt.Format(time.RFC3339),
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(exportSheet, start, &values); err != nil {
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		if a.Status == models.StatusCancelled {
			end, _ := excelize.CoordinatesToCellName(len(exportColumns), row)
			_ = f.SetCellStyle(exportSheet, start, end, cancelledStyle)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "C", 12)
	_ = f.SetColWidth(exportSheet, "D", lastCol, 24)
	_ = f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}
	return buf, nil
}
