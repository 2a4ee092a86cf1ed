package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"erpsync/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	SheetPending     = "Pending"
	SheetDeadLetters = "Dead letters"
)

var columns = []struct {
	title string
	width float64
}{
	{"ID", 24},
	{"Operation", 12},
	{"Entity", 12},
	{"Endpoint", 36},
	{"Created", 20},
	{"Retries", 10},
	{"Last error", 40},
	{"Next attempt", 20},
	{"Payload", 60},
}

// WriteQueueReport renders the queue snapshot and dead letters as an XLSX workbook.
func WriteQueueReport(w io.Writer, state models.QueueState, deadLetters []models.PendingAction, generatedAt time.Time) error {
	f := excelize.NewFile()
	defer f.Close()

	titleStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	if err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	retryStyle, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FCE4D6"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	status := "offline"
	if state.Online {
		status = "online"
	}
	lastSync := "never"
	if state.LastSyncTime != nil {
		lastSync = state.LastSyncTime.Format(time.DateTime)
	}
	title := fmt.Sprintf("Generated %s, %s, last sync %s", generatedAt.Format(time.DateTime), status, lastSync)

	if err := f.SetSheetName("Sheet1", SheetPending); err != nil {
		return err
	}
	if err := writeSheet(f, SheetPending, title, state.Pending, titleStyle, headerStyle, retryStyle); err != nil {
		return err
	}
	if _, err := f.NewSheet(SheetDeadLetters); err != nil {
		return err
	}
	if err := writeSheet(f, SheetDeadLetters, title, deadLetters, titleStyle, headerStyle, retryStyle); err != nil {
		return err
	}
	f.SetActiveSheet(0)

	return f.Write(w)
}

func writeSheet(f *excelize.File, sheet, title string, actions []models.PendingAction, titleStyle, headerStyle, retryStyle int) error {
	_ = f.SetCellValue(sheet, "A1", title)
	_ = f.SetCellStyle(sheet, "A1", "A1", titleStyle)

	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, col.width)
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheet, cell, col.title)
	}
	lastHeader, _ := excelize.CoordinatesToCellName(len(columns), 2)
	_ = f.SetCellStyle(sheet, "A2", lastHeader, headerStyle)

	for i, a := range actions {
		row := i + 3
		values, err := actionRow(a)
		if err != nil {
			return err
		}
		start, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheet, start, &values); err != nil {
			return err
		}
		if a.RetryCount > 0 {
			cell, _ := excelize.CoordinatesToCellName(6, row)
			_ = f.SetCellStyle(sheet, cell, cell, retryStyle)
		}
	}
	return nil
}

// actionRow flattens an action into the report columns.
func actionRow(a models.PendingAction) ([]any, error) {
	payload := ""
	if a.Payload != nil {
		raw, err := json.Marshal(a.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload of %s: %w", a.ID, err)
		}
		payload = string(raw)
	}
	nextAttempt := ""
	if !a.NextAttemptAt.IsZero() {
		nextAttempt = a.NextAttemptAt.Format(time.DateTime)
	}

	return []any{
		a.ID,
		string(a.Operation),
		string(a.Entity),
		a.Endpoint,
		a.CreatedAt.Format(time.DateTime),
		a.RetryCount,
		a.LastError,
		nextAttempt,
		payload,
	}, nil
}
