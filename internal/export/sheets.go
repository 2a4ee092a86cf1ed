package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"erpsync/internal/events"
	"erpsync/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const sheetsPushTimeout = 30 * time.Second

// SheetsReporter mirrors the queue into a Google spreadsheet with one tab for
// pending actions and one for dead letters.
type SheetsReporter struct {
	service       *sheets.Service
	spreadsheetID string
}

// NewSheetsReporter authenticates with a service account key file.
func NewSheetsReporter(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsReporter, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	jwt, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(jwt.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}

	return &SheetsReporter{service: srv, spreadsheetID: spreadsheetID}, nil
}

func sheetRange(sheet, cells string) string {
	return fmt.Sprintf("'%s'!%s", sheet, cells)
}

// EnsureSheets adds the pending and dead-letter tabs when the spreadsheet lacks them.
func (r *SheetsReporter) EnsureSheets(ctx context.Context) error {
	doc, err := r.service.Spreadsheets.Get(r.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	existing := make(map[string]bool, len(doc.Sheets))
	for _, sh := range doc.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var reqs []*sheets.Request
	for _, title := range []string{SheetPending, SheetDeadLetters} {
		if !existing[title] {
			reqs = append(reqs, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: title}},
			})
		}
	}
	if len(reqs) == 0 {
		return nil
	}

	_, err = r.service.Spreadsheets.BatchUpdate(r.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: reqs}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add sheets: %w", err)
	}
	return nil
}

// ReplaceQueue clears both tabs and rewrites them with a header row and one row per action.
func (r *SheetsReporter) ReplaceQueue(ctx context.Context, state models.QueueState, deadLetters []models.PendingAction) error {
	pending, err := sheetValues(state.Pending)
	if err != nil {
		return err
	}
	dead, err := sheetValues(deadLetters)
	if err != nil {
		return err
	}

	clearReq := &sheets.BatchClearValuesRequest{
		Ranges: []string{sheetRange(SheetPending, "A:Z"), sheetRange(SheetDeadLetters, "A:Z")},
	}
	if _, err := r.service.Spreadsheets.Values.BatchClear(r.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear queue sheets: %w", err)
	}

	updateReq := &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*sheets.ValueRange{
			{Range: sheetRange(SheetPending, "A1"), Values: pending},
			{Range: sheetRange(SheetDeadLetters, "A1"), Values: dead},
		},
	}
	if _, err := r.service.Spreadsheets.Values.BatchUpdate(r.spreadsheetID, updateReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update queue sheets: %w", err)
	}
	return nil
}

func sheetValues(actions []models.PendingAction) ([][]interface{}, error) {
	header := make([]interface{}, len(columns))
	for i, col := range columns {
		header[i] = col.title
	}

	values := make([][]interface{}, 0, len(actions)+1)
	values = append(values, header)
	for _, a := range actions {
		row, err := actionRow(a)
		if err != nil {
			return nil, err
		}
		values = append(values, row)
	}
	return values, nil
}

// QueueSource is the read side of the queue the mirror copies from.
type QueueSource interface {
	Snapshot() models.QueueState
	DeadLetters() []models.PendingAction
}

// SheetsMirror pushes the queue to the spreadsheet whenever it changes.
// Bursts of changes collapse into a single push.
type SheetsMirror struct {
	reporter *SheetsReporter
	source   QueueSource
	kick     chan struct{}
	logger   *zerolog.Logger
}

func NewSheetsMirror(reporter *SheetsReporter, source QueueSource, logger *zerolog.Logger) *SheetsMirror {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SheetsMirror{
		reporter: reporter,
		source:   source,
		kick:     make(chan struct{}, 1),
		logger:   logger,
	}
}

// Subscribe schedules a push on every queue event.
func (m *SheetsMirror) Subscribe(bus *events.EventBus) {
	for _, eventType := range []string{events.EventActionEnqueued, events.EventActionRemoved, events.EventSyncCompleted} {
		bus.Subscribe(eventType, func(*events.Event) error {
			m.Schedule()
			return nil
		})
	}
}

// Schedule requests a push without blocking the caller.
func (m *SheetsMirror) Schedule() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run pushes once at start and then after every scheduled change until ctx is done.
func (m *SheetsMirror) Run(ctx context.Context) {
	if err := m.reporter.EnsureSheets(ctx); err != nil {
		m.logger.Error().Err(err).Msg("prepare queue spreadsheet")
	}
	m.push(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.kick:
			m.push(ctx)
		}
	}
}

func (m *SheetsMirror) push(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, sheetsPushTimeout)
	defer cancel()

	state := m.source.Snapshot()
	if err := m.reporter.ReplaceQueue(ctx, state, m.source.DeadLetters()); err != nil {
		m.logger.Error().Err(err).Msg("queue sheet update failed")
		return
	}
	m.logger.Debug().Int("pending", len(state.Pending)).Msg("queue sheet updated")
}
