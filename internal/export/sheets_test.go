package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"erpsync/internal/events"
	"erpsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

type sheetsCall struct {
	method string
	path   string
}

type fakeSheetsAPI struct {
	mu      sync.Mutex
	calls   []sheetsCall
	updates []*sheets.BatchUpdateValuesRequest
	adds    []string
	titles  []string
}

func (f *fakeSheetsAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.calls = append(f.calls, sheetsCall{r.Method, r.URL.Path})

		switch r.URL.Path {
		case "/v4/spreadsheets/queue_tid":
			doc := sheets.Spreadsheet{}
			for _, title := range f.titles {
				doc.Sheets = append(doc.Sheets, &sheets.Sheet{Properties: &sheets.SheetProperties{Title: title}})
			}
			_ = json.NewEncoder(w).Encode(doc)
			return
		case "/v4/spreadsheets/queue_tid:batchUpdate":
			var req sheets.BatchUpdateSpreadsheetRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			for _, rq := range req.Requests {
				f.adds = append(f.adds, rq.AddSheet.Properties.Title)
			}
		case "/v4/spreadsheets/queue_tid/values:batchUpdate":
			var req sheets.BatchUpdateValuesRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			f.updates = append(f.updates, &req)
		}
		_, _ = w.Write([]byte(`{}`))
	}
}

func (f *fakeSheetsAPI) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func setupSheets(t *testing.T, api *fakeSheetsAPI) *SheetsReporter {
	t.Helper()
	server := httptest.NewServer(api.handler(t))
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return &SheetsReporter{service: srv, spreadsheetID: "queue_tid"}
}

func TestReplaceQueue(t *testing.T) {
	api := &fakeSheetsAPI{}
	r := setupSheets(t, api)

	state := models.QueueState{Pending: []models.PendingAction{
		{ID: "a1", Operation: models.OperationCreate, Entity: models.EntityProduct, Endpoint: "/p", Payload: models.ProductPayload{SKU: models.Ptr("X1")}, CreatedAt: time.Now()},
	}}
	require.NoError(t, r.ReplaceQueue(context.Background(), state, nil))

	require.Len(t, api.calls, 2)
	assert.Equal(t, sheetsCall{http.MethodPost, "/v4/spreadsheets/queue_tid/values:batchClear"}, api.calls[0])

	require.Len(t, api.updates, 1)
	data := api.updates[0].Data
	require.Len(t, data, 2)
	assert.Equal(t, "'Pending'!A1", data[0].Range)
	require.Len(t, data[0].Values, 2)
	assert.Equal(t, "ID", data[0].Values[0][0])
	assert.Equal(t, "a1", data[0].Values[1][0])
	assert.Equal(t, `{"sku":"X1"}`, data[0].Values[1][8])
	assert.Equal(t, "'Dead letters'!A1", data[1].Range)
	assert.Len(t, data[1].Values, 1)
}

func TestEnsureSheetsAddsMissingTabs(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{SheetPending}}
	r := setupSheets(t, api)

	require.NoError(t, r.EnsureSheets(context.Background()))
	assert.Equal(t, []string{SheetDeadLetters}, api.adds)

	api.mu.Lock()
	api.titles = []string{SheetPending, SheetDeadLetters}
	api.adds = nil
	api.mu.Unlock()
	require.NoError(t, r.EnsureSheets(context.Background()))
	assert.Empty(t, api.adds)
}

type staticSource struct {
	state models.QueueState
}

func (s staticSource) Snapshot() models.QueueState          { return s.state }
func (s staticSource) DeadLetters() []models.PendingAction { return nil }

func TestSheetsMirrorPushesOnEvents(t *testing.T) {
	api := &fakeSheetsAPI{titles: []string{SheetPending, SheetDeadLetters}}
	r := setupSheets(t, api)
	logger := zerolog.Nop()
	bus := events.NewEventBus(&logger)

	mirror := NewSheetsMirror(r, staticSource{}, &logger)
	mirror.Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mirror.Run(ctx)

	assert.Eventually(t, func() bool { return api.updateCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, bus.PublishJSON(events.EventSyncCompleted, events.SyncPayload{}))
	assert.Eventually(t, func() bool { return api.updateCount() >= 2 }, time.Second, 10*time.Millisecond)
}
