package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"erpsync/internal/apiclient"
	"erpsync/internal/export"
	"erpsync/internal/models"
	"erpsync/internal/queue"
	"erpsync/internal/service"
	"erpsync/internal/worker"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type submitRequest struct {
	Operation string          `json:"operation"`
	Entity    string          `json:"entity"`
	Endpoint  string          `json:"endpoint"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type submitResponse struct {
	Queued bool                  `json:"queued"`
	Action *models.PendingAction `json:"action,omitempty"`
	Error  string                `json:"error,omitempty"`
}

type refreshResponse struct {
	Online bool               `json:"online"`
	Sync   *models.SyncResult `json:"sync,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// syncErrorResponse reports a pass that ran but could not persist its outcome.
type syncErrorResponse struct {
	Error  string             `json:"error"`
	Result *models.SyncResult `json:"result"`
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"online":  s.queue.Online(),
		"pending": s.queue.Len(),
	})
}

func (s *HTTPServer) handleQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.queue.Snapshot())
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	op, err := models.ParseOperation(body.Operation)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entity := models.EntityKind(strings.TrimSpace(body.Entity))
	payload, err := models.DecodePayload(entity, body.Payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid payload: %v", err))
		return
	}

	sub, err := s.mutations.Submit(r.Context(), service.Mutation{
		Operation: op,
		Entity:    entity,
		Endpoint:  strings.TrimSpace(body.Endpoint),
		Payload:   payload,
	})

	var apiErr *apiclient.APIError
	switch {
	case errors.Is(err, service.ErrInvalidMutation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &apiErr):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":           err.Error(),
			"upstream_status": apiErr.StatusCode,
			"upstream_body":   apiErr.Body,
		})
	case err != nil && sub.Queued:
		// queued in memory, the flush to storage failed
		writeJSON(w, http.StatusInternalServerError, submitResponse{Queued: true, Action: sub.Action, Error: err.Error()})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case sub.Queued:
		writeJSON(w, http.StatusAccepted, submitResponse{Queued: true, Action: sub.Action})
	default:
		writeJSON(w, http.StatusOK, submitResponse{})
	}
}

func (s *HTTPServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	removed, err := s.queue.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.syncer.SyncNow(r.Context())
	switch {
	case errors.Is(err, worker.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, worker.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil && result != nil:
		writeJSON(w, http.StatusInternalServerError, syncErrorResponse{Error: err.Error(), Result: result})
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	online, result, err := s.syncer.Refresh(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, refreshResponse{Online: online, Sync: result, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Online: online, Sync: result})
}

func (s *HTTPServer) handleDeadLetters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"dead_letters": s.queue.DeadLetters()})
}

func (s *HTTPServer) handleDiscardDeadLetter(w http.ResponseWriter, r *http.Request) {
	err := s.queue.DiscardDeadLetter(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *HTTPServer) handleRequeue(w http.ResponseWriter, r *http.Request) {
	action, err := s.queue.Requeue(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, action)
	}
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, _ *http.Request) {
	now := s.now()
	var buf bytes.Buffer
	if err := export.WriteQueueReport(&buf, s.queue.Snapshot(), s.queue.DeadLetters(), now); err != nil {
		s.log.Error().Err(err).Msg("queue export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="erpsync-queue-%s.xlsx"`, now.Format("20060102-150405")))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
