package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/demonlist-history/internal/console/service"
	"github.com/xela07ax/demonlist-history/internal/domain"
	"github.com/xela07ax/demonlist-history/internal/engine"
	"github.com/xela07ax/demonlist-history/internal/history"
)

// HistoryService описывает, что нужно хендлеру от сервиса истории.
type HistoryService interface {
	History(ctx context.Context, demonID int) (service.HistoryResult, error)
	Chart(ctx context.Context, demonID int) (history.PositionChart, error)
	Invalidate(ctx context.Context, demonID int) error
	ListInfo() domain.ListInfo
}

type HistoryHandler struct {
	svc    HistoryService
	logger *zap.Logger
}

func NewHistoryHandler(svc HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{svc: svc, logger: logger.Named("history-handler")}
}

// ListInformation GET /api/v1/list_information
func (h *HistoryHandler) ListInformation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListInfo())
}

// GetHistory GET /api/v1/demons/{id}/history
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.demonID(w, r)
	if !ok {
		return
	}

	res, err := h.svc.History(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetChart GET /api/v1/demons/{id}/history/chart
func (h *HistoryHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	id, ok := h.demonID(w, r)
	if !ok {
		return
	}

	chart, err := h.svc.Chart(r.Context(), id)
	if err != nil {
		h.fail(w, r, id, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// Refresh POST /api/v1/demons/{id}/refresh
func (h *HistoryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	id, ok := h.demonID(w, r)
	if !ok {
		return
	}

	if err := h.svc.Invalidate(r.Context(), id); err != nil {
		h.fail(w, r, id, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HistoryHandler) demonID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid demon id", "demon id must be a positive integer, got "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

func (h *HistoryHandler) fail(w http.ResponseWriter, r *http.Request, demonID int, err error) {
	status, title := statusFor(err)
	detail := err.Error()
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("trace_id", engine.TraceID(r.Context())),
			zap.Int("demon_id", demonID),
			zap.Error(err))
	}
	if status == http.StatusInternalServerError {
		detail = "trace id " + engine.TraceID(r.Context())
	}
	writeProblem(w, status, title, detail)
}
