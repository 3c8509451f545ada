package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra/auth"
)

// ReviewProvider Описываем, что нам нужно от сервиса
type ReviewProvider interface {
	ListPending(ctx context.Context) ([]domain.EscalationRecord, int, error)
	GetEscalation(ctx context.Context, transactionID string) (domain.EscalationRecord, error)
	Resolve(ctx context.Context, transactionID string, res domain.Resolution) (domain.EscalationRecord, error)
}

type HITLHandler struct {
	service ReviewProvider
}

func NewHITLHandler(s ReviewProvider) *HITLHandler {
	return &HITLHandler{service: s}
}

// pendingResponse несет и записи, и длину очереди — ревьюеру видно,
// сколько еще работы впереди.
type pendingResponse struct {
	Pending []domain.EscalationRecord `json:"pending"`
	Total   int                       `json:"total"`
}

// List — GET /v1/hitl: очередь на разбор, свежие первыми.
func (h *HITLHandler) List(w http.ResponseWriter, r *http.Request) {
	pending, total, err := h.service.ListPending(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pendingResponse{Pending: pending, Total: total})
}

// GetDetails — GET /v1/hitl/{id}: запись в любом статусе.
func (h *HITLHandler) GetDetails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.service.GetEscalation(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrEscalationNotFound) {
			http.Error(w, "escalation not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

type ResolveRequest struct {
	Verdict domain.Verdict `json:"verdict"` // APPROVE | BLOCK
	Notes   string         `json:"notes"`
}

// Resolve — POST /v1/hitl/{id}/resolve: ручной вердикт аналитика.
func (h *HITLHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// ReviewerID берем из токена, а не из тела запроса
	reviewerID := auth.ReviewerIDFromContext(r.Context())
	if reviewerID == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	rec, err := h.service.Resolve(r.Context(), id, domain.Resolution{
		Verdict:    req.Verdict,
		ReviewerID: reviewerID,
		Notes:      req.Notes,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidResolutionVerdict):
			http.Error(w, "verdict must be APPROVE or BLOCK", http.StatusBadRequest)
		case errors.Is(err, domain.ErrEscalationNotFound):
			// Либо ID неверный, либо решение уже принято другим ревьюером
			http.Error(w, "escalation not found or already resolved", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}
