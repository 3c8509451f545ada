package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// AnalysisProvider Описываем, что нам нужно от сервиса
type AnalysisProvider interface {
	Analyze(ctx context.Context, tx domain.Transaction) (*domain.WorkflowState, error)
	GetAnalysis(ctx context.Context, transactionID string) (*domain.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, verdict domain.Verdict, limit int) ([]*domain.AnalysisRecord, error)
}

// Validator проверяет вход до запуска пайплайна.
type Validator func(tx *domain.Transaction) error

type AnalysisHandler struct {
	service  AnalysisProvider
	validate Validator
}

func NewAnalysisHandler(s AnalysisProvider, v Validator) *AnalysisHandler {
	return &AnalysisHandler{service: s, validate: v}
}

// Analyze — POST /v1/transactions/analyze: полный прогон пайплайна.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var tx domain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	st, err := h.service.Analyze(r.Context(), tx)
	if err != nil {
		http.Error(w, "analysis failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st)
}

// Get — GET /v1/transactions/{id}: сохраненный итог анализа.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.service.GetAnalysis(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionNotFound) {
			http.Error(w, "transaction not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// List — GET /v1/transactions?verdict=...&limit=...
func (h *AnalysisHandler) List(w http.ResponseWriter, r *http.Request) {
	verdict := domain.Verdict(r.URL.Query().Get("verdict"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.ListAnalyses(r.Context(), verdict, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(list)
}
