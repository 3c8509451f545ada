package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/metrics"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/queue"
)

/*
AnalysisService — входная точка бизнес-логики: принимает транзакцию,
прогоняет пайплайн, персистит итог, эскалирует при необходимости и
разносит журнал аудита.
*/

// BehaviorProvider отдает исторический паттерн клиента (nil = нет данных).
type BehaviorProvider interface {
	GetBehaviorProfile(ctx context.Context, customerID string) (*domain.BehaviorProfile, error)
}

// AnalysisStore — персистентность итогов пайплайна.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, st *domain.WorkflowState) error
	GetAnalysis(ctx context.Context, transactionID string) (*domain.AnalysisRecord, error)
	ListAnalyses(ctx context.Context, verdict domain.Verdict, limit int) ([]*domain.AnalysisRecord, error)
}

// Pipeline — оркестратор (internal/workflow).
type Pipeline interface {
	Run(ctx context.Context, tx domain.Transaction, profile *domain.BehaviorProfile) (*domain.WorkflowState, error)
}

type AnalysisService struct {
	pipeline Pipeline
	behavior BehaviorProvider
	store    AnalysisStore
	queue    queue.Queue
	auditor  audit.Auditor
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewAnalysisService(
	pipeline Pipeline,
	behavior BehaviorProvider,
	store AnalysisStore,
	q queue.Queue,
	auditor audit.Auditor,
	m *metrics.Metrics,
	logger *zap.Logger,
) *AnalysisService {
	return &AnalysisService{
		pipeline: pipeline,
		behavior: behavior,
		store:    store,
		queue:    q,
		auditor:  auditor,
		metrics:  m,
		logger:   logger.Named("analysis"),
		now:      time.Now,
	}
}

// ValidateTransaction — проверка входа до запуска пайплайна.
func ValidateTransaction(tx *domain.Transaction) error {
	if tx.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if tx.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	if tx.Currency == "" {
		return errors.New("currency is required")
	}
	if tx.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	return nil
}

// Analyze прогоняет транзакцию через пайплайн и возвращает итог.
func (s *AnalysisService) Analyze(ctx context.Context, tx domain.Transaction) (*domain.WorkflowState, error) {
	// 1. Поведенческий профиль. Недоступность хранилища не валит запрос:
	// пайплайн умеет работать с "нет данных".
	profile, err := s.behavior.GetBehaviorProfile(ctx, tx.CustomerID)
	if err != nil {
		s.logger.Warn("behavior store unavailable, proceeding without profile",
			zap.String("customer", tx.CustomerID), zap.Error(err))
		if s.metrics != nil {
			s.metrics.ErrorTotal.WithLabelValues("storage").Inc()
		}
		profile = nil
	}

	// 2. Пайплайн
	st, err := s.pipeline.Run(ctx, tx, profile)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	// 3. Долговременный журнал аудита (асинхронно, вне Hot Path)
	s.emitAuditTrail(st)

	// 4. Персистентность итога
	if err := s.store.SaveAnalysis(ctx, st); err != nil {
		return nil, fmt.Errorf("save analysis: %w", err)
	}

	// 5. Эскалация
	if st.NeedHumanReview {
		if err := s.escalate(ctx, st); err != nil {
			// Решение уже сохранено с need_human_review=true,
			// потерянную постановку можно восстановить переигровкой
			s.logger.Error("failed to enqueue escalation", zap.String("tx", tx.ID), zap.Error(err))
			return nil, fmt.Errorf("enqueue escalation: %w", err)
		}
	}

	return st, nil
}

// GetAnalysis возвращает сохраненный итог.
func (s *AnalysisService) GetAnalysis(ctx context.Context, transactionID string) (*domain.AnalysisRecord, error) {
	return s.store.GetAnalysis(ctx, transactionID)
}

// ListAnalyses — последние итоги, опционально по вердикту.
func (s *AnalysisService) ListAnalyses(ctx context.Context, verdict domain.Verdict, limit int) ([]*domain.AnalysisRecord, error) {
	if verdict != "" && !verdict.Valid() {
		return nil, fmt.Errorf("unknown verdict filter %q", verdict)
	}
	return s.store.ListAnalyses(ctx, verdict, limit)
}

func (s *AnalysisService) escalate(ctx context.Context, st *domain.WorkflowState) error {
	risk := 0.0
	if st.CompositeRisk != nil {
		risk = *st.CompositeRisk
	}

	err := s.queue.Enqueue(ctx, domain.EscalationRecord{
		TransactionID: st.Transaction.ID,
		Status:        domain.EscalationPending,
		Snapshot: domain.EscalationSnapshot{
			Transaction:   st.Transaction,
			CompositeRisk: risk,
			Signals:       st.Signals,
			Decision:      st.Decision,
			EscalatedAt:   s.now().UTC(),
		},
	})
	if err != nil {
		return err
	}

	s.refreshQueueDepth(ctx)
	return nil
}

func (s *AnalysisService) refreshQueueDepth(ctx context.Context) {
	if s.metrics == nil {
		return
	}
	if _, n, err := s.queue.ListPending(ctx); err == nil {
		s.metrics.EscalationQueueDepth.Set(float64(n))
	}
}

func (s *AnalysisService) emitAuditTrail(st *domain.WorkflowState) {
	if s.auditor == nil {
		return
	}
	for _, entry := range st.AuditTrail {
		event := audit.StageEvent{
			ID:            uuid.New().String(),
			TransactionID: st.Transaction.ID,
			CustomerID:    st.Transaction.CustomerID,
			Stage:         entry.Stage,
			Status:        entry.Status,
			Metrics:       entry.Metrics,
			Timestamp:     entry.Timestamp,
		}
		if d, ok := entry.Metrics["duration_ms"].(int64); ok {
			event.DurationMs = d
		}
		// Вердикт дублируем только в терминальном событии арбитража
		if entry.Stage == "arbitrate" && st.Decision != nil {
			event.Verdict = string(st.Decision.Verdict)
		}
		s.auditor.Log(event)
	}
}
