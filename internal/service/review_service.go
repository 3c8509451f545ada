package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/metrics"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/queue"
)

// DecisionApplier дописывает ручной вердикт в сохраненный итог анализа.
type DecisionApplier interface {
	ApplyHumanDecision(ctx context.Context, transactionID string, verdict domain.Verdict, notes string) error
}

// ReviewService — операции аналитика над очередью эскалаций.
type ReviewService struct {
	queue   queue.Queue
	store   DecisionApplier
	auditor audit.Auditor
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewReviewService(q queue.Queue, store DecisionApplier, auditor audit.Auditor, m *metrics.Metrics, logger *zap.Logger) *ReviewService {
	return &ReviewService{
		queue:   q,
		store:   store,
		auditor: auditor,
		metrics: m,
		logger:  logger.Named("review"),
		now:     time.Now,
	}
}

// ListPending — очередь на разбор, свежие первыми, плюс длина очереди.
func (s *ReviewService) ListPending(ctx context.Context) ([]domain.EscalationRecord, int, error) {
	return s.queue.ListPending(ctx)
}

// GetEscalation — запись эскалации в любом статусе.
func (s *ReviewService) GetEscalation(ctx context.Context, transactionID string) (domain.EscalationRecord, error) {
	return s.queue.Get(ctx, transactionID)
}

// Resolve закрывает эскалацию вручную. Порядок важен: сначала exactly-once
// CAS в очереди (источник правды по владению решением), потом обновление
// сохраненного итога и журнал аудита.
func (s *ReviewService) Resolve(ctx context.Context, transactionID string, res domain.Resolution) (domain.EscalationRecord, error) {
	rec, err := s.queue.Resolve(ctx, transactionID, res)
	if err != nil {
		return domain.EscalationRecord{}, err
	}

	if err := s.store.ApplyHumanDecision(ctx, transactionID, res.Verdict, res.Notes); err != nil {
		// Очередь уже закрыта — откатывать нечего, фиксируем рассинхрон
		s.logger.Error("human decision not applied to stored analysis",
			zap.String("tx", transactionID), zap.Error(err))
		return rec, fmt.Errorf("apply human decision: %w", err)
	}

	if s.auditor != nil {
		s.auditor.Log(audit.StageEvent{
			ID:            uuid.New().String(),
			TransactionID: transactionID,
			CustomerID:    rec.Snapshot.Transaction.CustomerID,
			Stage:         "human_review",
			Status:        domain.StageCompleted,
			Verdict:       string(res.Verdict),
			Metrics: map[string]interface{}{
				"reviewer_id": res.ReviewerID,
			},
			Timestamp: s.now().UTC(),
		})
	}

	if s.metrics != nil {
		s.metrics.VerdictTotal.WithLabelValues(string(res.Verdict)).Inc()
		if _, n, err := s.queue.ListPending(ctx); err == nil {
			s.metrics.EscalationQueueDepth.Set(float64(n))
		}
	}

	s.logger.Info("escalation resolved",
		zap.String("tx", transactionID),
		zap.String("verdict", string(res.Verdict)),
		zap.String("reviewer", res.ReviewerID))
	return rec, nil
}
