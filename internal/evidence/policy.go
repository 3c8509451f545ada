package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// PolicySearcher — провайдер поиска по корпусу внутренних политик.
// Возвращает ранжированный список правил, релевантных запросу.
type PolicySearcher interface {
	Search(ctx context.Context, query string) ([]domain.PolicyEvidence, error)
}

// PolicyStage подтягивает внутренние политики для контекста арбитража.
// Best-effort: ошибка провайдера дает пустой список + диагностику,
// пайплайн продолжается.
type PolicyStage struct {
	searcher PolicySearcher
	timeout  time.Duration
	logger   *zap.Logger
}

func NewPolicyStage(searcher PolicySearcher, timeout time.Duration, logger *zap.Logger) *PolicyStage {
	return &PolicyStage{searcher: searcher, timeout: timeout, logger: logger.Named("policy-evidence")}
}

func (s *PolicyStage) Name() string { return "policy_evidence" }

func (s *PolicyStage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	query := s.buildQuery(st)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	policies, err := s.searcher.Search(callCtx, query)
	if err != nil {
		s.logger.Warn("policy search failed, continuing without policy evidence", zap.Error(err))
		return &domain.StateUpdate{
			PolicyEvidence: []domain.PolicyEvidence{},
			StageStatus:    domain.StageDegraded,
			StageMetrics: map[string]interface{}{
				"search_query": query,
				"error":        err.Error(),
			},
		}, nil
	}

	return &domain.StateUpdate{
		PolicyEvidence: policies,
		StageStatus:    domain.StageCompleted,
		StageMetrics: map[string]interface{}{
			"search_query": query,
			"policies":     len(policies),
		},
	}, nil
}

func (s *PolicyStage) buildQuery(st *domain.WorkflowState) string {
	tx := st.Transaction
	return fmt.Sprintf("Fraud policy for %.2f %s in %s. Anomalies: %s",
		tx.Amount, tx.Currency, tx.Country, strings.Join(st.Signals, ", "))
}
