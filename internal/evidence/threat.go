package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// MaxThreatRecords — верхняя граница внешних фрод-кейсов на транзакцию.
const MaxThreatRecords = 3

// ThreatSearcher — провайдер внешней threat intelligence.
type ThreatSearcher interface {
	Search(ctx context.Context, query string) ([]domain.ThreatEvidence, error)
}

// ThreatStage подтягивает свежие внешние фрод-кейсы. Best-effort,
// как и PolicyStage: для арбитра это контекст, а не основание решения.
type ThreatStage struct {
	searcher ThreatSearcher
	timeout  time.Duration
	logger   *zap.Logger
}

func NewThreatStage(searcher ThreatSearcher, timeout time.Duration, logger *zap.Logger) *ThreatStage {
	return &ThreatStage{searcher: searcher, timeout: timeout, logger: logger.Named("threat-evidence")}
}

func (s *ThreatStage) Name() string { return "threat_evidence" }

func (s *ThreatStage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	query := s.buildQuery(st)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	threats, err := s.searcher.Search(callCtx, query)
	if err != nil {
		s.logger.Warn("threat search failed, continuing without external evidence", zap.Error(err))
		return &domain.StateUpdate{
			ThreatEvidence: []domain.ThreatEvidence{},
			StageStatus:    domain.StageDegraded,
			StageMetrics: map[string]interface{}{
				"search_query": query,
				"error":        err.Error(),
			},
		}, nil
	}

	if len(threats) > MaxThreatRecords {
		threats = threats[:MaxThreatRecords]
	}

	return &domain.StateUpdate{
		ThreatEvidence: threats,
		StageStatus:    domain.StageCompleted,
		StageMetrics: map[string]interface{}{
			"search_query": query,
			"threats":      len(threats),
		},
	}, nil
}

// buildQuery собирает поисковый запрос из сработавших сигналов:
// чем конкретнее паттерн, тем релевантнее внешние кейсы.
func (s *ThreatStage) buildQuery(st *domain.WorkflowState) string {
	tx := st.Transaction

	var patterns []string
	if a := st.Anomalies; a != nil {
		if a.Device.IsAnomaly {
			patterns = append(patterns, "new/unknown devices")
		}
		if a.Time.IsAnomaly {
			patterns = append(patterns, "transactions at unusual hours")
		}
		if a.Amount.IsAnomaly {
			patterns = append(patterns, fmt.Sprintf("anomalous amounts in %s", tx.Currency))
		}
	}

	if len(patterns) > 0 {
		return fmt.Sprintf("Recent fraud in %s with patterns: %s", tx.Country, strings.Join(patterns, ", "))
	}
	return fmt.Sprintf("Recent financial fraud in %s", tx.Country)
}
