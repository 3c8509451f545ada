package workflow

import (
	"context"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/anomaly"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// ScoreStage — детерминированная стадия скоринга. Единственная стадия
// без I/O: ей не нужны ни таймауты, ни фолбэки.
type ScoreStage struct {
	engine *anomaly.Engine
}

func NewScoreStage(engine *anomaly.Engine) *ScoreStage {
	return &ScoreStage{engine: engine}
}

func (s *ScoreStage) Name() string { return "score_anomalies" }

func (s *ScoreStage) Run(_ context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	set, risk, signals := s.engine.Analyze(st.Transaction, st.Behavior)

	return &domain.StateUpdate{
		Anomalies:     &set,
		CompositeRisk: &risk,
		Signals:       signals,
		StageStatus:   domain.StageCompleted,
		StageMetrics: map[string]interface{}{
			"composite_risk": risk,
			"anomaly_count":  set.Count(),
		},
	}, nil
}
