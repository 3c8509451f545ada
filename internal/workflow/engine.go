package workflow

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

/*
Пакет workflow — оркестратор пайплайна принятия решения.

Маршрут фиксированный:

	score_anomalies -> behavioral -> policy_evidence || threat_evidence
	    -> [composite_risk > порог ? arbitrate : debate -> arbitrate]
	    -> explain -> [эскалация?]

Стадии не видят друг друга и не пишут в состояние напрямую: каждая
возвращает частичный StateUpdate, слияние и аудит-трейл — только здесь.
Ветвления вычисляются по уже слитому состоянию, никогда по сырому
результату стадии.
*/

// Stage — единица пайплайна. Состояние приходит только на чтение.
type Stage interface {
	Name() string
	Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error)
}

// MetricsRecorder — приемник метрик пайплайна. Допускается nil.
type MetricsRecorder interface {
	ObserveStage(stage, status string, d time.Duration)
	IncVerdict(verdict string)
}

// Config — пороги ветвлений.
type Config struct {
	// DebateRiskThreshold: при composite_risk выше порога картина считается
	// ясной и дебаты пропускаются. Граница уходит в дебаты.
	DebateRiskThreshold float64
	// ConfidenceFloor: автоматический вердикт с уверенностью ниже порога
	// эскалируется. Граница (равенство) проходит.
	ConfidenceFloor float64
}

func DefaultConfig() Config {
	return Config{
		DebateRiskThreshold: 0.75,
		ConfidenceFloor:     0.75,
	}
}

// Engine прогоняет транзакцию через все стадии.
type Engine struct {
	score      Stage
	behavioral Stage
	policy     Stage
	threat     Stage
	debate     Stage
	arbiter    Stage
	explain    Stage

	cfg     Config
	metrics MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time
}

func NewEngine(score, behavioral, policy, threat, debate, arbiter, explain Stage,
	cfg Config, metrics MetricsRecorder, logger *zap.Logger) *Engine {
	return &Engine{
		score:      score,
		behavioral: behavioral,
		policy:     policy,
		threat:     threat,
		debate:     debate,
		arbiter:    arbiter,
		explain:    explain,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger.Named("workflow"),
		now:        time.Now,
	}
}

// Run выполняет полный пайплайн и возвращает конечное состояние.
// Ошибка здесь означает дефект оркестрации, а не сбой коллаборатора:
// стадии обязаны абсорбировать внешние сбои в типизированные фолбэки.
func (e *Engine) Run(ctx context.Context, tx domain.Transaction, profile *domain.BehaviorProfile) (*domain.WorkflowState, error) {
	st := &domain.WorkflowState{
		Transaction: tx,
		Behavior:    profile,
		AuditTrail:  []domain.AuditEntry{},
	}

	// 1. Детерминированный скоринг
	if err := e.runStage(ctx, e.score, st); err != nil {
		return st, err
	}

	// 2. Поведенческий анализ
	if err := e.runStage(ctx, e.behavioral, st); err != nil {
		return st, err
	}

	// 3. Сбор доказательств: политики и threat intel независимы,
	// выполняются параллельно, но сливаются в фиксированном порядке.
	if err := e.runEvidencePair(ctx, st); err != nil {
		return st, err
	}

	// 4. Ветвление по композитному риску: неоднозначные случаи — в дебаты.
	if e.needDebate(st) {
		if err := e.runStage(ctx, e.debate, st); err != nil {
			return st, err
		}
	} else {
		e.logger.Debug("debate skipped",
			zap.String("tx", tx.ID),
			zap.Float64p("composite_risk", st.CompositeRisk))
	}

	// 5. Арбитраж (fail-closed внутри стадии)
	if err := e.runStage(ctx, e.arbiter, st); err != nil {
		return st, err
	}

	// 6. Объяснения
	if err := e.runStage(ctx, e.explain, st); err != nil {
		return st, err
	}

	// 7. Терминальное ветвление: эскалация или завершение.
	st.NeedHumanReview = e.needEscalation(st)

	if e.metrics != nil && st.Decision != nil {
		e.metrics.IncVerdict(string(st.Decision.Verdict))
	}

	e.logger.Info("workflow finished",
		zap.String("tx", tx.ID),
		zap.String("verdict", verdictOf(st)),
		zap.Bool("need_human_review", st.NeedHumanReview),
		zap.Int("stages", len(st.AuditTrail)))

	return st, nil
}

// runStage выполняет стадию, сливает результат и пишет запись аудита.
func (e *Engine) runStage(ctx context.Context, stage Stage, st *domain.WorkflowState) error {
	started := e.now()
	upd, err := stage.Run(ctx, st)
	elapsed := e.now().Sub(started)

	if err != nil {
		e.appendAudit(st, stage.Name(), domain.StageFailed, elapsed, map[string]interface{}{
			"error": err.Error(),
		})
		return fmt.Errorf("stage %s: %w", stage.Name(), err)
	}

	merge(st, upd)
	e.appendAudit(st, stage.Name(), statusOf(upd), elapsed, metricsOf(upd))
	return nil
}

// runEvidencePair запускает policy_evidence и threat_evidence параллельно.
// Слияние и аудит — строго в порядке policy, threat, независимо от того,
// кто закончил первым: трейл должен быть воспроизводимым.
func (e *Engine) runEvidencePair(ctx context.Context, st *domain.WorkflowState) error {
	type result struct {
		upd     *domain.StateUpdate
		elapsed time.Duration
	}
	var policyRes, threatRes result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		started := e.now()
		upd, err := e.policy.Run(gctx, st)
		policyRes = result{upd: upd, elapsed: e.now().Sub(started)}
		return err
	})
	g.Go(func() error {
		started := e.now()
		upd, err := e.threat.Run(gctx, st)
		threatRes = result{upd: upd, elapsed: e.now().Sub(started)}
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("evidence retrieval: %w", err)
	}

	merge(st, policyRes.upd)
	e.appendAudit(st, e.policy.Name(), statusOf(policyRes.upd), policyRes.elapsed, metricsOf(policyRes.upd))

	merge(st, threatRes.upd)
	e.appendAudit(st, e.threat.Name(), statusOf(threatRes.upd), threatRes.elapsed, metricsOf(threatRes.upd))
	return nil
}

func (e *Engine) needDebate(st *domain.WorkflowState) bool {
	return st.CompositeRisk == nil || *st.CompositeRisk <= e.cfg.DebateRiskThreshold
}

func (e *Engine) needEscalation(st *domain.WorkflowState) bool {
	if st.Decision == nil {
		return true
	}
	if st.Decision.Verdict == domain.VerdictEscalate {
		return true
	}
	return st.Decision.Confidence < e.cfg.ConfidenceFloor
}

func (e *Engine) appendAudit(st *domain.WorkflowState, stage, status string, elapsed time.Duration, m map[string]interface{}) {
	if e.metrics != nil {
		e.metrics.ObserveStage(stage, status, elapsed)
	}

	entry := domain.AuditEntry{
		Stage:     stage,
		Status:    status,
		Timestamp: e.now().UTC(),
		Metrics:   map[string]interface{}{"duration_ms": elapsed.Milliseconds()},
	}
	for k, v := range m {
		entry.Metrics[k] = v
	}
	st.AuditTrail = append(st.AuditTrail, entry)
}

// merge применяет частичный результат стадии. nil-поле = "не трогать".
func merge(st *domain.WorkflowState, upd *domain.StateUpdate) {
	if upd == nil {
		return
	}
	if upd.Anomalies != nil {
		st.Anomalies = upd.Anomalies
	}
	if upd.CompositeRisk != nil {
		st.CompositeRisk = upd.CompositeRisk
	}
	if upd.Signals != nil {
		st.Signals = upd.Signals
	}
	if upd.Behavioral != nil {
		st.Behavioral = upd.Behavioral
	}
	if upd.PolicyEvidence != nil {
		st.PolicyEvidence = upd.PolicyEvidence
	}
	if upd.ThreatEvidence != nil {
		st.ThreatEvidence = upd.ThreatEvidence
	}
	if upd.Debate != nil {
		st.Debate = upd.Debate
	}
	if upd.Decision != nil {
		st.Decision = upd.Decision
	}
	if upd.CustomerExplanation != nil {
		st.CustomerExplanation = *upd.CustomerExplanation
	}
	if upd.AuditExplanation != nil {
		st.AuditExplanation = *upd.AuditExplanation
	}
}

func metricsOf(upd *domain.StateUpdate) map[string]interface{} {
	if upd == nil {
		return nil
	}
	return upd.StageMetrics
}

func statusOf(upd *domain.StateUpdate) string {
	if upd == nil || upd.StageStatus == "" {
		return domain.StageCompleted
	}
	return upd.StageStatus
}

func verdictOf(st *domain.WorkflowState) string {
	if st.Decision == nil {
		return ""
	}
	return string(st.Decision.Verdict)
}
