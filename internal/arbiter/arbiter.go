package arbiter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/reasoning"
)

/*
Пакет arbiter — финальный синтез вердикта. Единственная стадия с
fail-closed политикой: нечитаемый ответ или недоступный reasoning-сервис
не маскируются фолбэком, а конвертируются в ESCALATE_TO_HUMAN с нулевой
уверенностью. Ложный APPROVE дороже лишней эскалации.
*/

const arbiterSystemPrompt = `You are the final arbiter of a fraud detection system.
Synthesize all the evidence and issue a verdict.

Priority of evidence (highest first):
1. Internal policies — binding rules, they override everything else.
2. Deterministic anomaly signals — computed facts about the transaction.
3. External threat intelligence — context about active fraud campaigns.
4. Debate arguments — qualitative perspectives, lowest priority.

Possible verdicts: APPROVE, CHALLENGE, BLOCK, ESCALATE_TO_HUMAN.

ALWAYS respond with JSON of the form:
{"chain_of_thought": "<step by step reasoning>", "decision": "<verdict>", "confidence": <number between 0 and 1>}`

// arbiterJudgment — схема ответа reasoning-сервиса.
type arbiterJudgment struct {
	ChainOfThought string  `json:"chain_of_thought"`
	Decision       string  `json:"decision"`
	Confidence     float64 `json:"confidence"`
}

// Stage синтезирует вердикт из всего накопленного состояния.
type Stage struct {
	judge   reasoning.Judge
	timeout time.Duration
	logger  *zap.Logger
}

func NewStage(judge reasoning.Judge, timeout time.Duration, logger *zap.Logger) *Stage {
	return &Stage{judge: judge, timeout: timeout, logger: logger.Named("arbiter")}
}

func (s *Stage) Name() string { return "arbitrate" }

// Run выносит вердикт. Fail-closed: любая проблема с reasoning-сервисом
// дает ESCALATE_TO_HUMAN / confidence 0.0 с текстом ошибки в rationale.
func (s *Stage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	userPrompt := buildPrompt(st)

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.judge.Judge(callCtx, arbiterSystemPrompt, userPrompt)
	if err != nil {
		return s.failClosed(fmt.Sprintf("arbiter unavailable: %v", err)), nil
	}

	var j arbiterJudgment
	if err := reasoning.DecodeJudgment(raw, &j); err != nil {
		return s.failClosed(fmt.Sprintf("failed to parse arbiter judgment: %v", err)), nil
	}

	verdict := domain.Verdict(j.Decision)
	if !verdict.Valid() {
		return s.failClosed(fmt.Sprintf("arbiter returned unknown verdict %q", j.Decision)), nil
	}

	return &domain.StateUpdate{
		Decision: &domain.Decision{
			Verdict:    verdict,
			Confidence: j.Confidence,
			Rationale:  j.ChainOfThought,
			DecidedBy:  domain.DecidedByArbiter,
		},
		StageStatus: domain.StageCompleted,
		StageMetrics: map[string]interface{}{
			"verdict":    string(verdict),
			"confidence": j.Confidence,
		},
	}, nil
}

func (s *Stage) failClosed(reason string) *domain.StateUpdate {
	s.logger.Warn("arbiter fail-closed", zap.String("reason", reason))
	return &domain.StateUpdate{
		Decision: &domain.Decision{
			Verdict:    domain.VerdictEscalate,
			Confidence: 0.0,
			Rationale:  reason,
			DecidedBy:  domain.DecidedByArbiter,
		},
		StageStatus: domain.StageDegraded,
		StageMetrics: map[string]interface{}{
			"verdict": string(domain.VerdictEscalate),
			"reason":  reason,
		},
	}
}

// buildPrompt раскладывает состояние по уровням приоритета —
// тем же порядком, каким арбитр обязан их взвешивать.
func buildPrompt(st *domain.WorkflowState) string {
	tx := st.Transaction

	var b strings.Builder
	fmt.Fprintf(&b, "Transaction %s: %.2f %s, customer %s, country %s, channel %s, device %s\n\n",
		tx.ID, tx.Amount, tx.Currency, tx.CustomerID, tx.Country, tx.Channel, tx.DeviceID)

	b.WriteString("=== 1. Internal policies (binding) ===\n")
	if len(st.PolicyEvidence) == 0 {
		b.WriteString("(no applicable policies retrieved)\n")
	}
	for _, p := range st.PolicyEvidence {
		fmt.Fprintf(&b, "[%s v%s, similarity %.2f] %s\n", p.PolicyID, p.Version, p.Similarity, p.Rule)
	}

	b.WriteString("\n=== 2. Deterministic anomaly signals ===\n")
	if a := st.Anomalies; a != nil {
		for _, item := range []struct {
			name string
			sig  domain.AnomalySignal
		}{
			{"amount", a.Amount}, {"time", a.Time}, {"device", a.Device}, {"country", a.Country},
		} {
			fmt.Fprintf(&b, "- %s: anomaly=%v score=%.2f (%s)\n",
				item.name, item.sig.IsAnomaly, item.sig.Score, item.sig.Reason)
		}
	}
	if st.CompositeRisk != nil {
		fmt.Fprintf(&b, "Composite risk (ambiguity): %.2f\n", *st.CompositeRisk)
	}
	if st.Behavioral != nil {
		fmt.Fprintf(&b, "Behavioral deviation: %.2f (%s)\n", st.Behavioral.DeviationScore, st.Behavioral.Notes)
	}

	b.WriteString("\n=== 3. External threat intelligence ===\n")
	if len(st.ThreatEvidence) == 0 {
		b.WriteString("(no external evidence)\n")
	}
	for _, th := range st.ThreatEvidence {
		fmt.Fprintf(&b, "[%s/%s] %s\n", th.Source, th.Category, th.Summary)
	}

	b.WriteString("\n=== 4. Debate transcript (lowest priority) ===\n")
	if len(st.Debate) == 0 {
		b.WriteString("(debate was skipped)\n")
	}
	for _, turn := range st.Debate {
		fmt.Fprintf(&b, "[round %d, %s] %s\n", turn.Round, turn.Stance, turn.Argument)
	}

	b.WriteString("\nIssue your verdict in JSON.")
	return b.String()
}
