package explain

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
Пакет explain — генерация двух объяснений принятого решения:
короткого клиентского (без внутренних деталей) и развернутого
аудиторского. Стадия строго best-effort: решение уже принято,
и отсутствие текста не должно его блокировать.
*/

const customerSystemPrompt = `You write short customer-facing notifications for a bank.
Explain the decision about the customer's transaction in 1-2 sentences.
Do NOT reveal internal scores, policies, thresholds or fraud detection internals.
Be polite and clear.`

const auditSystemPrompt = `You write internal audit narratives for a fraud decision system.
Produce a complete, factual account of how the decision was reached:
which signals fired, what evidence was retrieved, and how it was weighed.
Be precise and reference the evidence explicitly.`

// Stage формирует объяснения через reasoning-сервис.
type Stage struct {
	judge   reasoning.Judge
	timeout time.Duration
	logger  *zap.Logger
}

func NewStage(judge reasoning.Judge, timeout time.Duration, logger *zap.Logger) *Stage {
	return &Stage{judge: judge, timeout: timeout, logger: logger.Named("explain")}
}

func (s *Stage) Name() string { return "explain" }

// Run генерирует оба текста. Сбой любого из них деградирует стадию,
// но возвращает пустую строку вместо ошибки.
func (s *Stage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	degraded := false

	customer, err := s.ask(ctx, customerSystemPrompt, buildCustomerPrompt(st))
	if err != nil {
		s.logger.Warn("customer explanation failed", zap.Error(err))
		customer = ""
		degraded = true
	}

	audit, err := s.ask(ctx, auditSystemPrompt, buildAuditPrompt(st))
	if err != nil {
		s.logger.Warn("audit explanation failed", zap.Error(err))
		audit = ""
		degraded = true
	}

	status := domain.StageCompleted
	if degraded {
		status = domain.StageDegraded
	}

	return &domain.StateUpdate{
		CustomerExplanation: &customer,
		AuditExplanation:    &audit,
		StageStatus:         status,
		StageMetrics: map[string]interface{}{
			"customer_chars": len(customer),
			"audit_chars":    len(audit),
		},
	}, nil
}

func (s *Stage) ask(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.judge.Judge(callCtx, system, user)
}

func buildCustomerPrompt(st *domain.WorkflowState) string {
	tx := st.Transaction
	verdict := ""
	if st.Decision != nil {
		verdict = string(st.Decision.Verdict)
	}
	return fmt.Sprintf("Transaction of %.2f %s. Decision: %s.\nWrite the customer notification.",
		tx.Amount, tx.Currency, verdict)
}

func buildAuditPrompt(st *domain.WorkflowState) string {
	var b strings.Builder
	tx := st.Transaction
	fmt.Fprintf(&b, "Transaction %s: %.2f %s, customer %s, country %s\n",
		tx.ID, tx.Amount, tx.Currency, tx.CustomerID, tx.Country)

	if st.Decision != nil {
		fmt.Fprintf(&b, "Verdict: %s (confidence %.2f)\nArbiter reasoning: %s\n",
			st.Decision.Verdict, st.Decision.Confidence, st.Decision.Rationale)
	}
	if len(st.Signals) > 0 {
		fmt.Fprintf(&b, "Signals: %s\n", strings.Join(st.Signals, ", "))
	}
	if st.CompositeRisk != nil {
		fmt.Fprintf(&b, "Composite risk: %.2f\n", *st.CompositeRisk)
	}
	for _, p := range st.PolicyEvidence {
		fmt.Fprintf(&b, "Policy %s: %s\n", p.PolicyID, p.Rule)
	}
	for _, th := range st.ThreatEvidence {
		fmt.Fprintf(&b, "Threat intel [%s]: %s\n", th.Source, th.Summary)
	}
	fmt.Fprintf(&b, "Stages executed: %d\n", len(st.AuditTrail))

	b.WriteString("Write the audit narrative.")
	return b.String()
}
