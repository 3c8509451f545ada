package debate

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
Пакет debate — двусторонний протокол состязательной аргументации.
Запускается только при неоднозначном композитном риске. Фиксированные
2 раунда, в каждом строго две реплики по порядку: pro-approval, затем
pro-fraud. Обвинитель всегда видит реплику защитника того же раунда.

Из дебатов не выводится никакой автоматический скор — транскрипт идет
арбитру как качественный контекст с самым низким приоритетом.
*/

// Rounds — фиксированное число раундов.
const Rounds = 2

const proApprovalSystem = `You argue on behalf of the customer. Your role is to argue that the
transaction is legitimate and that the anomalous signals have reasonable explanations.
Be brief and concise (2-3 sentences maximum).`

const proFraudSystem = `You are a fraud detection advocate. Your role is to argue that the
anomalous signals are concerning and suggest fraud risk.
Be brief and concise (2-3 sentences maximum).`

// Stage реализует протокол поверх reasoning-сервиса.
type Stage struct {
	judge   reasoning.Judge
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

func NewStage(judge reasoning.Judge, timeout time.Duration, logger *zap.Logger) *Stage {
	return &Stage{judge: judge, timeout: timeout, logger: logger.Named("debate"), now: time.Now}
}

func (s *Stage) Name() string { return "debate" }

// Run ведет дебаты и возвращает упорядоченный транскрипт.
// Сбой отдельной реплики не прерывает протокол: аргумент фиксируется
// как недоступный, порядок и число реплик сохраняются.
func (s *Stage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	contextSummary := buildContextSummary(st)

	transcript := make([]domain.DebateTurn, 0, Rounds*2)
	degraded := false

	for round := 1; round <= Rounds; round++ {
		// Реплика защитника
		approvalPrompt := fmt.Sprintf(
			"Round %d/%d\nTransaction context:\n%s\n%s\nBriefly argue why this transaction could be legitimate.",
			round, Rounds, contextSummary, formatPrior(transcript))

		approvalArg, err := s.ask(ctx, proApprovalSystem, approvalPrompt)
		if err != nil {
			s.logger.Warn("pro-approval turn failed", zap.Int("round", round), zap.Error(err))
			approvalArg = fmt.Sprintf("argument unavailable: %v", err)
			degraded = true
		}
		transcript = append(transcript, domain.DebateTurn{
			Round: round, Stance: domain.StanceProApproval, Argument: approvalArg, Timestamp: s.now().UTC(),
		})

		// Реплика обвинителя: обязана видеть свежий аргумент защитника
		fraudPrompt := fmt.Sprintf(
			"Round %d/%d\nTransaction context:\n%s\nCustomer advocate's argument:\n%s\n%s\nBriefly rebut, arguing the fraud risk.",
			round, Rounds, contextSummary, approvalArg, formatPrior(transcript[:len(transcript)-1]))

		fraudArg, err := s.ask(ctx, proFraudSystem, fraudPrompt)
		if err != nil {
			s.logger.Warn("pro-fraud turn failed", zap.Int("round", round), zap.Error(err))
			fraudArg = fmt.Sprintf("argument unavailable: %v", err)
			degraded = true
		}
		transcript = append(transcript, domain.DebateTurn{
			Round: round, Stance: domain.StanceProFraud, Argument: fraudArg, Timestamp: s.now().UTC(),
		})
	}

	status := domain.StageCompleted
	if degraded {
		status = domain.StageDegraded
	}

	return &domain.StateUpdate{
		Debate:      transcript,
		StageStatus: status,
		StageMetrics: map[string]interface{}{
			"rounds": Rounds,
			"turns":  len(transcript),
		},
	}, nil
}

func (s *Stage) ask(ctx context.Context, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.judge.Judge(callCtx, system, user)
}

// buildContextSummary сводит накопленный контекст в компактный текст
// для обеих сторон: транзакция, сигналы аномалий, поведенческое отклонение.
func buildContextSummary(st *domain.WorkflowState) string {
	var b strings.Builder
	tx := st.Transaction
	fmt.Fprintf(&b, "Transaction: %.2f %s in %s via %s\n", tx.Amount, tx.Currency, tx.Country, tx.Channel)

	if a := st.Anomalies; a != nil {
		b.WriteString("Anomaly signals:\n")
		for _, item := range []struct {
			name string
			sig  domain.AnomalySignal
		}{
			{"Amount", a.Amount}, {"Time", a.Time}, {"Device", a.Device}, {"Country", a.Country},
		} {
			fmt.Fprintf(&b, "- %s: %s (score: %.2f)\n", item.name, item.sig.Reason, item.sig.Score)
		}
	}

	if st.Behavioral != nil {
		fmt.Fprintf(&b, "Behavioral deviation: %.2f\n", st.Behavioral.DeviationScore)
		if st.Behavioral.Notes != "" {
			fmt.Fprintf(&b, "Analysis: %s\n", st.Behavioral.Notes)
		}
	}
	return b.String()
}

func formatPrior(transcript []domain.DebateTurn) string {
	if len(transcript) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Previous debate:\n")
	for _, turn := range transcript {
		fmt.Fprintf(&b, "[round %d, %s] %s\n", turn.Round, turn.Stance, turn.Argument)
	}
	return b.String()
}
