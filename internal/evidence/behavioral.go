package evidence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/reasoning"
)

/*
Пакет evidence — стадии сбора доказательной базы. Общий принцип: стадии
best-effort и пайплайн не роняют никогда. Сбой коллаборатора превращается
в типизированный фолбэк (deviation 0.5 / пустой список) с диагностикой
в audit-метриках стадии.
*/

// behavioralAttempts — всего попыток получить читаемый вердикт,
// включая первую. После исчерпания — фолбэк 0.5.
const behavioralAttempts = 3

const fallbackDeviation = 0.5

const behavioralSystemPrompt = `You are an expert in financial behavior analysis.
Evaluate whether the transaction is consistent with the customer's historical pattern.
Consider: amount, hour of day, location, device.

ALWAYS respond with JSON of the form:
{"deviation_score": <number between 0 and 1, 0 = normal behavior, 1 = highly deviant>, "notes": "<concise analysis>"}`

// behavioralJudgment — схема ответа reasoning-сервиса для этой стадии.
type behavioralJudgment struct {
	DeviationScore float64 `json:"deviation_score"`
	Notes          string  `json:"notes"`
}

// BehavioralStage оценивает отклонение поведения через reasoning-сервис.
type BehavioralStage struct {
	judge   reasoning.Judge
	timeout time.Duration
	logger  *zap.Logger
}

func NewBehavioralStage(judge reasoning.Judge, timeout time.Duration, logger *zap.Logger) *BehavioralStage {
	return &BehavioralStage{judge: judge, timeout: timeout, logger: logger.Named("behavioral")}
}

func (s *BehavioralStage) Name() string { return "behavioral" }

// Run запрашивает deviation score. Нечитаемый или недоступный ответ —
// повтор (всего до 3 попыток), после — фолбэк 0.5 с диагностической заметкой.
func (s *BehavioralStage) Run(ctx context.Context, st *domain.WorkflowState) (*domain.StateUpdate, error) {
	userPrompt := s.buildPrompt(st)

	var j behavioralJudgment

	r := retry.New(
		retry.Context(ctx),
		retry.Attempts(behavioralAttempts),
	)
	err := r.Do(func() error {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()

		raw, err := s.judge.Judge(callCtx, behavioralSystemPrompt, userPrompt)
		if err != nil {
			return err
		}
		return reasoning.DecodeJudgment(raw, &j)
	})

	analysis := &domain.BehavioralAnalysis{
		DeviationScore: j.DeviationScore,
		Notes:          j.Notes,
	}
	status := domain.StageCompleted

	if err != nil {
		s.logger.Warn("behavioral judgment failed, using fallback", zap.Error(err))
		analysis.DeviationScore = fallbackDeviation
		analysis.Notes = fmt.Sprintf("failed to obtain behavioral judgment after %d attempts: %v", behavioralAttempts, err)
		status = domain.StageDegraded
	}

	return &domain.StateUpdate{
		Behavioral:  analysis,
		StageStatus: status,
		StageMetrics: map[string]interface{}{
			"deviation_score": analysis.DeviationScore,
		},
	}, nil
}

func (s *BehavioralStage) buildPrompt(st *domain.WorkflowState) string {
	tx := st.Transaction

	var b strings.Builder
	fmt.Fprintf(&b, "Customer: %s\n", tx.CustomerID)

	if p := st.Behavior; p != nil {
		b.WriteString("Usual behavior:\n")
		fmt.Fprintf(&b, "- Average amount: %.2f\n", p.UsualAmountAvg)
		fmt.Fprintf(&b, "- Hours: %s\n", p.UsualHours)
		fmt.Fprintf(&b, "- Countries: %s\n", strings.Join(p.UsualCountries, ", "))
		fmt.Fprintf(&b, "- Known devices: %s\n", strings.Join(p.UsualDevices, ", "))
	} else {
		b.WriteString("Usual behavior: no data on file\n")
	}

	b.WriteString("Current transaction:\n")
	fmt.Fprintf(&b, "- Amount: %.2f %s\n", tx.Amount, tx.Currency)
	fmt.Fprintf(&b, "- Hour: %02d:00\n", tx.LocalHour())
	fmt.Fprintf(&b, "- Country: %s\n", tx.Country)
	fmt.Fprintf(&b, "- Device: %s\n", tx.DeviceID)

	if st.Anomalies != nil {
		b.WriteString("Deterministic anomaly signals:\n")
		for _, item := range []struct {
			name string
			sig  domain.AnomalySignal
		}{
			{"amount", st.Anomalies.Amount},
			{"time", st.Anomalies.Time},
			{"device", st.Anomalies.Device},
			{"country", st.Anomalies.Country},
		} {
			fmt.Fprintf(&b, "- %s: anomaly=%v score=%.2f (%s)\n", item.name, item.sig.IsAnomaly, item.sig.Score, item.sig.Reason)
		}
	}

	b.WriteString("How deviant is this transaction from the normal pattern? Respond in JSON.")
	return b.String()
}
