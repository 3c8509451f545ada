package domain

import "time"

// EscalationStatus — статус записи в очереди ручного разбора.
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "pending"
	EscalationResolved EscalationStatus = "resolved"
)

// EscalationSnapshot — срез контекста решения на момент эскалации.
// Ревьюеру этого достаточно, чтобы не поднимать весь WorkflowState.
type EscalationSnapshot struct {
	Transaction   Transaction `json:"transaction"`
	CompositeRisk float64     `json:"composite_risk"`
	Signals       []string    `json:"signals"`
	Decision      *Decision   `json:"decision,omitempty"`
	EscalatedAt   time.Time   `json:"escalated_at"`
}

// EscalationRecord — персистентная запись эскалации. Создается при постановке
// в очередь, мутируется ровно один раз при резолюции и никогда не удаляется
// (служит аудит-записью).
type EscalationRecord struct {
	TransactionID string             `json:"transaction_id"`
	Snapshot      EscalationSnapshot `json:"snapshot"`
	Status        EscalationStatus   `json:"status"`

	// Поля резолюции. Вердикт ревьюера ограничен APPROVE | BLOCK.
	ReviewerVerdict Verdict    `json:"reviewer_verdict,omitempty"`
	ReviewerID      string     `json:"reviewer_id,omitempty"`
	ReviewerNotes   string     `json:"reviewer_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

// Resolution — команда ручного решения по эскалации.
type Resolution struct {
	Verdict    Verdict `json:"verdict"` // только APPROVE или BLOCK
	ReviewerID string  `json:"reviewer_id"`
	Notes      string  `json:"notes"`
}

// AllowedForReviewer проверяет, что ревьюер выбрал один из двух разрешенных
// вердиктов. CHALLENGE и ESCALATE_TO_HUMAN для человека недоступны.
func (r Resolution) AllowedForReviewer() bool {
	return r.Verdict == VerdictApprove || r.Verdict == VerdictBlock
}
