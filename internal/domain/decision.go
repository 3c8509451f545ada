package domain

// Verdict — категориальный вердикт арбитра.
type Verdict string

const (
	VerdictApprove   Verdict = "APPROVE"
	VerdictChallenge Verdict = "CHALLENGE"
	VerdictBlock     Verdict = "BLOCK"
	VerdictEscalate  Verdict = "ESCALATE_TO_HUMAN"
)

// Valid сообщает, входит ли значение в допустимый набор вердиктов.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictApprove, VerdictChallenge, VerdictBlock, VerdictEscalate:
		return true
	}
	return false
}

// Значения Decision.DecidedBy.
const (
	DecidedByArbiter = "arbiter"
	DecidedByHuman   = "human"
)

// Decision — итог арбитража: вердикт + уверенность + обоснование.
// При нечитаемом ответе reasoning-сервиса арбитр обязан выдать
// fail-closed решение: ESCALATE_TO_HUMAN с уверенностью 0.
type Decision struct {
	Verdict    Verdict `json:"value"`
	Confidence float64 `json:"confidence"` // [0,1]
	Rationale  string  `json:"chain_of_thought"`

	// DecidedBy: "arbiter" для автоматических решений, "human" после HITL.
	DecidedBy     string `json:"decided_by"`
	ReviewerNotes string `json:"reviewer_notes,omitempty"`
}
