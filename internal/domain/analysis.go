package domain

import "time"

// AnalysisRecord — персистентный итог пайплайна по одной транзакции.
// Колонки вердикта денормализованы из state для выборок и фильтрации;
// полное состояние хранится рядом как JSONB.
type AnalysisRecord struct {
	TransactionID   string        `json:"transaction_id"`
	CustomerID      string        `json:"customer_id"`
	Verdict         Verdict       `json:"verdict"`
	Confidence      float64       `json:"confidence"`
	DecidedBy       string        `json:"decided_by"`
	NeedHumanReview bool          `json:"need_human_review"`
	State           WorkflowState `json:"state"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
