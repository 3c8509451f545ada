package audit

import "time"

// StageEvent — событие аудита одного шага пайплайна. Пишется асинхронно
// в audit_events; встроенный в WorkflowState трейл — оперативная копия,
// эта таблица — долговременный журнал для комплаенса.
type StageEvent struct {
	ID            string                 `json:"id"`             // UUID события
	TransactionID string                 `json:"transaction_id"` // Сквозной ID запроса
	CustomerID    string                 `json:"customer_id"`
	Stage         string                 `json:"stage"`   // score_anomalies, behavioral, ...
	Status        string                 `json:"status"`  // completed / degraded / failed
	Metrics       map[string]interface{} `json:"metrics"` // score, duration_ms и т.п.

	// Результат (только для терминальных событий)
	Verdict string `json:"verdict,omitempty"`

	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
}
