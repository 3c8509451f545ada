package domain

import "time"

/*
Файл state.go описывает агрегат WorkflowState — единственное разделяемое
состояние пайплайна принятия решения.

Контракт владения полями: каждое поле заполняется ровно одной стадией.
Стадии получают state только на чтение и возвращают частичный StateUpdate;
слияние выполняет исключительно оркестратор (internal/workflow). Это
защищает от случайного перетирания чужих полей.
*/

// AnomalySignal — результат одной детерминированной проверки.
// Производится один раз, дальше только читается.
type AnomalySignal struct {
	IsAnomaly bool    `json:"is_anomaly"`
	Score     float64 `json:"score"` // [0,1], округлен до 2 знаков
	Reason    string  `json:"reason"`
}

// AnomalySet — четыре независимых сигнала по измерениям транзакции.
type AnomalySet struct {
	Amount  AnomalySignal `json:"amount_anomaly"`
	Time    AnomalySignal `json:"time_anomaly"`
	Device  AnomalySignal `json:"device_anomaly"`
	Country AnomalySignal `json:"country_anomaly"`
}

// Count возвращает число сработавших сигналов (вход композитного риска).
func (a AnomalySet) Count() int {
	n := 0
	for _, s := range []AnomalySignal{a.Amount, a.Time, a.Device, a.Country} {
		if s.IsAnomaly {
			n++
		}
	}
	return n
}

// BehavioralAnalysis — оценка отклонения от паттерна, полученная от
// reasoning-сервиса (с фолбэком 0.5 при нечитаемом ответе).
type BehavioralAnalysis struct {
	DeviationScore float64 `json:"deviation_score"` // [0,1]
	Notes          string  `json:"pattern_deviation"`
}

// PolicyEvidence — внутренняя политика, найденная поиском по корпусу правил.
type PolicyEvidence struct {
	Rank        int       `json:"rank"`
	PolicyID    string    `json:"policy_id"`
	Rule        string    `json:"rule"`
	Version     string    `json:"version"`
	Similarity  float64   `json:"similarity_score"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// ThreatEvidence — внешний фрод-кейс из threat intelligence (не более 3 на запрос).
type ThreatEvidence struct {
	Source      string    `json:"source"`
	Summary     string    `json:"summary"`
	Category    string    `json:"category"`
	RetrievedAt time.Time `json:"retrieved_at"`
}

// Debate stances. Порядок реплик внутри раунда фиксирован:
// сначала защитник, потом обвинитель.
const (
	StanceProApproval = "pro_approval"
	StanceProFraud    = "pro_fraud"
)

// DebateTurn — одна реплика дебатов. Транскрипт упорядочен и никогда
// не пересортировывается.
type DebateTurn struct {
	Round     int       `json:"round"` // 1..N
	Stance    string    `json:"stance"`
	Argument  string    `json:"argument"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditEntry — append-only запись о выполнении стадии. Длина трейла равна
// числу реально выполненных стадий; записи не переупорядочиваются.
type AuditEntry struct {
	Stage     string                 `json:"stage"`
	Status    string                 `json:"status"` // completed / failed / degraded
	Timestamp time.Time              `json:"timestamp"`
	Metrics   map[string]interface{} `json:"metrics,omitempty"` // score, duration_ms и т.п.
}

// Статусы стадий для AuditEntry.Status.
const (
	StageCompleted = "completed"
	StageDegraded  = "degraded" // коллаборатор недоступен, сработал фолбэк
	StageFailed    = "failed"
)

// WorkflowState — накопленное состояние одной транзакции.
// Поля-указатели означают "стадия еще не выполнялась".
type WorkflowState struct {
	Transaction Transaction      `json:"transaction"`
	Behavior    *BehaviorProfile `json:"usual_behavior,omitempty"`

	Anomalies     *AnomalySet `json:"anomaly_signals,omitempty"`
	CompositeRisk *float64    `json:"composite_risk,omitempty"`
	Signals       []string    `json:"signals,omitempty"`

	Behavioral     *BehavioralAnalysis `json:"behavioral_analysis,omitempty"`
	PolicyEvidence []PolicyEvidence    `json:"policy_evidence,omitempty"`
	ThreatEvidence []ThreatEvidence    `json:"threat_evidence,omitempty"`
	Debate         []DebateTurn        `json:"debate,omitempty"`

	Decision *Decision `json:"decision,omitempty"`

	CustomerExplanation string `json:"explanation_customer,omitempty"`
	AuditExplanation    string `json:"explanation_audit,omitempty"`

	AuditTrail      []AuditEntry `json:"audit_trail"`
	NeedHumanReview bool         `json:"need_human_review"`
}

// StateUpdate — частичный результат стадии. nil-поле = "не трогать".
// Слайсы заменяются целиком (стадия владеет своим полем единолично).
type StateUpdate struct {
	Anomalies     *AnomalySet
	CompositeRisk *float64
	Signals       []string

	Behavioral     *BehavioralAnalysis
	PolicyEvidence []PolicyEvidence
	ThreatEvidence []ThreatEvidence
	Debate         []DebateTurn

	Decision *Decision

	CustomerExplanation *string
	AuditExplanation    *string

	// Метрики стадии попадают в AuditEntry, который добавляет оркестратор.
	StageStatus  string
	StageMetrics map[string]interface{}
}
