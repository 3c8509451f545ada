package queue

import (
	"context"
	"sync"
	"time"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// Memory — потокобезопасная in-memory реализация Queue.
// Используется в тестах и для локальной разработки без Redis.
type Memory struct {
	mu      sync.Mutex
	records map[string]*domain.EscalationRecord
	pending []string // transaction_id, свежие в начале
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		records: make(map[string]*domain.EscalationRecord),
		now:     time.Now,
	}
}

func (m *Memory) Enqueue(_ context.Context, record domain.EscalationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Status = domain.EscalationPending
	_, existed := m.records[record.TransactionID]
	m.records[record.TransactionID] = &record

	if !existed || !m.inPending(record.TransactionID) {
		m.pending = append([]string{record.TransactionID}, m.pending...)
	}
	return nil
}

func (m *Memory) Get(_ context.Context, transactionID string) (domain.EscalationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[transactionID]
	if !ok {
		return domain.EscalationRecord{}, domain.ErrEscalationNotFound
	}
	return *rec, nil
}

func (m *Memory) ListPending(_ context.Context) ([]domain.EscalationRecord, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.EscalationRecord, 0, len(m.pending))
	for _, id := range m.pending {
		if rec, ok := m.records[id]; ok && rec.Status == domain.EscalationPending {
			out = append(out, *rec)
		}
	}
	return out, len(out), nil
}

func (m *Memory) Resolve(_ context.Context, transactionID string, res domain.Resolution) (domain.EscalationRecord, error) {
	if err := validateResolution(res); err != nil {
		return domain.EscalationRecord{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[transactionID]
	if !ok || rec.Status != domain.EscalationPending {
		return domain.EscalationRecord{}, domain.ErrEscalationNotFound
	}

	applyResolution(rec, res, m.now())
	m.removePending(transactionID)
	return *rec, nil
}

func (m *Memory) inPending(id string) bool {
	for _, p := range m.pending {
		if p == id {
			return true
		}
	}
	return false
}

func (m *Memory) removePending(id string) {
	for i, p := range m.pending {
		if p == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return
		}
	}
}
