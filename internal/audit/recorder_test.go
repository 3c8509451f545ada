package audit_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
)

type captureStorage struct {
	mu     sync.Mutex
	events []audit.StageEvent
}

func (s *captureStorage) WriteBatch(_ context.Context, events []audit.StageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *captureStorage) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Drain: все принятые до Stop события доезжают до хранилища.
func TestRecorder_FlushesEverythingOnStop(t *testing.T) {
	storage := &captureStorage{}
	rec := audit.NewRecorder(storage, zap.NewNop())
	rec.Start()

	const n = 250
	for i := 0; i < n; i++ {
		rec.Log(audit.StageEvent{
			ID:            fmt.Sprintf("evt-%d", i),
			TransactionID: "tx-1",
			Stage:         "score_anomalies",
			Status:        "completed",
		})
	}
	rec.Stop()

	if got := storage.count(); got != n {
		t.Errorf("flushed events = %d, want %d", got, n)
	}
}

func TestRecorder_DropsAfterStop(t *testing.T) {
	storage := &captureStorage{}
	rec := audit.NewRecorder(storage, zap.NewNop())
	rec.Start()
	rec.Stop()

	// Не должно паниковать и не должно ничего записать
	rec.Log(audit.StageEvent{ID: "late", TransactionID: "tx-1"})

	if got := storage.count(); got != 0 {
		t.Errorf("events after stop = %d, want 0", got)
	}
}

func TestRecorder_SetsTimestamp(t *testing.T) {
	storage := &captureStorage{}
	rec := audit.NewRecorder(storage, zap.NewNop())
	rec.Start()

	rec.Log(audit.StageEvent{ID: "evt-1", TransactionID: "tx-1"})
	rec.Stop()

	if storage.count() != 1 {
		t.Fatalf("events = %d", storage.count())
	}
	if storage.events[0].Timestamp.IsZero() {
		t.Error("timestamp not set on logged event")
	}
}
