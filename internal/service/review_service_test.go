package service_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/queue"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/service"
)

type applierStub struct {
	applied []string
	err     error
}

func (a *applierStub) ApplyHumanDecision(_ context.Context, txID string, _ domain.Verdict, _ string) error {
	a.applied = append(a.applied, txID)
	return a.err
}

type auditorStub struct {
	events []audit.StageEvent
}

func (a *auditorStub) Log(e audit.StageEvent) { a.events = append(a.events, e) }

func enqueue(t *testing.T, q queue.Queue, txID string) {
	t.Helper()
	err := q.Enqueue(context.Background(), domain.EscalationRecord{
		TransactionID: txID,
		Snapshot: domain.EscalationSnapshot{
			Transaction: domain.Transaction{ID: txID, CustomerID: "cust-1"},
		},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
}

func TestResolve_UpdatesStoreAndAudits(t *testing.T) {
	q := queue.NewMemory()
	store := &applierStub{}
	auditor := &auditorStub{}
	svc := service.NewReviewService(q, store, auditor, nil, zap.NewNop())

	enqueue(t, q, "tx-1")

	rec, err := svc.Resolve(context.Background(), "tx-1", domain.Resolution{
		Verdict: domain.VerdictBlock, ReviewerID: "rev-9", Notes: "confirmed fraud",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if rec.Status != domain.EscalationResolved {
		t.Errorf("status = %q, want resolved", rec.Status)
	}
	if len(store.applied) != 1 || store.applied[0] != "tx-1" {
		t.Errorf("store.applied = %v", store.applied)
	}
	if len(auditor.events) != 1 {
		t.Fatalf("audit events = %d, want 1", len(auditor.events))
	}
	e := auditor.events[0]
	if e.Stage != "human_review" || e.Verdict != "BLOCK" {
		t.Errorf("event = %+v", e)
	}
	if e.Metrics["reviewer_id"] != "rev-9" {
		t.Errorf("reviewer_id metric = %v", e.Metrics["reviewer_id"])
	}
}

// Очередь — источник правды по владению решением: при проигранном CAS
// хранилище не трогаем вовсе.
func TestResolve_LostRaceDoesNotTouchStore(t *testing.T) {
	q := queue.NewMemory()
	store := &applierStub{}
	svc := service.NewReviewService(q, store, nil, nil, zap.NewNop())

	enqueue(t, q, "tx-1")

	if _, err := svc.Resolve(context.Background(), "tx-1", domain.Resolution{
		Verdict: domain.VerdictApprove, ReviewerID: "rev-1",
	}); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	_, err := svc.Resolve(context.Background(), "tx-1", domain.Resolution{
		Verdict: domain.VerdictBlock, ReviewerID: "rev-2",
	})
	if !errors.Is(err, domain.ErrEscalationNotFound) {
		t.Errorf("err = %v, want ErrEscalationNotFound", err)
	}
	if len(store.applied) != 1 {
		t.Errorf("store touched %d times, want 1", len(store.applied))
	}
}

// Сбой хранилища после выигранного CAS — рассинхрон: очередь уже закрыта,
// ошибка обязана всплыть наружу.
func TestResolve_StoreFailureSurfaces(t *testing.T) {
	q := queue.NewMemory()
	store := &applierStub{err: errors.New("connection reset")}
	svc := service.NewReviewService(q, store, nil, nil, zap.NewNop())

	enqueue(t, q, "tx-1")

	_, err := svc.Resolve(context.Background(), "tx-1", domain.Resolution{
		Verdict: domain.VerdictBlock, ReviewerID: "rev-1",
	})
	if err == nil {
		t.Fatal("expected error")
	}

	// Повторный Resolve проигрывает CAS: решение принято, запись закрыта
	_, err = svc.Resolve(context.Background(), "tx-1", domain.Resolution{
		Verdict: domain.VerdictApprove, ReviewerID: "rev-2",
	})
	if !errors.Is(err, domain.ErrEscalationNotFound) {
		t.Errorf("err = %v, want ErrEscalationNotFound", err)
	}
}

func TestResolve_RejectsReviewerOnlyVerdicts(t *testing.T) {
	q := queue.NewMemory()
	store := &applierStub{}
	svc := service.NewReviewService(q, store, nil, nil, zap.NewNop())

	enqueue(t, q, "tx-1")

	for _, v := range []domain.Verdict{domain.VerdictChallenge, domain.VerdictEscalate, "MAYBE"} {
		_, err := svc.Resolve(context.Background(), "tx-1", domain.Resolution{Verdict: v, ReviewerID: "rev-1"})
		if !errors.Is(err, domain.ErrInvalidResolutionVerdict) {
			t.Errorf("verdict %q: err = %v, want ErrInvalidResolutionVerdict", v, err)
		}
	}
	if len(store.applied) != 0 {
		t.Errorf("store touched on invalid verdicts: %v", store.applied)
	}
}
