package queue

import (
	"context"
	"time"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

/*
Пакет queue — очередь эскалаций на ручной разбор (HITL).

Ключевой инвариант — exactly-once резолюция: из любого числа конкурентных
Resolve по одной транзакции побеждает ровно один, остальные получают
ErrEscalationNotFound. Записи после резолюции не удаляются — они остаются
аудит-следом с заполненными полями ревьюера.
*/

// Queue — контракт очереди эскалаций.
type Queue interface {
	// Enqueue ставит транзакцию в очередь. Повторная постановка того же
	// transaction_id идемпотентна: снапшот перезаписывается, дублей в
	// списке ожидания не появляется.
	Enqueue(ctx context.Context, record domain.EscalationRecord) error

	// Get возвращает запись в любом статусе.
	Get(ctx context.Context, transactionID string) (domain.EscalationRecord, error)

	// ListPending возвращает ожидающие записи, свежие первыми, и длину очереди.
	ListPending(ctx context.Context) ([]domain.EscalationRecord, int, error)

	// Resolve закрывает эскалацию вердиктом ревьюера. Возвращает
	// ErrInvalidResolutionVerdict для вердиктов вне {APPROVE, BLOCK} и
	// ErrEscalationNotFound, если записи нет или она уже закрыта.
	Resolve(ctx context.Context, transactionID string, res domain.Resolution) (domain.EscalationRecord, error)
}

// validateResolution — общая для всех реализаций проверка команды.
func validateResolution(res domain.Resolution) error {
	if !res.AllowedForReviewer() {
		return domain.ErrInvalidResolutionVerdict
	}
	return nil
}

// applyResolution мутирует запись полями резолюции. Вызывается ровно один
// раз за жизнь записи — после выигранного CAS статуса.
func applyResolution(rec *domain.EscalationRecord, res domain.Resolution, at time.Time) {
	rec.Status = domain.EscalationResolved
	rec.ReviewerVerdict = res.Verdict
	rec.ReviewerID = res.ReviewerID
	rec.ReviewerNotes = res.Notes
	t := at.UTC()
	rec.ResolvedAt = &t
}
