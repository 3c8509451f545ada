package domain

import "errors"

// Типизированные ошибки ядра. Политика распространения:
//   - скоринг и сбор evidence пайплайн не роняют никогда;
//   - только арбитр при неустранимом сбое форсирует терминальное
//     состояние ESCALATE_TO_HUMAN (fail closed);
//   - ErrEscalationNotFound — нормальный исход control-flow, не авария.
var (
	// ErrEscalationNotFound — запись не в статусе pending (нет или уже решена).
	// Именно эту ошибку получают все проигравшие гонку за Resolve.
	ErrEscalationNotFound = errors.New("escalation not found or already resolved")

	// ErrInvalidResolutionVerdict — ревьюер прислал вердикт вне {APPROVE, BLOCK}.
	// Отклоняется синхронно, без изменения состояния.
	ErrInvalidResolutionVerdict = errors.New("resolution verdict must be APPROVE or BLOCK")

	// ErrMalformedJudgment — ответ reasoning-сервиса не разобрался по схеме.
	// Per-stage политика: behavioral — ретрай и фолбэк 0.5, арбитр — fail closed.
	ErrMalformedJudgment = errors.New("malformed reasoning service response")

	// ErrTransactionNotFound — запись транзакции отсутствует в хранилище.
	ErrTransactionNotFound = errors.New("transaction not found")
)
