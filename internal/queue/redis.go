package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
	"github.com/xela07ax/fraud-sentinel-prototype/internal/infra"
)

/*
Redis-реализация очереди эскалаций.

Схема данных:
  - sentinel:hitl:pending                 — LIST transaction_id, LPUSH (свежие в голове)
  - sentinel:hitl:escalation:{tx}         — HASH {status, payload}
  - sentinel:hitl:decisions               — Pub/Sub канал решений аналитика

Exactly-once достигается Lua-скриптом: CAS статуса pending->resolved и
LREM из списка ожидания в одной атомарной операции. Конкурентные Resolve
по одной транзакции сериализуются Redis'ом — выигрывает один.
*/

const (
	fieldStatus  = "status"
	fieldPayload = "payload"
)

// resolveScript: KEYS[1] — ключ записи, KEYS[2] — список ожидания;
// ARGV[1] — transaction_id. Возвращает 1 при выигранном CAS, 0 иначе.
var resolveScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status ~= 'pending' then
	return 0
end
redis.call('HSET', KEYS[1], 'status', 'resolved')
redis.call('LREM', KEYS[2], 0, ARGV[1])
return 1
`)

// Redis — очередь эскалаций поверх go-redis.
type Redis struct {
	rdb    *redis.Client
	logger *zap.Logger
	now    func() time.Time
}

func NewRedis(rdb *redis.Client, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, logger: logger.Named("escalation-queue"), now: time.Now}
}

func (q *Redis) Enqueue(ctx context.Context, record domain.EscalationRecord) error {
	record.Status = domain.EscalationPending
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal escalation record: %w", err)
	}

	key := infra.GetEscalationKey(record.TransactionID)

	// Идемпотентность повторной постановки: снапшот перезаписываем,
	// в список ожидания не дублируем.
	existed, err := q.rdb.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check escalation existence: %w", err)
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, key, fieldStatus, string(domain.EscalationPending), fieldPayload, payload)
	if existed == 0 {
		pipe.LPush(ctx, infra.RedisKeyEscalationPending, record.TransactionID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("enqueue escalation %s: %w", record.TransactionID, err)
	}

	q.logger.Info("escalation enqueued", zap.String("tx", record.TransactionID))
	return nil
}

func (q *Redis) Get(ctx context.Context, transactionID string) (domain.EscalationRecord, error) {
	raw, err := q.rdb.HGet(ctx, infra.GetEscalationKey(transactionID), fieldPayload).Result()
	if err == redis.Nil {
		return domain.EscalationRecord{}, domain.ErrEscalationNotFound
	}
	if err != nil {
		return domain.EscalationRecord{}, fmt.Errorf("get escalation %s: %w", transactionID, err)
	}

	var rec domain.EscalationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return domain.EscalationRecord{}, fmt.Errorf("decode escalation %s: %w", transactionID, err)
	}
	return rec, nil
}

func (q *Redis) ListPending(ctx context.Context) ([]domain.EscalationRecord, int, error) {
	ids, err := q.rdb.LRange(ctx, infra.RedisKeyEscalationPending, 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("list pending escalations: %w", err)
	}

	out := make([]domain.EscalationRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := q.Get(ctx, id)
		if err == domain.ErrEscalationNotFound {
			continue // запись истекла или удалена вручную, список подчистится при резолюции
		}
		if err != nil {
			return nil, 0, err
		}
		if rec.Status == domain.EscalationPending {
			out = append(out, rec)
		}
	}
	return out, len(out), nil
}

func (q *Redis) Resolve(ctx context.Context, transactionID string, res domain.Resolution) (domain.EscalationRecord, error) {
	if err := validateResolution(res); err != nil {
		return domain.EscalationRecord{}, err
	}

	key := infra.GetEscalationKey(transactionID)

	won, err := resolveScript.Run(ctx, q.rdb,
		[]string{key, infra.RedisKeyEscalationPending}, transactionID).Int()
	if err != nil {
		return domain.EscalationRecord{}, fmt.Errorf("resolve escalation %s: %w", transactionID, err)
	}
	if won == 0 {
		return domain.EscalationRecord{}, domain.ErrEscalationNotFound
	}

	// CAS выигран: эта горутина — единственный владелец записи,
	// дозаполнение payload вне Lua безопасно.
	rec, err := q.Get(ctx, transactionID)
	if err != nil {
		return domain.EscalationRecord{}, err
	}
	applyResolution(&rec, res, q.now())

	payload, err := json.Marshal(rec)
	if err != nil {
		return domain.EscalationRecord{}, fmt.Errorf("marshal resolved record: %w", err)
	}
	if err := q.rdb.HSet(ctx, key, fieldPayload, payload).Err(); err != nil {
		return domain.EscalationRecord{}, fmt.Errorf("store resolved record: %w", err)
	}

	q.publishDecision(ctx, rec)
	return rec, nil
}

// decisionEvent — сообщение канала решений для подписчиков
// (нотификации, дашборды, внешние системы).
type decisionEvent struct {
	TransactionID string         `json:"transaction_id"`
	Verdict       domain.Verdict `json:"verdict"`
	ReviewerID    string         `json:"reviewer_id"`
	ResolvedAt    time.Time      `json:"resolved_at"`
}

func (q *Redis) publishDecision(ctx context.Context, rec domain.EscalationRecord) {
	event := decisionEvent{
		TransactionID: rec.TransactionID,
		Verdict:       rec.ReviewerVerdict,
		ReviewerID:    rec.ReviewerID,
	}
	if rec.ResolvedAt != nil {
		event.ResolvedAt = *rec.ResolvedAt
	}

	payload, err := json.Marshal(event)
	if err != nil {
		q.logger.Warn("marshal decision event", zap.Error(err))
		return
	}
	// Трансляция best-effort: сама резолюция уже зафиксирована.
	if err := q.rdb.Publish(ctx, infra.RedisChanHITLDecisions, payload).Err(); err != nil {
		q.logger.Warn("publish decision event", zap.String("tx", rec.TransactionID), zap.Error(err))
	}
}
