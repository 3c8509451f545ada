package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres

	"github.com/xela07ax/fraud-sentinel-prototype/internal/audit"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(connString string) *AuditRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *AuditRepo) Close() error {
	return r.db.Close()
}

// WriteBatch — пакетная вставка событий аудита пайплайна.
func (r *AuditRepo) WriteBatch(ctx context.Context, events []audit.StageEvent) error {
	if len(events) == 0 {
		return nil
	}

	// Количество колонок в таблице audit_events
	numFields := 9
	placeholderStr := ""
	vals := make([]interface{}, 0, len(events)*numFields)

	// Динамически строим запрос для пакетной вставки
	for i, e := range events {
		p := i * numFields
		placeholderStr += fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d),",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9)

		metrics, _ := json.Marshal(e.Metrics)

		vals = append(vals,
			e.ID, e.TransactionID, e.CustomerID, e.Stage,
			e.Status, metrics, e.Verdict, e.DurationMs, e.Timestamp,
		)
	}

	// Убираем лишнюю запятую в конце
	query := fmt.Sprintf(
		"INSERT INTO audit_events (id, transaction_id, customer_id, stage, status, metrics, verdict, duration_ms, timestamp) VALUES %s",
		strings.TrimSuffix(placeholderStr, ","),
	)

	_, err := r.db.ExecContext(ctx, query, vals...)
	return err
}
