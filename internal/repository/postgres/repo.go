package postgres

import (
	"context"
	"database/sql"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // Драйвер Postgres
)

// SentinelRepo — единый репозиторий рабочих данных пайплайна:
// итоги анализа, поведенческие профили, учетки ревьюеров.
type SentinelRepo struct {
	db *sql.DB
}

// NewSentinelRepo создает новый экземпляр репозитория
func NewSentinelRepo(connString string) *SentinelRepo {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		// В main мы проверим соединение через Ping
		log.Fatal(err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &SentinelRepo{db: db}
}

// Ping проверяет доступность базы при старте
func (r *SentinelRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SentinelRepo) Close() error {
	return r.db.Close()
}
