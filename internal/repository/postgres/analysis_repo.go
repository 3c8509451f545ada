package postgres

/*
Файл analysis_repo.go — хранение итогов пайплайна. Полное состояние
кладется в JSONB, вердикт денормализован в колонки для выборок.
*/

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// SaveAnalysis фиксирует итог пайплайна. Повторный прогон той же
// транзакции перезаписывает запись (идемпотентность по transaction_id).
func (r *SentinelRepo) SaveAnalysis(ctx context.Context, st *domain.WorkflowState) error {
	state, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	verdict, confidence, decidedBy := "", 0.0, ""
	if st.Decision != nil {
		verdict = string(st.Decision.Verdict)
		confidence = st.Decision.Confidence
		decidedBy = st.Decision.DecidedBy
	}

	query := `
		INSERT INTO analyses (transaction_id, customer_id, verdict, confidence, decided_by, need_human_review, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (transaction_id) DO UPDATE
		SET verdict = EXCLUDED.verdict,
		    confidence = EXCLUDED.confidence,
		    decided_by = EXCLUDED.decided_by,
		    need_human_review = EXCLUDED.need_human_review,
		    state = EXCLUDED.state,
		    updated_at = NOW()`

	_, err = r.db.ExecContext(ctx, query,
		st.Transaction.ID, st.Transaction.CustomerID,
		verdict, confidence, decidedBy, st.NeedHumanReview, state)
	if err != nil {
		return fmt.Errorf("postgres: failed to save analysis: %w", err)
	}
	return nil
}

// GetAnalysis возвращает сохраненный итог по transaction_id.
func (r *SentinelRepo) GetAnalysis(ctx context.Context, transactionID string) (*domain.AnalysisRecord, error) {
	query := `
		SELECT transaction_id, customer_id, verdict, confidence, decided_by, need_human_review, state, created_at, updated_at
		FROM analyses WHERE transaction_id = $1`

	rec := &domain.AnalysisRecord{}
	var state []byte

	err := r.db.QueryRowContext(ctx, query, transactionID).Scan(
		&rec.TransactionID, &rec.CustomerID, &rec.Verdict, &rec.Confidence,
		&rec.DecidedBy, &rec.NeedHumanReview, &state, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("postgres: failed to get analysis: %w", err)
	}

	if err := json.Unmarshal(state, &rec.State); err != nil {
		return nil, fmt.Errorf("postgres: corrupted state for %s: %w", transactionID, err)
	}
	return rec, nil
}

// ListAnalyses — выборка последних итогов, опционально по вердикту.
func (r *SentinelRepo) ListAnalyses(ctx context.Context, verdict domain.Verdict, limit int) ([]*domain.AnalysisRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT transaction_id, customer_id, verdict, confidence, decided_by, need_human_review, state, created_at, updated_at
		FROM analyses`

	var args []interface{}
	if verdict != "" {
		query += " WHERE verdict = $1"
		args = append(args, string(verdict))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query analyses: %w", err)
	}
	defer rows.Close()

	// Инициализируем пустой слайс, чтобы в JSON был [] вместо null
	results := make([]*domain.AnalysisRecord, 0)

	for rows.Next() {
		rec := &domain.AnalysisRecord{}
		var state []byte
		err := rows.Scan(
			&rec.TransactionID, &rec.CustomerID, &rec.Verdict, &rec.Confidence,
			&rec.DecidedBy, &rec.NeedHumanReview, &state, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan analysis: %w", err)
		}
		if err := json.Unmarshal(state, &rec.State); err != nil {
			return nil, fmt.Errorf("postgres: corrupted state for %s: %w", rec.TransactionID, err)
		}
		results = append(results, rec)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// ApplyHumanDecision атомарно переписывает вердикт после ручной резолюции.
// Условие need_human_review = TRUE защищает от применения решения к записи,
// которую никто не эскалировал (или уже обработал).
func (r *SentinelRepo) ApplyHumanDecision(ctx context.Context, transactionID string, verdict domain.Verdict, notes string) error {
	query := `
		UPDATE analyses
		SET verdict = $1,
		    confidence = 1.0,
		    decided_by = $2,
		    need_human_review = FALSE,
		    state = jsonb_set(
		        jsonb_set(
		            jsonb_set(state, '{decision,value}', to_jsonb($1::text)),
		            '{decision,decided_by}', to_jsonb($2::text)),
		        '{decision,reviewer_notes}', to_jsonb($3::text)),
		    updated_at = NOW()
		WHERE transaction_id = $4 AND need_human_review = TRUE`

	result, err := r.db.ExecContext(ctx, query, string(verdict), domain.DecidedByHuman, notes, transactionID)
	if err != nil {
		return fmt.Errorf("postgres: failed to apply human decision: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Либо ID неверный, либо решение уже было применено ранее
		return domain.ErrTransactionNotFound
	}
	return nil
}
