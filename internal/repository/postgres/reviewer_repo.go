package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// GetReviewerByUsername возвращает учетку аналитика или (nil, nil),
// если такого пользователя нет.
func (r *SentinelRepo) GetReviewerByUsername(ctx context.Context, username string) (*domain.Reviewer, error) {
	query := `
		SELECT id, email, username, password_hash, scopes, created_at, updated_at
		FROM reviewers WHERE username = $1`

	rev := &domain.Reviewer{}
	var scopes []byte

	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&rev.ID, &rev.Email, &rev.Username, &rev.PasswordHash, &scopes, &rev.CreatedAt, &rev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get reviewer: %w", err)
	}

	if err := json.Unmarshal(scopes, &rev.Scopes); err != nil {
		return nil, fmt.Errorf("postgres: corrupted scopes for %s: %w", username, err)
	}
	return rev, nil
}

// CreateReviewer заводит учетку аналитика. Используется сидером.
func (r *SentinelRepo) CreateReviewer(ctx context.Context, rev *domain.Reviewer) error {
	scopes, err := json.Marshal(rev.Scopes)
	if err != nil {
		return fmt.Errorf("marshal scopes: %w", err)
	}

	query := `
		INSERT INTO reviewers (id, email, username, password_hash, scopes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (username) DO NOTHING`

	_, err = r.db.ExecContext(ctx, query, rev.ID, rev.Email, rev.Username, rev.PasswordHash, scopes)
	if err != nil {
		return fmt.Errorf("postgres: failed to create reviewer: %w", err)
	}
	return nil
}
