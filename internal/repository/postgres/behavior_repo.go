package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xela07ax/fraud-sentinel-prototype/internal/domain"
)

// GetBehaviorProfile возвращает исторический паттерн клиента.
// Отсутствие профиля — валидное состояние: (nil, nil), дальше все
// детерминированные проверки деградируют в "no data".
func (r *SentinelRepo) GetBehaviorProfile(ctx context.Context, customerID string) (*domain.BehaviorProfile, error) {
	// Списки стран и устройств лежат в JSONB: через database/sql массивы
	// Postgres напрямую не сканируются.
	query := `
		SELECT customer_id, usual_amount_avg, usual_hours, usual_countries, usual_devices
		FROM behavior_profiles WHERE customer_id = $1`

	p := &domain.BehaviorProfile{}
	var countries, devices []byte

	err := r.db.QueryRowContext(ctx, query, customerID).Scan(
		&p.CustomerID, &p.UsualAmountAvg, &p.UsualHours, &countries, &devices,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: failed to get behavior profile: %w", err)
	}

	if err := json.Unmarshal(countries, &p.UsualCountries); err != nil {
		return nil, fmt.Errorf("postgres: corrupted usual_countries for %s: %w", customerID, err)
	}
	if err := json.Unmarshal(devices, &p.UsualDevices); err != nil {
		return nil, fmt.Errorf("postgres: corrupted usual_devices for %s: %w", customerID, err)
	}
	return p, nil
}

// UpsertBehaviorProfile заливает/обновляет профиль. Используется сидером.
func (r *SentinelRepo) UpsertBehaviorProfile(ctx context.Context, p *domain.BehaviorProfile) error {
	countries, err := json.Marshal(p.UsualCountries)
	if err != nil {
		return fmt.Errorf("marshal usual_countries: %w", err)
	}
	devices, err := json.Marshal(p.UsualDevices)
	if err != nil {
		return fmt.Errorf("marshal usual_devices: %w", err)
	}

	query := `
		INSERT INTO behavior_profiles (customer_id, usual_amount_avg, usual_hours, usual_countries, usual_devices)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO UPDATE
		SET usual_amount_avg = EXCLUDED.usual_amount_avg,
		    usual_hours = EXCLUDED.usual_hours,
		    usual_countries = EXCLUDED.usual_countries,
		    usual_devices = EXCLUDED.usual_devices`

	_, err = r.db.ExecContext(ctx, query,
		p.CustomerID, p.UsualAmountAvg, p.UsualHours, countries, devices)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert behavior profile: %w", err)
	}
	return nil
}
