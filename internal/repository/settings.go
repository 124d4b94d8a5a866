package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cafezao-da-computacao/cafezao/internal/model"
)

// SettingsRepository handles the singleton system-settings row.
type SettingsRepository struct {
	db *pgxpool.Pool
}

// NewSettingsRepository constructs a SettingsRepository.
func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the system settings, inserting defaults on first access.
func (r *SettingsRepository) Get(ctx context.Context) (*model.SystemSettings, error) {
	var s model.SystemSettings
	err := r.db.QueryRow(ctx,
		`SELECT subscription_price, pix_key, dispenser_enabled, updated_at
		 FROM settings WHERE id = 1`,
	).Scan(&s.SubscriptionPrice, &s.PixKey, &s.DispenserEnabled, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.seed(ctx)
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &s, nil
}

// Update overwrites the system settings.
func (r *SettingsRepository) Update(ctx context.Context, req model.UpdateSettingsRequest) (*model.SystemSettings, error) {
	s := &model.SystemSettings{
		SubscriptionPrice: req.SubscriptionPrice,
		PixKey:            req.PixKey,
		DispenserEnabled:  req.DispenserEnabled,
		UpdatedAt:         time.Now().UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO settings (id, subscription_price, pix_key, dispenser_enabled, updated_at)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE
		 SET subscription_price = $1, pix_key = $2, dispenser_enabled = $3, updated_at = $4`,
		s.SubscriptionPrice, s.PixKey, s.DispenserEnabled, s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepository) seed(ctx context.Context) (*model.SystemSettings, error) {
	s := &model.SystemSettings{
		SubscriptionPrice: 15,
		PixKey:            "",
		DispenserEnabled:  true,
		UpdatedAt:         time.Now().UTC(),
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO settings (id, subscription_price, pix_key, dispenser_enabled, updated_at)
		 VALUES (1, $1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		s.SubscriptionPrice, s.PixKey, s.DispenserEnabled, s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	return s, nil
}
