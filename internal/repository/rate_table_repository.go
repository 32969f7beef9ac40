package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// RateTableRepository stores versioned staff rate tables. The most recently
// saved version is current.
type RateTableRepository struct {
	db *database.DB
}

// NewRateTableRepository creates a new RateTableRepository.
func NewRateTableRepository(db *database.DB) *RateTableRepository {
	return &RateTableRepository{db: db}
}

// Current returns the latest rate table, or nil when none has been saved.
func (r *RateTableRepository) Current(ctx context.Context) (*governance.RateTable, error) {
	query := `
		SELECT version, entries
		FROM rate_tables
		ORDER BY created_at DESC
		LIMIT 1
	`

	t := &governance.RateTable{}
	var entries []byte
	err := r.db.QueryRow(ctx, query).Scan(&t.Version, &entries)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load rate table")
	}
	if err := json.Unmarshal(entries, &t.Entries); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal rate entries")
	}
	return t, nil
}

// Save stores a rate table version. Saving an existing version replaces its
// entries and makes it current again.
func (r *RateTableRepository) Save(ctx context.Context, t *governance.RateTable) error {
	entries, err := json.Marshal(t.Entries)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal rate entries")
	}

	query := `
		INSERT INTO rate_tables (version, entries)
		VALUES ($1, $2)
		ON CONFLICT (version) DO UPDATE
		SET entries = EXCLUDED.entries, created_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, t.Version, entries); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to save rate table")
	}
	return nil
}
