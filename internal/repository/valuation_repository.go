package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// ValuationRepository stores pinned ROI valuations.
type ValuationRepository struct {
	db *database.DB
}

// NewValuationRepository creates a new ValuationRepository.
func NewValuationRepository(db *database.DB) *ValuationRepository {
	return &ValuationRepository{db: db}
}

// Create pins v.
func (r *ValuationRepository) Create(ctx context.Context, v *governance.Valuation) error {
	summary, err := json.Marshal(v.Summary)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal valuation summary")
	}
	rates, err := json.Marshal(v.Rates)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal valuation rates")
	}

	query := `
		INSERT INTO valuations (proposal_id, summary, rates, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	if err := r.db.QueryRow(ctx, query, v.ProposalID, summary, rates, v.Reason, v.CreatedAt).Scan(&v.ID); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to pin valuation")
	}
	return nil
}

// Latest returns the most recent valuation for a proposal pinned for reason,
// or for any reason when reason is empty. It returns nil when none exists.
func (r *ValuationRepository) Latest(ctx context.Context, proposalID, reason string) (*governance.Valuation, error) {
	query := `
		SELECT id, proposal_id, summary, rates, reason, created_at
		FROM valuations
		WHERE proposal_id = $1 AND ($2 = '' OR reason = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	v := &governance.Valuation{}
	var summary, rates []byte
	err := r.db.QueryRow(ctx, query, proposalID, reason).Scan(&v.ID, &v.ProposalID, &summary, &rates, &v.Reason, &v.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get valuation")
	}
	if err := json.Unmarshal(summary, &v.Summary); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal valuation summary")
	}
	if err := json.Unmarshal(rates, &v.Rates); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal valuation rates")
	}
	return v, nil
}
