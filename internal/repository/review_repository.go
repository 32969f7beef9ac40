package repository

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

const reviewColumns = `
	id, proposal_id, review_type,
	projected_annual_value, projected_cost, actual_annual_value, actual_cost,
	variance_percentage, cost_variance_percentage, accuracy, recommendation,
	notes, valuation_id, reviewed_by, created_at`

// ReviewRepository stores post-implementation reviews.
type ReviewRepository struct {
	db *database.DB
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(db *database.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts an analysed review.
func (r *ReviewRepository) Create(ctx context.Context, rv *governance.ImplementationReview) error {
	var valuationID *string
	if rv.ValuationID != "" {
		valuationID = &rv.ValuationID
	}

	query := `
		INSERT INTO implementation_reviews
		    (proposal_id, review_type,
		     projected_annual_value, projected_cost, actual_annual_value, actual_cost,
		     variance_percentage, cost_variance_percentage, accuracy, recommendation,
		     notes, valuation_id, reviewed_by, created_at)
		VALUES ($1, $2,
		        $3, $4, $5, $6,
		        $7, $8, $9, $10,
		        $11, $12, $13, $14)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		rv.ProposalID,
		string(rv.ReviewType),
		rv.ProjectedAnnualValue,
		rv.ProjectedCost,
		rv.ActualAnnualValue,
		rv.ActualCost,
		rv.VariancePercentage,
		rv.CostVariancePercentage,
		string(rv.Accuracy),
		string(rv.Recommendation),
		rv.Notes,
		valuationID,
		rv.ReviewedBy,
		rv.CreatedAt,
	).Scan(&rv.ID)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to record implementation review")
	}
	return nil
}

// ListByProposal returns a proposal's reviews, oldest first.
func (r *ReviewRepository) ListByProposal(ctx context.Context, proposalID string) ([]*governance.ImplementationReview, error) {
	return r.list(ctx, `SELECT `+reviewColumns+` FROM implementation_reviews WHERE proposal_id = $1 ORDER BY created_at ASC`, proposalID)
}

// ListSince returns every review created at or after since, oldest first.
func (r *ReviewRepository) ListSince(ctx context.Context, since time.Time) ([]*governance.ImplementationReview, error) {
	return r.list(ctx, `SELECT `+reviewColumns+` FROM implementation_reviews WHERE created_at >= $1 ORDER BY created_at ASC`, since)
}

func (r *ReviewRepository) list(ctx context.Context, query string, arg any) ([]*governance.ImplementationReview, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list implementation reviews")
	}
	defer rows.Close()

	var reviews []*governance.ImplementationReview
	for rows.Next() {
		rv := &governance.ImplementationReview{}
		var (
			reviewType, accuracy, recommendation string
			valuationID                          *string
		)
		if err := rows.Scan(
			&rv.ID,
			&rv.ProposalID,
			&reviewType,
			&rv.ProjectedAnnualValue,
			&rv.ProjectedCost,
			&rv.ActualAnnualValue,
			&rv.ActualCost,
			&rv.VariancePercentage,
			&rv.CostVariancePercentage,
			&accuracy,
			&recommendation,
			&rv.Notes,
			&valuationID,
			&rv.ReviewedBy,
			&rv.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan implementation review")
		}
		rv.ReviewType = governance.ReviewType(reviewType)
		rv.Accuracy = governance.Accuracy(accuracy)
		rv.Recommendation = governance.Recommendation(recommendation)
		if valuationID != nil {
			rv.ValuationID = *valuationID
		}
		reviews = append(reviews, rv)
	}
	return reviews, rows.Err()
}
