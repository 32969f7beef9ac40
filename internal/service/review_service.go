package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// ReviewService records post-implementation reviews and reports how well
// projections hold up.
type ReviewService struct {
	stores     Stores
	governance *GovernanceService
	notifier   Notifier
	metrics    Recorder
	log        *logger.Logger
	now        func() time.Time
}

// NewReviewService creates a new review service
func NewReviewService(stores Stores, gov *GovernanceService, notifier Notifier, metrics Recorder, log *logger.Logger) *ReviewService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &ReviewService{
		stores:     stores,
		governance: gov,
		notifier:   notifier,
		metrics:    metrics,
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *ReviewService) WithClock(now func() time.Time) *ReviewService {
	s.now = now
	return s
}

// ReviewRequest carries the measured outcome of an implemented proposal
type ReviewRequest struct {
	ReviewType        string `json:"review_type"`
	ActualAnnualValue int64  `json:"actual_annual_value"`
	ActualCost        int64  `json:"actual_cost"`
	Recommendation    string `json:"recommendation"`
	Notes             string `json:"notes,omitempty"`
}

// RecordReview compares actuals against the projection for an approved
// proposal. The projection is the latest pinned valuation, or a fresh ROI
// computation when none was pinned.
func (s *ReviewService) RecordReview(ctx context.Context, proposalID string, req *ReviewRequest, reviewer string) (*governance.ImplementationReview, error) {
	if req == nil {
		return nil, errors.InvalidInput("review", "request body is required")
	}
	var v errors.Validation
	reviewType := governance.ReviewType(strings.ToLower(strings.TrimSpace(req.ReviewType)))
	if !reviewType.Valid() {
		v.Add("review_type", "must be one of 30_day, 90_day, 180_day, 365_day, ad_hoc")
	}
	recommendation := governance.Recommendation(strings.ToLower(strings.TrimSpace(req.Recommendation)))
	if !recommendation.Valid() {
		v.Add("recommendation", "must be one of continue, expand, modify, pause, discontinue")
	}
	if req.ActualAnnualValue < 0 {
		v.Add("actual_annual_value", "actual annual value cannot be negative")
	}
	if req.ActualCost < 0 {
		v.Add("actual_cost", "actual cost cannot be negative")
	}
	if strings.TrimSpace(reviewer) == "" {
		v.Add("reviewed_by", "reviewer identity is required")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	switch p.Status {
	case governance.StatusApproved, governance.StatusInProgress, governance.StatusCompleted:
	default:
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot review proposal with status '%s'", p.Status))
	}

	rv := &governance.ImplementationReview{
		ProposalID:        p.ID,
		ReviewType:        reviewType,
		ActualAnnualValue: req.ActualAnnualValue,
		ActualCost:        req.ActualCost,
		Recommendation:    recommendation,
		Notes:             strings.TrimSpace(req.Notes),
		ReviewedBy:        reviewer,
		CreatedAt:         s.now(),
	}
	if p.Cost != nil {
		rv.ProjectedCost = *p.Cost
	}

	valuation, err := s.stores.Valuations.Latest(ctx, p.ID, governance.ValuationReasonDecision)
	if err != nil {
		return nil, err
	}
	if valuation != nil {
		rv.ProjectedAnnualValue = valuation.Summary.AnnualValue
		rv.ValuationID = valuation.ID
	} else {
		summary, err := s.governance.ComputeROI(ctx, p.ID, time.Time{})
		if err != nil {
			return nil, err
		}
		rv.ProjectedAnnualValue = summary.AnnualValue
	}

	rv.Analyze(s.governance.Policy().Review)
	if err := s.stores.Reviews.Create(ctx, rv); err != nil {
		return nil, err
	}

	s.metrics.ReviewRecorded(rv.Accuracy)
	s.log.Info().
		Str("proposal_id", p.ID).
		Str("review_type", string(rv.ReviewType)).
		Float64("variance_percentage", rv.VariancePercentage).
		Str("accuracy", string(rv.Accuracy)).
		Str("recommendation", string(rv.Recommendation)).
		Msg("Implementation review recorded")

	appendAudit(ctx, s.stores.Audit, s.log, &repository.AuditEntry{
		ProposalID:  p.ID,
		Action:      "reviewed",
		PerformedBy: reviewer,
		Metadata: map[string]interface{}{
			"review_id":           rv.ID,
			"review_type":         string(rv.ReviewType),
			"variance_percentage": rv.VariancePercentage,
			"accuracy":            string(rv.Accuracy),
			"recommendation":      string(rv.Recommendation),
		},
	})
	s.notifier.Notify(ctx, Event{
		Type:       EventReviewRecorded,
		ProposalID: p.ID,
		ActorID:    reviewer,
		Recipients: []string{p.SubmittedBy},
		Payload: map[string]interface{}{
			"review_type":    string(rv.ReviewType),
			"accuracy":       string(rv.Accuracy),
			"recommendation": string(rv.Recommendation),
		},
	})
	return rv, nil
}

// ListReviews returns a proposal's reviews, oldest first.
func (s *ReviewService) ListReviews(ctx context.Context, proposalID string) ([]*governance.ImplementationReview, error) {
	if _, err := s.stores.Proposals.GetByID(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.stores.Reviews.ListByProposal(ctx, proposalID)
}

// EstimationTrend compares estimation accuracy across the two most recent
// trend windows ending at asOf. A zero asOf means now.
func (s *ReviewService) EstimationTrend(ctx context.Context, asOf time.Time) (governance.EstimationTrend, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	policy := s.governance.Policy().Review
	since := asOf.AddDate(0, -2*policy.TrendWindowMonths, 0)
	reviews, err := s.stores.Reviews.ListSince(ctx, since)
	if err != nil {
		return governance.EstimationTrend{}, err
	}
	return governance.ComputeTrend(reviews, asOf, policy), nil
}
