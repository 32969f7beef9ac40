package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// approvedProposal runs a fast-track proposal to approval and returns its id.
func (h *harness) approvedProposal() string {
	h.t.Helper()
	session := h.submit(request(300_000, 2, "internal")).Routing.Session
	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)
	return session.ProposalID
}

func TestRecordReview(t *testing.T) {
	h := newHarness(t)
	id := h.approvedProposal()
	valuation, err := h.stores.Valuations.Latest(h.ctx, id, governance.ValuationReasonDecision)
	require.NoError(t, err)

	h.advance(30 * 24 * time.Hour)
	rv, err := h.reviews.RecordReview(h.ctx, id, &ReviewRequest{
		ReviewType:        "30_day",
		ActualAnnualValue: 3_432_000,
		ActualCost:        330_000,
		Recommendation:    "Continue",
	}, "reviewer-1")
	require.NoError(t, err)

	assert.Equal(t, governance.Money(3_120_000), rv.ProjectedAnnualValue)
	assert.Equal(t, governance.Money(300_000), rv.ProjectedCost)
	assert.InDelta(t, 10.0, rv.VariancePercentage, 0.0001)
	assert.InDelta(t, 10.0, rv.CostVariancePercentage, 0.0001)
	assert.Equal(t, governance.AccuracyAccurate, rv.Accuracy)
	assert.Equal(t, governance.RecommendContinue, rv.Recommendation)
	assert.Equal(t, valuation.ID, rv.ValuationID)

	events := h.notifier.ofType(EventReviewRecorded)
	require.Len(t, events, 1)
	assert.Equal(t, []string{submitter}, events[0].Recipients)

	reviews, err := h.reviews.ListReviews(h.ctx, id)
	require.NoError(t, err)
	assert.Len(t, reviews, 1)
}

func TestRecordReview_ProjectsFromDecisionValuation(t *testing.T) {
	h := newHarness(t)
	id := h.approvedProposal()
	decision, err := h.stores.Valuations.Latest(h.ctx, id, governance.ValuationReasonDecision)
	require.NoError(t, err)
	require.NotNil(t, decision)

	require.NoError(t, h.policy.SaveRateTable(h.ctx, &governance.RateTable{
		Version: "2026.2",
		Entries: []governance.RateEntry{{Grade: "associate", HourlyRate: 30_000, EffectiveFrom: rateDate}},
	}, admin))
	h.advance(time.Hour)
	adHoc, err := h.gov.PinValuation(h.ctx, id, "quarterly board pack", admin, time.Time{})
	require.NoError(t, err)
	require.Equal(t, governance.Money(6_240_000), adHoc.Summary.AnnualValue)

	rv, err := h.reviews.RecordReview(h.ctx, id, &ReviewRequest{
		ReviewType: "30_day", ActualAnnualValue: 3_120_000, Recommendation: "continue",
	}, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, governance.Money(3_120_000), rv.ProjectedAnnualValue)
	assert.Equal(t, decision.ID, rv.ValuationID)
	assert.InDelta(t, 0.0, rv.VariancePercentage, 0.0001)
	assert.Equal(t, governance.AccuracyAccurate, rv.Accuracy)
}

func TestPinValuation_AdminOnlyAndReservedReason(t *testing.T) {
	h := newHarness(t)
	id := h.approvedProposal()

	_, err := h.gov.PinValuation(h.ctx, id, "board pack", submitter, time.Time{})
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	_, err = h.gov.PinValuation(h.ctx, id, "Decision", admin, time.Time{})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = h.gov.PinValuation(h.ctx, id, "  ", admin, time.Time{})
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestRecordReview_Classification(t *testing.T) {
	h := newHarness(t)
	id := h.approvedProposal()

	under, err := h.reviews.RecordReview(h.ctx, id, &ReviewRequest{
		ReviewType: "90_day", ActualAnnualValue: 4_000_000, Recommendation: "expand",
	}, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, governance.AccuracyUnderProjected, under.Accuracy)

	over, err := h.reviews.RecordReview(h.ctx, id, &ReviewRequest{
		ReviewType: "180_day", ActualAnnualValue: 1_000_000, Recommendation: "pause",
	}, "reviewer-1")
	require.NoError(t, err)
	assert.Equal(t, governance.AccuracyOverProjected, over.Accuracy)
	assert.Equal(t, 2, h.metrics.reviews)
}

func TestRecordReview_Rejections(t *testing.T) {
	h := newHarness(t)

	draft, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	valid := &ReviewRequest{ReviewType: "ad_hoc", ActualAnnualValue: 1, Recommendation: "modify"}

	_, err = h.reviews.RecordReview(h.ctx, draft.ID, valid, "reviewer-1")
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	_, err = h.reviews.RecordReview(h.ctx, "missing", valid, "reviewer-1")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	_, err = h.reviews.RecordReview(h.ctx, draft.ID, &ReviewRequest{ReviewType: "weekly", ActualAnnualValue: -1, Recommendation: "celebrate"}, "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestEstimationTrend(t *testing.T) {
	h := newHarness(t)
	id := h.approvedProposal()

	record := func(actual int64) {
		t.Helper()
		_, err := h.reviews.RecordReview(h.ctx, id, &ReviewRequest{
			ReviewType: "ad_hoc", ActualAnnualValue: actual, Recommendation: "continue",
		}, "reviewer-1")
		require.NoError(t, err)
	}

	// prior window: 40% and 30% off
	h.advance(10 * 24 * time.Hour)
	record(4_368_000)
	record(2_184_000)

	trend, err := h.reviews.EstimationTrend(h.ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, governance.TrendStable, trend.Label, "an empty window is stable")

	// recent window: 5% off
	h.advance(120 * 24 * time.Hour)
	record(3_276_000)

	trend, err = h.reviews.EstimationTrend(h.ctx, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, governance.TrendImproving, trend.Label)
	assert.Equal(t, 1, trend.RecentCount)
	assert.Equal(t, 2, trend.PriorCount)
	require.NotNil(t, trend.PriorMeanAbs)
	assert.InDelta(t, 35.0, *trend.PriorMeanAbs, 0.0001)
}
