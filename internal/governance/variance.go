package governance

import (
	"math"
	"time"
)

// ReviewType identifies when a post-implementation review happened.
type ReviewType string

const (
	Review30Day  ReviewType = "30_day"
	Review90Day  ReviewType = "90_day"
	Review180Day ReviewType = "180_day"
	Review365Day ReviewType = "365_day"
	ReviewAdHoc  ReviewType = "ad_hoc"
)

// Valid reports whether t is a known review type.
func (t ReviewType) Valid() bool {
	switch t {
	case Review30Day, Review90Day, Review180Day, Review365Day, ReviewAdHoc:
		return true
	}
	return false
}

// Recommendation is the reviewer's call on an implemented proposal.
type Recommendation string

const (
	RecommendContinue    Recommendation = "continue"
	RecommendExpand      Recommendation = "expand"
	RecommendModify      Recommendation = "modify"
	RecommendPause       Recommendation = "pause"
	RecommendDiscontinue Recommendation = "discontinue"
)

// Valid reports whether r is a known recommendation.
func (r Recommendation) Valid() bool {
	switch r {
	case RecommendContinue, RecommendExpand, RecommendModify, RecommendPause, RecommendDiscontinue:
		return true
	}
	return false
}

// Accuracy classifies a review's variance. The direction names describe the
// projection: under_projected means the actual came in above the projection.
type Accuracy string

const (
	AccuracyAccurate       Accuracy = "accurate"
	AccuracyUnderProjected Accuracy = "under_projected"
	AccuracyOverProjected  Accuracy = "over_projected"
)

// ImplementationReview compares projected and realised value.
type ImplementationReview struct {
	ID                     string         `json:"id"`
	ProposalID             string         `json:"proposal_id"`
	ReviewType             ReviewType     `json:"review_type"`
	ProjectedAnnualValue   Money          `json:"projected_annual_value"`
	ProjectedCost          Money          `json:"projected_cost"`
	ActualAnnualValue      Money          `json:"actual_annual_value"`
	ActualCost             Money          `json:"actual_cost"`
	VariancePercentage     float64        `json:"variance_percentage"`
	CostVariancePercentage float64        `json:"cost_variance_percentage"`
	Accuracy               Accuracy       `json:"accuracy"`
	Recommendation         Recommendation `json:"recommendation"`
	Notes                  string         `json:"notes,omitempty"`
	ValuationID            string         `json:"valuation_id,omitempty"`
	ReviewedBy             string         `json:"reviewed_by"`
	CreatedAt              time.Time      `json:"created_at"`
}

// VariancePercent is (actual - projected) / projected * 100, defined as 0
// when projected is 0.
func VariancePercent(projected, actual Money) float64 {
	if projected == 0 {
		return 0
	}
	return float64(actual-projected) / float64(projected) * 100
}

// ClassifyAccuracy labels a variance against the tolerance band.
func ClassifyAccuracy(variance, tolerance float64) Accuracy {
	switch {
	case math.Abs(variance) <= tolerance:
		return AccuracyAccurate
	case variance > 0:
		return AccuracyUnderProjected
	default:
		return AccuracyOverProjected
	}
}

// Analyze fills the derived fields of r.
func (r *ImplementationReview) Analyze(policy ReviewPolicy) {
	r.VariancePercentage = VariancePercent(r.ProjectedAnnualValue, r.ActualAnnualValue)
	r.CostVariancePercentage = VariancePercent(r.ProjectedCost, r.ActualCost)
	r.Accuracy = ClassifyAccuracy(r.VariancePercentage, policy.AccuracyTolerancePercent)
}

// TrendLabel describes how estimation accuracy is moving.
type TrendLabel string

const (
	TrendImproving TrendLabel = "improving"
	TrendDeclining TrendLabel = "declining"
	TrendStable    TrendLabel = "stable"
)

// EstimationTrend compares the recent window with the one before it.
type EstimationTrend struct {
	Label            TrendLabel `json:"label"`
	RecentMeanAbs    *float64   `json:"recent_mean_abs_variance,omitempty"`
	PriorMeanAbs     *float64   `json:"prior_mean_abs_variance,omitempty"`
	RecentCount      int        `json:"recent_count"`
	PriorCount       int        `json:"prior_count"`
	WindowStart      time.Time  `json:"window_start"`
	PriorWindowStart time.Time  `json:"prior_window_start"`
	AsOf             time.Time  `json:"as_of"`
}

// ComputeTrend averages |variance| over [asOf-window, asOf] and the equally
// long window before it. Lower recent error is improving. Differences inside
// the stable band, or an empty window, are stable.
func ComputeTrend(reviews []*ImplementationReview, asOf time.Time, policy ReviewPolicy) EstimationTrend {
	windowStart := asOf.AddDate(0, -policy.TrendWindowMonths, 0)
	priorStart := windowStart.AddDate(0, -policy.TrendWindowMonths, 0)

	var recentSum, priorSum float64
	trend := EstimationTrend{Label: TrendStable, WindowStart: windowStart, PriorWindowStart: priorStart, AsOf: asOf}
	for _, r := range reviews {
		at := r.CreatedAt
		abs := math.Abs(r.VariancePercentage)
		switch {
		case at.After(asOf):
			continue
		case !at.Before(windowStart):
			recentSum += abs
			trend.RecentCount++
		case !at.Before(priorStart):
			priorSum += abs
			trend.PriorCount++
		}
	}

	if trend.RecentCount > 0 {
		m := recentSum / float64(trend.RecentCount)
		trend.RecentMeanAbs = &m
	}
	if trend.PriorCount > 0 {
		m := priorSum / float64(trend.PriorCount)
		trend.PriorMeanAbs = &m
	}
	if trend.RecentMeanAbs == nil || trend.PriorMeanAbs == nil {
		return trend
	}

	diff := *trend.RecentMeanAbs - *trend.PriorMeanAbs
	switch {
	case diff < -policy.TrendStableBandPercent:
		trend.Label = TrendImproving
	case diff > policy.TrendStableBandPercent:
		trend.Label = TrendDeclining
	}
	return trend
}
