package governance

import (
	"fmt"
	"time"
)

// Thresholds drive the criteria evaluator and the tier classifier.
// Costs are in pence.
type Thresholds struct {
	AutoApproveMaxCost           Money              `json:"auto_approve_max_cost"`
	AutoApproveMaxRisk           int                `json:"auto_approve_max_risk"`
	AutoApproveMaxClassification DataClassification `json:"auto_approve_max_classification"`
	FastTrackMaxCost             Money              `json:"fast_track_max_cost"`
	FastTrackMaxRisk             int                `json:"fast_track_max_risk"`
	FastTrackMaxClassification   DataClassification `json:"fast_track_max_classification"`
	PartnerMinCost               Money              `json:"partner_min_cost"`
	PartnerMinRisk               int                `json:"partner_min_risk"`
}

// VotingPolicy holds the quorum arithmetic for each pathway.
type VotingPolicy struct {
	FastTrackApprovals      int           `json:"fast_track_approvals"`
	FastTrackUnanimous      int           `json:"fast_track_unanimous"`
	FastTrackRejections     int           `json:"fast_track_rejections"`
	FullOversightPanelSize  int           `json:"full_oversight_panel_size"`
	FullOversightApprovals  int           `json:"full_oversight_approvals"`
	FullOversightRejections int           `json:"full_oversight_rejections"`
	FullOversightDeadline   time.Duration `json:"full_oversight_deadline"`
}

// ReviewPolicy configures variance classification and trend labelling.
type ReviewPolicy struct {
	AccuracyTolerancePercent float64 `json:"accuracy_tolerance_percent"`
	TrendWindowMonths        int     `json:"trend_window_months"`
	TrendStableBandPercent   float64 `json:"trend_stable_band_percent"`
}

// Policy bundles every tunable of the decision engine.
type Policy struct {
	Thresholds Thresholds   `json:"thresholds"`
	Voting     VotingPolicy `json:"voting"`
	Review     ReviewPolicy `json:"review"`
}

// DefaultPolicy returns the committee's standing configuration.
func DefaultPolicy() Policy {
	return Policy{
		Thresholds: Thresholds{
			AutoApproveMaxCost:           100_000, // £1,000
			AutoApproveMaxRisk:           1,
			AutoApproveMaxClassification: ClassificationPublic,
			FastTrackMaxCost:             500_000, // £5,000
			FastTrackMaxRisk:             3,
			FastTrackMaxClassification:   ClassificationInternal,
			PartnerMinCost:               10_000_000, // £100,000
			PartnerMinRisk:               5,
		},
		Voting: VotingPolicy{
			FastTrackApprovals:      2,
			FastTrackUnanimous:      3,
			FastTrackRejections:     2,
			FullOversightPanelSize:  5,
			FullOversightApprovals:  3,
			FullOversightRejections: 3,
			FullOversightDeadline:   5 * 24 * time.Hour,
		},
		Review: ReviewPolicy{
			AccuracyTolerancePercent: 15,
			TrendWindowMonths:        3,
			TrendStableBandPercent:   5,
		},
	}
}

// Validate checks the ordering the tier classifier relies on for monotonicity.
func (p Policy) Validate() error {
	t := p.Thresholds
	if t.AutoApproveMaxCost < 0 || t.FastTrackMaxCost < 0 || t.PartnerMinCost < 0 {
		return fmt.Errorf("cost thresholds cannot be negative")
	}
	if t.AutoApproveMaxCost > t.FastTrackMaxCost {
		return fmt.Errorf("auto_approve_max_cost (%d) exceeds fast_track_max_cost (%d)", t.AutoApproveMaxCost, t.FastTrackMaxCost)
	}
	if t.FastTrackMaxCost >= t.PartnerMinCost {
		return fmt.Errorf("fast_track_max_cost (%d) must be below partner_min_cost (%d)", t.FastTrackMaxCost, t.PartnerMinCost)
	}
	if t.AutoApproveMaxRisk > t.FastTrackMaxRisk || t.FastTrackMaxRisk >= t.PartnerMinRisk {
		return fmt.Errorf("risk thresholds must satisfy auto <= fast track < partner")
	}
	if t.AutoApproveMaxClassification.Sensitivity() > t.FastTrackMaxClassification.Sensitivity() {
		return fmt.Errorf("auto-approve classification ceiling is more sensitive than fast track")
	}

	v := p.Voting
	if v.FastTrackApprovals < 1 || v.FastTrackRejections < 1 || v.FastTrackUnanimous < v.FastTrackApprovals {
		return fmt.Errorf("fast track thresholds must be positive and unanimous >= approvals")
	}
	if v.FullOversightApprovals < 1 || v.FullOversightRejections < 1 {
		return fmt.Errorf("full oversight thresholds must be positive")
	}
	if v.FullOversightApprovals > v.FullOversightPanelSize || v.FullOversightRejections > v.FullOversightPanelSize {
		return fmt.Errorf("full oversight thresholds cannot exceed panel size %d", v.FullOversightPanelSize)
	}
	if v.FullOversightDeadline <= 0 {
		return fmt.Errorf("full oversight deadline must be positive")
	}

	if p.Review.AccuracyTolerancePercent < 0 || p.Review.TrendWindowMonths < 1 || p.Review.TrendStableBandPercent < 0 {
		return fmt.Errorf("invalid review policy")
	}
	return nil
}
