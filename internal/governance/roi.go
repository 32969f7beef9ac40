package governance

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
)

// WeeksPerYear annualises weekly values.
const WeeksPerYear = 52

// ROISummary is the result of a valuation.
type ROISummary struct {
	WeeklyHours      float64   `json:"weekly_hours"`
	WeeklyValue      Money     `json:"weekly_value"`
	AnnualValue      Money     `json:"annual_value"`
	Cost             *Money    `json:"cost,omitempty"`
	ROIPercent       *float64  `json:"roi_percent,omitempty"`
	MissingGrades    []string  `json:"missing_grades,omitempty"`
	AsOf             time.Time `json:"as_of"`
	RateTableVersion string    `json:"rate_table_version,omitempty"`
}

// HasROI distinguishes "no ROI computable" from a 0% return.
func (s *ROISummary) HasROI() bool {
	return s.ROIPercent != nil
}

// Valuation is an ROI summary pinned to the proposal and the rate table used,
// so later rate changes never alter a recorded decision.
type Valuation struct {
	ID         string     `json:"id"`
	ProposalID string     `json:"proposal_id"`
	Summary    ROISummary `json:"summary"`
	Rates      *RateTable `json:"rates"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ValuationReasonDecision marks the valuation pinned when a proposal is
// approved or rejected. Reviews project from it and nothing else may use it.
const ValuationReasonDecision = "decision"

// ComputeROI converts time savings into weekly/annual value and a return
// percentage. A grade with no rate contributes nothing and is listed in
// MissingGrades. ROIPercent is nil when cost is absent or zero.
func ComputeROI(entries []TimeSavingEntry, rates RateLookup, asOf time.Time, cost *Money) (*ROISummary, error) {
	var v errors.Validation
	for i, e := range entries {
		if NormalizeGrade(e.StaffGrade) == "" {
			v.Add(fmt.Sprintf("time_savings[%d].staff_grade", i), "staff grade is required")
		}
		if e.HoursPerWeek < 0 || math.IsNaN(e.HoursPerWeek) || math.IsInf(e.HoursPerWeek, 0) {
			v.Add(fmt.Sprintf("time_savings[%d].hours_per_week", i), "hours per week must be a non-negative number")
		}
	}
	if cost != nil && *cost < 0 {
		v.Add("cost", "cost cannot be negative")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if rates == nil {
		rates = (*RateTable)(nil)
	}
	summary := &ROISummary{AsOf: asOf, Cost: cost}
	if t, ok := rates.(*RateTable); ok && t != nil {
		summary.RateTableVersion = t.Version
	}

	missing := make(map[string]struct{})
	var weekly float64
	for _, e := range entries {
		summary.WeeklyHours += e.HoursPerWeek
		rate, ok := rates.Rate(e.StaffGrade, asOf)
		if !ok {
			missing[NormalizeGrade(e.StaffGrade)] = struct{}{}
			continue
		}
		weekly += e.HoursPerWeek * float64(rate)
	}
	for g := range missing {
		summary.MissingGrades = append(summary.MissingGrades, g)
	}
	sort.Strings(summary.MissingGrades)

	summary.WeeklyValue = Money(math.Round(weekly))
	summary.AnnualValue = summary.WeeklyValue * WeeksPerYear

	if cost != nil && *cost > 0 {
		roi := float64(summary.AnnualValue) / float64(*cost) * 100
		summary.ROIPercent = &roi
	}
	return summary, nil
}
