package governance

import (
	"fmt"
	"strings"
)

// Criterion names, in evaluation order.
const (
	CriterionRequiredFields       = "required_fields_present"
	CriterionCostWithinThreshold  = "cost_within_threshold"
	CriterionRiskWithinThreshold  = "risk_score_within_threshold"
	CriterionClassification       = "data_classification_permitted"
	CriterionNoEscalationTriggers = "no_escalation_triggers"
	CriterionTimeSavingsDeclared  = "time_savings_declared"
)

// CriterionResult is the outcome of one named check.
type CriterionResult struct {
	Name           string   `json:"name"`
	Met            bool     `json:"met"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// CriteriaEvaluationResult is the full battery outcome.
type CriteriaEvaluationResult struct {
	Results           []CriterionResult `json:"results"`
	AllCriteriaMet    bool              `json:"all_criteria_met"`
	FastTrackEligible bool              `json:"fast_track_eligible"`
}

// Result looks up a check by name.
func (r CriteriaEvaluationResult) Result(name string) (CriterionResult, bool) {
	for _, c := range r.Results {
		if c.Name == name {
			return c, true
		}
	}
	return CriterionResult{}, false
}

// FailureReasons flattens every unmet check's reasons.
func (r CriteriaEvaluationResult) FailureReasons() []string {
	var reasons []string
	for _, c := range r.Results {
		reasons = append(reasons, c.FailureReasons...)
	}
	return reasons
}

type criterion struct {
	name   string
	gating bool
	check  func(p *Proposal, t Thresholds) []string
}

// battery is fixed; gating checks feed FastTrackEligible.
var battery = []criterion{
	{CriterionRequiredFields, true, checkRequiredFields},
	{CriterionCostWithinThreshold, true, checkCost},
	{CriterionRiskWithinThreshold, true, checkRisk},
	{CriterionClassification, true, checkClassification},
	{CriterionNoEscalationTriggers, true, checkEscalationTriggers},
	{CriterionTimeSavingsDeclared, false, checkTimeSavings},
}

// EvaluateCriteria runs the battery against p. It never mutates p.
func EvaluateCriteria(p *Proposal, t Thresholds) CriteriaEvaluationResult {
	res := CriteriaEvaluationResult{
		Results:           make([]CriterionResult, 0, len(battery)),
		AllCriteriaMet:    true,
		FastTrackEligible: true,
	}
	for _, c := range battery {
		reasons := c.check(p, t)
		met := len(reasons) == 0
		res.Results = append(res.Results, CriterionResult{Name: c.name, Met: met, FailureReasons: reasons})
		if !met {
			res.AllCriteriaMet = false
			if c.gating {
				res.FastTrackEligible = false
			}
		}
	}
	return res
}

func checkRequiredFields(p *Proposal, _ Thresholds) []string {
	var reasons []string
	required := []struct{ name, value string }{
		{"title", p.Title},
		{"problem", p.Problem},
		{"solution", p.Solution},
		{"team", p.Team},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			reasons = append(reasons, fmt.Sprintf("%s is required", f.name))
		}
	}
	if p.Cost == nil {
		reasons = append(reasons, "cost is required")
	}
	if p.RiskScore == nil {
		reasons = append(reasons, "risk score is required")
	}
	if p.DataClassification == nil {
		reasons = append(reasons, "data classification is required")
	}
	return reasons
}

func checkCost(p *Proposal, t Thresholds) []string {
	if p.Cost == nil {
		return []string{"cost not provided"}
	}
	if *p.Cost > t.FastTrackMaxCost {
		return []string{fmt.Sprintf("cost %s exceeds fast-track ceiling %s", FormatMoney(*p.Cost), FormatMoney(t.FastTrackMaxCost))}
	}
	return nil
}

func checkRisk(p *Proposal, t Thresholds) []string {
	if p.RiskScore == nil {
		return []string{"risk score not provided"}
	}
	if *p.RiskScore > t.FastTrackMaxRisk {
		return []string{fmt.Sprintf("risk score %d exceeds fast-track ceiling %d", *p.RiskScore, t.FastTrackMaxRisk)}
	}
	return nil
}

func checkClassification(p *Proposal, t Thresholds) []string {
	if p.DataClassification == nil {
		return []string{"data classification not provided"}
	}
	if p.DataClassification.Sensitivity() > t.FastTrackMaxClassification.Sensitivity() {
		return []string{fmt.Sprintf("%s data is not permitted on the fast track", *p.DataClassification)}
	}
	return nil
}

func checkEscalationTriggers(p *Proposal, _ Thresholds) []string {
	var reasons []string
	for _, trigger := range p.EscalationTriggers {
		reasons = append(reasons, fmt.Sprintf("escalation trigger declared: %s", trigger))
	}
	return reasons
}

func checkTimeSavings(p *Proposal, _ Thresholds) []string {
	if p.TotalWeeklyHours() <= 0 {
		return []string{"no staff time savings declared"}
	}
	return nil
}

// FormatMoney renders pence as pounds for messages.
func FormatMoney(m Money) string {
	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	return fmt.Sprintf("%s£%d.%02d", sign, m/100, m%100)
}
