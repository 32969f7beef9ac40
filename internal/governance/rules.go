package governance

import (
	"sort"
	"strings"
	"time"
)

// AutoApprovalRule is an administrator-defined condition set that decides a
// proposal without a vote.
type AutoApprovalRule struct {
	ID                     string               `json:"id"`
	Name                   string               `json:"name"`
	Description            string               `json:"description,omitempty"`
	IsActive               bool                 `json:"is_active"`
	MaxCost                *Money               `json:"max_cost,omitempty"`
	MaxRiskScore           *int                 `json:"max_risk_score,omitempty"`
	AllowedClassifications []DataClassification `json:"allowed_classifications,omitempty"`
	AllowedTeams           []string             `json:"allowed_teams,omitempty"`
	RequireAllConditions   bool                 `json:"require_all_conditions"`
	AutoApprove            bool                 `json:"auto_approve"`
	Priority               int                  `json:"priority"`
	CreatedBy              string               `json:"created_by,omitempty"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

// RuleEffect is the aggregate effect of every matching rule.
type RuleEffect string

const (
	EffectNone     RuleEffect = "none"
	EffectApprove  RuleEffect = "approve"
	EffectReject   RuleEffect = "reject"
	EffectConflict RuleEffect = "conflict"
)

// RuleMatch is one matching rule.
type RuleMatch struct {
	RuleID         string   `json:"rule_id"`
	RuleName       string   `json:"rule_name"`
	AutoApprove    bool     `json:"auto_approve"`
	MatchedFilters []string `json:"matched_filters"`
}

// RuleMatchResult lists matching rules in evaluation order.
type RuleMatchResult struct {
	Matches []RuleMatch `json:"matches"`
	Effect  RuleEffect  `json:"effect"`
}

// RuleIDs returns the ids of matches with the given effect, or all when
// effect is EffectNone.
func (r RuleMatchResult) RuleIDs(effect RuleEffect) []string {
	var ids []string
	for _, m := range r.Matches {
		if effect == EffectNone ||
			(effect == EffectApprove && m.AutoApprove) ||
			(effect == EffectReject && !m.AutoApprove) {
			ids = append(ids, m.RuleID)
		}
	}
	return ids
}

// Filter names reported in RuleMatch.MatchedFilters.
const (
	FilterMaxCost         = "max_cost"
	FilterMaxRiskScore    = "max_risk_score"
	FilterClassifications = "allowed_classifications"
	FilterTeams           = "allowed_teams"
)

// MatchAutoApprovalRules evaluates every active rule against p. Rules are
// visited in (priority, name, id) order so the result is deterministic. When
// both approving and rejecting rules match, the effect is EffectConflict and
// no decision may be taken automatically.
func MatchAutoApprovalRules(p *Proposal, rules []*AutoApprovalRule) RuleMatchResult {
	ordered := make([]*AutoApprovalRule, 0, len(rules))
	for _, r := range rules {
		if r != nil && r.IsActive {
			ordered = append(ordered, r)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})

	result := RuleMatchResult{Matches: []RuleMatch{}, Effect: EffectNone}
	var approves, rejects bool
	for _, rule := range ordered {
		matched, filters := ruleMatches(rule, p)
		if !matched {
			continue
		}
		result.Matches = append(result.Matches, RuleMatch{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			AutoApprove:    rule.AutoApprove,
			MatchedFilters: filters,
		})
		if rule.AutoApprove {
			approves = true
		} else {
			rejects = true
		}
	}

	switch {
	case approves && rejects:
		result.Effect = EffectConflict
	case approves:
		result.Effect = EffectApprove
	case rejects:
		result.Effect = EffectReject
	}
	return result
}

// ruleMatches evaluates the populated filters of rule and combines them with
// AND or OR. A rule with no populated filter matches everything.
func ruleMatches(rule *AutoApprovalRule, p *Proposal) (bool, []string) {
	type filter struct {
		name string
		ok   bool
	}
	var filters []filter

	if rule.MaxCost != nil {
		filters = append(filters, filter{FilterMaxCost, p.Cost != nil && *p.Cost <= *rule.MaxCost})
	}
	if rule.MaxRiskScore != nil {
		filters = append(filters, filter{FilterMaxRiskScore, p.RiskScore != nil && *p.RiskScore <= *rule.MaxRiskScore})
	}
	if len(rule.AllowedClassifications) > 0 {
		ok := false
		if p.DataClassification != nil {
			for _, c := range rule.AllowedClassifications {
				if c == *p.DataClassification {
					ok = true
					break
				}
			}
		}
		filters = append(filters, filter{FilterClassifications, ok})
	}
	if len(rule.AllowedTeams) > 0 {
		ok := false
		for _, team := range rule.AllowedTeams {
			if strings.EqualFold(strings.TrimSpace(team), strings.TrimSpace(p.Team)) {
				ok = true
				break
			}
		}
		filters = append(filters, filter{FilterTeams, ok})
	}

	if len(filters) == 0 {
		return true, []string{}
	}

	matched := make([]string, 0, len(filters))
	for _, f := range filters {
		if f.ok {
			matched = append(matched, f.name)
		}
	}
	if rule.RequireAllConditions {
		return len(matched) == len(filters), matched
	}
	return len(matched) > 0, matched
}
