package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchAutoApprovalRules(t *testing.T) {
	p := &Proposal{
		Team:               "Litigation",
		Cost:               money(50_000),
		RiskScore:          intPtr(1),
		DataClassification: classification(ClassificationPublic),
	}

	smallPublic := &AutoApprovalRule{
		ID:                     "r-small",
		Name:                   "Small public tools",
		IsActive:               true,
		MaxCost:                money(100_000),
		MaxRiskScore:           intPtr(2),
		AllowedClassifications: []DataClassification{ClassificationPublic},
		RequireAllConditions:   true,
		AutoApprove:            true,
		Priority:               10,
	}

	t.Run("all conditions met approves", func(t *testing.T) {
		res := MatchAutoApprovalRules(p, []*AutoApprovalRule{smallPublic})
		assert.Equal(t, EffectApprove, res.Effect)
		assert.Len(t, res.Matches, 1)
		assert.Equal(t, []string{FilterMaxCost, FilterMaxRiskScore, FilterClassifications}, res.Matches[0].MatchedFilters)
	})

	t.Run("one failed condition under AND", func(t *testing.T) {
		q := *p
		q.RiskScore = intPtr(3)
		res := MatchAutoApprovalRules(&q, []*AutoApprovalRule{smallPublic})
		assert.Equal(t, EffectNone, res.Effect)
		assert.Empty(t, res.Matches)
	})

	t.Run("one passing condition under OR", func(t *testing.T) {
		anyOf := *smallPublic
		anyOf.RequireAllConditions = false
		q := *p
		q.RiskScore = intPtr(3)
		q.Cost = money(900_000)
		res := MatchAutoApprovalRules(&q, []*AutoApprovalRule{&anyOf})
		assert.Equal(t, EffectApprove, res.Effect)
		assert.Equal(t, []string{FilterClassifications}, res.Matches[0].MatchedFilters)
	})

	t.Run("missing value fails its filter", func(t *testing.T) {
		q := *p
		q.Cost = nil
		res := MatchAutoApprovalRules(&q, []*AutoApprovalRule{smallPublic})
		assert.Equal(t, EffectNone, res.Effect)
	})

	t.Run("rule without filters matches", func(t *testing.T) {
		catchAll := &AutoApprovalRule{ID: "r-all", Name: "Everything", IsActive: true, AutoApprove: false}
		res := MatchAutoApprovalRules(p, []*AutoApprovalRule{catchAll})
		assert.Equal(t, EffectReject, res.Effect)
		assert.Equal(t, []string{"r-all"}, res.RuleIDs(EffectReject))
	})

	t.Run("inactive rules are ignored", func(t *testing.T) {
		off := *smallPublic
		off.IsActive = false
		res := MatchAutoApprovalRules(p, []*AutoApprovalRule{&off, nil})
		assert.Equal(t, EffectNone, res.Effect)
	})

	t.Run("team filter is case insensitive", func(t *testing.T) {
		teams := &AutoApprovalRule{ID: "r-team", Name: "Litigation pilots", IsActive: true, AllowedTeams: []string{"litigation "}, AutoApprove: true}
		res := MatchAutoApprovalRules(p, []*AutoApprovalRule{teams})
		assert.Equal(t, EffectApprove, res.Effect)
	})

	t.Run("approve and reject conflict", func(t *testing.T) {
		block := &AutoApprovalRule{ID: "r-block", Name: "Block litigation", IsActive: true, AllowedTeams: []string{"Litigation"}, Priority: 1}
		res := MatchAutoApprovalRules(p, []*AutoApprovalRule{smallPublic, block})
		assert.Equal(t, EffectConflict, res.Effect)
		assert.Equal(t, []string{"r-block", "r-small"}, res.RuleIDs(EffectNone))
		assert.Equal(t, []string{"r-small"}, res.RuleIDs(EffectApprove))
	})

	t.Run("order is independent of input order", func(t *testing.T) {
		a := &AutoApprovalRule{ID: "b", Name: "same", IsActive: true, AutoApprove: true, Priority: 5}
		b := &AutoApprovalRule{ID: "a", Name: "same", IsActive: true, AutoApprove: true, Priority: 5}
		c := &AutoApprovalRule{ID: "c", Name: "alpha", IsActive: true, AutoApprove: true, Priority: 5}
		first := MatchAutoApprovalRules(p, []*AutoApprovalRule{a, b, c})
		second := MatchAutoApprovalRules(p, []*AutoApprovalRule{c, b, a})
		assert.Equal(t, first, second)
		assert.Equal(t, []string{"c", "a", "b"}, first.RuleIDs(EffectNone))
	})
}
