package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

func TestRuleCRUD(t *testing.T) {
	h := newHarness(t)

	_, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "cheap", IsActive: true}, submitter)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	_, err = h.policy.CreateRule(h.ctx, &RuleRequest{
		Name:                   "",
		MaxRiskScore:           intPtr(9),
		AllowedClassifications: []string{"top-secret"},
	}, admin)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	rule, err := h.policy.CreateRule(h.ctx, &RuleRequest{
		Name:                   "cheap",
		IsActive:               true,
		MaxCost:                int64Ptr(100_000),
		AllowedClassifications: []string{"PUBLIC"},
		AutoApprove:            true,
	}, admin)
	require.NoError(t, err)
	assert.Equal(t, admin, rule.CreatedBy)
	assert.Equal(t, []governance.DataClassification{governance.ClassificationPublic}, rule.AllowedClassifications)

	_, err = h.policy.CreateRule(h.ctx, &RuleRequest{Name: "cheap"}, admin)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err), "names are unique")

	updated, err := h.policy.UpdateRule(h.ctx, rule.ID, &RuleRequest{Name: "cheap", IsActive: false, AutoApprove: true}, admin)
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, admin, updated.CreatedBy)

	active, err := h.policy.ListRules(h.ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := h.policy.ListRules(h.ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, h.policy.DeleteRule(h.ctx, rule.ID, admin))
	_, err = h.policy.GetRule(h.ctx, rule.ID)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	updates := h.notifier.ofType(EventPolicyUpdated)
	require.Len(t, updates, 3)
	assert.Equal(t, []string{admin}, updates[0].Recipients)
	assert.Equal(t, "rule_deleted", updates[2].Payload["change"])
}

func TestCapabilityGrants(t *testing.T) {
	h := newHarness(t)

	_, err := h.policy.GrantCapability(h.ctx, "bob", "partner", submitter)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	_, err = h.policy.GrantCapability(h.ctx, "bob", "emperor", admin)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	_, err = h.policy.GrantCapability(h.ctx, "bob", "Fast_Track_Voter", admin)
	require.NoError(t, err)
	_, err = h.policy.GrantCapability(h.ctx, "bob", "fast_track_voter", admin)
	require.NoError(t, err, "granting twice is a no-op")

	holders, err := h.stores.Capabilities.Holders(h.ctx, governance.CapabilityFastTrackVoter)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "ft-1", "ft-2", "ft-3"}, holders)

	require.NoError(t, h.policy.RevokeCapability(h.ctx, "bob", "fast_track_voter", admin))
	err = h.policy.RevokeCapability(h.ctx, "bob", "fast_track_voter", admin)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	err = h.policy.RevokeCapability(h.ctx, admin, "governance_admin", admin)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	grants, err := h.policy.ListGrants(h.ctx)
	require.NoError(t, err)
	assert.Len(t, grants, 10)
}

func TestRevokedVoterKeepsOpenSessionSeat(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session

	require.NoError(t, h.policy.RevokeCapability(h.ctx, "ft-3", "fast_track_voter", admin))
	h.vote(session.ID, "ft-3", governance.VoteApprove)
}

func TestRateTables(t *testing.T) {
	h := newHarness(t, true)

	_, err := h.policy.CurrentRateTable(h.ctx)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))

	err = h.policy.SaveRateTable(h.ctx, &governance.RateTable{Version: "x"}, admin)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))

	err = h.policy.SaveRateTable(h.ctx, &governance.RateTable{
		Version: "2026.1",
		Entries: []governance.RateEntry{{Grade: "Trainee", HourlyRate: 5_000, EffectiveFrom: rateDate}},
	}, submitter)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	require.NoError(t, h.policy.SaveRateTable(h.ctx, &governance.RateTable{
		Version: "2026.1",
		Entries: []governance.RateEntry{{Grade: "Trainee", HourlyRate: 5_000, EffectiveFrom: rateDate}},
	}, admin))

	current, err := h.policy.CurrentRateTable(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, "trainee", current.Entries[0].Grade)

	// grades unknown to the loaded table are now rejected at intake
	_, err = h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}
