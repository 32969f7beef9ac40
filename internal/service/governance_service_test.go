package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

func TestFastTrack_ApprovedWhenCriteriaMet(t *testing.T) {
	h := newHarness(t)

	res := h.submit(request(300_000, 2, "internal"))
	require.NotNil(t, res.Routing.Session)
	session := res.Routing.Session
	assert.Equal(t, governance.TierFastTrack, res.Routing.Tier)
	assert.Equal(t, governance.PathwayFastTrack, session.Pathway)
	assert.Equal(t, []string{"ft-1", "ft-2", "ft-3"}, session.EligibleVoters)
	assert.Nil(t, session.Deadline)
	assert.Equal(t, governance.OversightUnderReview, res.Proposal.OversightStatus)

	required := h.notifier.ofType(EventVoteRequired)
	require.Len(t, required, 1)
	assert.Equal(t, session.EligibleVoters, required[0].Recipients)

	h.vote(session.ID, "ft-1", governance.VoteApprove)
	open, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, open.IsOpen())

	h.advance(time.Hour)
	h.vote(session.ID, "ft-2", governance.VoteApprove)

	closed, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.OutcomeApproved, closed.Outcome)
	assert.Equal(t, 2, closed.Tally.Approvals)

	p := h.proposal(session.ProposalID)
	assert.Equal(t, governance.StatusApproved, p.Status)
	assert.Equal(t, governance.OversightApproved, p.OversightStatus)
	require.NotNil(t, p.ReviewedAt)
	assert.Equal(t, h.now, *p.ReviewedAt)

	valuation, err := h.stores.Valuations.Latest(h.ctx, p.ID, governance.ValuationReasonDecision)
	require.NoError(t, err)
	require.NotNil(t, valuation)
	assert.Equal(t, governance.Money(3_120_000), valuation.Summary.AnnualValue)
	assert.Equal(t, "2026.1", valuation.Rates.Version)

	closedEvents := h.notifier.ofType(EventSessionClosed)
	require.Len(t, closedEvents, 1)
	assert.Equal(t, []string{submitter}, closedEvents[0].Recipients)
	assert.Equal(t, 1, h.metrics.closed[governance.OutcomeApproved])
}

func TestFastTrack_UnanimousWhenCriteriaNotAllMet(t *testing.T) {
	h := newHarness(t)

	req := request(300_000, 2, "internal")
	req.TimeSavings = nil
	session := h.submit(req).Routing.Session
	require.NotNil(t, session)
	require.Equal(t, governance.PathwayFastTrack, session.Pathway)

	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)
	mid, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, mid.IsOpen(), "two approvals are not enough without every criterion")

	h.vote(session.ID, "ft-3", governance.VoteApprove)
	closed, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.OutcomeApproved, closed.Outcome)
}

func TestFastTrack_TwoRejectionsReject(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session

	h.vote(session.ID, "ft-1", governance.VoteReject)
	h.vote(session.ID, "ft-2", governance.VoteReject)

	p := h.proposal(session.ProposalID)
	assert.Equal(t, governance.StatusRejected, p.Status)
	assert.Equal(t, governance.OversightRejected, p.OversightStatus)
}

func TestFastTrack_EscalatesToFullOversight(t *testing.T) {
	h := newHarness(t)

	req := request(300_000, 2, "internal")
	req.TimeSavings = nil
	session := h.submit(req).Routing.Session

	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)
	h.advance(time.Hour)
	h.vote(session.ID, "ft-3", governance.VoteAbstain)

	escalated, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.OutcomeEscalated, escalated.Outcome)

	sessions, err := h.gov.ListSessions(h.ctx, session.ProposalID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	followUp := sessions[1]
	assert.True(t, followUp.IsOpen())
	assert.Equal(t, governance.PathwayFullOversight, followUp.Pathway)
	assert.Len(t, followUp.EligibleVoters, 5)
	require.NotNil(t, followUp.Deadline)
	assert.Equal(t, h.now.Add(5*24*time.Hour), *followUp.Deadline)

	p := h.proposal(session.ProposalID)
	assert.Equal(t, governance.StatusUnderReview, p.Status)
	assert.Equal(t, governance.OversightUnderReview, p.OversightStatus)

	valuation, err := h.stores.Valuations.Latest(h.ctx, p.ID, governance.ValuationReasonDecision)
	require.NoError(t, err)
	assert.Nil(t, valuation, "escalation is not a decision")
}

func TestFullOversight_ThreeOfFiveApprove(t *testing.T) {
	h := newHarness(t)

	res := h.submit(request(2_000_000, 4, "confidential"))
	session := res.Routing.Session
	require.NotNil(t, session)
	assert.Equal(t, governance.TierFullOversight, res.Routing.Tier)
	assert.Equal(t, governance.PathwayFullOversight, session.Pathway)
	require.NotNil(t, session.Deadline)
	assert.Equal(t, startTime.Add(5*24*time.Hour), *session.Deadline)

	h.vote(session.ID, "om-1", governance.VoteApprove)
	h.vote(session.ID, "om-2", governance.VoteReject)
	h.vote(session.ID, "om-3", governance.VoteApprove)
	mid, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, mid.IsOpen())

	// the deadline is advisory, votes after it still count
	h.advance(6 * 24 * time.Hour)
	h.vote(session.ID, "om-4", governance.VoteApprove)

	closed, err := h.gov.GetSession(h.ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.OutcomeApproved, closed.Outcome)
	assert.Equal(t, governance.Tally{Approvals: 3, Rejections: 1, Total: 4}, closed.Tally)
	assert.Equal(t, governance.StatusApproved, h.proposal(session.ProposalID).Status)
}

func TestFullOversight_ThreeRejections(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(2_000_000, 4, "confidential")).Routing.Session

	for _, voter := range []string{"om-1", "om-2", "om-3"} {
		h.vote(session.ID, voter, governance.VoteReject)
	}
	assert.Equal(t, governance.OversightRejected, h.proposal(session.ProposalID).OversightStatus)
}

func TestPartnerEscalation_FirstDecisionCloses(t *testing.T) {
	h := newHarness(t)

	// a catch-all approving rule is ignored for partner-tier proposals
	_, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "everything", IsActive: true, AutoApprove: true}, admin)
	require.NoError(t, err)

	res := h.submit(request(10_000_000, 3, "internal"))
	assert.Equal(t, governance.TierPartnerEscalation, res.Routing.Tier)
	assert.Nil(t, res.Routing.AutoDecision)
	assert.Empty(t, res.Routing.Rules.Matches)
	session := res.Routing.Session
	require.NotNil(t, session)
	assert.Equal(t, governance.PathwayPartnerEscalation, session.Pathway)
	assert.Equal(t, []string{"partner-1"}, session.EligibleVoters)

	h.vote(session.ID, "partner-1", governance.VoteApprove)
	assert.Equal(t, governance.StatusApproved, h.proposal(session.ProposalID).Status)
}

func TestAutoApprovalRule_DecidesWithoutSession(t *testing.T) {
	h := newHarness(t)

	rule, err := h.policy.CreateRule(h.ctx, &RuleRequest{
		Name:                   "small public tools",
		IsActive:               true,
		MaxCost:                int64Ptr(100_000),
		MaxRiskScore:           intPtr(1),
		AllowedClassifications: []string{"public"},
		RequireAllConditions:   true,
		AutoApprove:            true,
	}, admin)
	require.NoError(t, err)

	res := h.submit(request(50_000, 1, "public"))
	assert.Equal(t, governance.TierAutoApprovable, res.Routing.Tier)
	assert.Nil(t, res.Routing.Session)
	require.NotNil(t, res.Routing.AutoDecision)
	assert.Equal(t, governance.PathwayAutoApproved, res.Routing.AutoDecision.Pathway)
	assert.Equal(t, []string{rule.ID}, res.Routing.AutoDecision.MatchedRuleIDs)
	assert.Equal(t, governance.StatusApproved, res.Proposal.Status)
	assert.Equal(t, governance.OversightApproved, res.Proposal.OversightStatus)

	sessions, err := h.gov.ListSessions(h.ctx, res.Proposal.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	_, err = h.gov.GetOrCreateVotingSession(h.ctx, res.Proposal.ID, admin)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict))

	// routing again returns the recorded decision
	again, err := h.gov.RouteProposal(h.ctx, res.Proposal.ID, admin)
	require.NoError(t, err)
	require.NotNil(t, again.AutoDecision)
	assert.Equal(t, res.Routing.AutoDecision.ID, again.AutoDecision.ID)
	assert.Equal(t, 1, h.metrics.auto)

	events := h.notifier.ofType(EventAutoDecided)
	require.Len(t, events, 1)
	assert.Equal(t, []string{submitter}, events[0].Recipients)
}

func TestAutoRejectRule(t *testing.T) {
	h := newHarness(t)
	_, err := h.policy.CreateRule(h.ctx, &RuleRequest{
		Name:         "no restricted data",
		IsActive:     true,
		AllowedTeams: []string{"corporate"},
		AutoApprove:  false,
	}, admin)
	require.NoError(t, err)

	res := h.submit(request(50_000, 1, "public"))
	require.NotNil(t, res.Routing.AutoDecision)
	assert.Equal(t, governance.PathwayAutoRejected, res.Routing.AutoDecision.Pathway)
	assert.Equal(t, governance.StatusRejected, res.Proposal.Status)
}

func TestRuleConflict_EscalatesToPartner(t *testing.T) {
	h := newHarness(t)
	_, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "cheap", IsActive: true, MaxCost: int64Ptr(100_000), AutoApprove: true}, admin)
	require.NoError(t, err)
	_, err = h.policy.CreateRule(h.ctx, &RuleRequest{Name: "corporate freeze", IsActive: true, AllowedTeams: []string{"Corporate"}}, admin)
	require.NoError(t, err)

	res := h.submit(request(50_000, 1, "public"))
	assert.Equal(t, governance.EffectConflict, res.Routing.Rules.Effect)
	assert.Nil(t, res.Routing.AutoDecision)
	require.NotNil(t, res.Routing.Session)
	assert.Equal(t, governance.PathwayPartnerEscalation, res.Routing.Session.Pathway)

	conflicts := h.notifier.ofType(EventRuleConflict)
	require.Len(t, conflicts, 1)
	assert.Equal(t, []string{"partner-1"}, conflicts[0].Recipients)
	assert.Equal(t, 1, h.metrics.conflicts)
}

func TestSubmitVote_Errors(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session

	t.Run("not eligible", func(t *testing.T) {
		_, err := h.gov.SubmitVote(h.ctx, session.ID, "om-1", governance.Ballot{Decision: governance.VoteApprove})
		assert.Equal(t, errors.ErrCodeNotEligible, errors.CodeOf(err))
	})

	t.Run("reject needs reason", func(t *testing.T) {
		_, err := h.gov.SubmitVote(h.ctx, session.ID, "ft-1", governance.Ballot{Decision: governance.VoteReject})
		assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
	})

	t.Run("unknown session", func(t *testing.T) {
		_, err := h.gov.SubmitVote(h.ctx, "missing", "ft-1", governance.Ballot{Decision: governance.VoteApprove})
		assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
	})

	first := h.vote(session.ID, "ft-1", governance.VoteApprove)

	t.Run("identical resubmission is idempotent", func(t *testing.T) {
		again := h.vote(session.ID, "ft-1", governance.VoteApprove)
		assert.Equal(t, first.ID, again.ID)
		votes, err := h.gov.ListVotes(h.ctx, session.ID)
		require.NoError(t, err)
		assert.Len(t, votes, 1)
	})

	t.Run("different ballot is already voted", func(t *testing.T) {
		_, err := h.gov.SubmitVote(h.ctx, session.ID, "ft-1", governance.Ballot{Decision: governance.VoteReject, Reason: "changed my mind"})
		assert.Equal(t, errors.ErrCodeAlreadyVoted, errors.CodeOf(err))
	})

	h.vote(session.ID, "ft-2", governance.VoteApprove)

	t.Run("closed session", func(t *testing.T) {
		_, err := h.gov.SubmitVote(h.ctx, session.ID, "ft-3", governance.Ballot{Decision: governance.VoteApprove})
		assert.Equal(t, errors.ErrCodeSessionClosed, errors.CodeOf(err))
	})

	t.Run("duplicate after close still returns the vote", func(t *testing.T) {
		again := h.vote(session.ID, "ft-1", governance.VoteApprove)
		assert.Equal(t, first.ID, again.ID)
	})

	assert.Equal(t, 2, h.metrics.votes)
}

func TestCloseSessionIfThresholdMet(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session

	open, err := h.gov.CloseSessionIfThresholdMet(h.ctx, session.ID, admin)
	require.NoError(t, err)
	assert.True(t, open.IsOpen())

	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)

	first, err := h.gov.CloseSessionIfThresholdMet(h.ctx, session.ID, admin)
	require.NoError(t, err)
	second, err := h.gov.CloseSessionIfThresholdMet(h.ctx, session.ID, admin)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.metrics.closed[governance.OutcomeApproved])
}

func TestGetOrCreateVotingSession(t *testing.T) {
	h := newHarness(t)

	draft, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)
	_, err = h.gov.GetOrCreateVotingSession(h.ctx, draft.ID, submitter)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	session := h.submit(request(300_000, 2, "internal")).Routing.Session
	same, err := h.gov.GetOrCreateVotingSession(h.ctx, session.ProposalID, submitter)
	require.NoError(t, err)
	assert.Equal(t, session.ID, same.ID)
	assert.Equal(t, 1, h.metrics.opened[governance.PathwayFastTrack])
}

func TestGetOrCreateVotingSession_NoVoters(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.policy.RevokeCapability(h.ctx, "partner-1", "partner", admin))

	p, err := h.proposals.CreateProposal(h.ctx, request(10_000_000, 2, "internal"), submitter)
	require.NoError(t, err)
	_, err = h.proposals.SubmitProposal(h.ctx, p.ID, submitter)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	// the proposal stays submitted and can be routed once a partner exists
	assert.Equal(t, governance.StatusSubmitted, h.proposal(p.ID).Status)
	_, err = h.policy.GrantCapability(h.ctx, "partner-2", "partner", admin)
	require.NoError(t, err)
	res, err := h.gov.RouteProposal(h.ctx, p.ID, submitter)
	require.NoError(t, err)
	assert.Equal(t, []string{"partner-2"}, res.Session.EligibleVoters)
}

func TestComputeROI_MissingRates(t *testing.T) {
	h := newHarness(t, true)

	p, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	summary, err := h.gov.ComputeROI(h.ctx, p.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, governance.Money(0), summary.AnnualValue)
	assert.Equal(t, []string{"associate"}, summary.MissingGrades)
	assert.Equal(t, 1, h.metrics.missingRates["associate"])
}

func TestComputeROI_UsesRateTable(t *testing.T) {
	h := newHarness(t)
	p, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	summary, err := h.gov.ComputeROI(h.ctx, p.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, governance.Money(60_000), summary.WeeklyValue)
	assert.Equal(t, governance.Money(3_120_000), summary.AnnualValue)
	require.NotNil(t, summary.ROIPercent)
	assert.InDelta(t, 1040.0, *summary.ROIPercent, 0.0001)
	assert.Equal(t, "2026.1", summary.RateTableVersion)
}

func TestPinValuation_SurvivesRateChanges(t *testing.T) {
	h := newHarness(t)
	p, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	pinned, err := h.gov.PinValuation(h.ctx, p.ID, "board pack", admin, time.Time{})
	require.NoError(t, err)

	require.NoError(t, h.policy.SaveRateTable(h.ctx, &governance.RateTable{
		Version: "2026.2",
		Entries: []governance.RateEntry{{Grade: "associate", HourlyRate: 30_000, EffectiveFrom: rateDate}},
	}, admin))

	latest, err := h.stores.Valuations.Latest(h.ctx, p.ID, "")
	require.NoError(t, err)
	assert.Equal(t, pinned.Summary.AnnualValue, latest.Summary.AnnualValue)
	assert.Equal(t, "2026.1", latest.Rates.Version)

	fresh, err := h.gov.ComputeROI(h.ctx, p.ID, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2*pinned.Summary.AnnualValue, fresh.AnnualValue)
}

func TestGetAuditTrail(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session
	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)

	trail, err := h.gov.GetAuditTrail(h.ctx, session.ProposalID)
	require.NoError(t, err)

	var actions []string
	for _, e := range trail {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{
		"created", "submitted", "session_opened", "vote_cast", "vote_cast", "session_closed", "valuation_pinned",
	}, actions)

	_, err = h.gov.GetAuditTrail(h.ctx, "missing")
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestEvaluationQueries(t *testing.T) {
	h := newHarness(t)
	p, err := h.proposals.CreateProposal(h.ctx, request(2_000_000, 4, "confidential"), submitter)
	require.NoError(t, err)

	criteria, err := h.gov.EvaluateCriteria(h.ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, criteria.FastTrackEligible)

	tier, err := h.gov.ClassifyTier(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.TierFullOversight, tier)

	match, err := h.gov.MatchAutoApprovalRules(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, governance.EffectNone, match.Effect)
}

func TestRouteProposal_KeepsVotedDecision(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session
	h.vote(session.ID, "ft-1", governance.VoteReject)
	h.vote(session.ID, "ft-2", governance.VoteReject)

	_, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "everything", IsActive: true, AutoApprove: true}, admin)
	require.NoError(t, err)

	res, err := h.gov.RouteProposal(h.ctx, session.ProposalID, admin)
	require.NoError(t, err)
	assert.Nil(t, res.AutoDecision)
	require.NotNil(t, res.Session)
	assert.Equal(t, session.ID, res.Session.ID)
	assert.Equal(t, governance.OutcomeRejected, res.Session.Outcome)

	p := h.proposal(session.ProposalID)
	assert.Equal(t, governance.StatusRejected, p.Status)
	assert.Equal(t, governance.OversightRejected, p.OversightStatus)
	assert.Equal(t, 0, h.metrics.auto)

	_, err = h.gov.AutoDecide(h.ctx, p.ID, admin)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	// the store refuses on its own as well
	err = h.stores.AutoDecision.Record(h.ctx, &governance.AutoDecision{
		ProposalID: p.ID,
		Pathway:    governance.PathwayAutoApproved,
		Outcome:    governance.OversightApproved,
		DecidedBy:  admin,
		DecidedAt:  h.now,
	})
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	d, err := h.stores.AutoDecision.GetByProposalID(h.ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, governance.OversightRejected, h.proposal(p.ID).OversightStatus)
}

// submittedProposal creates a proposal and marks it submitted without
// routing it.
func (h *harness) submittedProposal(req *ProposalRequest) string {
	h.t.Helper()
	p, err := h.proposals.CreateProposal(h.ctx, req, submitter)
	require.NoError(h.t, err)
	require.NoError(h.t, h.stores.Proposals.MarkSubmitted(h.ctx, p.ID, h.now))
	return p.ID
}

func TestAutoDecide(t *testing.T) {
	h := newHarness(t)
	id := h.submittedProposal(request(50_000, 1, "public"))

	_, err := h.gov.AutoDecide(h.ctx, id, submitter)
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	_, err = h.gov.AutoDecide(h.ctx, id, admin)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err), "no rule matches")

	cheap, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "cheap", IsActive: true, MaxCost: int64Ptr(100_000), AutoApprove: true}, admin)
	require.NoError(t, err)
	freeze, err := h.policy.CreateRule(h.ctx, &RuleRequest{Name: "corporate freeze", IsActive: true, AllowedTeams: []string{"Corporate"}}, admin)
	require.NoError(t, err)

	_, err = h.gov.AutoDecide(h.ctx, id, admin)
	assert.Equal(t, errors.ErrCodeRuleConflict, errors.CodeOf(err))
	p := h.proposal(id)
	assert.Equal(t, governance.StatusSubmitted, p.Status)
	assert.Equal(t, governance.OversightPendingReview, p.OversightStatus)

	require.NoError(t, h.policy.DeleteRule(h.ctx, freeze.ID, admin))
	d, err := h.gov.AutoDecide(h.ctx, id, admin)
	require.NoError(t, err)
	assert.Equal(t, governance.PathwayAutoApproved, d.Pathway)
	assert.Equal(t, []string{cheap.ID}, d.MatchedRuleIDs)
	assert.Equal(t, governance.StatusApproved, h.proposal(id).Status)

	_, err = h.gov.AutoDecide(h.ctx, id, admin)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
}
