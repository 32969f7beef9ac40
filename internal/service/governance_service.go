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

// GovernanceService drives proposals from submission to a decision:
// valuation, criteria, tiering, auto-approval rules and voting sessions.
type GovernanceService struct {
	stores   Stores
	policy   governance.Policy
	notifier Notifier
	metrics  Recorder
	log      *logger.Logger
	now      func() time.Time
}

// NewGovernanceService creates a new GovernanceService. A nil notifier or
// recorder disables that concern.
func NewGovernanceService(
	stores Stores,
	policy governance.Policy,
	notifier Notifier,
	metrics Recorder,
	log *logger.Logger,
) *GovernanceService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if metrics == nil {
		metrics = NopRecorder{}
	}
	return &GovernanceService{
		stores:   stores,
		policy:   policy,
		notifier: notifier,
		metrics:  metrics,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the time source.
func (s *GovernanceService) WithClock(now func() time.Time) *GovernanceService {
	s.now = now
	return s
}

// Policy returns the active policy.
func (s *GovernanceService) Policy() governance.Policy {
	return s.policy
}

// RoutingResult describes how a proposal was routed.
type RoutingResult struct {
	Tier         governance.Tier                     `json:"tier"`
	Criteria     governance.CriteriaEvaluationResult `json:"criteria"`
	Rules        governance.RuleMatchResult          `json:"rules"`
	AutoDecision *governance.AutoDecision            `json:"auto_decision,omitempty"`
	Session      *governance.VotingSession           `json:"session,omitempty"`
}

// ── Valuation ────────────────────────────────────────────────────────────────

// ComputeROI values a proposal's time savings with the current rate table.
// A zero asOf means now. Grades without a rate are logged and counted, not
// rejected.
func (s *GovernanceService) ComputeROI(ctx context.Context, proposalID string, asOf time.Time) (*governance.ROISummary, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = s.now()
	}
	rates, err := s.stores.Rates.Current(ctx)
	if err != nil {
		return nil, err
	}
	return s.computeROI(p, rates, asOf)
}

func (s *GovernanceService) computeROI(p *governance.Proposal, rates *governance.RateTable, asOf time.Time) (*governance.ROISummary, error) {
	if rates == nil {
		s.log.Warn().Str("proposal_id", p.ID).Msg("No rate table loaded; time savings valued at zero")
	}
	summary, err := governance.ComputeROI(p.TimeSavings, rates, asOf, p.Cost)
	if err != nil {
		return nil, err
	}
	for _, grade := range summary.MissingGrades {
		s.metrics.MissingRate(grade)
		s.log.Warn().
			Str("proposal_id", p.ID).
			Str("staff_grade", grade).
			Time("as_of", asOf).
			Msg("No hourly rate for staff grade; contributes zero value")
	}
	return summary, nil
}

// PinValuation stores an ROI summary together with the exact rates used, so
// later rate changes cannot alter it. Ad-hoc pins need governance_admin and
// may not use the reason reserved for decision-time valuations.
func (s *GovernanceService) PinValuation(ctx context.Context, proposalID, reason, actor string, asOf time.Time) (*governance.Valuation, error) {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	switch {
	case reason == "":
		return nil, errors.InvalidInput("reason", "reason is required")
	case strings.EqualFold(reason, governance.ValuationReasonDecision):
		return nil, errors.InvalidInput("reason", "reason '"+governance.ValuationReasonDecision+"' is reserved for decision-time valuations")
	}

	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return s.pinValuation(ctx, p, reason, actor, asOf)
}

func (s *GovernanceService) pinValuation(ctx context.Context, p *governance.Proposal, reason, actor string, asOf time.Time) (*governance.Valuation, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	rates, err := s.stores.Rates.Current(ctx)
	if err != nil {
		return nil, err
	}
	snapshot := &governance.RateTable{}
	if rates != nil {
		snapshot = rates.Snapshot(asOf)
	}
	summary, err := s.computeROI(p, snapshot, asOf)
	if err != nil {
		return nil, err
	}

	v := &governance.Valuation{
		ProposalID: p.ID,
		Summary:    *summary,
		Rates:      snapshot,
		Reason:     reason,
		CreatedAt:  s.now(),
	}
	if err := s.stores.Valuations.Create(ctx, v); err != nil {
		return nil, err
	}

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:  p.ID,
		Action:      "valuation_pinned",
		PerformedBy: actor,
		Metadata: map[string]interface{}{
			"valuation_id":       v.ID,
			"reason":             reason,
			"annual_value":       summary.AnnualValue,
			"rate_table_version": snapshot.Version,
			"as_of":              asOf,
		},
	})
	return v, nil
}

// ── Evaluation ───────────────────────────────────────────────────────────────

// EvaluateCriteria runs the criteria battery against the proposal as stored.
func (s *GovernanceService) EvaluateCriteria(ctx context.Context, proposalID string) (governance.CriteriaEvaluationResult, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return governance.CriteriaEvaluationResult{}, err
	}
	return governance.EvaluateCriteria(p, s.policy.Thresholds), nil
}

// ClassifyTier places the stored proposal in a governance tier.
func (s *GovernanceService) ClassifyTier(ctx context.Context, proposalID string) (governance.Tier, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return "", err
	}
	return governance.ClassifyTier(p, s.policy.Thresholds), nil
}

// MatchAutoApprovalRules evaluates the active rules against the proposal.
func (s *GovernanceService) MatchAutoApprovalRules(ctx context.Context, proposalID string) (governance.RuleMatchResult, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return governance.RuleMatchResult{}, err
	}
	return s.matchRules(ctx, p)
}

func (s *GovernanceService) matchRules(ctx context.Context, p *governance.Proposal) (governance.RuleMatchResult, error) {
	rules, err := s.stores.Rules.List(ctx, true)
	if err != nil {
		return governance.RuleMatchResult{}, err
	}
	return governance.MatchAutoApprovalRules(p, rules), nil
}

// ── Routing ──────────────────────────────────────────────────────────────────

// RouteProposal sends a submitted proposal down its pathway: a rule-driven
// decision when exactly one rule effect matches, otherwise a voting session.
// Partner-tier proposals are never auto-decided. Routing an already routed
// proposal returns the existing decision or session.
func (s *GovernanceService) RouteProposal(ctx context.Context, proposalID, actor string) (*RoutingResult, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if p.Status == governance.StatusDraft {
		return nil, errors.New(errors.ErrCodeConflict, "proposal must be submitted before routing")
	}

	res := &RoutingResult{
		Tier:     governance.ClassifyTier(p, s.policy.Thresholds),
		Criteria: governance.EvaluateCriteria(p, s.policy.Thresholds),
		Rules:    governance.RuleMatchResult{Matches: []governance.RuleMatch{}, Effect: governance.EffectNone},
	}

	if d, err := s.stores.AutoDecision.GetByProposalID(ctx, p.ID); err != nil {
		return nil, err
	} else if d != nil {
		res.AutoDecision = d
		return res, nil
	}
	if open, err := s.stores.Voting.GetOpenSession(ctx, p.ID); err != nil {
		return nil, err
	} else if open != nil {
		res.Session = open
		return res, nil
	}
	if p.OversightStatus.Decided() {
		decided, err := s.decidingSession(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		res.Session = decided
		return res, nil
	}

	if res.Tier != governance.TierPartnerEscalation {
		if res.Rules, err = s.matchRules(ctx, p); err != nil {
			return nil, err
		}
	}

	switch res.Rules.Effect {
	case governance.EffectApprove, governance.EffectReject:
		d, err := s.applyAutoDecision(ctx, p, res.Rules, actor)
		if err == nil {
			res.AutoDecision = d
			return res, nil
		}
		if !errors.Is(err, errors.ErrCodeConflict) {
			return nil, err
		}
		// a session was opened concurrently; it owns the decision now
		open, oerr := s.stores.Voting.GetOpenSession(ctx, p.ID)
		if oerr != nil || open == nil {
			return nil, err
		}
		res.Session = open
		return res, nil

	case governance.EffectConflict:
		s.reportRuleConflict(ctx, p, res.Rules)
	}

	session, err := s.openSession(ctx, p, res.Tier, res.Criteria, res.Rules.Effect == governance.EffectConflict, actor)
	if err != nil {
		return nil, err
	}
	res.Session = session
	return res, nil
}

// AutoDecide applies the auto-approval rules to a submitted proposal that
// has no session or decision yet. It never falls back to a vote: disagreeing
// rules fail RULE_CONFLICT and no matching rule fails CONFLICT.
func (s *GovernanceService) AutoDecide(ctx context.Context, proposalID, actor string) (*governance.AutoDecision, error) {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return nil, err
	}
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	switch {
	case p.Status == governance.StatusDraft:
		return nil, errors.New(errors.ErrCodeConflict, "proposal must be submitted before routing")
	case governance.ClassifyTier(p, s.policy.Thresholds) == governance.TierPartnerEscalation:
		return nil, errors.New(errors.ErrCodeConflict, "partner-tier proposals are never auto-decided")
	}

	match, err := s.matchRules(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.applyAutoDecision(ctx, p, match, actor)
}

// decidingSession returns the most recent session that closed approved or
// rejected.
func (s *GovernanceService) decidingSession(ctx context.Context, proposalID string) (*governance.VotingSession, error) {
	sessions, err := s.stores.Voting.ListSessions(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	for i := len(sessions) - 1; i >= 0; i-- {
		if o := sessions[i].Outcome; o == governance.OutcomeApproved || o == governance.OutcomeRejected {
			return sessions[i], nil
		}
	}
	return nil, errors.New(errors.ErrCodeConflict, "proposal is already decided")
}

func (s *GovernanceService) applyAutoDecision(ctx context.Context, p *governance.Proposal, match governance.RuleMatchResult, actor string) (*governance.AutoDecision, error) {
	switch match.Effect {
	case governance.EffectConflict:
		return nil, errors.New(errors.ErrCodeRuleConflict, fmt.Sprintf(
			"auto-approval rules disagree (approving: %s; rejecting: %s)",
			strings.Join(match.RuleIDs(governance.EffectApprove), ", "),
			strings.Join(match.RuleIDs(governance.EffectReject), ", ")))
	case governance.EffectNone:
		return nil, errors.New(errors.ErrCodeConflict, "no active auto-approval rule matches the proposal")
	}

	d := &governance.AutoDecision{
		ProposalID:     p.ID,
		Pathway:        governance.PathwayAutoApproved,
		Outcome:        governance.OversightApproved,
		MatchedRuleIDs: match.RuleIDs(match.Effect),
		DecidedBy:      actor,
		DecidedAt:      s.now(),
	}
	if match.Effect == governance.EffectReject {
		d.Pathway = governance.PathwayAutoRejected
		d.Outcome = governance.OversightRejected
	}
	if err := s.stores.AutoDecision.Record(ctx, d); err != nil {
		return nil, err
	}

	s.metrics.AutoDecided(d.Outcome)
	s.log.Info().
		Str("proposal_id", p.ID).
		Str("outcome", string(d.Outcome)).
		Strs("rule_ids", d.MatchedRuleIDs).
		Msg("Proposal decided by auto-approval rule")

	before := string(p.OversightStatus)
	after := string(d.Outcome)
	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   p.ID,
		Action:       "auto_decided",
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
		Metadata: map[string]interface{}{
			"pathway":          string(d.Pathway),
			"matched_rule_ids": d.MatchedRuleIDs,
		},
	})
	s.pinDecisionValuation(ctx, p, actor)
	s.notifier.Notify(ctx, Event{
		Type:       EventAutoDecided,
		ProposalID: p.ID,
		ActorID:    actor,
		Recipients: []string{p.SubmittedBy},
		Payload: map[string]interface{}{
			"outcome":          string(d.Outcome),
			"pathway":          string(d.Pathway),
			"matched_rule_ids": d.MatchedRuleIDs,
		},
	})
	return d, nil
}

func (s *GovernanceService) reportRuleConflict(ctx context.Context, p *governance.Proposal, match governance.RuleMatchResult) {
	s.metrics.RuleConflict()
	s.log.Warn().
		Str("proposal_id", p.ID).
		Strs("approving_rules", match.RuleIDs(governance.EffectApprove)).
		Strs("rejecting_rules", match.RuleIDs(governance.EffectReject)).
		Msg("Auto-approval rules disagree; escalating to a partner")

	partners, err := s.stores.Capabilities.Holders(ctx, governance.CapabilityPartner)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not resolve partners for rule conflict notification")
		return
	}
	s.notifier.Notify(ctx, Event{
		Type:       EventRuleConflict,
		ProposalID: p.ID,
		Recipients: partners,
		Payload: map[string]interface{}{
			"approving_rules": match.RuleIDs(governance.EffectApprove),
			"rejecting_rules": match.RuleIDs(governance.EffectReject),
		},
	})
}

// ── Voting sessions ──────────────────────────────────────────────────────────

// GetOrCreateVotingSession returns the proposal's open session or opens one
// on the pathway its current evaluation selects.
func (s *GovernanceService) GetOrCreateVotingSession(ctx context.Context, proposalID, actor string) (*governance.VotingSession, error) {
	p, err := s.stores.Proposals.GetByID(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if open, err := s.stores.Voting.GetOpenSession(ctx, p.ID); err != nil || open != nil {
		return open, err
	}

	match, err := s.matchRules(ctx, p)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, p,
		governance.ClassifyTier(p, s.policy.Thresholds),
		governance.EvaluateCriteria(p, s.policy.Thresholds),
		match.Effect == governance.EffectConflict,
		actor)
}

func (s *GovernanceService) openSession(
	ctx context.Context,
	p *governance.Proposal,
	tier governance.Tier,
	criteria governance.CriteriaEvaluationResult,
	ruleConflict bool,
	actor string,
) (*governance.VotingSession, error) {
	switch {
	case p.Status == governance.StatusDraft:
		return nil, errors.New(errors.ErrCodeConflict, "proposal must be submitted before review")
	case p.OversightStatus.Decided():
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("proposal already decided (oversight status: %s)", p.OversightStatus))
	}

	sessions, err := s.stores.Voting.ListSessions(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	var previous *governance.VotingSession
	for _, prior := range sessions {
		if !prior.IsOpen() {
			previous = prior
		}
	}

	pathway := governance.SelectPathway(tier, criteria, previous, ruleConflict)
	capability, _ := governance.VoterCapability(pathway)
	voters, err := s.stores.Capabilities.Holders(ctx, capability)
	if err != nil {
		return nil, err
	}
	if len(voters) == 0 {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("no identities hold %s; cannot open a %s session", capability, pathway))
	}
	if pathway == governance.PathwayFullOversight && len(voters) != s.policy.Voting.FullOversightPanelSize {
		s.log.Warn().
			Int("panel_size", len(voters)).
			Int("expected", s.policy.Voting.FullOversightPanelSize).
			Msg("Oversight panel size differs from policy")
	}

	candidate := governance.NewVotingSession(p.ID, pathway, voters, criteria, actor, s.now(), s.policy.Voting)
	session, created, err := s.stores.Voting.CreateSessionIfNone(ctx, candidate)
	if err != nil {
		return nil, err
	}
	if !created {
		return session, nil
	}

	s.metrics.SessionOpened(pathway)
	s.log.Info().
		Str("proposal_id", p.ID).
		Str("session_id", session.ID).
		Str("pathway", string(pathway)).
		Str("tier", string(tier)).
		Int("eligible_voters", len(voters)).
		Msg("Voting session opened")

	before := string(p.OversightStatus)
	after := string(governance.OversightUnderReview)
	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   p.ID,
		SessionID:    &session.ID,
		Action:       "session_opened",
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
		Metadata: map[string]interface{}{
			"pathway":             string(pathway),
			"tier":                string(tier),
			"eligible_voters":     voters,
			"fast_track_eligible": criteria.FastTrackEligible,
			"rule_conflict":       ruleConflict,
		},
	})

	payload := map[string]interface{}{"pathway": string(pathway), "title": p.Title}
	if session.Deadline != nil {
		payload["deadline"] = session.Deadline.Format(time.RFC3339)
	}
	s.notifier.Notify(ctx, Event{
		Type:       EventVoteRequired,
		ProposalID: p.ID,
		SessionID:  session.ID,
		ActorID:    actor,
		Recipients: voters,
		Payload:    payload,
	})
	return session, nil
}

// GetSession returns a session by id.
func (s *GovernanceService) GetSession(ctx context.Context, sessionID string) (*governance.VotingSession, error) {
	return s.stores.Voting.GetSession(ctx, sessionID)
}

// ListSessions returns every session for a proposal.
func (s *GovernanceService) ListSessions(ctx context.Context, proposalID string) ([]*governance.VotingSession, error) {
	if _, err := s.stores.Proposals.GetByID(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.stores.Voting.ListSessions(ctx, proposalID)
}

// ListVotes returns a session's votes.
func (s *GovernanceService) ListVotes(ctx context.Context, sessionID string) ([]*governance.Vote, error) {
	if _, err := s.stores.Voting.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.stores.Voting.ListVotes(ctx, sessionID)
}

// SubmitVote records a ballot. Resubmitting an identical ballot returns the
// stored vote; a different ballot from the same voter fails ALREADY_VOTED.
func (s *GovernanceService) SubmitVote(ctx context.Context, sessionID, voterID string, ballot governance.Ballot) (*governance.Vote, error) {
	if voterID == "" {
		return nil, errors.InvalidInput("voter_id", "voter id is required")
	}
	ballot, err := ballot.Normalize()
	if err != nil {
		return nil, err
	}

	session, err := s.stores.Voting.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsEligible(voterID) {
		return nil, errors.New(errors.ErrCodeNotEligible,
			fmt.Sprintf("voter is not eligible for this %s session", session.Pathway))
	}

	p, err := s.stores.Proposals.GetByID(ctx, session.ProposalID)
	if err != nil {
		return nil, err
	}
	criteria := governance.EvaluateCriteria(p, s.policy.Thresholds)

	vote := &governance.Vote{
		SessionID:        session.ID,
		VoterID:          voterID,
		Decision:         ballot.Decision,
		Reason:           ballot.Reason,
		Conditions:       ballot.Conditions,
		Concerns:         ballot.Concerns,
		CriteriaSnapshot: criteria,
		CreatedAt:        s.now(),
	}
	res, err := s.stores.Voting.CastVote(ctx, vote, s.decider(criteria))
	if err != nil {
		return nil, err
	}
	if res.Duplicate {
		return res.Vote, nil
	}

	s.metrics.VoteCast(res.Session.Pathway, vote.Decision)
	s.log.Info().
		Str("proposal_id", p.ID).
		Str("session_id", session.ID).
		Str("voter_id", voterID).
		Str("decision", string(vote.Decision)).
		Msg("Vote recorded")

	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:  p.ID,
		SessionID:   &session.ID,
		Action:      "vote_cast",
		PerformedBy: voterID,
		Metadata: map[string]interface{}{
			"vote_id":    res.Vote.ID,
			"decision":   string(vote.Decision),
			"pathway":    string(res.Session.Pathway),
			"approvals":  res.Session.Tally.Approvals,
			"rejections": res.Session.Tally.Rejections,
		},
	})

	if res.Closed {
		s.afterClose(ctx, p, res.Session, voterID)
	}
	return res.Vote, nil
}

// CloseSessionIfThresholdMet re-tallies a session and closes it when a
// threshold is met. Calling it on a closed session returns it unchanged.
func (s *GovernanceService) CloseSessionIfThresholdMet(ctx context.Context, sessionID, actor string) (*governance.VotingSession, error) {
	session, err := s.stores.Voting.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsOpen() {
		return session, nil
	}
	p, err := s.stores.Proposals.GetByID(ctx, session.ProposalID)
	if err != nil {
		return nil, err
	}

	res, err := s.stores.Voting.CloseIfDecided(ctx, sessionID, s.now(), s.decider(governance.EvaluateCriteria(p, s.policy.Thresholds)))
	if err != nil {
		return nil, err
	}
	if res.Closed {
		s.afterClose(ctx, p, res.Session, actor)
	}
	return res.Session, nil
}

// decider binds the criteria evaluation current at the deciding vote.
func (s *GovernanceService) decider(criteria governance.CriteriaEvaluationResult) repository.DecideFunc {
	voting := s.policy.Voting
	return func(session *governance.VotingSession, tally governance.Tally) governance.Outcome {
		return governance.DecideOutcome(session, tally, criteria, voting)
	}
}

// afterClose runs the non-transactional follow-up of a close: audit,
// notification, a pinned valuation for decisions and a full oversight
// session after an escalation.
func (s *GovernanceService) afterClose(ctx context.Context, p *governance.Proposal, session *governance.VotingSession, actor string) {
	s.metrics.SessionClosed(session.Pathway, session.Outcome)
	s.log.Info().
		Str("proposal_id", p.ID).
		Str("session_id", session.ID).
		Str("outcome", string(session.Outcome)).
		Int("approvals", session.Tally.Approvals).
		Int("rejections", session.Tally.Rejections).
		Msg("Voting session closed")

	before := string(p.OversightStatus)
	after := string(governance.OversightStatusFor(session.Outcome))
	s.appendAudit(ctx, &repository.AuditEntry{
		ProposalID:   p.ID,
		SessionID:    &session.ID,
		Action:       "session_closed",
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
		Metadata: map[string]interface{}{
			"pathway": string(session.Pathway),
			"outcome": string(session.Outcome),
			"tally":   session.Tally,
		},
	})
	s.notifier.Notify(ctx, Event{
		Type:       EventSessionClosed,
		ProposalID: p.ID,
		SessionID:  session.ID,
		ActorID:    actor,
		Recipients: []string{p.SubmittedBy},
		Payload: map[string]interface{}{
			"outcome": string(session.Outcome),
			"pathway": string(session.Pathway),
		},
	})

	if session.Outcome != governance.OutcomeEscalated {
		s.pinDecisionValuation(ctx, p, actor)
		return
	}

	// the escalated session is closed, so the proposal is reloaded with its
	// under_review status and re-routed to full oversight
	fresh, err := s.stores.Proposals.GetByID(ctx, p.ID)
	if err != nil {
		s.log.Error().Err(err).Str("proposal_id", p.ID).Msg("Could not reload escalated proposal")
		return
	}
	if _, err := s.GetOrCreateVotingSession(ctx, fresh.ID, actor); err != nil {
		s.log.Error().Err(err).Str("proposal_id", p.ID).Msg("Could not open follow-up session after escalation")
	}
}

// pinDecisionValuation is best-effort; a decision stands without it.
func (s *GovernanceService) pinDecisionValuation(ctx context.Context, p *governance.Proposal, actor string) {
	if _, err := s.pinValuation(ctx, p, governance.ValuationReasonDecision, actor, time.Time{}); err != nil {
		s.log.Warn().Err(err).Str("proposal_id", p.ID).Msg("Failed to pin decision valuation")
	}
}

// ── Audit ────────────────────────────────────────────────────────────────────

// GetAuditTrail returns the audit log for a proposal, oldest first.
func (s *GovernanceService) GetAuditTrail(ctx context.Context, proposalID string) ([]*repository.AuditEntry, error) {
	if _, err := s.stores.Proposals.GetByID(ctx, proposalID); err != nil {
		return nil, err
	}
	return s.stores.Audit.ListByProposal(ctx, proposalID)
}

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func (s *GovernanceService) appendAudit(ctx context.Context, entry *repository.AuditEntry) {
	appendAudit(ctx, s.stores.Audit, s.log, entry)
}
