package governance

import (
	"strings"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
)

// Tally is the running count of a session's votes.
type Tally struct {
	Approvals   int `json:"approvals"`
	Rejections  int `json:"rejections"`
	Abstentions int `json:"abstentions"`
	Deferrals   int `json:"deferrals"`
	Total       int `json:"total"`
}

// CountVotes tallies votes by decision.
func CountVotes(votes []*Vote) Tally {
	var t Tally
	for _, v := range votes {
		switch v.Decision {
		case VoteApprove:
			t.Approvals++
		case VoteReject:
			t.Rejections++
		case VoteAbstain:
			t.Abstentions++
		case VoteDefer:
			t.Deferrals++
		}
		t.Total++
	}
	return t
}

// SelectPathway picks the review route for a new session. previous is the
// most recent closed session for the proposal, if any.
func SelectPathway(tier Tier, criteria CriteriaEvaluationResult, previous *VotingSession, ruleConflict bool) Pathway {
	switch {
	case tier == TierPartnerEscalation || ruleConflict:
		return PathwayPartnerEscalation
	case previous != nil && previous.Outcome == OutcomeEscalated:
		return PathwayFullOversight
	case criteria.FastTrackEligible:
		return PathwayFastTrack
	default:
		return PathwayFullOversight
	}
}

// VoterCapability is the grant a voter needs on a pathway.
func VoterCapability(p Pathway) (Capability, bool) {
	switch p {
	case PathwayFastTrack:
		return CapabilityFastTrackVoter, true
	case PathwayFullOversight:
		return CapabilityOversightMember, true
	case PathwayPartnerEscalation:
		return CapabilityPartner, true
	}
	return "", false
}

// NewVotingSession builds an open session. Only full oversight carries a
// deadline, and it is advisory.
func NewVotingSession(proposalID string, pathway Pathway, eligible []string, criteria CriteriaEvaluationResult, createdBy string, now time.Time, policy VotingPolicy) *VotingSession {
	s := &VotingSession{
		ProposalID:        proposalID,
		Pathway:           pathway,
		EligibleVoters:    append([]string(nil), eligible...),
		FastTrackEligible: criteria.FastTrackEligible,
		CreatedBy:         createdBy,
		CreatedAt:         now,
	}
	if pathway == PathwayFullOversight {
		deadline := now.Add(policy.FullOversightDeadline)
		s.Deadline = &deadline
	}
	return s
}

// DecideOutcome applies the pathway's threshold arithmetic to a tally.
// criteria is the evaluation current at the time of the deciding vote.
// OutcomeNone means the session stays open.
func DecideOutcome(s *VotingSession, t Tally, criteria CriteriaEvaluationResult, policy VotingPolicy) Outcome {
	switch s.Pathway {
	case PathwayFastTrack:
		if (t.Approvals >= policy.FastTrackApprovals && criteria.AllCriteriaMet) || t.Approvals >= policy.FastTrackUnanimous {
			return OutcomeApproved
		}
		if t.Rejections >= policy.FastTrackRejections {
			return OutcomeRejected
		}
		if len(s.EligibleVoters) > 0 && t.Total >= len(s.EligibleVoters) {
			return OutcomeEscalated
		}
	case PathwayFullOversight:
		if t.Approvals >= policy.FullOversightApprovals {
			return OutcomeApproved
		}
		if t.Rejections >= policy.FullOversightRejections {
			return OutcomeRejected
		}
	case PathwayPartnerEscalation:
		if t.Approvals > 0 {
			return OutcomeApproved
		}
		if t.Rejections > 0 {
			return OutcomeRejected
		}
	}
	return OutcomeNone
}

// OversightStatusFor maps a session outcome onto the proposal.
func OversightStatusFor(o Outcome) OversightStatus {
	switch o {
	case OutcomeApproved:
		return OversightApproved
	case OutcomeRejected:
		return OversightRejected
	default:
		return OversightUnderReview
	}
}

// LifecycleStatusFor maps a session outcome onto the proposal lifecycle.
func LifecycleStatusFor(o Outcome) LifecycleStatus {
	switch o {
	case OutcomeApproved:
		return StatusApproved
	case OutcomeRejected:
		return StatusRejected
	default:
		return StatusUnderReview
	}
}

// Ballot is an unvalidated vote submission.
type Ballot struct {
	Decision   VoteDecision `json:"decision"`
	Reason     string       `json:"reason"`
	Conditions string       `json:"conditions,omitempty"`
	Concerns   string       `json:"concerns,omitempty"`
}

// Normalize validates b and drops conditions on non-approve ballots.
func (b Ballot) Normalize() (Ballot, error) {
	var v errors.Validation
	b.Decision = VoteDecision(strings.ToLower(strings.TrimSpace(string(b.Decision))))
	b.Reason = strings.TrimSpace(b.Reason)
	b.Conditions = strings.TrimSpace(b.Conditions)
	b.Concerns = strings.TrimSpace(b.Concerns)

	if b.Decision == "" {
		v.Add("decision", "decision is required")
	} else if !b.Decision.Valid() {
		v.Add("decision", "decision must be one of approve, reject, abstain, defer")
	}
	if b.Decision == VoteReject && b.Reason == "" {
		v.Add("reason", "a reason is required when rejecting")
	}
	if err := v.Err(); err != nil {
		return Ballot{}, err
	}
	if b.Decision != VoteApprove {
		b.Conditions = ""
	}
	return b, nil
}
