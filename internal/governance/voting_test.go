package governance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
)

func votes(decisions ...VoteDecision) []*Vote {
	out := make([]*Vote, len(decisions))
	for i, d := range decisions {
		out[i] = &Vote{Decision: d}
	}
	return out
}

func TestCountVotes(t *testing.T) {
	tally := CountVotes(votes(VoteApprove, VoteApprove, VoteReject, VoteAbstain, VoteDefer))
	assert.Equal(t, Tally{Approvals: 2, Rejections: 1, Abstentions: 1, Deferrals: 1, Total: 5}, tally)
}

func TestSelectPathway(t *testing.T) {
	eligible := CriteriaEvaluationResult{FastTrackEligible: true, AllCriteriaMet: true}
	ineligible := CriteriaEvaluationResult{}
	escalated := &VotingSession{Outcome: OutcomeEscalated}

	assert.Equal(t, PathwayFastTrack, SelectPathway(TierFastTrack, eligible, nil, false))
	assert.Equal(t, PathwayFullOversight, SelectPathway(TierFullOversight, ineligible, nil, false))
	assert.Equal(t, PathwayFullOversight, SelectPathway(TierFastTrack, eligible, escalated, false))
	assert.Equal(t, PathwayPartnerEscalation, SelectPathway(TierPartnerEscalation, eligible, nil, false))
	assert.Equal(t, PathwayPartnerEscalation, SelectPathway(TierFastTrack, eligible, nil, true))
}

func TestDecideOutcome_FastTrack(t *testing.T) {
	policy := DefaultPolicy().Voting
	session := &VotingSession{Pathway: PathwayFastTrack, EligibleVoters: []string{"a", "b", "c", "d"}}
	met := CriteriaEvaluationResult{AllCriteriaMet: true, FastTrackEligible: true}
	unmet := CriteriaEvaluationResult{FastTrackEligible: true}

	tests := []struct {
		name     string
		votes    []*Vote
		criteria CriteriaEvaluationResult
		want     Outcome
	}{
		{"one approval stays open", votes(VoteApprove), met, OutcomeNone},
		{"two approvals with criteria met", votes(VoteApprove, VoteApprove), met, OutcomeApproved},
		{"two approvals without criteria", votes(VoteApprove, VoteApprove), unmet, OutcomeNone},
		{"three approvals override criteria", votes(VoteApprove, VoteApprove, VoteApprove), unmet, OutcomeApproved},
		{"two rejections", votes(VoteReject, VoteApprove, VoteReject), met, OutcomeRejected},
		{"everyone voted without decision", votes(VoteApprove, VoteReject, VoteAbstain, VoteDefer), met, OutcomeEscalated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecideOutcome(session, CountVotes(tt.votes), tt.criteria, policy))
		})
	}
}

func TestDecideOutcome_FullOversight(t *testing.T) {
	policy := DefaultPolicy().Voting
	session := &VotingSession{Pathway: PathwayFullOversight, EligibleVoters: []string{"a", "b", "c", "d", "e"}}
	none := CriteriaEvaluationResult{}

	assert.Equal(t, OutcomeApproved, DecideOutcome(session, CountVotes(votes(VoteApprove, VoteApprove, VoteApprove)), none, policy))
	assert.Equal(t, OutcomeRejected, DecideOutcome(session, CountVotes(votes(VoteReject, VoteReject, VoteReject)), none, policy))
	assert.Equal(t, OutcomeNone, DecideOutcome(session, CountVotes(votes(VoteApprove, VoteApprove, VoteReject, VoteReject)), none, policy))
	assert.Equal(t, OutcomeNone, DecideOutcome(session, CountVotes(votes(VoteApprove, VoteApprove, VoteReject, VoteReject, VoteAbstain)), none, policy))
}

func TestDecideOutcome_PartnerEscalation(t *testing.T) {
	policy := DefaultPolicy().Voting
	session := &VotingSession{Pathway: PathwayPartnerEscalation, EligibleVoters: []string{"partner-1"}}

	assert.Equal(t, OutcomeApproved, DecideOutcome(session, CountVotes(votes(VoteApprove)), CriteriaEvaluationResult{}, policy))
	assert.Equal(t, OutcomeRejected, DecideOutcome(session, CountVotes(votes(VoteReject)), CriteriaEvaluationResult{}, policy))
	assert.Equal(t, OutcomeNone, DecideOutcome(session, CountVotes(votes(VoteAbstain)), CriteriaEvaluationResult{}, policy))
}

func TestNewVotingSession(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	policy := DefaultPolicy().Voting
	voters := []string{"a", "b"}

	s := NewVotingSession("p-1", PathwayFullOversight, voters, CriteriaEvaluationResult{}, "creator", now, policy)
	require.NotNil(t, s.Deadline)
	assert.Equal(t, now.Add(5*24*time.Hour), *s.Deadline)
	assert.True(t, s.IsOpen())
	assert.True(t, s.IsEligible("a"))
	assert.False(t, s.IsEligible("z"))

	voters[0] = "changed"
	assert.Equal(t, []string{"a", "b"}, s.EligibleVoters)

	ft := NewVotingSession("p-1", PathwayFastTrack, voters, CriteriaEvaluationResult{FastTrackEligible: true}, "creator", now, policy)
	assert.Nil(t, ft.Deadline)
	assert.True(t, ft.FastTrackEligible)
}

func TestBallot_Normalize(t *testing.T) {
	t.Run("approve keeps conditions", func(t *testing.T) {
		b, err := Ballot{Decision: " Approve ", Conditions: "pilot only"}.Normalize()
		require.NoError(t, err)
		assert.Equal(t, VoteApprove, b.Decision)
		assert.Equal(t, "pilot only", b.Conditions)
	})

	t.Run("conditions dropped on abstain", func(t *testing.T) {
		b, err := Ballot{Decision: VoteAbstain, Conditions: "ignored"}.Normalize()
		require.NoError(t, err)
		assert.Empty(t, b.Conditions)
	})

	t.Run("reject needs a reason", func(t *testing.T) {
		_, err := Ballot{Decision: VoteReject}.Normalize()
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	})

	t.Run("unknown decision", func(t *testing.T) {
		_, err := Ballot{Decision: "maybe"}.Normalize()
		assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	})
}
