package service

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

func TestCreateProposal(t *testing.T) {
	h := newHarness(t)

	req := request(300_000, 2, "Internal")
	req.TimeSavings = []governance.TimeSavingEntry{{StaffGrade: " Associate ", HoursPerWeek: 4}}
	req.EscalationTriggers = []string{"  ", "client data"}

	p, err := h.proposals.CreateProposal(h.ctx, req, submitter)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, governance.StatusDraft, p.Status)
	assert.Equal(t, governance.OversightNotRequired, p.OversightStatus)
	assert.Equal(t, submitter, p.SubmittedBy)
	assert.Equal(t, governance.ClassificationInternal, *p.DataClassification)
	assert.Equal(t, "associate", p.TimeSavings[0].StaffGrade)
	assert.Equal(t, []string{"client data"}, p.EscalationTriggers)
}

func TestCreateProposal_ValidationCollectsEveryField(t *testing.T) {
	h := newHarness(t)

	req := request(-1, 7, "secret")
	req.Title = " "
	req.TimeSavings = []governance.TimeSavingEntry{{StaffGrade: "intern", HoursPerWeek: -2}}

	_, err := h.proposals.CreateProposal(h.ctx, req, submitter)
	require.Error(t, err)

	var e *errors.Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, errors.ErrCodeInvalidInput, e.Code)

	var fields []string
	for _, f := range e.Fields {
		fields = append(fields, f.Field)
	}
	assert.ElementsMatch(t, []string{
		"title",
		"cost",
		"risk_score",
		"data_classification",
		"time_savings[0].staff_grade",
		"time_savings[0].hours_per_week",
	}, fields)

	list, err := h.proposals.ListProposals(h.ctx, repository.ProposalFilter{}, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is written when validation fails")
}

func TestCreateProposal_RequiresSubmitter(t *testing.T) {
	h := newHarness(t)
	_, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), "")
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.CodeOf(err))
}

func TestUpdateProposal(t *testing.T) {
	h := newHarness(t)
	p, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	t.Run("other identities cannot edit", func(t *testing.T) {
		_, err := h.proposals.UpdateProposal(h.ctx, p.ID, request(100, 1, "public"), "mallory")
		assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))
	})

	t.Run("submitter edits a draft", func(t *testing.T) {
		updated, err := h.proposals.UpdateProposal(h.ctx, p.ID, request(100, 1, "public"), submitter)
		require.NoError(t, err)
		assert.Equal(t, int64(100), *updated.Cost)
		assert.Equal(t, submitter, updated.SubmittedBy)
		assert.Equal(t, governance.StatusDraft, updated.Status)
	})

	_, err = h.proposals.SubmitProposal(h.ctx, p.ID, submitter)
	require.NoError(t, err)

	t.Run("submitted proposals are frozen", func(t *testing.T) {
		_, err := h.proposals.UpdateProposal(h.ctx, p.ID, request(100, 1, "public"), submitter)
		assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))
	})
}

func TestSubmitProposal_Guards(t *testing.T) {
	h := newHarness(t)
	p, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
	require.NoError(t, err)

	_, err = h.proposals.SubmitProposal(h.ctx, p.ID, "mallory")
	assert.Equal(t, errors.ErrCodeUnauthorized, errors.CodeOf(err))

	res, err := h.proposals.SubmitProposal(h.ctx, p.ID, submitter)
	require.NoError(t, err)
	require.NotNil(t, res.Proposal.SubmittedAt)
	assert.Equal(t, startTime, *res.Proposal.SubmittedAt)

	_, err = h.proposals.SubmitProposal(h.ctx, p.ID, submitter)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	assert.Len(t, h.notifier.ofType(EventProposalSubmitted), 1)
}

func TestListProposals(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		_, err := h.proposals.CreateProposal(h.ctx, request(300_000, 2, "internal"), submitter)
		require.NoError(t, err)
	}
	other := request(300_000, 2, "internal")
	other.Team = "Litigation"
	_, err := h.proposals.CreateProposal(h.ctx, other, submitter)
	require.NoError(t, err)

	all, err := h.proposals.ListProposals(h.ctx, repository.ProposalFilter{}, 1, 50)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	page, err := h.proposals.ListProposals(h.ctx, repository.ProposalFilter{}, 2, 3)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	team, err := h.proposals.ListProposals(h.ctx, repository.ProposalFilter{Team: "litigation"}, 1, 50)
	require.NoError(t, err)
	require.Len(t, team, 1)
	assert.Equal(t, "Litigation", team[0].Team)
}

func TestImplementationLifecycle(t *testing.T) {
	h := newHarness(t)
	session := h.submit(request(300_000, 2, "internal")).Routing.Session
	id := session.ProposalID

	_, err := h.proposals.StartImplementation(h.ctx, id, submitter)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err), "not approved yet")

	h.vote(session.ID, "ft-1", governance.VoteApprove)
	h.vote(session.ID, "ft-2", governance.VoteApprove)

	_, err = h.proposals.CompleteImplementation(h.ctx, id, submitter)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	p, err := h.proposals.StartImplementation(h.ctx, id, submitter)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusInProgress, p.Status)
	assert.Equal(t, governance.OversightApproved, p.OversightStatus)

	p, err = h.proposals.CompleteImplementation(h.ctx, id, submitter)
	require.NoError(t, err)
	assert.Equal(t, governance.StatusCompleted, p.Status)
}
