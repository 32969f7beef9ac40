package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

const proposalJSON = `{
	"title": "Contract summariser",
	"problem": "Associates spend hours reading contracts",
	"solution": "Summarise contracts with an LLM",
	"team": "Corporate",
	"cost": 300000,
	"risk_score": 2,
	"data_classification": "internal",
	"time_savings": [{"staff_grade": "associate", "hours_per_week": 4}]
}`

type httpClient struct {
	t      *testing.T
	server *httptest.Server
}

func newHTTPClient(t *testing.T) *httpClient {
	e := newEnv(t)
	mux := http.NewServeMux()
	NewHTTPHandler(e.gov, e.proposals, e.policy, e.reviews, logger.Nop()).Routes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &httpClient{t: t, server: server}
}

// do sends body as JSON and decodes the response into out when it is set.
func (c *httpClient) do(method, path, user, body string, out interface{}) int {
	c.t.Helper()
	req, err := http.NewRequest(method, c.server.URL+path, bytes.NewBufferString(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	resp, err := c.server.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHTTP_ProposalLifecycle(t *testing.T) {
	c := newHTTPClient(t)

	var p governance.Proposal
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/proposals", "alice", proposalJSON, &p))
	assert.Equal(t, governance.StatusDraft, p.Status)
	assert.Equal(t, "alice", p.SubmittedBy)

	var roi governance.ROISummary
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/proposals/"+p.ID+"/roi?as_of=2026-03-01", "", "", &roi))
	assert.Equal(t, governance.Money(3_120_000), roi.AnnualValue)

	var tier governance.TierInfo
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/proposals/"+p.ID+"/tier", "", "", &tier))
	assert.Equal(t, governance.TierFastTrack, tier.Tier)

	var submitted service.SubmitResult
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/submit", "alice", "", &submitted))
	require.NotNil(t, submitted.Routing.Session)
	session := submitted.Routing.Session
	assert.Equal(t, governance.PathwayFastTrack, session.Pathway)

	ballot := `{"decision": "approve", "reason": "clear savings"}`
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/votes", "ft-1", ballot, nil))
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/votes", "ft-2", ballot, nil))

	var closed governance.VotingSession
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/sessions/"+session.ID, "", "", &closed))
	assert.Equal(t, governance.OutcomeApproved, closed.Outcome)

	var late errors.Error
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/sessions/"+session.ID+"/votes", "ft-3", ballot, &late))
	assert.Equal(t, errors.ErrCodeSessionClosed, late.Code)

	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/start", "alice", "", &p))
	assert.Equal(t, governance.StatusInProgress, p.Status)

	var review governance.ImplementationReview
	reviewJSON := `{"review_type": "90_day", "actual_annual_value": 3000000, "actual_cost": 300000, "recommendation": "continue"}`
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/reviews", "alice", reviewJSON, &review))
	assert.Equal(t, governance.Money(3_120_000), review.ProjectedAnnualValue)

	var audit struct {
		Entries []map[string]interface{} `json:"entries"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/proposals/"+p.ID+"/audit", "", "", &audit))
	assert.NotEmpty(t, audit.Entries)
	assert.Equal(t, "created", audit.Entries[0]["action"])
}

func TestHTTP_Errors(t *testing.T) {
	c := newHTTPClient(t)

	t.Run("missing identity", func(t *testing.T) {
		var body errors.Error
		assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodPost, "/api/v1/proposals", "", proposalJSON, &body))
		assert.Equal(t, errors.ErrCodeUnauthorized, body.Code)
	})

	t.Run("validation lists every field", func(t *testing.T) {
		var body errors.Error
		status := c.do(http.MethodPost, "/api/v1/proposals", "alice", `{"risk_score": 9, "cost": -1}`, &body)
		assert.Equal(t, http.StatusBadRequest, status)
		assert.Equal(t, errors.ErrCodeInvalidInput, body.Code)
		fields := make([]string, 0, len(body.Fields))
		for _, f := range body.Fields {
			fields = append(fields, f.Field)
		}
		assert.Subset(t, fields, []string{"title", "team", "cost", "risk_score"})
	})

	t.Run("malformed body", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/v1/proposals", "alice", "{", nil))
	})

	t.Run("unknown proposal", func(t *testing.T) {
		var body errors.Error
		assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/v1/proposals/missing", "", "", &body))
		assert.Equal(t, errors.ErrCodeNotFound, body.Code)
	})

	t.Run("bad as_of", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, c.do(http.MethodGet, "/api/v1/proposals/x/roi?as_of=yesterday", "", "", nil))
	})

	t.Run("rules need admin", func(t *testing.T) {
		rule := `{"name": "small internal tools", "is_active": true, "max_cost": 50000, "auto_approve": true}`
		var body errors.Error
		assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/api/v1/rules", "alice", rule, &body))
		assert.Equal(t, errors.ErrCodeUnauthorized, body.Code)

		var created governance.AutoApprovalRule
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/rules", "admin-1", rule, &created))
		assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/rules/"+created.ID, "admin-1", "", nil))
	})

	t.Run("not an eligible voter", func(t *testing.T) {
		var p governance.Proposal
		require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/proposals", "bob", proposalJSON, &p))
		var submitted service.SubmitResult
		require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/submit", "bob", "", &submitted))
		require.NotNil(t, submitted.Routing.Session)

		var body errors.Error
		status := c.do(http.MethodPost, "/api/v1/sessions/"+submitted.Routing.Session.ID+"/votes", "mallory",
			`{"decision": "approve"}`, &body)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, errors.ErrCodeNotEligible, body.Code)
	})
}

func TestHTTP_AutoDecision(t *testing.T) {
	c := newHTTPClient(t)

	var p governance.Proposal
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/proposals", "alice", proposalJSON, &p))

	var body errors.Error
	assert.Equal(t, http.StatusForbidden, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/auto-decision", "alice", "", &body))
	assert.Equal(t, errors.ErrCodeUnauthorized, body.Code)

	body = errors.Error{}
	assert.Equal(t, http.StatusConflict, c.do(http.MethodPost, "/api/v1/proposals/"+p.ID+"/auto-decision", "admin-1", "", &body))
	assert.Equal(t, errors.ErrCodeConflict, body.Code)
}

func TestHTTP_Grants(t *testing.T) {
	c := newHTTPClient(t)

	grant := `{"identity": "ft-4", "capability": "fast_track_voter"}`
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/v1/grants", "admin-1", grant, nil))

	var list struct {
		Grants []map[string]interface{} `json:"grants"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/v1/grants", "", "", &list))
	assert.Len(t, list.Grants, 5)

	assert.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/v1/grants/ft-4/fast_track_voter", "admin-1", "", nil))
	assert.Equal(t, http.StatusConflict, c.do(http.MethodDelete, "/api/v1/grants/admin-1/governance_admin", "admin-1", "", nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[errors.ErrorCode]int{
		errors.ErrCodeInvalidInput:  http.StatusBadRequest,
		errors.ErrCodeNotFound:      http.StatusNotFound,
		errors.ErrCodeAlreadyVoted:  http.StatusConflict,
		errors.ErrCodeRuleConflict:  http.StatusConflict,
		errors.ErrCodeNotEligible:   http.StatusForbidden,
		errors.ErrCodeUnauthorized:  http.StatusForbidden,
		errors.ErrCodeInternal:      http.StatusInternalServerError,
		errors.ErrorCode("UNKNOWN"): http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, httpStatus(code), code)
	}
}
