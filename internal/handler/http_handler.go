package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/common/middleware"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

// UserIDHeader carries the caller's identity. Authentication happens
// upstream; this service trusts the header.
const UserIDHeader = "X-User-ID"

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	governance *service.GovernanceService
	proposals  *service.ProposalService
	policy     *service.PolicyService
	reviews    *service.ReviewService
	log        *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(
	gov *service.GovernanceService,
	proposals *service.ProposalService,
	policy *service.PolicyService,
	reviews *service.ReviewService,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		governance: gov,
		proposals:  proposals,
		policy:     policy,
		reviews:    reviews,
		log:        log,
	}
}

// Routes registers every endpoint on mux.
func (h *HTTPHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/proposals", h.CreateProposal)
	mux.HandleFunc("GET /api/v1/proposals", h.ListProposals)
	mux.HandleFunc("GET /api/v1/proposals/{id}", h.GetProposal)
	mux.HandleFunc("PUT /api/v1/proposals/{id}", h.UpdateProposal)
	mux.HandleFunc("POST /api/v1/proposals/{id}/submit", h.SubmitProposal)
	mux.HandleFunc("POST /api/v1/proposals/{id}/route", h.RouteProposal)
	mux.HandleFunc("POST /api/v1/proposals/{id}/start", h.StartImplementation)
	mux.HandleFunc("POST /api/v1/proposals/{id}/complete", h.CompleteImplementation)
	mux.HandleFunc("GET /api/v1/proposals/{id}/roi", h.ComputeROI)
	mux.HandleFunc("GET /api/v1/proposals/{id}/criteria", h.EvaluateCriteria)
	mux.HandleFunc("GET /api/v1/proposals/{id}/tier", h.ClassifyTier)
	mux.HandleFunc("GET /api/v1/proposals/{id}/rule-matches", h.MatchAutoApprovalRules)
	mux.HandleFunc("POST /api/v1/proposals/{id}/valuations", h.PinValuation)
	mux.HandleFunc("POST /api/v1/proposals/{id}/auto-decision", h.AutoDecide)
	mux.HandleFunc("POST /api/v1/proposals/{id}/session", h.GetOrCreateVotingSession)
	mux.HandleFunc("GET /api/v1/proposals/{id}/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/proposals/{id}/audit", h.GetAuditTrail)
	mux.HandleFunc("POST /api/v1/proposals/{id}/reviews", h.RecordReview)
	mux.HandleFunc("GET /api/v1/proposals/{id}/reviews", h.ListReviews)

	mux.HandleFunc("GET /api/v1/sessions/{id}", h.GetSession)
	mux.HandleFunc("GET /api/v1/sessions/{id}/votes", h.ListVotes)
	mux.HandleFunc("POST /api/v1/sessions/{id}/votes", h.SubmitVote)
	mux.HandleFunc("POST /api/v1/sessions/{id}/close", h.CloseSession)

	mux.HandleFunc("GET /api/v1/reviews/trend", h.EstimationTrend)

	mux.HandleFunc("GET /api/v1/rules", h.ListRules)
	mux.HandleFunc("POST /api/v1/rules", h.CreateRule)
	mux.HandleFunc("GET /api/v1/rules/{id}", h.GetRule)
	mux.HandleFunc("PUT /api/v1/rules/{id}", h.UpdateRule)
	mux.HandleFunc("DELETE /api/v1/rules/{id}", h.DeleteRule)

	mux.HandleFunc("GET /api/v1/grants", h.ListGrants)
	mux.HandleFunc("POST /api/v1/grants", h.GrantCapability)
	mux.HandleFunc("DELETE /api/v1/grants/{identity}/{capability}", h.RevokeCapability)

	mux.HandleFunc("GET /api/v1/rates/current", h.CurrentRateTable)
	mux.HandleFunc("PUT /api/v1/rates/current", h.SaveRateTable)
}

// ── Proposals ────────────────────────────────────────────────────────────────

// CreateProposal handles create proposal HTTP requests
func (h *HTTPHandler) CreateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req service.ProposalRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.CreateProposal(r.Context(), &req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// GetProposal handles get proposal HTTP requests
func (h *HTTPHandler) GetProposal(w http.ResponseWriter, r *http.Request) {
	p, err := h.proposals.GetProposal(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ListProposals handles list proposals HTTP requests
func (h *HTTPHandler) ListProposals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ProposalFilter{
		Status:          governance.LifecycleStatus(q.Get("status")),
		OversightStatus: governance.OversightStatus(q.Get("oversight_status")),
		Team:            q.Get("team"),
	}
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))

	proposals, err := h.proposals.ListProposals(r.Context(), filter, page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if proposals == nil {
		proposals = []*governance.Proposal{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"proposals": proposals})
}

// UpdateProposal handles update proposal HTTP requests
func (h *HTTPHandler) UpdateProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req service.ProposalRequest
	if !h.decode(w, r, &req) {
		return
	}

	p, err := h.proposals.UpdateProposal(r.Context(), r.PathValue("id"), &req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// SubmitProposal handles submit proposal HTTP requests
func (h *HTTPHandler) SubmitProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	result, err := h.proposals.SubmitProposal(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// RouteProposal re-routes a submitted proposal whose first routing failed.
func (h *HTTPHandler) RouteProposal(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	result, err := h.governance.RouteProposal(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) StartImplementation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	p, err := h.proposals.StartImplementation(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

func (h *HTTPHandler) CompleteImplementation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	p, err := h.proposals.CompleteImplementation(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// ── Decision engine ──────────────────────────────────────────────────────────

// ComputeROI handles ROI HTTP requests. The optional as_of query parameter
// selects which rates apply.
func (h *HTTPHandler) ComputeROI(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	summary, err := h.governance.ComputeROI(r.Context(), r.PathValue("id"), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *HTTPHandler) EvaluateCriteria(w http.ResponseWriter, r *http.Request) {
	result, err := h.governance.EvaluateCriteria(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) ClassifyTier(w http.ResponseWriter, r *http.Request) {
	tier, err := h.governance.ClassifyTier(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, tier.Info())
}

func (h *HTTPHandler) MatchAutoApprovalRules(w http.ResponseWriter, r *http.Request) {
	result, err := h.governance.MatchAutoApprovalRules(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// PinValuation stores the current ROI as a dated valuation.
func (h *HTTPHandler) PinValuation(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}

	v, err := h.governance.PinValuation(r.Context(), r.PathValue("id"), req.Reason, actor, asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, v)
}

// AutoDecide records a rule-driven decision without opening a session.
func (h *HTTPHandler) AutoDecide(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	d, err := h.governance.AutoDecide(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, d)
}

func (h *HTTPHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	entries, err := h.governance.GetAuditTrail(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*repository.AuditEntry{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// ── Voting ───────────────────────────────────────────────────────────────────

// GetOrCreateVotingSession returns the open session for a proposal, opening
// one when none exists.
func (h *HTTPHandler) GetOrCreateVotingSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	session, err := h.governance.GetOrCreateVotingSession(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *HTTPHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.governance.ListSessions(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*governance.VotingSession{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.governance.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *HTTPHandler) ListVotes(w http.ResponseWriter, r *http.Request) {
	votes, err := h.governance.ListVotes(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if votes == nil {
		votes = []*governance.Vote{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"votes": votes})
}

// SubmitVote records the caller's ballot. The session closes itself when the
// ballot settles the outcome.
func (h *HTTPHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var ballot governance.Ballot
	if !h.decode(w, r, &ballot) {
		return
	}

	vote, err := h.governance.SubmitVote(r.Context(), r.PathValue("id"), actor, ballot)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, vote)
}

func (h *HTTPHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	session, err := h.governance.CloseSessionIfThresholdMet(r.Context(), r.PathValue("id"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

// ── Reviews ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) RecordReview(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req service.ReviewRequest
	if !h.decode(w, r, &req) {
		return
	}

	review, err := h.reviews.RecordReview(r.Context(), r.PathValue("id"), &req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, review)
}

func (h *HTTPHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListReviews(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if reviews == nil {
		reviews = []*governance.ImplementationReview{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

func (h *HTTPHandler) EstimationTrend(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOf(w, r)
	if !ok {
		return
	}
	trend, err := h.reviews.EstimationTrend(r.Context(), asOf)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trend)
}

// ── Policy administration ────────────────────────────────────────────────────

func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	rules, err := h.policy.ListRules(r.Context(), activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if rules == nil {
		rules = []*governance.AutoApprovalRule{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

func (h *HTTPHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.policy.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

func (h *HTTPHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req service.RuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule, err := h.policy.CreateRule(r.Context(), &req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

func (h *HTTPHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req service.RuleRequest
	if !h.decode(w, r, &req) {
		return
	}

	rule, err := h.policy.UpdateRule(r.Context(), r.PathValue("id"), &req, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

func (h *HTTPHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	if err := h.policy.DeleteRule(r.Context(), r.PathValue("id"), actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.policy.ListGrants(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if grants == nil {
		grants = []*repository.CapabilityGrant{}
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"grants": grants})
}

func (h *HTTPHandler) GrantCapability(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var req struct {
		Identity   string `json:"identity"`
		Capability string `json:"capability"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	grant, err := h.policy.GrantCapability(r.Context(), req.Identity, req.Capability, actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, grant)
}

func (h *HTTPHandler) RevokeCapability(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	err := h.policy.RevokeCapability(r.Context(), r.PathValue("identity"), r.PathValue("capability"), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) CurrentRateTable(w http.ResponseWriter, r *http.Request) {
	table, err := h.policy.CurrentRateTable(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, table)
}

func (h *HTTPHandler) SaveRateTable(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requireActor(w, r)
	if !ok {
		return
	}
	var table governance.RateTable
	if !h.decode(w, r, &table) {
		return
	}

	if err := h.policy.SaveRateTable(r.Context(), &table, actor); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &table)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(UserIDHeader)
	if actor == "" {
		h.writeJSON(w, http.StatusUnauthorized, errors.New(errors.ErrCodeUnauthorized, UserIDHeader+" header is required"))
		return "", false
	}
	return actor, true
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errors.InvalidInput("body", "invalid request body: "+err.Error()))
		return false
	}
	return true
}

// asOf parses the optional as_of query parameter as a date or an RFC 3339
// timestamp. Absent means now.
func (h *HTTPHandler) asOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, errors.InvalidInput("as_of", "expected YYYY-MM-DD or an RFC 3339 timestamp"))
		return time.Time{}, false
	}
	return t, true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(errors.CodeOf(err))
	var body *errors.Error
	if e, ok := errors.As(err); ok && status != http.StatusInternalServerError {
		body = e
	} else {
		body = errors.New(errors.ErrCodeInternal, "internal error")
	}
	if status == http.StatusInternalServerError {
		h.log.Error().
			Err(err).
			Str("request_id", middleware.GetRequestID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	}
	h.writeJSON(w, status, body)
}

func httpStatus(code errors.ErrorCode) int {
	switch code {
	case errors.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict, errors.ErrCodeAlreadyVoted, errors.ErrCodeSessionClosed, errors.ErrCodeRuleConflict:
		return http.StatusConflict
	case errors.ErrCodeUnauthorized, errors.ErrCodeNotEligible:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
