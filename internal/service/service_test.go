package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository/memory"
)

var (
	rateDate  = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	startTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
)

const (
	submitter = "alice"
	admin     = "admin-1"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(_ context.Context, e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) ofType(eventType string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type countingRecorder struct {
	NopRecorder
	mu           sync.Mutex
	votes        int
	opened       map[governance.Pathway]int
	closed       map[governance.Outcome]int
	auto         int
	conflicts    int
	missingRates map[string]int
	reviews      int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		opened:       make(map[governance.Pathway]int),
		closed:       make(map[governance.Outcome]int),
		missingRates: make(map[string]int),
	}
}

func (r *countingRecorder) VoteCast(governance.Pathway, governance.VoteDecision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.votes++
}

func (r *countingRecorder) SessionOpened(p governance.Pathway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened[p]++
}

func (r *countingRecorder) SessionClosed(_ governance.Pathway, o governance.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[o]++
}

func (r *countingRecorder) AutoDecided(governance.OversightStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auto++
}

func (r *countingRecorder) RuleConflict() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conflicts++
}

func (r *countingRecorder) MissingRate(grade string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.missingRates[grade]++
}

func (r *countingRecorder) ReviewRecorded(governance.Accuracy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reviews++
}

type harness struct {
	t         *testing.T
	ctx       context.Context
	now       time.Time
	stores    Stores
	notifier  *recordingNotifier
	metrics   *countingRecorder
	gov       *GovernanceService
	proposals *ProposalService
	policy    *PolicyService
	reviews   *ReviewService
}

// newHarness wires every service over an in-memory store with three
// fast-track voters, a five-member oversight panel, one partner and one
// admin. Rates are loaded unless withoutRates is set.
func newHarness(t *testing.T, withoutRates ...bool) *harness {
	t.Helper()
	h := &harness{t: t, ctx: context.Background(), now: startTime}
	clock := func() time.Time { return h.now }

	db := memory.New().WithClock(clock)
	h.stores = Stores{
		Proposals:    db.Proposals(),
		Rates:        db.Rates(),
		Rules:        db.Rules(),
		Voting:       db.Voting(),
		AutoDecision: db.AutoDecisions(),
		Capabilities: db.Capabilities(),
		Audit:        db.Audit(),
		Reviews:      db.Reviews(),
		Valuations:   db.Valuations(),
	}
	h.notifier = &recordingNotifier{}
	h.metrics = newCountingRecorder()
	log := logger.Nop()

	h.gov = NewGovernanceService(h.stores, governance.DefaultPolicy(), h.notifier, h.metrics, log).WithClock(clock)
	h.proposals = NewProposalService(h.stores, h.gov, h.notifier, log).WithClock(clock)
	h.policy = NewPolicyService(h.stores, h.notifier, log)
	h.policy.now = clock
	h.reviews = NewReviewService(h.stores, h.gov, h.notifier, h.metrics, log).WithClock(clock)

	grants := map[governance.Capability][]string{
		governance.CapabilityFastTrackVoter:  {"ft-1", "ft-2", "ft-3"},
		governance.CapabilityOversightMember: {"om-1", "om-2", "om-3", "om-4", "om-5"},
		governance.CapabilityPartner:         {"partner-1"},
		governance.CapabilityAdmin:           {admin},
	}
	for c, ids := range grants {
		for _, id := range ids {
			_, err := h.policy.SeedCapability(h.ctx, id, string(c))
			require.NoError(t, err)
		}
	}

	if len(withoutRates) == 0 || !withoutRates[0] {
		require.NoError(t, h.policy.SeedRateTable(h.ctx, &governance.RateTable{
			Version: "2026.1",
			Entries: []governance.RateEntry{
				{Grade: "admin", HourlyRate: 8_000, EffectiveFrom: rateDate},
				{Grade: "associate", HourlyRate: 15_000, EffectiveFrom: rateDate},
				{Grade: "partner", HourlyRate: 40_000, EffectiveFrom: rateDate},
			},
		}))
	}
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func request(cost int64, risk int, classification string) *ProposalRequest {
	return &ProposalRequest{
		Title:              "Contract summariser",
		Problem:            "Associates spend hours reading contracts",
		Solution:           "Summarise contracts with an LLM",
		Team:               "Corporate",
		Cost:               &cost,
		RiskScore:          &risk,
		DataClassification: &classification,
		TimeSavings:        []governance.TimeSavingEntry{{StaffGrade: "associate", HoursPerWeek: 4}},
	}
}

// submit creates and submits a proposal from req.
func (h *harness) submit(req *ProposalRequest) *SubmitResult {
	h.t.Helper()
	p, err := h.proposals.CreateProposal(h.ctx, req, submitter)
	require.NoError(h.t, err)
	res, err := h.proposals.SubmitProposal(h.ctx, p.ID, submitter)
	require.NoError(h.t, err)
	return res
}

func (h *harness) vote(sessionID, voter string, decision governance.VoteDecision) *governance.Vote {
	h.t.Helper()
	reason := "looks good"
	if decision == governance.VoteReject {
		reason = "too risky"
	}
	v, err := h.gov.SubmitVote(h.ctx, sessionID, voter, governance.Ballot{Decision: decision, Reason: reason})
	require.NoError(h.t, err)
	return v
}

func (h *harness) proposal(id string) *governance.Proposal {
	h.t.Helper()
	p, err := h.stores.Proposals.GetByID(h.ctx, id)
	require.NoError(h.t, err)
	return p
}

func intPtr(i int) *int { return &i }

func int64Ptr(i int64) *int64 { return &i }
