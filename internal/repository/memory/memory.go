// Package memory is an in-process implementation of the governance stores.
// A single mutex guards all state, which gives the same per-session and
// per-proposal atomicity the Postgres repositories get from row locks. It
// backs the service tests and the server's memory storage driver.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// DB holds every table.
type DB struct {
	mu sync.Mutex

	now func() time.Time

	proposals     map[string]*governance.Proposal
	rateTables    []*governance.RateTable
	rules         map[string]*governance.AutoApprovalRule
	sessions      map[string]*governance.VotingSession
	votes         []*governance.Vote
	autoDecisions map[string]*governance.AutoDecision
	grants        map[grantKey]*repository.CapabilityGrant
	audit         []*repository.AuditEntry
	reviews       []*governance.ImplementationReview
	valuations    []*governance.Valuation
}

type grantKey struct {
	identity   string
	capability governance.Capability
}

// New returns an empty database.
func New() *DB {
	return &DB{
		now:           time.Now,
		proposals:     make(map[string]*governance.Proposal),
		rules:         make(map[string]*governance.AutoApprovalRule),
		sessions:      make(map[string]*governance.VotingSession),
		autoDecisions: make(map[string]*governance.AutoDecision),
		grants:        make(map[grantKey]*repository.CapabilityGrant),
	}
}

// WithClock overrides the timestamp source.
func (db *DB) WithClock(now func() time.Time) *DB {
	db.now = now
	return db
}

func (db *DB) Proposals() *ProposalStore { return &ProposalStore{db} }
func (db *DB) Rates() *RateStore { return &RateStore{db} }
func (db *DB) Rules() *RuleStore { return &RuleStore{db} }
func (db *DB) Voting() *VotingStore { return &VotingStore{db} }
func (db *DB) AutoDecisions() *AutoDecisionStore { return &AutoDecisionStore{db} }
func (db *DB) Capabilities() *CapabilityStore { return &CapabilityStore{db} }
func (db *DB) Audit() *AuditStore { return &AuditStore{db} }
func (db *DB) Reviews() *ReviewStore { return &ReviewStore{db} }
func (db *DB) Valuations() *ValuationStore { return &ValuationStore{db} }

func newID() string {
	return uuid.NewString()
}

// ── copy helpers ─────────────────────────────────────────────────────────────

func copyProposal(p *governance.Proposal) *governance.Proposal {
	c := *p
	c.TimeSavings = append([]governance.TimeSavingEntry(nil), p.TimeSavings...)
	c.EscalationTriggers = append([]string(nil), p.EscalationTriggers...)
	if p.Cost != nil {
		v := *p.Cost
		c.Cost = &v
	}
	if p.RiskScore != nil {
		v := *p.RiskScore
		c.RiskScore = &v
	}
	if p.DataClassification != nil {
		v := *p.DataClassification
		c.DataClassification = &v
	}
	c.SubmittedAt = copyTime(p.SubmittedAt)
	c.ReviewedAt = copyTime(p.ReviewedAt)
	return &c
}

func copyRule(r *governance.AutoApprovalRule) *governance.AutoApprovalRule {
	c := *r
	c.AllowedClassifications = append([]governance.DataClassification(nil), r.AllowedClassifications...)
	c.AllowedTeams = append([]string(nil), r.AllowedTeams...)
	if r.MaxCost != nil {
		v := *r.MaxCost
		c.MaxCost = &v
	}
	if r.MaxRiskScore != nil {
		v := *r.MaxRiskScore
		c.MaxRiskScore = &v
	}
	return &c
}

func copySession(s *governance.VotingSession) *governance.VotingSession {
	c := *s
	c.EligibleVoters = append([]string(nil), s.EligibleVoters...)
	c.Deadline = copyTime(s.Deadline)
	c.ClosedAt = copyTime(s.ClosedAt)
	return &c
}

func copyVote(v *governance.Vote) *governance.Vote {
	c := *v
	c.CriteriaSnapshot.Results = append([]governance.CriterionResult(nil), v.CriteriaSnapshot.Results...)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalFoldTrim(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
