package memory

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// ── rate tables ──────────────────────────────────────────────────────────────

// RateStore keeps every saved rate table; the last saved is current.
type RateStore struct{ db *DB }

func (s *RateStore) Current(_ context.Context) (*governance.RateTable, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if len(s.db.rateTables) == 0 {
		return nil, nil
	}
	return copyRateTable(s.db.rateTables[len(s.db.rateTables)-1]), nil
}

func (s *RateStore) Save(_ context.Context, t *governance.RateTable) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	kept := s.db.rateTables[:0]
	for _, existing := range s.db.rateTables {
		if existing.Version != t.Version {
			kept = append(kept, existing)
		}
	}
	s.db.rateTables = append(kept, copyRateTable(t))
	return nil
}

func copyRateTable(t *governance.RateTable) *governance.RateTable {
	c := &governance.RateTable{Version: t.Version, Entries: make([]governance.RateEntry, len(t.Entries))}
	for i, e := range t.Entries {
		e.EffectiveTo = copyTime(e.EffectiveTo)
		c.Entries[i] = e
	}
	return c
}

// ── auto-approval rules ──────────────────────────────────────────────────────

// RuleStore is the in-memory rule table.
type RuleStore struct{ db *DB }

func (s *RuleStore) Create(_ context.Context, rule *governance.AutoApprovalRule) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if s.db.ruleNameTaken(rule.Name, "") {
		return errors.New(errors.ErrCodeConflict, "a rule named "+rule.Name+" already exists")
	}
	now := s.db.now()
	rule.ID = newID()
	rule.CreatedAt, rule.UpdatedAt = now, now
	s.db.rules[rule.ID] = copyRule(rule)
	return nil
}

func (s *RuleStore) GetByID(_ context.Context, id string) (*governance.AutoApprovalRule, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	rule, ok := s.db.rules[id]
	if !ok {
		return nil, errors.NotFound("auto_approval_rule", id)
	}
	return copyRule(rule), nil
}

func (s *RuleStore) List(_ context.Context, activeOnly bool) ([]*governance.AutoApprovalRule, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*governance.AutoApprovalRule
	for _, rule := range s.db.rules {
		if activeOnly && !rule.IsActive {
			continue
		}
		out = append(out, copyRule(rule))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *RuleStore) Update(_ context.Context, rule *governance.AutoApprovalRule) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored, ok := s.db.rules[rule.ID]
	if !ok {
		return errors.NotFound("auto_approval_rule", rule.ID)
	}
	if s.db.ruleNameTaken(rule.Name, rule.ID) {
		return errors.New(errors.ErrCodeConflict, "a rule named "+rule.Name+" already exists")
	}
	rule.CreatedBy, rule.CreatedAt = stored.CreatedBy, stored.CreatedAt
	rule.UpdatedAt = s.db.now()
	s.db.rules[rule.ID] = copyRule(rule)
	return nil
}

func (s *RuleStore) Delete(_ context.Context, id string) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.rules[id]; !ok {
		return errors.NotFound("auto_approval_rule", id)
	}
	delete(s.db.rules, id)
	return nil
}

func (db *DB) ruleNameTaken(name, exceptID string) bool {
	for id, rule := range db.rules {
		if id != exceptID && rule.Name == name {
			return true
		}
	}
	return false
}

// ── auto decisions ───────────────────────────────────────────────────────────

// AutoDecisionStore is the in-memory auto decision table.
type AutoDecisionStore struct{ db *DB }

func (s *AutoDecisionStore) Record(_ context.Context, d *governance.AutoDecision) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.proposals[d.ProposalID]
	if !ok {
		return errors.NotFound("proposal", d.ProposalID)
	}
	if p.OversightStatus.Decided() || s.db.decidedBySession(d.ProposalID) {
		return errors.New(errors.ErrCodeConflict, "proposal is already decided")
	}
	if s.db.openSession(d.ProposalID) != nil {
		return errors.New(errors.ErrCodeConflict, "proposal has an open voting session")
	}
	if _, ok := s.db.autoDecisions[d.ProposalID]; ok {
		return errors.New(errors.ErrCodeConflict, "proposal was already decided automatically")
	}

	d.ID = newID()
	c := *d
	c.MatchedRuleIDs = append([]string(nil), d.MatchedRuleIDs...)
	s.db.autoDecisions[d.ProposalID] = &c

	status := governance.StatusApproved
	if d.Outcome == governance.OversightRejected {
		status = governance.StatusRejected
	}
	decidedAt := d.DecidedAt
	return s.db.setProposalStatus(d.ProposalID, status, d.Outcome, &decidedAt)
}

func (s *AutoDecisionStore) GetByProposalID(_ context.Context, proposalID string) (*governance.AutoDecision, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	d, ok := s.db.autoDecisions[proposalID]
	if !ok {
		return nil, nil
	}
	c := *d
	c.MatchedRuleIDs = append([]string(nil), d.MatchedRuleIDs...)
	return &c, nil
}

// ── capability grants ────────────────────────────────────────────────────────

// CapabilityStore is the in-memory grant table.
type CapabilityStore struct{ db *DB }

func (s *CapabilityStore) Grant(_ context.Context, g *repository.CapabilityGrant) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := grantKey{g.Identity, g.Capability}
	if _, ok := s.db.grants[key]; ok {
		return nil
	}
	c := *g
	c.GrantedAt = s.db.now()
	s.db.grants[key] = &c
	return nil
}

func (s *CapabilityStore) Revoke(_ context.Context, identity string, c governance.Capability) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	key := grantKey{identity, c}
	if _, ok := s.db.grants[key]; !ok {
		return errors.NotFound("capability_grant", identity+"/"+string(c))
	}
	delete(s.db.grants, key)
	return nil
}

func (s *CapabilityStore) Holders(_ context.Context, c governance.Capability) ([]string, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var ids []string
	for key := range s.db.grants {
		if key.capability == c {
			ids = append(ids, key.identity)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *CapabilityStore) ListGrants(_ context.Context) ([]*repository.CapabilityGrant, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	out := make([]*repository.CapabilityGrant, 0, len(s.db.grants))
	for _, g := range s.db.grants {
		c := *g
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Capability != out[j].Capability {
			return out[i].Capability < out[j].Capability
		}
		return out[i].Identity < out[j].Identity
	})
	return out, nil
}

// ── audit ────────────────────────────────────────────────────────────────────

// AuditStore is the append-only in-memory audit log.
type AuditStore struct{ db *DB }

func (s *AuditStore) Append(_ context.Context, entry *repository.AuditEntry) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	// round-trip metadata so stored entries cannot alias caller maps
	c := *entry
	if entry.Metadata != nil {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal audit metadata")
		}
		c.Metadata = nil
		if err := json.Unmarshal(raw, &c.Metadata); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal audit metadata")
		}
	}
	entry.ID = newID()
	entry.PerformedAt = s.db.now()
	c.ID, c.PerformedAt = entry.ID, entry.PerformedAt
	s.db.audit = append(s.db.audit, &c)
	return nil
}

func (s *AuditStore) ListByProposal(_ context.Context, proposalID string) ([]*repository.AuditEntry, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*repository.AuditEntry
	for _, e := range s.db.audit {
		if e.ProposalID == proposalID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

// ── reviews ──────────────────────────────────────────────────────────────────

// ReviewStore is the in-memory review table.
type ReviewStore struct{ db *DB }

func (s *ReviewStore) Create(_ context.Context, rv *governance.ImplementationReview) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	if _, ok := s.db.proposals[rv.ProposalID]; !ok {
		return errors.NotFound("proposal", rv.ProposalID)
	}
	rv.ID = newID()
	c := *rv
	s.db.reviews = append(s.db.reviews, &c)
	return nil
}

func (s *ReviewStore) ListByProposal(_ context.Context, proposalID string) ([]*governance.ImplementationReview, error) {
	return s.filter(func(rv *governance.ImplementationReview) bool { return rv.ProposalID == proposalID }), nil
}

func (s *ReviewStore) ListSince(_ context.Context, since time.Time) ([]*governance.ImplementationReview, error) {
	return s.filter(func(rv *governance.ImplementationReview) bool { return !rv.CreatedAt.Before(since) }), nil
}

func (s *ReviewStore) filter(keep func(*governance.ImplementationReview) bool) []*governance.ImplementationReview {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*governance.ImplementationReview
	for _, rv := range s.db.reviews {
		if keep(rv) {
			c := *rv
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ── valuations ───────────────────────────────────────────────────────────────

// ValuationStore is the in-memory valuation table.
type ValuationStore struct{ db *DB }

func (s *ValuationStore) Create(_ context.Context, v *governance.Valuation) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	v.ID = newID()
	c := *v
	if v.Rates != nil {
		c.Rates = copyRateTable(v.Rates)
	}
	c.Summary.MissingGrades = append([]string(nil), v.Summary.MissingGrades...)
	s.db.valuations = append(s.db.valuations, &c)
	return nil
}

func (s *ValuationStore) Latest(_ context.Context, proposalID, reason string) (*governance.Valuation, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	for i := len(s.db.valuations) - 1; i >= 0; i-- {
		if v := s.db.valuations[i]; v.ProposalID == proposalID && (reason == "" || v.Reason == reason) {
			c := *v
			return &c, nil
		}
	}
	return nil, nil
}
