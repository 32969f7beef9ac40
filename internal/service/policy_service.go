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

// PolicyService manages the administrator-owned configuration: auto-approval
// rules, capability grants and rate tables. Every write requires the
// governance_admin capability.
type PolicyService struct {
	stores   Stores
	notifier Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewPolicyService creates a new policy service
func NewPolicyService(stores Stores, notifier Notifier, log *logger.Logger) *PolicyService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &PolicyService{stores: stores, notifier: notifier, log: log, now: time.Now}
}

// RuleRequest carries the editable fields of an auto-approval rule
type RuleRequest struct {
	Name                   string   `json:"name"`
	Description            string   `json:"description,omitempty"`
	IsActive               bool     `json:"is_active"`
	MaxCost                *int64   `json:"max_cost,omitempty"`
	MaxRiskScore           *int     `json:"max_risk_score,omitempty"`
	AllowedClassifications []string `json:"allowed_classifications,omitempty"`
	AllowedTeams           []string `json:"allowed_teams,omitempty"`
	RequireAllConditions   bool     `json:"require_all_conditions"`
	AutoApprove            bool     `json:"auto_approve"`
	Priority               int      `json:"priority"`
}

func (s *PolicyService) buildRule(req *RuleRequest) (*governance.AutoApprovalRule, error) {
	if req == nil {
		return nil, errors.InvalidInput("rule", "request body is required")
	}
	var v errors.Validation
	rule := &governance.AutoApprovalRule{
		Name:                 strings.TrimSpace(req.Name),
		Description:          strings.TrimSpace(req.Description),
		IsActive:             req.IsActive,
		MaxCost:              req.MaxCost,
		MaxRiskScore:         req.MaxRiskScore,
		AllowedTeams:         compact(req.AllowedTeams),
		RequireAllConditions: req.RequireAllConditions,
		AutoApprove:          req.AutoApprove,
		Priority:             req.Priority,
	}
	if rule.Name == "" {
		v.Add("name", "name is required")
	}
	if rule.MaxCost != nil && *rule.MaxCost < 0 {
		v.Add("max_cost", "max cost cannot be negative")
	}
	if rule.MaxRiskScore != nil && (*rule.MaxRiskScore < 1 || *rule.MaxRiskScore > 5) {
		v.Add("max_risk_score", "max risk score must be between 1 and 5")
	}
	for i, raw := range req.AllowedClassifications {
		c, err := governance.ParseDataClassification(raw)
		if err != nil {
			v.Add(fmt.Sprintf("allowed_classifications[%d]", i), err.Error())
			continue
		}
		rule.AllowedClassifications = append(rule.AllowedClassifications, c)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return rule, nil
}

// CreateRule stores a new auto-approval rule.
func (s *PolicyService) CreateRule(ctx context.Context, req *RuleRequest, actor string) (*governance.AutoApprovalRule, error) {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return nil, err
	}
	rule, err := s.buildRule(req)
	if err != nil {
		return nil, err
	}
	rule.CreatedBy = actor
	if err := s.stores.Rules.Create(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("rule_id", rule.ID).
		Str("rule_name", rule.Name).
		Bool("auto_approve", rule.AutoApprove).
		Str("actor", actor).
		Msg("Auto-approval rule created")
	s.policyUpdated(ctx, actor, "rule_created", rule.ID)
	return rule, nil
}

// GetRule retrieves a rule by ID
func (s *PolicyService) GetRule(ctx context.Context, id string) (*governance.AutoApprovalRule, error) {
	return s.stores.Rules.GetByID(ctx, id)
}

// ListRules lists rules in evaluation order
func (s *PolicyService) ListRules(ctx context.Context, activeOnly bool) ([]*governance.AutoApprovalRule, error) {
	return s.stores.Rules.List(ctx, activeOnly)
}

// UpdateRule replaces a rule's editable fields.
func (s *PolicyService) UpdateRule(ctx context.Context, id string, req *RuleRequest, actor string) (*governance.AutoApprovalRule, error) {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return nil, err
	}
	rule, err := s.buildRule(req)
	if err != nil {
		return nil, err
	}
	rule.ID = id
	if err := s.stores.Rules.Update(ctx, rule); err != nil {
		return nil, err
	}

	s.log.Info().Str("rule_id", id).Str("actor", actor).Msg("Auto-approval rule updated")
	s.policyUpdated(ctx, actor, "rule_updated", id)
	return s.stores.Rules.GetByID(ctx, id)
}

// DeleteRule removes a rule. Past auto decisions keep their rule ids.
func (s *PolicyService) DeleteRule(ctx context.Context, id, actor string) error {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return err
	}
	if err := s.stores.Rules.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("rule_id", id).Str("actor", actor).Msg("Auto-approval rule deleted")
	s.policyUpdated(ctx, actor, "rule_deleted", id)
	return nil
}

// GrantCapability gives an identity a capability. Granting twice is a no-op.
func (s *PolicyService) GrantCapability(ctx context.Context, identity, capability, actor string) (*repository.CapabilityGrant, error) {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return nil, err
	}
	return s.grant(ctx, identity, capability, actor)
}

// SeedCapability grants without an admin check. It is used at startup to
// load grants from the policy file.
func (s *PolicyService) SeedCapability(ctx context.Context, identity, capability string) (*repository.CapabilityGrant, error) {
	return s.grant(ctx, identity, capability, "policy-file")
}

func (s *PolicyService) grant(ctx context.Context, identity, capability, actor string) (*repository.CapabilityGrant, error) {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return nil, errors.InvalidInput("identity", "identity is required")
	}
	c, err := governance.ParseCapability(capability)
	if err != nil {
		return nil, errors.InvalidInput("capability", err.Error())
	}

	g := &repository.CapabilityGrant{Identity: identity, Capability: c, GrantedBy: actor, GrantedAt: s.now()}
	if err := s.stores.Capabilities.Grant(ctx, g); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("identity", identity).
		Str("capability", string(c)).
		Str("granted_by", actor).
		Msg("Capability granted")
	return g, nil
}

// RevokeCapability removes a grant. Open sessions keep their voter list.
func (s *PolicyService) RevokeCapability(ctx context.Context, identity, capability, actor string) error {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return err
	}
	c, err := governance.ParseCapability(capability)
	if err != nil {
		return errors.InvalidInput("capability", err.Error())
	}
	if c == governance.CapabilityAdmin && identity == actor {
		return errors.New(errors.ErrCodeConflict, "administrators cannot revoke their own admin capability")
	}
	if err := s.stores.Capabilities.Revoke(ctx, identity, c); err != nil {
		return err
	}

	s.log.Info().
		Str("identity", identity).
		Str("capability", string(c)).
		Str("revoked_by", actor).
		Msg("Capability revoked")
	return nil
}

// ListGrants lists every capability grant
func (s *PolicyService) ListGrants(ctx context.Context) ([]*repository.CapabilityGrant, error) {
	return s.stores.Capabilities.ListGrants(ctx)
}

// SaveRateTable validates and stores a rate table, making it current.
func (s *PolicyService) SaveRateTable(ctx context.Context, t *governance.RateTable, actor string) error {
	if err := requireCapability(ctx, s.stores.Capabilities, actor, governance.CapabilityAdmin); err != nil {
		return err
	}
	return s.saveRates(ctx, t, actor)
}

// SeedRateTable stores a rate table without an admin check.
func (s *PolicyService) SeedRateTable(ctx context.Context, t *governance.RateTable) error {
	return s.saveRates(ctx, t, "policy-file")
}

func (s *PolicyService) saveRates(ctx context.Context, t *governance.RateTable, actor string) error {
	if err := validateRateTable(t); err != nil {
		return err
	}
	for i := range t.Entries {
		t.Entries[i].Grade = governance.NormalizeGrade(t.Entries[i].Grade)
	}
	if err := s.stores.Rates.Save(ctx, t); err != nil {
		return err
	}

	s.log.Info().
		Str("version", t.Version).
		Int("entries", len(t.Entries)).
		Str("actor", actor).
		Msg("Rate table saved")
	if actor != "policy-file" {
		s.policyUpdated(ctx, actor, "rates_updated", t.Version)
	}
	return nil
}

func validateRateTable(t *governance.RateTable) error {
	if t == nil {
		return errors.InvalidInput("rate_table", "rate table is required")
	}
	var v errors.Validation
	if strings.TrimSpace(t.Version) == "" {
		v.Add("version", "version is required")
	}
	if len(t.Entries) == 0 {
		v.Add("entries", "at least one rate is required")
	}
	for i, e := range t.Entries {
		if governance.NormalizeGrade(e.Grade) == "" {
			v.Add(fmt.Sprintf("entries[%d].grade", i), "grade is required")
		}
		if e.HourlyRate < 0 {
			v.Add(fmt.Sprintf("entries[%d].hourly_rate", i), "hourly rate cannot be negative")
		}
		if e.EffectiveTo != nil && !e.EffectiveTo.After(e.EffectiveFrom) {
			v.Add(fmt.Sprintf("entries[%d].effective_to", i), "effective_to must be after effective_from")
		}
	}
	return v.Err()
}

// CurrentRateTable returns the current rate table, NOT_FOUND when none is
// loaded.
func (s *PolicyService) CurrentRateTable(ctx context.Context) (*governance.RateTable, error) {
	t, err := s.stores.Rates.Current(ctx)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.NotFound("rate_table", "current")
	}
	return t, nil
}

func (s *PolicyService) policyUpdated(ctx context.Context, actor, change, subject string) {
	admins, err := s.stores.Capabilities.Holders(ctx, governance.CapabilityAdmin)
	if err != nil {
		s.log.Warn().Err(err).Msg("Could not resolve admins for policy notification")
		return
	}
	s.notifier.Notify(ctx, Event{
		Type:       EventPolicyUpdated,
		ActorID:    actor,
		Recipients: admins,
		Payload:    map[string]interface{}{"change": change, "subject": subject},
	})
}
