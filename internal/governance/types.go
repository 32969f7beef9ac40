// Package governance holds the proposal decision engine: valuation, criteria,
// tiering, auto-approval rules, voting arithmetic and review variance. Nothing
// in this package performs I/O; callers load records and persist results.
package governance

import (
	"fmt"
	"strings"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
)

// Money is an amount in minor currency units (pence).
type Money = int64

// ── Proposal ─────────────────────────────────────────────────────────────────

// LifecycleStatus is the operational state of a proposal.
type LifecycleStatus string

const (
	StatusDraft       LifecycleStatus = "draft"
	StatusSubmitted   LifecycleStatus = "submitted"
	StatusUnderReview LifecycleStatus = "under_review"
	StatusApproved    LifecycleStatus = "approved"
	StatusRejected    LifecycleStatus = "rejected"
	StatusInProgress  LifecycleStatus = "in_progress"
	StatusCompleted   LifecycleStatus = "completed"
)

// OversightStatus is the governance-facing decision state of a proposal.
type OversightStatus string

const (
	OversightNotRequired     OversightStatus = "not_required"
	OversightPendingReview   OversightStatus = "pending_review"
	OversightUnderReview     OversightStatus = "under_review"
	OversightApproved        OversightStatus = "approved"
	OversightRejected        OversightStatus = "rejected"
	OversightDeferred        OversightStatus = "deferred"
	OversightRequiresChanges OversightStatus = "requires_changes"
)

// Decided reports whether the oversight status is terminal.
func (s OversightStatus) Decided() bool {
	return s == OversightApproved || s == OversightRejected
}

// DataClassification ranks how sensitive the data touched by a proposal is.
type DataClassification string

const (
	ClassificationPublic       DataClassification = "public"
	ClassificationInternal     DataClassification = "internal"
	ClassificationConfidential DataClassification = "confidential"
	ClassificationRestricted   DataClassification = "restricted"
)

var classificationSensitivity = map[DataClassification]int{
	ClassificationPublic:       0,
	ClassificationInternal:     1,
	ClassificationConfidential: 2,
	ClassificationRestricted:   3,
}

// ParseDataClassification accepts any casing.
func ParseDataClassification(s string) (DataClassification, error) {
	c := DataClassification(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := classificationSensitivity[c]; !ok {
		return "", fmt.Errorf("unknown data classification %q", s)
	}
	return c, nil
}

// Sensitivity orders classifications; unknown values rank as most sensitive.
func (c DataClassification) Sensitivity() int {
	if s, ok := classificationSensitivity[c]; ok {
		return s
	}
	return len(classificationSensitivity)
}

// TimeSavingEntry is one staff-grade time saving estimate.
type TimeSavingEntry struct {
	StaffGrade   string  `json:"staff_grade" yaml:"staff_grade"`
	HoursPerWeek float64 `json:"hours_per_week" yaml:"hours_per_week"`
}

// Proposal is an identification form as loaded from the proposal store.
type Proposal struct {
	ID                 string              `json:"id"`
	Title              string              `json:"title"`
	Problem            string              `json:"problem"`
	Solution           string              `json:"solution"`
	Team               string              `json:"team"`
	SubmittedBy        string              `json:"submitted_by"`
	Cost               *Money              `json:"cost,omitempty"`
	TimeSavings        []TimeSavingEntry   `json:"time_savings"`
	RiskScore          *int                `json:"risk_score,omitempty"`
	DataClassification *DataClassification `json:"data_classification,omitempty"`
	EscalationTriggers []string            `json:"escalation_triggers,omitempty"`
	Status             LifecycleStatus     `json:"status"`
	OversightStatus    OversightStatus     `json:"oversight_status"`
	SubmittedAt        *time.Time          `json:"submitted_at,omitempty"`
	ReviewedAt         *time.Time          `json:"reviewed_at,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// TotalWeeklyHours sums every time saving entry.
func (p *Proposal) TotalWeeklyHours() float64 {
	var total float64
	for _, e := range p.TimeSavings {
		total += e.HoursPerWeek
	}
	return total
}

// CheckFields adds a field error to v for every out-of-range value on p.
// A non-nil rates also rejects grades it has never priced.
func (p *Proposal) CheckFields(v *errors.Validation, rates *RateTable) {
	if p.Cost != nil && *p.Cost < 0 {
		v.Add("cost", "cost cannot be negative")
	}
	if p.RiskScore != nil && (*p.RiskScore < 1 || *p.RiskScore > 5) {
		v.Add("risk_score", "risk score must be between 1 and 5")
	}

	known := make(map[string]bool)
	if rates != nil {
		for _, g := range rates.Grades() {
			known[g] = true
		}
	}
	for i, e := range p.TimeSavings {
		field := fmt.Sprintf("time_savings[%d]", i)
		grade := NormalizeGrade(e.StaffGrade)
		switch {
		case grade == "":
			v.Add(field+".staff_grade", "staff grade is required")
		case rates != nil && !known[grade]:
			v.Add(field+".staff_grade", fmt.Sprintf("unknown staff grade %q", e.StaffGrade))
		}
		if e.HoursPerWeek < 0 {
			v.Add(field+".hours_per_week", "hours per week cannot be negative")
		}
	}
}

// ── Tier ─────────────────────────────────────────────────────────────────────

// Tier is a coarse risk/value classification used to pick a pathway.
type Tier string

const (
	TierAutoApprovable    Tier = "auto_approvable"
	TierFastTrack         Tier = "fast_track"
	TierFullOversight     Tier = "full_oversight"
	TierPartnerEscalation Tier = "partner_escalation"
)

var tierOrder = []Tier{TierAutoApprovable, TierFastTrack, TierFullOversight, TierPartnerEscalation}

// Rank orders tiers by scrutiny; higher is more scrutinized.
func (t Tier) Rank() int {
	for i, candidate := range tierOrder {
		if candidate == t {
			return i
		}
	}
	return len(tierOrder) - 1
}

// MaxTier returns the more scrutinized of a and b.
func MaxTier(a, b Tier) Tier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// TierInfo is the display form of a tier.
type TierInfo struct {
	Tier        Tier   `json:"tier"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Info returns display text for t.
func (t Tier) Info() TierInfo {
	switch t {
	case TierAutoApprovable:
		return TierInfo{t, "Auto-approvable", "Low cost, low risk, public data; eligible for rule-based decisions"}
	case TierFastTrack:
		return TierInfo{t, "Fast track", "Reviewed by the dual-committee fast-track voters"}
	case TierFullOversight:
		return TierInfo{t, "Full oversight", "Reviewed by the full oversight panel"}
	default:
		return TierInfo{TierPartnerEscalation, "Partner escalation", "Exceptional case decided by a senior partner"}
	}
}

// ── Voting ───────────────────────────────────────────────────────────────────

// Pathway is the review route a proposal takes.
type Pathway string

const (
	PathwayFastTrack         Pathway = "fast_track"
	PathwayFullOversight     Pathway = "full_oversight"
	PathwayAutoApproved      Pathway = "auto_approved"
	PathwayAutoRejected      Pathway = "auto_rejected"
	PathwayPartnerEscalation Pathway = "partner_escalation"
)

// VoteDecision is a single voter's choice.
type VoteDecision string

const (
	VoteApprove VoteDecision = "approve"
	VoteReject  VoteDecision = "reject"
	VoteAbstain VoteDecision = "abstain"
	VoteDefer   VoteDecision = "defer"
)

// Valid reports whether d is a known decision.
func (d VoteDecision) Valid() bool {
	switch d {
	case VoteApprove, VoteReject, VoteAbstain, VoteDefer:
		return true
	}
	return false
}

// Outcome is the terminal result of a voting session. Empty means open.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeApproved  Outcome = "approved"
	OutcomeRejected  Outcome = "rejected"
	OutcomeEscalated Outcome = "escalated"
)

// Capability names a role grant that makes an identity an eligible voter.
type Capability string

const (
	CapabilityFastTrackVoter  Capability = "fast_track_voter"
	CapabilityOversightMember Capability = "oversight_member"
	CapabilityPartner         Capability = "partner"

	// CapabilityAdmin may manage rules, rate tables and grants. It never
	// makes an identity a voter.
	CapabilityAdmin Capability = "governance_admin"
)

// ParseCapability accepts any casing.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CapabilityFastTrackVoter, CapabilityOversightMember, CapabilityPartner, CapabilityAdmin:
		return c, nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// VotingSession is one voting round for a proposal.
type VotingSession struct {
	ID                string     `json:"id"`
	ProposalID        string     `json:"proposal_id"`
	Pathway           Pathway    `json:"pathway"`
	EligibleVoters    []string   `json:"eligible_voters"`
	Deadline          *time.Time `json:"deadline,omitempty"`
	FastTrackEligible bool       `json:"fast_track_eligible"`
	Tally             Tally      `json:"tally"`
	CreatedBy         string     `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	Outcome           Outcome    `json:"outcome,omitempty"`
}

// IsOpen reports whether the session still accepts votes.
func (s *VotingSession) IsOpen() bool {
	return s.ClosedAt == nil
}

// IsEligible reports whether voterID may vote in this session.
func (s *VotingSession) IsEligible(voterID string) bool {
	for _, v := range s.EligibleVoters {
		if v == voterID {
			return true
		}
	}
	return false
}

// Vote is one recorded ballot.
type Vote struct {
	ID               string                   `json:"id"`
	SessionID        string                   `json:"session_id"`
	ProposalID       string                   `json:"proposal_id"`
	VoterID          string                   `json:"voter_id"`
	Decision         VoteDecision             `json:"decision"`
	Pathway          Pathway                  `json:"pathway"`
	Reason           string                   `json:"reason"`
	Conditions       string                   `json:"conditions,omitempty"`
	Concerns         string                   `json:"concerns,omitempty"`
	CriteriaSnapshot CriteriaEvaluationResult `json:"criteria_snapshot"`
	CreatedAt        time.Time                `json:"created_at"`
}

// SamePayload reports whether other carries the same ballot content.
func (v *Vote) SamePayload(other *Vote) bool {
	return v.Decision == other.Decision &&
		v.Reason == other.Reason &&
		v.Conditions == other.Conditions &&
		v.Concerns == other.Concerns
}

// ── Auto decisions ───────────────────────────────────────────────────────────

// AutoDecision records a rule-driven decision that bypassed voting.
type AutoDecision struct {
	ID             string          `json:"id"`
	ProposalID     string          `json:"proposal_id"`
	Pathway        Pathway         `json:"pathway"`
	Outcome        OversightStatus `json:"outcome"`
	MatchedRuleIDs []string        `json:"matched_rule_ids"`
	DecidedBy      string          `json:"decided_by"`
	DecidedAt      time.Time       `json:"decided_at"`
}
