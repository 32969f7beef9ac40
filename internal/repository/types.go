package repository

import (
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// ── Persistence records not owned by the decision engine ─────────────────────

// AuditEntry is one immutable record in the governance audit log.
type AuditEntry struct {
	ID           string                 `json:"id"`
	ProposalID   string                 `json:"proposal_id"`
	SessionID    *string                `json:"session_id,omitempty"`
	Action       string                 `json:"action"` // created | submitted | session_opened | vote_cast | session_closed | auto_decided | reviewed | valuation_pinned
	PerformedBy  string                 `json:"performed_by"`
	PerformedAt  time.Time              `json:"performed_at"`
	StatusBefore *string                `json:"status_before,omitempty"`
	StatusAfter  *string                `json:"status_after,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// CapabilityGrant makes an identity an eligible voter on one pathway.
type CapabilityGrant struct {
	Identity   string                `json:"identity"`
	Capability governance.Capability `json:"capability"`
	GrantedBy  string                `json:"granted_by"`
	GrantedAt  time.Time             `json:"granted_at"`
}

// ProposalFilter narrows List results. Zero values mean no filter.
type ProposalFilter struct {
	Status          governance.LifecycleStatus
	OversightStatus governance.OversightStatus
	Team            string
	Limit           int
	Offset          int
}

// DecideFunc computes a session outcome from the locked session and its
// fresh tally. It runs inside the close transaction and must not block.
type DecideFunc func(session *governance.VotingSession, tally governance.Tally) governance.Outcome

// CastVoteResult reports what CastVote did.
type CastVoteResult struct {
	Vote    *governance.Vote
	Session *governance.VotingSession
	// Duplicate is set when an identical vote already existed.
	Duplicate bool
	// Closed is set when this vote closed the session.
	Closed bool
}

// CloseResult reports what CloseIfDecided did.
type CloseResult struct {
	Session *governance.VotingSession
	// Closed is set only when this call closed the session.
	Closed bool
}
