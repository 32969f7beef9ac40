package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// ProposalStore persists proposals.
type ProposalStore interface {
	Create(ctx context.Context, p *governance.Proposal) error
	GetByID(ctx context.Context, id string) (*governance.Proposal, error)
	List(ctx context.Context, f repository.ProposalFilter) ([]*governance.Proposal, error)
	Update(ctx context.Context, p *governance.Proposal) error
	MarkSubmitted(ctx context.Context, id string, at time.Time) error
	UpdateStatus(ctx context.Context, id string, status governance.LifecycleStatus, oversight governance.OversightStatus) error
}

// RateStore persists versioned rate tables.
type RateStore interface {
	Current(ctx context.Context) (*governance.RateTable, error)
	Save(ctx context.Context, t *governance.RateTable) error
}

// RuleStore persists auto-approval rules.
type RuleStore interface {
	Create(ctx context.Context, rule *governance.AutoApprovalRule) error
	GetByID(ctx context.Context, id string) (*governance.AutoApprovalRule, error)
	List(ctx context.Context, activeOnly bool) ([]*governance.AutoApprovalRule, error)
	Update(ctx context.Context, rule *governance.AutoApprovalRule) error
	Delete(ctx context.Context, id string) error
}

// VotingStore persists sessions and votes. CastVote and CloseIfDecided must
// tally and close atomically per session.
type VotingStore interface {
	CreateSessionIfNone(ctx context.Context, s *governance.VotingSession) (*governance.VotingSession, bool, error)
	GetSession(ctx context.Context, id string) (*governance.VotingSession, error)
	GetOpenSession(ctx context.Context, proposalID string) (*governance.VotingSession, error)
	ListSessions(ctx context.Context, proposalID string) ([]*governance.VotingSession, error)
	ListVotes(ctx context.Context, sessionID string) ([]*governance.Vote, error)
	CastVote(ctx context.Context, v *governance.Vote, decide repository.DecideFunc) (*repository.CastVoteResult, error)
	CloseIfDecided(ctx context.Context, sessionID string, now time.Time, decide repository.DecideFunc) (*repository.CloseResult, error)
}

// AutoDecisionStore records rule-driven decisions exactly once.
type AutoDecisionStore interface {
	Record(ctx context.Context, d *governance.AutoDecision) error
	GetByProposalID(ctx context.Context, proposalID string) (*governance.AutoDecision, error)
}

// CapabilityStore resolves eligible voters.
type CapabilityStore interface {
	Grant(ctx context.Context, g *repository.CapabilityGrant) error
	Revoke(ctx context.Context, identity string, c governance.Capability) error
	Holders(ctx context.Context, c governance.Capability) ([]string, error)
	ListGrants(ctx context.Context) ([]*repository.CapabilityGrant, error)
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	Append(ctx context.Context, entry *repository.AuditEntry) error
	ListByProposal(ctx context.Context, proposalID string) ([]*repository.AuditEntry, error)
}

// ReviewStore persists implementation reviews.
type ReviewStore interface {
	Create(ctx context.Context, rv *governance.ImplementationReview) error
	ListByProposal(ctx context.Context, proposalID string) ([]*governance.ImplementationReview, error)
	ListSince(ctx context.Context, since time.Time) ([]*governance.ImplementationReview, error)
}

// ValuationStore persists pinned valuations.
type ValuationStore interface {
	Create(ctx context.Context, v *governance.Valuation) error
	// Latest returns the newest valuation pinned for reason, or for any
	// reason when reason is empty.
	Latest(ctx context.Context, proposalID, reason string) (*governance.Valuation, error)
}

// Stores bundles every store the services need.
type Stores struct {
	Proposals    ProposalStore
	Rates        RateStore
	Rules        RuleStore
	Voting       VotingStore
	AutoDecision AutoDecisionStore
	Capabilities CapabilityStore
	Audit        AuditStore
	Reviews      ReviewStore
	Valuations   ValuationStore
}

// Notifier publishes governance events. Implementations must not block the
// caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// Event is a governance notification.
type Event struct {
	Type       string
	ProposalID string
	SessionID  string
	ActorID    string
	Recipients []string
	Payload    map[string]interface{}
}

// Notification event types.
const (
	EventProposalSubmitted = "proposal_submitted"
	EventVoteRequired      = "vote_required"
	EventSessionClosed     = "session_closed"
	EventAutoDecided       = "auto_decided"
	EventRuleConflict      = "rule_conflict"
	EventPolicyUpdated     = "policy_updated"
	EventReviewRecorded    = "review_recorded"
)

// Recorder receives service metrics. The zero implementation is NopRecorder.
type Recorder interface {
	VoteCast(pathway governance.Pathway, decision governance.VoteDecision)
	SessionOpened(pathway governance.Pathway)
	SessionClosed(pathway governance.Pathway, outcome governance.Outcome)
	AutoDecided(outcome governance.OversightStatus)
	RuleConflict()
	MissingRate(grade string)
	ReviewRecorded(accuracy governance.Accuracy)
}

// NopRecorder discards metrics.
type NopRecorder struct{}

func (NopRecorder) VoteCast(governance.Pathway, governance.VoteDecision) {}
func (NopRecorder) SessionOpened(governance.Pathway) {}
func (NopRecorder) SessionClosed(governance.Pathway, governance.Outcome) {}
func (NopRecorder) AutoDecided(governance.OversightStatus) {}
func (NopRecorder) RuleConflict() {}
func (NopRecorder) MissingRate(string) {}
func (NopRecorder) ReviewRecorded(governance.Accuracy) {}
