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

// ProposalService handles proposal intake and lifecycle
type ProposalService struct {
	stores     Stores
	governance *GovernanceService
	notifier   Notifier
	log        *logger.Logger
	now        func() time.Time
}

// NewProposalService creates a new proposal service. Submitted proposals are
// routed through gov.
func NewProposalService(
	stores Stores,
	gov *GovernanceService,
	notifier Notifier,
	log *logger.Logger,
) *ProposalService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &ProposalService{
		stores:     stores,
		governance: gov,
		notifier:   notifier,
		log:        log,
		now:        time.Now,
	}
}

// WithClock overrides the time source.
func (s *ProposalService) WithClock(now func() time.Time) *ProposalService {
	s.now = now
	return s
}

// ProposalRequest carries the editable fields of a proposal
type ProposalRequest struct {
	Title              string                       `json:"title"`
	Problem            string                       `json:"problem"`
	Solution           string                       `json:"solution"`
	Team               string                       `json:"team"`
	Cost               *int64                       `json:"cost,omitempty"`
	TimeSavings        []governance.TimeSavingEntry `json:"time_savings"`
	RiskScore          *int                         `json:"risk_score,omitempty"`
	DataClassification *string                      `json:"data_classification,omitempty"`
	EscalationTriggers []string                     `json:"escalation_triggers,omitempty"`
}

// SubmitResult is the outcome of submitting a proposal
type SubmitResult struct {
	Proposal *governance.Proposal `json:"proposal"`
	Routing  *RoutingResult       `json:"routing"`
}

// CreateProposal validates and stores a draft proposal.
func (s *ProposalService) CreateProposal(ctx context.Context, req *ProposalRequest, submittedBy string) (*governance.Proposal, error) {
	if strings.TrimSpace(submittedBy) == "" {
		return nil, errors.InvalidInput("submitted_by", "submitter identity is required")
	}
	p, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	p.SubmittedBy = submittedBy
	p.Status = governance.StatusDraft
	p.OversightStatus = governance.OversightNotRequired

	if err := s.stores.Proposals.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("proposal_id", p.ID).
		Str("team", p.Team).
		Str("submitted_by", submittedBy).
		Int("time_saving_entries", len(p.TimeSavings)).
		Msg("Proposal created")

	after := string(p.Status)
	appendAudit(ctx, s.stores.Audit, s.log, &repository.AuditEntry{
		ProposalID:  p.ID,
		Action:      "created",
		PerformedBy: submittedBy,
		StatusAfter: &after,
	})
	return p, nil
}

// UpdateProposal replaces the editable fields of a draft. Only the submitter
// may edit it.
func (s *ProposalService) UpdateProposal(ctx context.Context, id string, req *ProposalRequest, actor string) (*governance.Proposal, error) {
	existing, err := s.stores.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.SubmittedBy != actor {
		return nil, errors.New(errors.ErrCodeUnauthorized, "only the submitter may edit a proposal")
	}
	if existing.Status != governance.StatusDraft {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot edit proposal with status '%s'", existing.Status))
	}

	p, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	p.ID = existing.ID
	if err := s.stores.Proposals.Update(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().Str("proposal_id", id).Msg("Proposal updated")
	return s.stores.Proposals.GetByID(ctx, id)
}

// build validates a request and returns the proposal it describes. Every
// field problem is reported at once.
func (s *ProposalService) build(ctx context.Context, req *ProposalRequest) (*governance.Proposal, error) {
	if req == nil {
		return nil, errors.InvalidInput("proposal", "request body is required")
	}
	var v errors.Validation

	p := &governance.Proposal{
		Title:              strings.TrimSpace(req.Title),
		Problem:            strings.TrimSpace(req.Problem),
		Solution:           strings.TrimSpace(req.Solution),
		Team:               strings.TrimSpace(req.Team),
		Cost:               req.Cost,
		RiskScore:          req.RiskScore,
		EscalationTriggers: compact(req.EscalationTriggers),
	}
	if p.Title == "" {
		v.Add("title", "title is required")
	}
	if p.Team == "" {
		v.Add("team", "team is required")
	}
	if req.DataClassification != nil {
		c, err := governance.ParseDataClassification(*req.DataClassification)
		if err != nil {
			v.Add("data_classification", "must be one of public, internal, confidential, restricted")
		} else {
			p.DataClassification = &c
		}
	}

	rates, err := s.stores.Rates.Current(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range req.TimeSavings {
		p.TimeSavings = append(p.TimeSavings, governance.TimeSavingEntry{StaffGrade: governance.NormalizeGrade(e.StaffGrade), HoursPerWeek: e.HoursPerWeek})
	}
	p.CheckFields(&v, rates)

	if err := v.Err(); err != nil {
		return nil, err
	}
	return p, nil
}

// GetProposal retrieves a proposal by ID
func (s *ProposalService) GetProposal(ctx context.Context, id string) (*governance.Proposal, error) {
	return s.stores.Proposals.GetByID(ctx, id)
}

// ListProposals lists proposals with filtering and pagination
func (s *ProposalService) ListProposals(ctx context.Context, f repository.ProposalFilter, page, pageSize int) ([]*governance.Proposal, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	f.Limit = pageSize
	f.Offset = (page - 1) * pageSize
	return s.stores.Proposals.List(ctx, f)
}

// SubmitProposal moves a draft to submitted and routes it.
func (s *ProposalService) SubmitProposal(ctx context.Context, id, actor string) (*SubmitResult, error) {
	p, err := s.stores.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.SubmittedBy != actor {
		return nil, errors.New(errors.ErrCodeUnauthorized, "only the submitter may submit a proposal")
	}
	if p.Status != governance.StatusDraft {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot submit proposal with status '%s'", p.Status))
	}
	if err := s.stores.Proposals.MarkSubmitted(ctx, id, s.now()); err != nil {
		return nil, err
	}

	s.log.Info().Str("proposal_id", id).Str("submitted_by", actor).Msg("Proposal submitted")

	before := string(governance.StatusDraft)
	after := string(governance.StatusSubmitted)
	appendAudit(ctx, s.stores.Audit, s.log, &repository.AuditEntry{
		ProposalID:   id,
		Action:       "submitted",
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
	})
	s.notifier.Notify(ctx, Event{
		Type:       EventProposalSubmitted,
		ProposalID: id,
		ActorID:    actor,
		Recipients: []string{actor},
		Payload:    map[string]interface{}{"title": p.Title, "team": p.Team},
	})

	routing, err := s.governance.RouteProposal(ctx, id, actor)
	if err != nil {
		// the proposal stays submitted and can be routed again
		return nil, err
	}
	updated, err := s.stores.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SubmitResult{Proposal: updated, Routing: routing}, nil
}

// StartImplementation moves an approved proposal to in_progress.
func (s *ProposalService) StartImplementation(ctx context.Context, id, actor string) (*governance.Proposal, error) {
	return s.advance(ctx, id, actor, governance.StatusApproved, governance.StatusInProgress, "implementation_started")
}

// CompleteImplementation moves an in-progress proposal to completed.
func (s *ProposalService) CompleteImplementation(ctx context.Context, id, actor string) (*governance.Proposal, error) {
	return s.advance(ctx, id, actor, governance.StatusInProgress, governance.StatusCompleted, "implementation_completed")
}

func (s *ProposalService) advance(ctx context.Context, id, actor string, from, to governance.LifecycleStatus, action string) (*governance.Proposal, error) {
	p, err := s.stores.Proposals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != from {
		return nil, errors.New(errors.ErrCodeConflict,
			fmt.Sprintf("cannot move proposal from '%s' to '%s'", p.Status, to))
	}
	if err := s.stores.Proposals.UpdateStatus(ctx, id, to, p.OversightStatus); err != nil {
		return nil, err
	}

	s.log.Info().Str("proposal_id", id).Str("status", string(to)).Str("actor", actor).Msg("Proposal lifecycle advanced")

	before, after := string(from), string(to)
	appendAudit(ctx, s.stores.Audit, s.log, &repository.AuditEntry{
		ProposalID:   id,
		Action:       action,
		PerformedBy:  actor,
		StatusBefore: &before,
		StatusAfter:  &after,
	})
	return s.stores.Proposals.GetByID(ctx, id)
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
