package memory

import (
	"context"
	"sort"
	"time"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

// ProposalStore is the in-memory proposal table.
type ProposalStore struct{ db *DB }

func (s *ProposalStore) Create(_ context.Context, p *governance.Proposal) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	now := s.db.now()
	p.ID = newID()
	p.CreatedAt, p.UpdatedAt = now, now
	s.db.proposals[p.ID] = copyProposal(p)
	return nil
}

func (s *ProposalStore) GetByID(_ context.Context, id string) (*governance.Proposal, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.proposals[id]
	if !ok {
		return nil, errors.NotFound("proposal", id)
	}
	return copyProposal(p), nil
}

func (s *ProposalStore) List(_ context.Context, f repository.ProposalFilter) ([]*governance.Proposal, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	var out []*governance.Proposal
	for _, p := range s.db.proposals {
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if f.OversightStatus != "" && p.OversightStatus != f.OversightStatus {
			continue
		}
		if f.Team != "" && !equalFoldTrim(f.Team, p.Team) {
			continue
		}
		out = append(out, copyProposal(p))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *ProposalStore) Update(_ context.Context, p *governance.Proposal) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	stored, ok := s.db.proposals[p.ID]
	if !ok || stored.Status != governance.StatusDraft {
		return errors.New(errors.ErrCodeConflict, "proposal not found or no longer a draft")
	}
	updated := copyProposal(p)
	updated.SubmittedBy = stored.SubmittedBy
	updated.Status = stored.Status
	updated.OversightStatus = stored.OversightStatus
	updated.SubmittedAt = stored.SubmittedAt
	updated.ReviewedAt = stored.ReviewedAt
	updated.CreatedAt = stored.CreatedAt
	updated.UpdatedAt = s.db.now()
	p.UpdatedAt = updated.UpdatedAt
	s.db.proposals[p.ID] = updated
	return nil
}

func (s *ProposalStore) MarkSubmitted(_ context.Context, id string, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	p, ok := s.db.proposals[id]
	if !ok || p.Status != governance.StatusDraft {
		return errors.New(errors.ErrCodeConflict, "proposal not found or not in draft status")
	}
	p.Status = governance.StatusSubmitted
	p.OversightStatus = governance.OversightPendingReview
	p.SubmittedAt = &at
	p.UpdatedAt = s.db.now()
	return nil
}

func (s *ProposalStore) UpdateStatus(_ context.Context, id string, status governance.LifecycleStatus, oversight governance.OversightStatus) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return s.db.setProposalStatus(id, status, oversight, nil)
}

// setProposalStatus requires db.mu.
func (db *DB) setProposalStatus(id string, status governance.LifecycleStatus, oversight governance.OversightStatus, reviewedAt *time.Time) error {
	p, ok := db.proposals[id]
	if !ok {
		return errors.NotFound("proposal", id)
	}
	p.Status = status
	p.OversightStatus = oversight
	if reviewedAt != nil {
		p.ReviewedAt = copyTime(reviewedAt)
	}
	p.UpdatedAt = db.now()
	return nil
}
