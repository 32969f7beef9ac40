package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// AutoDecisionRepository records rule-driven decisions. A proposal can be
// auto-decided at most once, never while a voting session is open and never
// after a session has decided it.
type AutoDecisionRepository struct {
	db *database.DB
}

// NewAutoDecisionRepository creates a new AutoDecisionRepository.
func NewAutoDecisionRepository(db *database.DB) *AutoDecisionRepository {
	return &AutoDecisionRepository{db: db}
}

// Record inserts d and settles the proposal in one transaction.
func (r *AutoDecisionRepository) Record(ctx context.Context, d *governance.AutoDecision) error {
	ruleIDs, err := json.Marshal(nonNil(d.MatchedRuleIDs))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal matched rule ids")
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		p, err := lockProposal(ctx, tx, d.ProposalID)
		if err != nil {
			return err
		}
		if p.OversightStatus.Decided() {
			return errors.New(errors.ErrCodeConflict, "proposal is already decided")
		}

		var open, decided bool
		if err := tx.QueryRow(ctx, `
			SELECT
			    EXISTS (SELECT 1 FROM voting_sessions WHERE proposal_id = $1 AND closed_at IS NULL),
			    EXISTS (SELECT 1 FROM voting_sessions WHERE proposal_id = $1 AND outcome IN ('approved', 'rejected'))
		`, d.ProposalID).Scan(&open, &decided); err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to check voting sessions")
		}
		if decided {
			return errors.New(errors.ErrCodeConflict, "proposal is already decided")
		}
		if open {
			return errors.New(errors.ErrCodeConflict, "proposal has an open voting session")
		}

		query := `
			INSERT INTO auto_decisions
			    (proposal_id, pathway, outcome, matched_rule_ids, decided_by, decided_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id
		`
		err = tx.QueryRow(ctx, query,
			d.ProposalID,
			string(d.Pathway),
			string(d.Outcome),
			ruleIDs,
			d.DecidedBy,
			d.DecidedAt,
		).Scan(&d.ID)
		if database.IsUniqueViolation(err, constraintAutoDecisionOnce) {
			return errors.New(errors.ErrCodeConflict, "proposal was already decided automatically")
		}
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to record auto decision")
		}

		status := governance.StatusApproved
		if d.Outcome == governance.OversightRejected {
			status = governance.StatusRejected
		}
		return updateProposalStatus(ctx, tx, d.ProposalID, status, d.Outcome, &d.DecidedAt)
	})
}

// GetByProposalID returns the auto decision for a proposal, or nil.
func (r *AutoDecisionRepository) GetByProposalID(ctx context.Context, proposalID string) (*governance.AutoDecision, error) {
	query := `
		SELECT id, proposal_id, pathway, outcome, matched_rule_ids, decided_by, decided_at
		FROM auto_decisions
		WHERE proposal_id = $1
	`

	d := &governance.AutoDecision{}
	var (
		pathway, outcome string
		ruleIDs          []byte
	)
	err := r.db.QueryRow(ctx, query, proposalID).Scan(
		&d.ID, &d.ProposalID, &pathway, &outcome, &ruleIDs, &d.DecidedBy, &d.DecidedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get auto decision")
	}
	d.Pathway = governance.Pathway(pathway)
	d.Outcome = governance.OversightStatus(outcome)
	if err := json.Unmarshal(ruleIDs, &d.MatchedRuleIDs); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal matched rule ids")
	}
	return d, nil
}
