package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

const proposalColumns = `
	id, title, problem, solution, team, submitted_by,
	cost, time_savings, risk_score, data_classification, escalation_triggers,
	status, oversight_status, submitted_at, reviewed_at, created_at, updated_at`

// ProposalRepository handles CRUD for proposals.
type ProposalRepository struct {
	db *database.DB
}

// NewProposalRepository creates a new ProposalRepository.
func NewProposalRepository(db *database.DB) *ProposalRepository {
	return &ProposalRepository{db: db}
}

// Create inserts a draft proposal.
func (r *ProposalRepository) Create(ctx context.Context, p *governance.Proposal) error {
	savings, triggers, err := marshalProposalLists(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO proposals
		    (title, problem, solution, team, submitted_by,
		     cost, time_savings, risk_score, data_classification, escalation_triggers,
		     status, oversight_status)
		VALUES ($1, $2, $3, $4, $5,
		        $6, $7, $8, $9, $10,
		        $11, $12)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		p.Title,
		p.Problem,
		p.Solution,
		p.Team,
		p.SubmittedBy,
		p.Cost,
		savings,
		p.RiskScore,
		classificationArg(p.DataClassification),
		triggers,
		string(p.Status),
		string(p.OversightStatus),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

// GetByID retrieves a proposal by primary key.
func (r *ProposalRepository) GetByID(ctx context.Context, id string) (*governance.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`

	p, err := scanProposal(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("proposal", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get proposal")
	}
	return p, nil
}

// List returns proposals newest first.
func (r *ProposalRepository) List(ctx context.Context, f ProposalFilter) ([]*governance.Proposal, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.OversightStatus != "" {
		args = append(args, string(f.OversightStatus))
		conds = append(conds, fmt.Sprintf("oversight_status = $%d", len(args)))
	}
	if f.Team != "" {
		args = append(args, f.Team)
		conds = append(conds, fmt.Sprintf("LOWER(team) = LOWER($%d)", len(args)))
	}

	query := `SELECT ` + proposalColumns + ` FROM proposals`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list proposals")
	}
	defer rows.Close()

	var proposals []*governance.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan proposal")
		}
		proposals = append(proposals, p)
	}
	return proposals, rows.Err()
}

// Update persists the editable fields of a draft proposal.
func (r *ProposalRepository) Update(ctx context.Context, p *governance.Proposal) error {
	savings, triggers, err := marshalProposalLists(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE proposals
		SET title               = $2,
		    problem             = $3,
		    solution            = $4,
		    team                = $5,
		    cost                = $6,
		    time_savings        = $7,
		    risk_score          = $8,
		    data_classification = $9,
		    escalation_triggers = $10,
		    updated_at          = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		p.ID,
		p.Title,
		p.Problem,
		p.Solution,
		p.Team,
		p.Cost,
		savings,
		p.RiskScore,
		classificationArg(p.DataClassification),
		triggers,
	).Scan(&p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "proposal not found or no longer a draft")
	}
	return err
}

// MarkSubmitted moves a draft to submitted.
func (r *ProposalRepository) MarkSubmitted(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE proposals
		SET status           = 'submitted',
		    oversight_status = 'pending_review',
		    submitted_at     = $2,
		    updated_at       = NOW()
		WHERE id = $1 AND status = 'draft'
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, at).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.New(errors.ErrCodeConflict, "proposal not found or not in draft status")
	}
	return err
}

// UpdateStatus sets lifecycle and oversight status outside a vote, for
// example when an approved proposal moves into implementation.
func (r *ProposalRepository) UpdateStatus(ctx context.Context, id string, status governance.LifecycleStatus, oversight governance.OversightStatus) error {
	return updateProposalStatus(ctx, r.db, id, status, oversight, nil)
}

// ── shared helpers ───────────────────────────────────────────────────────────

// execer is satisfied by both *database.DB and pgx.Tx.
type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func updateProposalStatus(ctx context.Context, q execer, id string, status governance.LifecycleStatus, oversight governance.OversightStatus, reviewedAt *time.Time) error {
	query := `
		UPDATE proposals
		SET status           = $2,
		    oversight_status = $3,
		    reviewed_at      = COALESCE($4, reviewed_at),
		    updated_at       = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, id, string(status), string(oversight), reviewedAt).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("proposal", id)
	}
	return err
}

// lockProposal takes a row lock on the proposal for the rest of tx.
func lockProposal(ctx context.Context, tx pgx.Tx, id string) (*governance.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1 FOR UPDATE`
	p, err := scanProposal(tx.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("proposal", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to lock proposal")
	}
	return p, nil
}

func marshalProposalLists(p *governance.Proposal) ([]byte, []byte, error) {
	savings := p.TimeSavings
	if savings == nil {
		savings = []governance.TimeSavingEntry{}
	}
	savingsJSON, err := json.Marshal(savings)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal time savings")
	}
	triggers := p.EscalationTriggers
	if triggers == nil {
		triggers = []string{}
	}
	triggersJSON, err := json.Marshal(triggers)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal escalation triggers")
	}
	return savingsJSON, triggersJSON, nil
}

func classificationArg(c *governance.DataClassification) *string {
	if c == nil {
		return nil
	}
	s := string(*c)
	return &s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*governance.Proposal, error) {
	p := &governance.Proposal{}
	var (
		savingsJSON, triggersJSON []byte
		classification            *string
		status, oversight         string
	)

	err := row.Scan(
		&p.ID,
		&p.Title,
		&p.Problem,
		&p.Solution,
		&p.Team,
		&p.SubmittedBy,
		&p.Cost,
		&savingsJSON,
		&p.RiskScore,
		&classification,
		&triggersJSON,
		&status,
		&oversight,
		&p.SubmittedAt,
		&p.ReviewedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = governance.LifecycleStatus(status)
	p.OversightStatus = governance.OversightStatus(oversight)
	if classification != nil {
		c := governance.DataClassification(*classification)
		p.DataClassification = &c
	}
	if err := json.Unmarshal(savingsJSON, &p.TimeSavings); err != nil {
		return nil, fmt.Errorf("unmarshal time savings: %w", err)
	}
	if err := json.Unmarshal(triggersJSON, &p.EscalationTriggers); err != nil {
		return nil, fmt.Errorf("unmarshal escalation triggers: %w", err)
	}
	return p, nil
}
