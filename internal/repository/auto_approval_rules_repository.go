package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

const ruleColumns = `
	id, name, description, is_active,
	max_cost, max_risk_score, allowed_classifications, allowed_teams,
	require_all_conditions, auto_approve, priority, created_by,
	created_at, updated_at`

// AutoApprovalRulesRepository handles CRUD for auto_approval_rules. Matching
// happens in the governance package; this type only loads and stores.
type AutoApprovalRulesRepository struct {
	db *database.DB
}

// NewAutoApprovalRulesRepository creates a new AutoApprovalRulesRepository.
func NewAutoApprovalRulesRepository(db *database.DB) *AutoApprovalRulesRepository {
	return &AutoApprovalRulesRepository{db: db}
}

// Create inserts a new rule.
func (r *AutoApprovalRulesRepository) Create(ctx context.Context, rule *governance.AutoApprovalRule) error {
	classes, teams, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO auto_approval_rules
		    (name, description, is_active,
		     max_cost, max_risk_score, allowed_classifications, allowed_teams,
		     require_all_conditions, auto_approve, priority, created_by)
		VALUES ($1, $2, $3,
		        $4, $5, $6, $7,
		        $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.Name,
		rule.Description,
		rule.IsActive,
		rule.MaxCost,
		rule.MaxRiskScore,
		classes,
		teams,
		rule.RequireAllConditions,
		rule.AutoApprove,
		rule.Priority,
		rule.CreatedBy,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
	if database.IsUniqueViolation(err, constraintRuleNameUnique) {
		return errors.New(errors.ErrCodeConflict, "a rule named "+rule.Name+" already exists")
	}
	return err
}

// GetByID retrieves a rule by primary key.
func (r *AutoApprovalRulesRepository) GetByID(ctx context.Context, id string) (*governance.AutoApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM auto_approval_rules WHERE id = $1`

	rule, err := scanRule(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("auto_approval_rule", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get auto-approval rule")
	}
	return rule, nil
}

// List returns rules, optionally active only, in evaluation order.
func (r *AutoApprovalRulesRepository) List(ctx context.Context, activeOnly bool) ([]*governance.AutoApprovalRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM auto_approval_rules`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY priority ASC, name ASC, id ASC"

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list auto-approval rules")
	}
	defer rows.Close()

	var rules []*governance.AutoApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan auto-approval rule")
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Update persists changes to an existing rule.
func (r *AutoApprovalRulesRepository) Update(ctx context.Context, rule *governance.AutoApprovalRule) error {
	classes, teams, err := marshalRuleLists(rule)
	if err != nil {
		return err
	}

	query := `
		UPDATE auto_approval_rules
		SET name                    = $2,
		    description             = $3,
		    is_active               = $4,
		    max_cost                = $5,
		    max_risk_score          = $6,
		    allowed_classifications = $7,
		    allowed_teams           = $8,
		    require_all_conditions  = $9,
		    auto_approve            = $10,
		    priority                = $11,
		    updated_at              = NOW()
		WHERE id = $1
		RETURNING created_by, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		rule.ID,
		rule.Name,
		rule.Description,
		rule.IsActive,
		rule.MaxCost,
		rule.MaxRiskScore,
		classes,
		teams,
		rule.RequireAllConditions,
		rule.AutoApprove,
		rule.Priority,
	).Scan(&rule.CreatedBy, &rule.CreatedAt, &rule.UpdatedAt)

	switch {
	case err == pgx.ErrNoRows:
		return errors.NotFound("auto_approval_rule", rule.ID)
	case database.IsUniqueViolation(err, constraintRuleNameUnique):
		return errors.New(errors.ErrCodeConflict, "a rule named "+rule.Name+" already exists")
	}
	return err
}

// Delete removes a rule. Past auto decisions keep the id for audit.
func (r *AutoApprovalRulesRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM auto_approval_rules WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete auto-approval rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("auto_approval_rule", id)
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func marshalRuleLists(rule *governance.AutoApprovalRule) ([]byte, []byte, error) {
	classes := rule.AllowedClassifications
	if classes == nil {
		classes = []governance.DataClassification{}
	}
	classesJSON, err := json.Marshal(classes)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal allowed classifications")
	}
	teams := rule.AllowedTeams
	if teams == nil {
		teams = []string{}
	}
	teamsJSON, err := json.Marshal(teams)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal allowed teams")
	}
	return classesJSON, teamsJSON, nil
}

func scanRule(row rowScanner) (*governance.AutoApprovalRule, error) {
	rule := &governance.AutoApprovalRule{}
	var classesJSON, teamsJSON []byte

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.IsActive,
		&rule.MaxCost,
		&rule.MaxRiskScore,
		&classesJSON,
		&teamsJSON,
		&rule.RequireAllConditions,
		&rule.AutoApprove,
		&rule.Priority,
		&rule.CreatedBy,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(classesJSON, &rule.AllowedClassifications); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(teamsJSON, &rule.AllowedTeams); err != nil {
		return nil, err
	}
	return rule, nil
}
