package repository

import (
	"context"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
)

// CapabilityRepository stores voter capability grants.
type CapabilityRepository struct {
	db *database.DB
}

// NewCapabilityRepository creates a new CapabilityRepository.
func NewCapabilityRepository(db *database.DB) *CapabilityRepository {
	return &CapabilityRepository{db: db}
}

// Grant records g. Granting an existing capability is a no-op.
func (r *CapabilityRepository) Grant(ctx context.Context, g *CapabilityGrant) error {
	query := `
		INSERT INTO capability_grants (identity, capability, granted_by)
		VALUES ($1, $2, $3)
		ON CONFLICT ON CONSTRAINT ` + constraintCapabilityGranted + ` DO NOTHING
	`
	if _, err := r.db.Exec(ctx, query, g.Identity, string(g.Capability), g.GrantedBy); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to grant capability")
	}
	return nil
}

// Revoke removes a grant. Sessions already opened keep their voter snapshot.
func (r *CapabilityRepository) Revoke(ctx context.Context, identity string, c governance.Capability) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM capability_grants WHERE identity = $1 AND capability = $2`, identity, string(c))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to revoke capability")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("capability_grant", identity+"/"+string(c))
	}
	return nil
}

// Holders lists identities holding c, sorted.
func (r *CapabilityRepository) Holders(ctx context.Context, c governance.Capability) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT identity FROM capability_grants WHERE capability = $1 ORDER BY identity`, string(c))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list capability holders")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan capability holder")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGrants returns every grant, ordered by capability then identity.
func (r *CapabilityRepository) ListGrants(ctx context.Context) ([]*CapabilityGrant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT identity, capability, granted_by, granted_at FROM capability_grants ORDER BY capability, identity`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list capability grants")
	}
	defer rows.Close()

	var grants []*CapabilityGrant
	for rows.Next() {
		g := &CapabilityGrant{}
		var c string
		if err := rows.Scan(&g.Identity, &c, &g.GrantedBy, &g.GrantedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan capability grant")
		}
		g.Capability = governance.Capability(c)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
