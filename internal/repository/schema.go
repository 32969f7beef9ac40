package repository

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ai-governance/internal/common/database"
)

// Constraint names the repositories translate into typed errors.
const (
	constraintVoteUnique        = "votes_proposal_voter_pathway_key"
	constraintOneOpenSession    = "voting_sessions_one_open_idx"
	constraintAutoDecisionOnce  = "auto_decisions_proposal_id_key"
	constraintRuleNameUnique    = "auto_approval_rules_name_key"
	constraintCapabilityGranted = "capability_grants_pkey"
)

// Schema is the governance database schema. Statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS proposals (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    title               TEXT NOT NULL DEFAULT '',
    problem             TEXT NOT NULL DEFAULT '',
    solution            TEXT NOT NULL DEFAULT '',
    team                TEXT NOT NULL DEFAULT '',
    submitted_by        TEXT NOT NULL,
    cost                BIGINT,
    time_savings        JSONB NOT NULL DEFAULT '[]',
    risk_score          INTEGER,
    data_classification TEXT,
    escalation_triggers JSONB NOT NULL DEFAULT '[]',
    status              TEXT NOT NULL DEFAULT 'draft',
    oversight_status    TEXT NOT NULL DEFAULT 'not_required',
    submitted_at        TIMESTAMPTZ,
    reviewed_at         TIMESTAMPTZ,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS proposals_status_idx ON proposals (status, created_at DESC);

CREATE TABLE IF NOT EXISTS rate_tables (
    version    TEXT PRIMARY KEY,
    entries    JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS auto_approval_rules (
    id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name                    TEXT NOT NULL,
    description             TEXT NOT NULL DEFAULT '',
    is_active               BOOLEAN NOT NULL DEFAULT TRUE,
    max_cost                BIGINT,
    max_risk_score          INTEGER,
    allowed_classifications JSONB NOT NULL DEFAULT '[]',
    allowed_teams           JSONB NOT NULL DEFAULT '[]',
    require_all_conditions  BOOLEAN NOT NULL DEFAULT TRUE,
    auto_approve            BOOLEAN NOT NULL DEFAULT TRUE,
    priority                INTEGER NOT NULL DEFAULT 100,
    created_by              TEXT NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT auto_approval_rules_name_key UNIQUE (name)
);

CREATE TABLE IF NOT EXISTS voting_sessions (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    proposal_id         UUID NOT NULL REFERENCES proposals (id),
    pathway             TEXT NOT NULL,
    eligible_voters     JSONB NOT NULL DEFAULT '[]',
    deadline            TIMESTAMPTZ,
    fast_track_eligible BOOLEAN NOT NULL DEFAULT FALSE,
    approvals           INTEGER NOT NULL DEFAULT 0,
    rejections          INTEGER NOT NULL DEFAULT 0,
    abstentions         INTEGER NOT NULL DEFAULT 0,
    deferrals           INTEGER NOT NULL DEFAULT 0,
    total_votes         INTEGER NOT NULL DEFAULT 0,
    created_by          TEXT NOT NULL,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    closed_at           TIMESTAMPTZ,
    outcome             TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS voting_sessions_one_open_idx
    ON voting_sessions (proposal_id) WHERE closed_at IS NULL;

CREATE TABLE IF NOT EXISTS votes (
    id                UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    session_id        UUID NOT NULL REFERENCES voting_sessions (id),
    proposal_id       UUID NOT NULL REFERENCES proposals (id),
    voter_id          TEXT NOT NULL,
    decision          TEXT NOT NULL,
    pathway           TEXT NOT NULL,
    reason            TEXT NOT NULL DEFAULT '',
    conditions        TEXT NOT NULL DEFAULT '',
    concerns          TEXT NOT NULL DEFAULT '',
    criteria_snapshot JSONB NOT NULL,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT votes_proposal_voter_pathway_key UNIQUE (proposal_id, voter_id, pathway)
);
CREATE INDEX IF NOT EXISTS votes_session_idx ON votes (session_id, created_at);

CREATE TABLE IF NOT EXISTS auto_decisions (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    proposal_id      UUID NOT NULL REFERENCES proposals (id),
    pathway          TEXT NOT NULL,
    outcome          TEXT NOT NULL,
    matched_rule_ids JSONB NOT NULL DEFAULT '[]',
    decided_by       TEXT NOT NULL,
    decided_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT auto_decisions_proposal_id_key UNIQUE (proposal_id)
);

CREATE TABLE IF NOT EXISTS capability_grants (
    identity   TEXT NOT NULL,
    capability TEXT NOT NULL,
    granted_by TEXT NOT NULL DEFAULT '',
    granted_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT capability_grants_pkey PRIMARY KEY (identity, capability)
);

CREATE TABLE IF NOT EXISTS audit_log (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    proposal_id   UUID NOT NULL,
    session_id    UUID,
    action        TEXT NOT NULL,
    performed_by  TEXT NOT NULL,
    performed_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    status_before TEXT,
    status_after  TEXT,
    metadata      JSONB
);
CREATE INDEX IF NOT EXISTS audit_log_proposal_idx ON audit_log (proposal_id, performed_at);

CREATE OR REPLACE FUNCTION audit_log_immutable() RETURNS TRIGGER AS $$
BEGIN
    RAISE EXCEPTION 'audit_log is append-only';
END;
$$ LANGUAGE plpgsql;
DROP TRIGGER IF EXISTS audit_log_no_mutation ON audit_log;
CREATE TRIGGER audit_log_no_mutation BEFORE UPDATE OR DELETE ON audit_log
    FOR EACH ROW EXECUTE FUNCTION audit_log_immutable();

CREATE TABLE IF NOT EXISTS implementation_reviews (
    id                       UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    proposal_id              UUID NOT NULL REFERENCES proposals (id),
    review_type              TEXT NOT NULL,
    projected_annual_value   BIGINT NOT NULL,
    projected_cost           BIGINT NOT NULL,
    actual_annual_value      BIGINT NOT NULL,
    actual_cost              BIGINT NOT NULL,
    variance_percentage      DOUBLE PRECISION NOT NULL,
    cost_variance_percentage DOUBLE PRECISION NOT NULL,
    accuracy                 TEXT NOT NULL,
    recommendation           TEXT NOT NULL,
    notes                    TEXT NOT NULL DEFAULT '',
    valuation_id             UUID,
    reviewed_by              TEXT NOT NULL,
    created_at               TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS implementation_reviews_created_idx ON implementation_reviews (created_at);

CREATE TABLE IF NOT EXISTS valuations (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    proposal_id UUID NOT NULL REFERENCES proposals (id),
    summary     JSONB NOT NULL,
    rates       JSONB NOT NULL,
    reason      TEXT NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS valuations_proposal_idx ON valuations (proposal_id, created_at DESC);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db *database.DB) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
