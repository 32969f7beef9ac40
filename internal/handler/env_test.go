package handler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository/memory"
	"github.com/pesio-ai/be-ai-governance/internal/service"
)

type env struct {
	gov       *service.GovernanceService
	proposals *service.ProposalService
	policy    *service.PolicyService
	reviews   *service.ReviewService
}

// newEnv wires the services over an in-memory store with three fast-track
// voters, one admin and a rate table.
func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	db := memory.New()
	stores := service.Stores{
		Proposals:    db.Proposals(),
		Rates:        db.Rates(),
		Rules:        db.Rules(),
		Voting:       db.Voting(),
		AutoDecision: db.AutoDecisions(),
		Capabilities: db.Capabilities(),
		Audit:        db.Audit(),
		Reviews:      db.Reviews(),
		Valuations:   db.Valuations(),
	}
	log := logger.Nop()

	e := &env{}
	e.gov = service.NewGovernanceService(stores, governance.DefaultPolicy(), nil, nil, log)
	e.proposals = service.NewProposalService(stores, e.gov, nil, log)
	e.policy = service.NewPolicyService(stores, nil, log)
	e.reviews = service.NewReviewService(stores, e.gov, nil, nil, log)

	for _, id := range []string{"ft-1", "ft-2", "ft-3"} {
		_, err := e.policy.SeedCapability(ctx, id, string(governance.CapabilityFastTrackVoter))
		require.NoError(t, err)
	}
	_, err := e.policy.SeedCapability(ctx, "admin-1", string(governance.CapabilityAdmin))
	require.NoError(t, err)

	require.NoError(t, e.policy.SeedRateTable(ctx, &governance.RateTable{
		Version: "2026.1",
		Entries: []governance.RateEntry{
			{Grade: "associate", HourlyRate: 15_000, EffectiveFrom: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		},
	}))
	return e
}
