package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-ai-governance/internal/common/errors"
	"github.com/pesio-ai/be-ai-governance/internal/common/logger"
	"github.com/pesio-ai/be-ai-governance/internal/governance"
	"github.com/pesio-ai/be-ai-governance/internal/repository"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Event) {}

// appendAudit writes an audit entry and logs a warning on failure. The audit
// log never fails the operation it records.
func appendAudit(ctx context.Context, audit AuditStore, log *logger.Logger, entry *repository.AuditEntry) {
	if err := audit.Append(ctx, entry); err != nil {
		log.Warn().
			Err(err).
			Str("proposal_id", entry.ProposalID).
			Str("action", entry.Action).
			Msg("Failed to write audit entry")
	}
}

// requireCapability fails UNAUTHORIZED unless identity holds c.
func requireCapability(ctx context.Context, caps CapabilityStore, identity string, c governance.Capability) error {
	if identity == "" {
		return errors.New(errors.ErrCodeUnauthorized, "caller identity is required")
	}
	holders, err := caps.Holders(ctx, c)
	if err != nil {
		return err
	}
	for _, h := range holders {
		if h == identity {
			return nil
		}
	}
	return errors.New(errors.ErrCodeUnauthorized, fmt.Sprintf("%s capability required", c))
}
