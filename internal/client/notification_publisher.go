package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-ai-governance/internal/service"
)

// Publisher sends raw messages. NATSClient satisfies it.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// NotificationPublisher publishes governance events to NATS for consumption
// by the notifications service.
//
// Subject convention: notifications.governance.<event_type>
type NotificationPublisher struct {
	pub Publisher
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Recipients   []string               `json:"recipients"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	IsActionable bool                   `json:"is_actionable,omitempty"`
	Severity     string                 `json:"severity"`
	Category     string                 `json:"category"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil pub disables publishing.
func NewNotificationPublisher(pub Publisher, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{pub: pub, log: log}
}

// Subject returns the NATS subject for an event type.
func Subject(eventType string) string {
	return fmt.Sprintf("notifications.governance.%s", eventType)
}

// PublishEvent publishes one event. Events without recipients are skipped.
func (p *NotificationPublisher) PublishEvent(ctx context.Context, e service.Event) error {
	if p.pub == nil || len(e.Recipients) == 0 {
		return nil
	}

	event := &NotificationEvent{
		EventType:    e.Type,
		ActorID:      e.ActorID,
		Recipients:   e.Recipients,
		ResourceType: "ai_proposal",
		ResourceID:   e.ProposalID,
		SessionID:    e.SessionID,
		IsActionable: e.Type == service.EventVoteRequired,
		Severity:     severity(e.Type),
		Category:     "ai_governance",
		Payload:      e.Payload,
	}
	if e.ProposalID == "" {
		event.ResourceType = "governance_policy"
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}

	subject := Subject(e.Type)
	if err := p.pub.Publish(ctx, subject, data); err != nil {
		return err
	}

	p.log.Debug().
		Str("subject", subject).
		Str("proposal_id", e.ProposalID).
		Int("recipients", len(e.Recipients)).
		Msg("notification: event published")
	return nil
}

func severity(eventType string) string {
	if eventType == service.EventRuleConflict {
		return "warning"
	}
	return "info"
}
