package client

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/pesio-ai/be-ai-governance/internal/service"
)

// FailureCounter counts notifications dropped after retries.
type FailureCounter interface {
	NotificationFailed(eventType string)
}

// RetryConfig bounds redelivery attempts.
type RetryConfig struct {
	BaseDelay  time.Duration
	MaxRetries uint64
	// Timeout caps one event's total delivery time.
	Timeout time.Duration
}

// AsyncNotifier delivers events in the background with Fibonacci backoff.
// Notify never blocks on delivery and delivery failures are logged and
// counted, never returned.
type AsyncNotifier struct {
	publisher *NotificationPublisher
	failures  FailureCounter
	retry     RetryConfig
	log       zerolog.Logger
	wg        sync.WaitGroup
}

// NewAsyncNotifier wraps publisher. failures may be nil.
func NewAsyncNotifier(publisher *NotificationPublisher, failures FailureCounter, cfg RetryConfig, log zerolog.Logger) *AsyncNotifier {
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	return &AsyncNotifier{publisher: publisher, failures: failures, retry: cfg, log: log}
}

var _ service.Notifier = (*AsyncNotifier)(nil)

// Notify schedules delivery of event.
func (n *AsyncNotifier) Notify(ctx context.Context, event service.Event) {
	// delivery outlives the request that triggered it
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.retry.Timeout)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()

		backoff := retry.WithMaxRetries(n.retry.MaxRetries, retry.NewFibonacci(n.retry.BaseDelay))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			if err := n.publisher.PublishEvent(ctx, event); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			n.log.Warn().
				Err(err).
				Str("event_type", event.Type).
				Str("proposal_id", event.ProposalID).
				Msg("notification: gave up publishing event (non-fatal)")
			if n.failures != nil {
				n.failures.NotificationFailed(event.Type)
			}
		}
	}()
}

// Wait blocks until in-flight deliveries finish or ctx ends.
func (n *AsyncNotifier) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
