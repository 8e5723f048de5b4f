// Package delivery fans one queued event out to every subscribed
// partner over signed webhooks.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hooklinehq/hookline/internal/domain"
)

// ErrSubscriptionLookup marks a fan-out that never started because the
// subscription store failed. Callers retry the whole event; no partner
// was contacted.
var ErrSubscriptionLookup = errors.New("subscription lookup failed")

// SubscriptionStore resolves the partners subscribed to an event type.
type SubscriptionStore interface {
	GetActiveSubscriptions(ctx context.Context, eventType string) ([]domain.ResolvedSubscription, error)
}

// WebhookSender delivers one event to one partner, retries included.
type WebhookSender interface {
	Send(ctx context.Context, partner domain.Partner, event domain.QueuedEvent) domain.DeliveryOutcome
}

// Breaker gates outbound calls per webhook URL.
type Breaker interface {
	Allow(url string) error
	RecordSuccess(url string)
	RecordFailure(url string)
}

// AnalyticsSink records per-partner delivery statistics.
// Implementations must be non-blocking and fire-and-forget.
type AnalyticsSink interface {
	RecordDelivery(ctx context.Context, partner domain.Partner, outcome domain.DeliveryOutcome)
}

// MetricsSink defines the interface for recording delivery metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	DeliveryAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	DeliveryOutcome(outcome string)
	PartnersSkipped(n int)
}

// FanoutResult aggregates one event's delivery across all partners.
type FanoutResult struct {
	EventID  string
	Outcomes []domain.DeliveryOutcome

	// Skipped counts partners dropped before dialing (inactive or no
	// webhook URL). Skips are not failures.
	Skipped int
}

// Err returns nil when every attempted delivery succeeded, otherwise an
// error carrying the first failure. Later failures are visible in
// Outcomes but only the first drives the job-level verdict.
func (r FanoutResult) Err() error {
	for _, o := range r.Outcomes {
		if o.Success {
			continue
		}
		reason := o.Error
		if reason == "" {
			reason = fmt.Sprintf("Status %d", o.StatusCode)
		}
		return fmt.Errorf("%s: Delivery to partner %s failed: %s", r.EventID, o.PartnerName, reason)
	}
	return nil
}

// Processor resolves subscriptions and runs the sequential fan-out.
type Processor struct {
	store     SubscriptionStore
	sender    WebhookSender
	breaker   Breaker       // optional, nil = disabled
	analytics AnalyticsSink // optional, nil = disabled
	metrics   MetricsSink   // optional, nil = disabled
}

func New(store SubscriptionStore, sender WebhookSender) *Processor {
	return &Processor{
		store:  store,
		sender: sender,
	}
}

// WithBreaker attaches a circuit breaker consulted before each dial.
func (p *Processor) WithBreaker(b Breaker) *Processor {
	p.breaker = b
	return p
}

// WithAnalytics attaches an analytics sink to the processor.
func (p *Processor) WithAnalytics(sink AnalyticsSink) *Processor {
	p.analytics = sink
	return p
}

// WithMetrics attaches a metrics sink to the processor.
func (p *Processor) WithMetrics(sink MetricsSink) *Processor {
	p.metrics = sink
	return p
}

// ProcessEvent delivers the event to every subscribed partner, one at a
// time in subscription order. A failed partner never stops the fan-out;
// all remaining partners are still attempted. The returned error is
// FanoutResult.Err(), so callers can treat the pair as (detail, verdict).
func (p *Processor) ProcessEvent(ctx context.Context, event domain.QueuedEvent) (FanoutResult, error) {
	result := FanoutResult{EventID: event.EventID}

	subs, err := p.store.GetActiveSubscriptions(ctx, event.EventType)
	if err != nil {
		return result, fmt.Errorf("%w for event %s: %v", ErrSubscriptionLookup, event.EventID, err)
	}

	if len(subs) == 0 {
		log.Printf("delivery: event=%s type=%s has no active subscriptions", event.EventID, event.EventType)
		return result, nil
	}

	for _, sub := range subs {
		partner := sub.Partner
		if !partner.Deliverable() {
			result.Skipped++
			continue
		}

		outcome := p.deliver(ctx, partner, event)
		result.Outcomes = append(result.Outcomes, outcome)

		if p.metrics != nil {
			if outcome.Success {
				p.metrics.DeliveryOutcome("delivered")
			} else {
				p.metrics.DeliveryOutcome("failed")
			}
		}
		if p.analytics != nil {
			p.analytics.RecordDelivery(ctx, partner, outcome)
		}

		if outcome.Success {
			log.Printf("delivery: event=%s partner=%s delivered status=%d attempt=%d",
				event.EventID, partner.Name, outcome.StatusCode, outcome.Attempt)
		} else {
			log.Printf("delivery: event=%s partner=%s failed status=%d attempt=%d err=%q",
				event.EventID, partner.Name, outcome.StatusCode, outcome.Attempt, outcome.Error)
		}
	}

	if p.metrics != nil && result.Skipped > 0 {
		p.metrics.PartnersSkipped(result.Skipped)
	}

	return result, result.Err()
}

// deliver runs one partner's delivery behind the optional breaker.
func (p *Processor) deliver(ctx context.Context, partner domain.Partner, event domain.QueuedEvent) domain.DeliveryOutcome {
	if p.breaker != nil {
		if err := p.breaker.Allow(partner.WebhookURL); err != nil {
			return domain.DeliveryOutcome{
				PartnerName: partner.Name,
				EventID:     event.EventID,
				StatusCode:  fallbackStatusCode,
				Error:       err.Error(),
			}
		}
	}

	outcome := p.sender.Send(ctx, partner, event)

	if p.breaker != nil {
		if outcome.Success {
			p.breaker.RecordSuccess(partner.WebhookURL)
		} else {
			p.breaker.RecordFailure(partner.WebhookURL)
		}
	}
	return outcome
}
