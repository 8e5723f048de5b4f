// Package analytics keeps rolling per-partner delivery counters in
// Redis. The counters are advisory: a Redis outage never blocks or
// fails a delivery.
package analytics

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hooklinehq/hookline/internal/domain"
)

const (
	defaultWindow    = time.Hour
	defaultRetention = 7 * 24 * time.Hour
)

type RedisSink struct {
	client    *redis.Client
	window    time.Duration
	retention time.Duration
	clock     func() time.Time
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{
		client:    client,
		window:    defaultWindow,
		retention: defaultRetention,
		clock:     time.Now,
	}
}

// WithRetention overrides the bucket window and key expiry.
func (s *RedisSink) WithRetention(window, retention time.Duration) *RedisSink {
	if window > 0 {
		s.window = window
	}
	if retention > 0 {
		s.retention = retention
	}
	return s
}

// RecordDelivery increments the partner's counter for the outcome in
// the current time bucket. Errors are logged, never propagated.
func (s *RedisSink) RecordDelivery(ctx context.Context, partner domain.Partner, outcome domain.DeliveryOutcome) {
	result := "delivered"
	if !outcome.Success {
		result = "failed"
	}
	key := buildKey(partner.ID.String(), result, s.clock(), s.window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("analytics: record delivery for partner=%s: %v", partner.Name, err)
	}
}

func buildKey(partnerID, result string, t time.Time, window time.Duration) string {
	return fmt.Sprintf("hookline:partner:%s:%s:%s", partnerID, result, truncateToBucket(t, window))
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("2006010215")
	}
}
