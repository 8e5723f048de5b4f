package domain

import (
	"time"

	"github.com/google/uuid"
)

// Partner is an external organization registered to receive webhook
// notifications. Owned by the subscription store; the delivery pipeline
// only ever reads it.
type Partner struct {
	ID   uuid.UUID
	Name string

	// WebhookURL may be empty: such partners are skipped during fan-out.
	WebhookURL string
	SecretKey  string
	APIKey     string
	IsActive   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Deliverable reports whether the partner can currently receive webhooks.
func (p Partner) Deliverable() bool {
	return p.IsActive && p.WebhookURL != ""
}
