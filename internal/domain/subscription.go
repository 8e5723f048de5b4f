package domain

import (
	"time"

	"github.com/google/uuid"
)

// ResolvedSubscription is an active link between a partner and one event
// type, with the partner record already joined in. The fan-out path only
// accepts this resolved form; a bare partner reference never crosses the
// store boundary.
type ResolvedSubscription struct {
	ID        uuid.UUID
	EventType string
	IsActive  bool

	Partner Partner

	CreatedAt time.Time
	UpdatedAt time.Time
}
