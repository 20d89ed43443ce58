package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys for events published to the keepsafe.events exchange.
const (
	EventSubscriptionUpdated = "subscription.updated"
	EventEmailForwarded      = "email.forwarded"
	EventEmailReceived       = "email.received"
)

// SubscriptionUpdatedEvent is published after the reconciler writes new
// subscription state for a team.
type SubscriptionUpdatedEvent struct {
	TeamID         uuid.UUID `json:"team_id"`
	Status         string    `json:"status"`
	PlanName       string    `json:"plan_name"`
	SubscriptionID string    `json:"subscription_id"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// EmailEvent is published when an email is ingested or forwarded.
type EmailEvent struct {
	EmailID    uuid.UUID `json:"email_id"`
	UserID     uuid.UUID `json:"user_id"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurred_at"`
}
