/**
 * @description
 * This file defines the billable-entity domain models for the KeepSafe API.
 * A team is the unit that holds one subscription; users belong to exactly one
 * team through a membership row that carries their role.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses as reported by the billing provider. The local record
// only ever holds one of these; transitions happen exclusively through
// reconciliation against the provider, never through direct client input.
const (
	SubscriptionInactive          = "inactive"
	SubscriptionTrialing          = "trialing"
	SubscriptionActive            = "active"
	SubscriptionPastDue           = "past_due"
	SubscriptionCanceled          = "canceled"
	SubscriptionUnpaid            = "unpaid"
	SubscriptionIncompleteExpired = "incomplete_expired"
)

// Team membership roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Team represents a billable entity and its persisted subscription state.
type Team struct {
	ID                   uuid.UUID  `json:"id"`
	Name                 string     `json:"name"`
	SubscriptionStatus   string     `json:"subscription_status"`
	PlanName             *string    `json:"plan_name,omitempty"`
	StripeCustomerID     *string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string    `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     *time.Time `json:"current_period_end,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// HasActiveSubscription reports whether the team may use gated features.
// Only the exact "active" status grants access; trialing, past_due and the
// rest all deny.
func (t *Team) HasActiveSubscription() bool {
	return t.SubscriptionStatus == SubscriptionActive
}

// CustomerID returns the external billing customer identifier, or "" when
// the team has never checked out.
func (t *Team) CustomerID() string {
	if t.StripeCustomerID == nil {
		return ""
	}
	return *t.StripeCustomerID
}

// Membership ties a user to a team with a role.
type Membership struct {
	UserID uuid.UUID `json:"user_id"`
	TeamID uuid.UUID `json:"team_id"`
	Role   string    `json:"role"`
}

// SubscriptionUpdate is the full replacement tuple written by the reconciler.
// All fields are persisted together in one statement so concurrent
// verifications are last-writer-wins on the whole record rather than a
// partial field merge.
type SubscriptionUpdate struct {
	Status           string
	PlanName         string
	CustomerID       string
	SubscriptionID   string
	CurrentPeriodEnd *time.Time
	UpdatedAt        time.Time
}

// SubscriptionResult is returned to the client after a successful
// verify-session call. It mirrors the state just written.
type SubscriptionResult struct {
	Status         string    `json:"status"`
	PlanName       string    `json:"planName"`
	CustomerID     string    `json:"customerId"`
	SubscriptionID string    `json:"subscriptionId"`
	TeamID         uuid.UUID `json:"teamId"`
	TeamName       string    `json:"teamName"`
}

// SubscriptionSummary is the DTO for GET /user/subscription.
type SubscriptionSummary struct {
	IsActive         bool       `json:"isActive"`
	Status           string     `json:"status"`
	PlanName         string     `json:"planName"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
	CustomerID       string     `json:"customerId,omitempty"`
	SubscriptionID   string     `json:"subscriptionId,omitempty"`
}
