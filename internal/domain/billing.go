/**
 * @description
 * This file defines the contract surface between the reconciler and the
 * external billing provider. The adapter validates the provider's response
 * shape at the boundary and reduces it to CheckoutSummary; absent required
 * fields surface as the sentinel errors below rather than propagating as
 * zero values into the record store.
 */
package domain

import (
	"errors"
	"time"
)

var (
	// ErrNoSubscriptionInSession is returned when the provider's checkout
	// session carries no subscription object.
	ErrNoSubscriptionInSession = errors.New("no subscription found in checkout session")

	// ErrNoCustomerInSession is returned when no customer identifier can be
	// resolved from the provider's checkout session.
	ErrNoCustomerInSession = errors.New("no customer ID found in checkout session")
)

// CheckoutSummary is the authoritative subscription state extracted from a
// completed checkout session.
type CheckoutSummary struct {
	Status           string
	CustomerID       string
	SubscriptionID   string
	PlanName         string // items[0].price.nickname; may be empty
	CurrentPeriodEnd *time.Time
}
