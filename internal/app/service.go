/**
 * @description
 * This file defines the application Service and the collaborator contracts it
 * depends on. The service orchestrates the record store, the billing
 * provider, the mail transport and the event producer; each collaborator is
 * an interface so the business logic can be exercised against stubs.
 */
package app

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/keepsafe/keepsafe-api/internal/domain"
	"github.com/keepsafe/keepsafe-api/internal/store"
)

var (
	// ErrPriceIDRequired is returned before any external call when checkout
	// is requested without a price identifier.
	ErrPriceIDRequired = errors.New("price ID is required")

	// ErrSessionIDRequired is returned when verification is requested
	// without a checkout session token.
	ErrSessionIDRequired = errors.New("session ID is required")

	// ErrNoBillingCustomer means the team has never checked out, so no
	// billing portal can be opened for it.
	ErrNoBillingCustomer = errors.New("no billing customer on file")

	// ErrSubscriptionRequired means the team's subscription state does not
	// permit the requested operation.
	ErrSubscriptionRequired = errors.New("active subscription required")

	// ErrRateLimited is returned when a per-user request budget is spent.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// BillingProvider is the thin contract over the external payment provider.
// Implementations must validate the provider's response shape and never
// return a partially populated CheckoutSummary.
type BillingProvider interface {
	CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID, priceID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSummary, error)
}

// Mailer sends a single outbound message.
type Mailer interface {
	Send(ctx context.Context, to, subject, text, html string) error
}

// Publisher publishes domain events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// RateLimiter enforces a fixed-window request budget per subject. A nil
// limiter disables enforcement.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Options carries the tunables the service needs from configuration.
type Options struct {
	DefaultPlanName              string
	EmailDomain                  string
	EmailFrom                    string
	EventExchange                string
	CheckoutRateLimitPerMinute   int
	ForwardingRateLimitPerMinute int
}

// Service provides the business logic for subscription reconciliation and
// email management.
type Service struct {
	repo      store.Repository
	billing   BillingProvider
	mailer    Mailer
	publisher Publisher
	limiter   RateLimiter
	opts      Options
}

// NewService creates a new application service. The publisher and limiter
// may be nil; the corresponding behavior degrades to a no-op.
func NewService(repo store.Repository, billing BillingProvider, mailer Mailer, publisher Publisher, limiter RateLimiter, opts Options) *Service {
	if opts.DefaultPlanName == "" {
		opts.DefaultPlanName = "Pro"
	}
	return &Service{
		repo:      repo,
		billing:   billing,
		mailer:    mailer,
		publisher: publisher,
		limiter:   limiter,
		opts:      opts,
	}
}

// consumeLimit spends one unit of the subject's budget for the scope.
// Limiter failures fail open: a broken Redis must not take billing down.
func (s *Service) consumeLimit(ctx context.Context, scope, subject string, limit int) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	count, _, err := s.limiter.ConsumeRateLimit(ctx, scope, subject, limit, time.Minute)
	if err != nil {
		return nil
	}
	if count > limit {
		return ErrRateLimited
	}
	return nil
}

// publishEvent publishes best-effort; reconciliation and forwarding must not
// fail because the bus is down.
func (s *Service) publishEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.opts.EventExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=events msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}
