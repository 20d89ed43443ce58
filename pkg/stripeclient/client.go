/**
 * @description
 * This package wraps the Stripe SDK behind the small billing-provider
 * surface the application needs: customer creation, checkout and portal
 * sessions, and checkout-session retrieval. Response shapes are validated
 * here so the rest of the service never sees a partially populated
 * subscription object.
 */
package stripeclient

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v83"
	portalsession "github.com/stripe/stripe-go/v83/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v83/checkout/session"
	"github.com/stripe/stripe-go/v83/customer"

	"github.com/keepsafe/keepsafe-api/internal/domain"
)

// Client is a billing provider backed by Stripe.
type Client struct {
	appBaseURL string
}

// NewClient configures the Stripe SDK with the given secret key. The key is
// global to the SDK, so one Client per process.
func NewClient(apiKey, appBaseURL string) *Client {
	stripe.Key = apiKey
	return &Client{appBaseURL: appBaseURL}
}

// CreateCustomer creates a Stripe customer record and returns its id.
func (c *Client) CreateCustomer(ctx context.Context, email, name string, metadata map[string]string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	if name != "" {
		params.Name = stripe.String(name)
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe customer create failed: %w", err)
	}
	return cust.ID, nil
}

// CreateCheckoutSession opens a subscription-mode checkout session for the
// given customer and price, returning the hosted checkout URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, priceID string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.appBaseURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.appBaseURL + "/subscribe"),
	}
	params.Context = ctx

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe checkout session create failed: %w", err)
	}
	if sess.URL == "" {
		return "", fmt.Errorf("stripe checkout session has no redirect URL")
	}
	return sess.URL, nil
}

// CreatePortalSession opens a billing portal session for an existing
// customer, returning the portal URL.
func (c *Client) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.appBaseURL + "/dashboard"),
	}
	params.Context = ctx

	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe portal session create failed: %w", err)
	}
	if sess.URL == "" {
		return "", fmt.Errorf("stripe portal session has no redirect URL")
	}
	return sess.URL, nil
}

// RetrieveCheckoutSession fetches a completed checkout session with its
// subscription and customer expanded and reduces it to a CheckoutSummary.
// Sessions without a subscription or a resolvable customer id are rejected
// here, before any state is written.
func (c *Client) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSummary, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("subscription")
	params.AddExpand("customer")

	sess, err := checkoutsession.Get(sessionID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout session retrieve failed: %w", err)
	}

	sub := sess.Subscription
	if sub == nil {
		return nil, domain.ErrNoSubscriptionInSession
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	if customerID == "" && sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	if customerID == "" {
		return nil, domain.ErrNoCustomerInSession
	}

	summary := &domain.CheckoutSummary{
		Status:         string(sub.Status),
		CustomerID:     customerID,
		SubscriptionID: sub.ID,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			summary.PlanName = item.Price.Nickname
		}
		if item.CurrentPeriodEnd > 0 {
			end := time.Unix(item.CurrentPeriodEnd, 0).UTC()
			summary.CurrentPeriodEnd = &end
		}
	}
	return summary, nil
}
