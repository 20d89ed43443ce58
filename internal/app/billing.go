/**
 * @description
 * This file contains the subscription reconciliation logic: exchanging a
 * completed checkout session for authoritative billing state, creating
 * checkout and billing-portal sessions, and reporting the persisted state
 * back to the client.
 *
 * The store is only written after a fully successful provider response, and
 * always as one complete tuple. Duplicate verify calls for the same session
 * redundantly rewrite identical state; that is accepted at-least-once
 * behavior, not deduplicated here.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/domain"
)

// VerifyCheckoutSession exchanges a checkout session token for the
// provider's authoritative subscription state and persists it for the
// caller's team. The acting user is promoted to owner if they are not
// already.
func (s *Service) VerifyCheckoutSession(ctx context.Context, userID uuid.UUID, sessionID string) (*domain.SubscriptionResult, error) {
	if sessionID == "" {
		return nil, ErrSessionIDRequired
	}

	team, membership, err := s.repo.GetTeamForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summary, err := s.billing.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	planName := summary.PlanName
	if planName == "" {
		planName = s.opts.DefaultPlanName
	}

	now := time.Now().UTC()
	updated, err := s.repo.UpdateTeamSubscription(ctx, team.ID, domain.SubscriptionUpdate{
		Status:           summary.Status,
		PlanName:         planName,
		CustomerID:       summary.CustomerID,
		SubscriptionID:   summary.SubscriptionID,
		CurrentPeriodEnd: summary.CurrentPeriodEnd,
		UpdatedAt:        now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record subscription state: %w", err)
	}

	if membership.Role != domain.RoleOwner {
		if err := s.repo.PromoteTeamMemberRole(ctx, userID, team.ID, domain.RoleOwner); err != nil {
			return nil, fmt.Errorf("failed to promote member after checkout: %w", err)
		}
	}

	log.Printf("level=info component=billing msg=\"subscription verified\" team_id=%s status=%s plan=%s", team.ID, updated.SubscriptionStatus, planName)
	s.publishEvent(ctx, domain.EventSubscriptionUpdated, domain.SubscriptionUpdatedEvent{
		TeamID:         updated.ID,
		Status:         updated.SubscriptionStatus,
		PlanName:       planName,
		SubscriptionID: summary.SubscriptionID,
		UpdatedAt:      updated.UpdatedAt,
	})

	return &domain.SubscriptionResult{
		Status:         updated.SubscriptionStatus,
		PlanName:       planName,
		CustomerID:     summary.CustomerID,
		SubscriptionID: summary.SubscriptionID,
		TeamID:         updated.ID,
		TeamName:       updated.Name,
	}, nil
}

// CreateCheckoutSession prepares a provider checkout session for the
// caller's team and returns the redirect URL. The team's external customer
// record is created on first use and reused afterwards.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, priceID string) (string, error) {
	if priceID == "" {
		return "", ErrPriceIDRequired
	}
	if err := s.consumeLimit(ctx, "billing_checkout", userID.String(), s.opts.CheckoutRateLimitPerMinute); err != nil {
		return "", err
	}

	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	team, _, err := s.repo.GetTeamForUser(ctx, userID)
	if err != nil {
		return "", err
	}

	customerID := team.CustomerID()
	if customerID == "" {
		created, err := s.billing.CreateCustomer(ctx, user.Email, user.DisplayName(), map[string]string{
			"user_id": user.ID.String(),
			"team_id": team.ID.String(),
		})
		if err != nil {
			return "", fmt.Errorf("failed to create billing customer: %w", err)
		}
		// A concurrent checkout may have won the write; use whichever
		// identifier the store kept.
		customerID, err = s.repo.EnsureTeamCustomerID(ctx, team.ID, created)
		if err != nil {
			return "", err
		}
		if customerID != created {
			log.Printf("level=info component=billing msg=\"reusing persisted billing customer\" team_id=%s customer_id=%s", team.ID, customerID)
		}
	}

	url, err := s.billing.CreateCheckoutSession(ctx, customerID, priceID)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", err)
	}
	return url, nil
}

// CreateBillingPortalSession opens the provider's billing portal for the
// caller's team. Teams that never checked out have no customer to manage.
func (s *Service) CreateBillingPortalSession(ctx context.Context, userID uuid.UUID) (string, error) {
	team, _, err := s.repo.GetTeamForUser(ctx, userID)
	if err != nil {
		return "", err
	}
	customerID := team.CustomerID()
	if customerID == "" {
		return "", ErrNoBillingCustomer
	}

	url, err := s.billing.CreatePortalSession(ctx, customerID)
	if err != nil {
		return "", fmt.Errorf("failed to create portal session: %w", err)
	}
	return url, nil
}

// GetSubscription reports the persisted subscription state for the caller's
// team, as last written by reconciliation.
func (s *Service) GetSubscription(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionSummary, error) {
	team, _, err := s.repo.GetTeamForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := team.SubscriptionStatus
	if status == "" {
		status = domain.SubscriptionInactive
	}
	planName := "Free"
	if team.PlanName != nil && *team.PlanName != "" {
		planName = *team.PlanName
	}

	summary := &domain.SubscriptionSummary{
		IsActive:         status == domain.SubscriptionActive,
		Status:           status,
		PlanName:         planName,
		CurrentPeriodEnd: team.CurrentPeriodEnd,
		CustomerID:       team.CustomerID(),
	}
	if team.StripeSubscriptionID != nil {
		summary.SubscriptionID = *team.StripeSubscriptionID
	}
	return summary, nil
}
