/**
 * @description
 * This file contains the email management logic: dashboard listing,
 * retrieval and deletion, forwarding to the user's real mailbox, generated
 * forwarding addresses, and inbound webhook ingestion.
 */
package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/domain"
)

// statusLabel maps stored email statuses to the labels the dashboard shows.
func statusLabel(status string) string {
	switch status {
	case domain.EmailForwarded:
		return "Completed"
	case domain.EmailFailed:
		return "Failed"
	default:
		return "Processing"
	}
}

// ListEmails returns the caller's emails as dashboard rows, optionally
// filtered by stored status. "all" and "" both mean no filter.
func (s *Service) ListEmails(ctx context.Context, userID uuid.UUID, status string) ([]domain.EmailListItem, error) {
	if status == "all" {
		status = ""
	}
	emails, err := s.repo.ListEmailsByUserID(ctx, userID, status)
	if err != nil {
		return nil, err
	}

	items := make([]domain.EmailListItem, 0, len(emails))
	for _, e := range emails {
		title := e.Subject
		if title == "" {
			title = "No subject"
		}
		processed := e.ReceivedAt
		if e.ProcessedAt != nil {
			processed = *e.ProcessedAt
		}
		items = append(items, domain.EmailListItem{
			ID:             e.ID,
			Title:          title,
			DateProcessed:  processed,
			Status:         statusLabel(e.Status),
			From:           e.From,
			To:             e.To,
			HasAttachments: e.HasAttachments,
		})
	}
	return items, nil
}

// GetEmail retrieves one email owned by the caller.
func (s *Service) GetEmail(ctx context.Context, userID, emailID uuid.UUID) (*domain.Email, error) {
	return s.repo.FindEmailByID(ctx, emailID, userID)
}

// DeleteEmail removes one email owned by the caller.
func (s *Service) DeleteEmail(ctx context.Context, userID, emailID uuid.UUID) (bool, error) {
	return s.repo.DeleteEmail(ctx, emailID, userID)
}

// ForwardEmail sends a stored email to the caller's real mailbox and marks
// it forwarded. The access gate already checked the team's subscription,
// but the state is re-read here so a cancellation between the gate decision
// and the send still denies.
func (s *Service) ForwardEmail(ctx context.Context, userID, emailID uuid.UUID) error {
	if err := s.consumeLimit(ctx, "email_forward", userID.String(), s.opts.ForwardingRateLimitPerMinute); err != nil {
		return err
	}

	team, _, err := s.repo.GetTeamForUser(ctx, userID)
	if err != nil {
		return err
	}
	if !team.HasActiveSubscription() {
		return ErrSubscriptionRequired
	}

	email, err := s.repo.FindEmailByID(ctx, emailID, userID)
	if err != nil {
		return err
	}
	user, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}

	subject := "Fwd: " + email.Subject
	if email.Subject == "" {
		subject = "Fwd: No Subject"
	}
	if err := s.mailer.Send(ctx, user.Email, subject, email.Text, email.HTML); err != nil {
		if statusErr := s.repo.SetEmailStatus(ctx, email.ID, domain.EmailFailed); statusErr != nil {
			log.Printf("level=warn component=emails msg=\"failed to mark email failed\" email_id=%s err=%v", email.ID, statusErr)
		}
		return fmt.Errorf("failed to forward email: %w", err)
	}

	if err := s.repo.SetEmailStatus(ctx, email.ID, domain.EmailForwarded); err != nil {
		return err
	}

	log.Printf("level=info component=emails msg=\"email forwarded\" email_id=%s user_id=%s", email.ID, userID)
	s.publishEvent(ctx, domain.EventEmailForwarded, domain.EmailEvent{
		EmailID:    email.ID,
		UserID:     userID,
		Subject:    email.Subject,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

// GetForwardingAddress returns the caller's generated address, if any.
func (s *Service) GetForwardingAddress(ctx context.Context, userID uuid.UUID) (*domain.EmailAddress, error) {
	return s.repo.GetForwardingAddress(ctx, userID)
}

// GenerateForwardingAddress mints a fresh address under the configured
// domain and persists it, replacing any previous one.
func (s *Service) GenerateForwardingAddress(ctx context.Context, userID uuid.UUID) (*domain.EmailAddress, error) {
	local := strings.SplitN(uuid.NewString(), "-", 2)[0]
	address := fmt.Sprintf("%s@%s", local, s.opts.EmailDomain)
	return s.repo.UpsertForwardingAddress(ctx, userID, address)
}

// IngestInboundEmail stores a message delivered by the mail provider
// webhook, resolving the owner through the recipient forwarding address.
func (s *Service) IngestInboundEmail(ctx context.Context, inbound domain.InboundEmail) (*domain.Email, error) {
	to := strings.TrimSpace(strings.ToLower(inbound.To))
	if to == "" {
		return nil, fmt.Errorf("inbound email has no recipient")
	}
	userID, err := s.repo.FindUserIDByAddress(ctx, to)
	if err != nil {
		return nil, err
	}

	created, err := s.repo.InsertEmail(ctx, &domain.Email{
		UserID:  userID,
		Subject: inbound.Subject,
		From:    inbound.From,
		To:      to,
		Text:    inbound.Text,
		HTML:    inbound.HTML,
		Status:  domain.EmailReceived,
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, domain.EventEmailReceived, domain.EmailEvent{
		EmailID:    created.ID,
		UserID:     userID,
		Subject:    created.Subject,
		OccurredAt: created.ReceivedAt,
	})
	return created, nil
}
