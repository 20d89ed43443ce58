/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the KeepSafe API needs. The application layer depends only on this
 * interface, which keeps the business logic testable against stubs and
 * independent of the PostgreSQL implementation.
 */
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/keepsafe/keepsafe-api/internal/domain"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrTeamNotFound         = errors.New("team not found")
	ErrNoTeamMembership     = errors.New("user has no team membership")
	ErrEmailNotFound        = errors.New("email not found")
	ErrNoForwardingAddress  = errors.New("no forwarding address on file")
	ErrAddressOwnerNotFound = errors.New("no user owns this address")
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User and membership methods
	FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	// GetTeamForUser resolves the caller's billable entity through the
	// membership table. Returns ErrNoTeamMembership when the user belongs
	// to no team.
	GetTeamForUser(ctx context.Context, userID uuid.UUID) (*domain.Team, *domain.Membership, error)
	// PromoteTeamMemberRole raises the membership role to `role` if it is
	// not already set. Idempotent.
	PromoteTeamMemberRole(ctx context.Context, userID, teamID uuid.UUID, role string) error

	// Subscription record methods
	// UpdateTeamSubscription writes the full subscription tuple in a single
	// statement and returns the applied row.
	UpdateTeamSubscription(ctx context.Context, teamID uuid.UUID, update domain.SubscriptionUpdate) (*domain.Team, error)
	// EnsureTeamCustomerID persists customerID only when the team has none
	// yet, and returns whichever identifier won. Safe to call concurrently.
	EnsureTeamCustomerID(ctx context.Context, teamID uuid.UUID, customerID string) (string, error)

	// Email methods
	ListEmailsByUserID(ctx context.Context, userID uuid.UUID, status string) ([]domain.Email, error)
	FindEmailByID(ctx context.Context, emailID, userID uuid.UUID) (*domain.Email, error)
	DeleteEmail(ctx context.Context, emailID, userID uuid.UUID) (bool, error)
	SetEmailStatus(ctx context.Context, emailID uuid.UUID, status string) error
	InsertEmail(ctx context.Context, email *domain.Email) (*domain.Email, error)
	// DeleteEmailsProcessedBefore removes forwarded and failed emails whose
	// processing finished before the cutoff. Returns the number deleted.
	DeleteEmailsProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Forwarding address methods
	GetForwardingAddress(ctx context.Context, userID uuid.UUID) (*domain.EmailAddress, error)
	UpsertForwardingAddress(ctx context.Context, userID uuid.UUID, address string) (*domain.EmailAddress, error)
	FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error)
}
