/**
 * @description
 * This file implements the Repository interface against PostgreSQL using the
 * pgx connection pool. All SQL for the service lives here.
 */
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keepsafe/keepsafe-api/internal/domain"
)

// PostgresRepository handles database operations for the KeepSafe API.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserByID retrieves a user by their internal UUID.
func (r *PostgresRepository) FindUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	var user domain.User
	query := `
        SELECT id, email, name, created_at
        FROM users
        WHERE id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &user, nil
}

// GetTeamForUser resolves the team a user belongs to via the membership
// table. The team row is re-read on every call; gate decisions must reflect
// the store's current state, so nothing is cached here.
func (r *PostgresRepository) GetTeamForUser(ctx context.Context, userID uuid.UUID) (*domain.Team, *domain.Membership, error) {
	var (
		team       domain.Team
		membership domain.Membership
	)
	query := `
        SELECT t.id, t.name, t.subscription_status, t.plan_name,
               t.stripe_customer_id, t.stripe_subscription_id, t.current_period_end,
               t.created_at, t.updated_at,
               tm.user_id, tm.team_id, tm.role
        FROM team_members tm
        JOIN teams t ON t.id = tm.team_id
        WHERE tm.user_id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&team.ID,
		&team.Name,
		&team.SubscriptionStatus,
		&team.PlanName,
		&team.StripeCustomerID,
		&team.StripeSubscriptionID,
		&team.CurrentPeriodEnd,
		&team.CreatedAt,
		&team.UpdatedAt,
		&membership.UserID,
		&membership.TeamID,
		&membership.Role,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrNoTeamMembership
		}
		return nil, nil, fmt.Errorf("failed to resolve team membership: %w", err)
	}
	return &team, &membership, nil
}

// PromoteTeamMemberRole raises the membership role. The WHERE clause makes
// repeated promotion a no-op.
func (r *PostgresRepository) PromoteTeamMemberRole(ctx context.Context, userID, teamID uuid.UUID, role string) error {
	query := `
        UPDATE team_members
        SET role = $3, updated_at = NOW()
        WHERE user_id = $1 AND team_id = $2 AND role <> $3
    `
	if _, err := r.db.Exec(ctx, query, userID, teamID, role); err != nil {
		return fmt.Errorf("failed to promote team member: %w", err)
	}
	return nil
}

// UpdateTeamSubscription writes the complete subscription tuple in one
// statement. Concurrent verifications therefore race as whole records,
// last writer wins; a stale plan name can never be merged over a newer
// status.
func (r *PostgresRepository) UpdateTeamSubscription(ctx context.Context, teamID uuid.UUID, update domain.SubscriptionUpdate) (*domain.Team, error) {
	var team domain.Team
	query := `
        UPDATE teams
        SET subscription_status = $2,
            plan_name = $3,
            stripe_customer_id = $4,
            stripe_subscription_id = $5,
            current_period_end = $6,
            updated_at = $7
        WHERE id = $1
        RETURNING id, name, subscription_status, plan_name,
                  stripe_customer_id, stripe_subscription_id, current_period_end,
                  created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query,
		teamID,
		update.Status,
		update.PlanName,
		update.CustomerID,
		update.SubscriptionID,
		update.CurrentPeriodEnd,
		update.UpdatedAt,
	).Scan(
		&team.ID,
		&team.Name,
		&team.SubscriptionStatus,
		&team.PlanName,
		&team.StripeCustomerID,
		&team.StripeSubscriptionID,
		&team.CurrentPeriodEnd,
		&team.CreatedAt,
		&team.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTeamNotFound
		}
		return nil, fmt.Errorf("failed to update team subscription: %w", err)
	}
	return &team, nil
}

// EnsureTeamCustomerID sets the external customer id only when none is
// persisted yet. COALESCE makes the write race-safe: whichever caller loses
// still reads back the winning identifier.
func (r *PostgresRepository) EnsureTeamCustomerID(ctx context.Context, teamID uuid.UUID, customerID string) (string, error) {
	var persisted string
	query := `
        UPDATE teams
        SET stripe_customer_id = COALESCE(stripe_customer_id, $2),
            updated_at = NOW()
        WHERE id = $1
        RETURNING stripe_customer_id
    `
	err := r.db.QueryRow(ctx, query, teamID, customerID).Scan(&persisted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTeamNotFound
		}
		return "", fmt.Errorf("failed to persist customer id: %w", err)
	}
	return persisted, nil
}

// ListEmailsByUserID returns a user's emails, newest first, optionally
// filtered by status.
func (r *PostgresRepository) ListEmailsByUserID(ctx context.Context, userID uuid.UUID, status string) ([]domain.Email, error) {
	query := `
        SELECT id, user_id, subject, from_address, to_address, body_text, body_html,
               status, has_attachments, received_at, processed_at
        FROM emails
        WHERE user_id = $1 AND ($2 = '' OR status = $2)
        ORDER BY received_at DESC
    `
	rows, err := r.db.Query(ctx, query, userID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	defer rows.Close()

	var emails []domain.Email
	for rows.Next() {
		var e domain.Email
		if err := rows.Scan(
			&e.ID,
			&e.UserID,
			&e.Subject,
			&e.From,
			&e.To,
			&e.Text,
			&e.HTML,
			&e.Status,
			&e.HasAttachments,
			&e.ReceivedAt,
			&e.ProcessedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan email row: %w", err)
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// FindEmailByID retrieves a single email, enforcing ownership.
func (r *PostgresRepository) FindEmailByID(ctx context.Context, emailID, userID uuid.UUID) (*domain.Email, error) {
	var e domain.Email
	query := `
        SELECT id, user_id, subject, from_address, to_address, body_text, body_html,
               status, has_attachments, received_at, processed_at
        FROM emails
        WHERE id = $1 AND user_id = $2
    `
	err := r.db.QueryRow(ctx, query, emailID, userID).Scan(
		&e.ID,
		&e.UserID,
		&e.Subject,
		&e.From,
		&e.To,
		&e.Text,
		&e.HTML,
		&e.Status,
		&e.HasAttachments,
		&e.ReceivedAt,
		&e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, fmt.Errorf("failed to find email: %w", err)
	}
	return &e, nil
}

// DeleteEmail removes an email owned by the user. Returns false when no row
// matched.
func (r *PostgresRepository) DeleteEmail(ctx context.Context, emailID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM emails WHERE id = $1 AND user_id = $2`, emailID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete email: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetEmailStatus updates the lifecycle status, stamping processed_at for
// terminal states.
func (r *PostgresRepository) SetEmailStatus(ctx context.Context, emailID uuid.UUID, status string) error {
	query := `
        UPDATE emails
        SET status = $2,
            processed_at = CASE WHEN $2 IN ('forwarded', 'failed') THEN NOW() ELSE processed_at END,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, query, emailID, status)
	if err != nil {
		return fmt.Errorf("failed to set email status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEmailNotFound
	}
	return nil
}

// InsertEmail stores an inbound message and returns the created row.
func (r *PostgresRepository) InsertEmail(ctx context.Context, email *domain.Email) (*domain.Email, error) {
	var created domain.Email
	query := `
        INSERT INTO emails (user_id, subject, from_address, to_address, body_text, body_html,
                            status, has_attachments, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
        RETURNING id, user_id, subject, from_address, to_address, body_text, body_html,
                  status, has_attachments, received_at, processed_at
    `
	err := r.db.QueryRow(ctx, query,
		email.UserID,
		email.Subject,
		email.From,
		email.To,
		email.Text,
		email.HTML,
		email.Status,
		email.HasAttachments,
	).Scan(
		&created.ID,
		&created.UserID,
		&created.Subject,
		&created.From,
		&created.To,
		&created.Text,
		&created.HTML,
		&created.Status,
		&created.HasAttachments,
		&created.ReceivedAt,
		&created.ProcessedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert email: %w", err)
	}
	return &created, nil
}

// DeleteEmailsProcessedBefore purges emails that reached a terminal status
// before the cutoff. Received messages are never purged.
func (r *PostgresRepository) DeleteEmailsProcessedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
        DELETE FROM emails
        WHERE status IN ('forwarded', 'failed') AND processed_at < $1
    `
	tag, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed emails: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetForwardingAddress returns the user's generated forwarding address.
func (r *PostgresRepository) GetForwardingAddress(ctx context.Context, userID uuid.UUID) (*domain.EmailAddress, error) {
	var addr domain.EmailAddress
	query := `
        SELECT id, user_id, email, created_at, updated_at
        FROM email_addresses
        WHERE user_id = $1
    `
	err := r.db.QueryRow(ctx, query, userID).Scan(
		&addr.ID,
		&addr.UserID,
		&addr.Email,
		&addr.CreatedAt,
		&addr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoForwardingAddress
		}
		return nil, fmt.Errorf("failed to get forwarding address: %w", err)
	}
	return &addr, nil
}

// UpsertForwardingAddress creates or replaces the user's forwarding address.
func (r *PostgresRepository) UpsertForwardingAddress(ctx context.Context, userID uuid.UUID, address string) (*domain.EmailAddress, error) {
	var addr domain.EmailAddress
	query := `
        INSERT INTO email_addresses (user_id, email)
        VALUES ($1, $2)
        ON CONFLICT (user_id) DO UPDATE SET
            email = EXCLUDED.email,
            updated_at = NOW()
        RETURNING id, user_id, email, created_at, updated_at
    `
	err := r.db.QueryRow(ctx, query, userID, address).Scan(
		&addr.ID,
		&addr.UserID,
		&addr.Email,
		&addr.CreatedAt,
		&addr.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert forwarding address: %w", err)
	}
	return &addr, nil
}

// FindUserIDByAddress maps an inbound recipient address to its owner.
func (r *PostgresRepository) FindUserIDByAddress(ctx context.Context, address string) (uuid.UUID, error) {
	var userID uuid.UUID
	query := `SELECT user_id FROM email_addresses WHERE email = $1`
	err := r.db.QueryRow(ctx, query, address).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAddressOwnerNotFound
		}
		return uuid.Nil, fmt.Errorf("failed to resolve address owner: %w", err)
	}
	return userID, nil
}
