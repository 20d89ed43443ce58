/**
 * @description
 * This file defines the stored email models. Messages arrive either through
 * the inbound webhook (keyed by a user's generated forwarding address) or a
 * dashboard upload, and move through a small status lifecycle:
 * received -> forwarded | failed.
 */
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Email statuses.
const (
	EmailReceived  = "received"
	EmailForwarded = "forwarded"
	EmailFailed    = "failed"
)

// Email is a stored message belonging to one user.
type Email struct {
	ID             uuid.UUID  `json:"id"`
	UserID         uuid.UUID  `json:"user_id"`
	Subject        string     `json:"subject"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	Text           string     `json:"text"`
	HTML           string     `json:"html"`
	Status         string     `json:"status"`
	HasAttachments bool       `json:"has_attachments"`
	ReceivedAt     time.Time  `json:"received_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// EmailAddress is a generated forwarding address assigned to a user. One
// forwarding address per user; regenerating replaces it.
type EmailAddress struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InboundEmail is the payload delivered by the mail provider webhook.
type InboundEmail struct {
	To      string `json:"to"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// EmailListItem is the dashboard list row for GET /emails.
type EmailListItem struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	DateProcessed  time.Time `json:"dateProcessed"`
	Status         string    `json:"status"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	HasAttachments bool      `json:"hasAttachments"`
}
