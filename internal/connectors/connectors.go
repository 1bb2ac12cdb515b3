// Package connectors pulls raw messages from a mailbox and keeps them on
// disk and in the emails table until the intake processes them.
package connectors

import (
	"context"

	"supplyrecon/internal"
)

// Email statuses as the intake moves a message along.
const (
	StatusFetched   = "fetched"
	StatusPrompted  = "awaiting_choice"
	StatusImported  = "imported"
	StatusDuplicate = "duplicate"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// EmailStore is the slice of storage the intake needs.
type EmailStore interface {
	UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error)
	GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error)
	ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error)
	UpdateEmailStatus(emailID int, status string) error
}
