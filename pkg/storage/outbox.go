package storage

import (
	"context"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// OutboxReader defines the interface for inspecting outbox items.
type OutboxReader interface {
	// GetOutboxItem retrieves an item by id. Returns ErrNotFound.
	GetOutboxItem(ctx context.Context, id string) (*models.OutboxItem, error)
}

// OutboxStore defines the interface for the durable notification queue.
type OutboxStore interface {
	OutboxReader

	// InsertOutboxItem durably writes a new pending item.
	InsertOutboxItem(ctx context.Context, item *models.OutboxItem) error

	// MarkOutboxSent moves an item to sent. Sending twice is a no-op.
	MarkOutboxSent(ctx context.Context, id string, now time.Time) error

	// MarkOutboxFailed moves an item to failed, increments retry_count and
	// records the error. Returns the updated item, or ErrOutboxItemSent.
	MarkOutboxFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.OutboxItem, error)

	// ListOutboxCandidates returns pending and failed items with
	// retry_count below maxRetries, at most limit per status.
	ListOutboxCandidates(ctx context.Context, maxRetries, limit int) ([]models.OutboxItem, error)
}
