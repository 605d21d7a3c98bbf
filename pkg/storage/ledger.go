package storage

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// LedgerReader defines the interface for reading ledger data.
type LedgerReader interface {
	// ListEntries retrieves entries for a phone, newest first. An empty
	// currency matches every currency; limit <= 0 means no limit.
	ListEntries(ctx context.Context, phone string, currency models.Currency, limit int) ([]models.LedgerEntry, error)

	// SumEntries folds every entry for (phone, currency) into a balance.
	SumEntries(ctx context.Context, phone string, currency models.Currency) (*models.Balance, error)

	// EntryMark returns the entry count and the largest entry id for
	// (phone, currency). An empty log yields the zero mark.
	EntryMark(ctx context.Context, phone string, currency models.Currency) (models.EntryMark, error)
}

// LedgerStore adds the single write operation of the event store.
type LedgerStore interface {
	LedgerReader

	// AppendEntry inserts the entry and, in the same atomic unit, creates the
	// customer record if it does not exist yet.
	AppendEntry(ctx context.Context, entry *models.LedgerEntry, customer *models.Customer) error
}
