package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

const entryColumns = `entry_id, phone, kind, amount, currency, note, actor_id, created_at`

// AppendEntry inserts the entry and creates the customer if it is missing,
// in one transaction.
func (s *Store) AppendEntry(ctx context.Context, entry *models.LedgerEntry, customer *models.Customer) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if customer != nil {
			query := `
				INSERT INTO customers (` + customerColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (phone) DO NOTHING
			`
			_, err := tx.ExecContext(ctx, query,
				entry.Phone,
				customer.DisplayName,
				customer.Note,
				customer.Origin,
				customer.CreatedBy,
				customer.LinkedIdentity,
				customer.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("failed to upsert customer: %w", err)
			}
		}

		query := `
			INSERT INTO ledger_entries (` + entryColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		_, err := tx.ExecContext(ctx, query,
			entry.EntryID,
			entry.Phone,
			entry.Kind,
			entry.Amount,
			entry.Currency,
			entry.Note,
			entry.ActorID,
			entry.CreatedAt,
		)
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
		return nil
	})
}

// ListEntries returns entries newest first. Entry ids are UUIDv7, so the
// primary key orders them by creation time.
func (s *Store) ListEntries(ctx context.Context, phone string, currency models.Currency, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE phone = $1 AND ($2 = '' OR currency = $2)
		ORDER BY entry_id DESC
	`
	args := []any{phone, string(currency)}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		err := rows.Scan(
			&e.EntryID,
			&e.Phone,
			&e.Kind,
			&e.Amount,
			&e.Currency,
			&e.Note,
			&e.ActorID,
			&e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntries aggregates the balance in the database.
func (s *Store) SumEntries(ctx context.Context, phone string, currency models.Currency) (*models.Balance, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN kind = 'debt' THEN amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN kind = 'payment' THEN amount ELSE 0 END), 0),
			COUNT(*),
			COALESCE(MAX(entry_id), '')
		FROM ledger_entries
		WHERE phone = $1 AND currency = $2
	`
	b := &models.Balance{Phone: phone, Currency: currency}
	err := s.db.QueryRowContext(ctx, query, phone, currency).Scan(&b.DebtTotal, &b.PaymentTotal, &b.EntryCount, &b.LastEntryID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	b.Amount = b.DebtTotal - b.PaymentTotal
	return b, nil
}

// EntryMark counts the entries and reads the largest id in one statement.
func (s *Store) EntryMark(ctx context.Context, phone string, currency models.Currency) (models.EntryMark, error) {
	query := `
		SELECT COUNT(*), COALESCE(MAX(entry_id), '')
		FROM ledger_entries
		WHERE phone = $1 AND currency = $2
	`
	var mark models.EntryMark
	if err := s.db.QueryRowContext(ctx, query, phone, currency).Scan(&mark.Count, &mark.LastEntryID); err != nil {
		return models.EntryMark{}, fmt.Errorf("failed to query ledger entry mark: %w", err)
	}
	return mark, nil
}
