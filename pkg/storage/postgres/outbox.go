package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

const outboxColumns = `id, destination, payload, status, retry_count, last_error, created_at, updated_at, sent_at`

func scanOutbox(row scanner) (*models.OutboxItem, error) {
	item := &models.OutboxItem{}
	var sentAt sql.NullTime
	err := row.Scan(
		&item.ID,
		&item.Destination,
		&item.Payload,
		&item.Status,
		&item.RetryCount,
		&item.LastError,
		&item.CreatedAt,
		&item.UpdatedAt,
		&sentAt,
	)
	if err != nil {
		return nil, err
	}
	item.SentAt = timePtr(sentAt)
	return item, nil
}

// GetOutboxItem retrieves an item by id.
func (s *Store) GetOutboxItem(ctx context.Context, id string) (*models.OutboxItem, error) {
	item, err := scanOutbox(s.db.QueryRowContext(ctx, `SELECT `+outboxColumns+` FROM outbox WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox item: %w", err)
	}
	return item, nil
}

// InsertOutboxItem writes a new item. Returns ErrAlreadyExists.
func (s *Store) InsertOutboxItem(ctx context.Context, item *models.OutboxItem) error {
	query := `
		INSERT INTO outbox (` + outboxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		item.ID,
		item.Destination,
		item.Payload,
		item.Status,
		item.RetryCount,
		item.LastError,
		item.CreatedAt,
		item.UpdatedAt,
		nullTime(item.SentAt),
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert outbox item: %w", err)
	}
	return nil
}

// MarkOutboxSent moves the item to sent; a sent item is left alone.
func (s *Store) MarkOutboxSent(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outbox SET status = 'sent', updated_at = $2, sent_at = $2 WHERE id = $1 AND status <> 'sent'`,
		id, now)
	if err != nil {
		return fmt.Errorf("failed to mark outbox item sent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark outbox item sent: %w", err)
	}
	if n == 0 {
		_, err := s.GetOutboxItem(ctx, id)
		return err
	}
	return nil
}

// MarkOutboxFailed records a failed attempt and bumps retry_count.
func (s *Store) MarkOutboxFailed(ctx context.Context, id string, lastError string, now time.Time) (*models.OutboxItem, error) {
	query := `
		UPDATE outbox
		SET status = 'failed', retry_count = retry_count + 1, last_error = $2, updated_at = $3
		WHERE id = $1 AND status <> 'sent'
		RETURNING ` + outboxColumns
	item, err := scanOutbox(s.db.QueryRowContext(ctx, query, id, lastError, now))
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.GetOutboxItem(ctx, id); err != nil {
			return nil, err
		}
		return nil, storage.ErrOutboxItemSent
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark outbox item failed: %w", err)
	}
	return item, nil
}

// ListOutboxCandidates returns up to limit pending items followed by up to
// limit failed items, each oldest first.
func (s *Store) ListOutboxCandidates(ctx context.Context, maxRetries, limit int) ([]models.OutboxItem, error) {
	query := `
		SELECT ` + outboxColumns + `
		FROM outbox
		WHERE status = $1 AND retry_count < $2
		ORDER BY created_at ASC, id ASC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var out []models.OutboxItem
	for _, status := range []models.OutboxStatus{models.OutboxPending, models.OutboxFailed} {
		items, err := s.queryOutbox(ctx, query, status, maxRetries)
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (s *Store) queryOutbox(ctx context.Context, query string, args ...any) ([]models.OutboxItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox items: %w", err)
	}
	defer rows.Close()

	var items []models.OutboxItem
	for rows.Next() {
		item, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
