package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

// InsertProcessedUpdate is a single insert. An expired marker is reclaimed
// in the same statement; a live one makes the insert a no-op, which is
// reported as ErrAlreadyExists.
func (s *Store) InsertProcessedUpdate(ctx context.Context, marker *models.ProcessedUpdate) error {
	var expires sql.NullTime
	if marker.TTL > 0 {
		expires = sql.NullTime{Time: time.Unix(marker.TTL, 0).UTC(), Valid: true}
	}
	query := `
		INSERT INTO processed_updates (update_id, processed_at, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (update_id) DO UPDATE
		SET processed_at = EXCLUDED.processed_at, expires_at = EXCLUDED.expires_at
		WHERE processed_updates.expires_at IS NOT NULL AND processed_updates.expires_at < EXCLUDED.processed_at
	`
	res, err := s.db.ExecContext(ctx, query, marker.UpdateID, marker.ProcessedAt, expires)
	if err != nil {
		return fmt.Errorf("failed to insert processed update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert processed update: %w", err)
	}
	if n == 0 {
		return storage.ErrAlreadyExists
	}
	return nil
}

// PurgeExpiredUpdates deletes markers that expired before now.
func (s *Store) PurgeExpiredUpdates(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_updates WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge processed updates: %w", err)
	}
	return res.RowsAffected()
}

// WriteAudit appends an audit record.
func (s *Store) WriteAudit(ctx context.Context, record *models.AuditRecord) error {
	var metadata sql.NullString
	if len(record.Metadata) > 0 {
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(data), Valid: true}
	}
	query := `
		INSERT INTO audit_log (id, actor, action, entity, entity_id, ok, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		record.Actor,
		record.Action,
		record.Entity,
		record.EntityID,
		record.OK,
		record.Error,
		metadata,
		record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}
