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

const identityColumns = `external_id, chat_id, role, status, phone, display_name, username, created_at, updated_at`

func scanIdentity(row scanner) (*models.Identity, error) {
	id := &models.Identity{}
	err := row.Scan(
		&id.ExternalID,
		&id.ChatID,
		&id.Role,
		&id.Status,
		&id.Phone,
		&id.DisplayName,
		&id.Username,
		&id.CreatedAt,
		&id.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return id, nil
}

func identityResult(id *models.Identity, err error, op string) (*models.Identity, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to %s identity: %w", op, err)
	}
	return id, nil
}

// GetIdentity retrieves an identity by its external id.
func (s *Store) GetIdentity(ctx context.Context, externalID int64) (*models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE external_id = $1`
	id, err := scanIdentity(s.db.QueryRowContext(ctx, query, externalID))
	return identityResult(id, err, "get")
}

// ListIdentitiesByRole returns identities holding role, ordered by id.
func (s *Store) ListIdentitiesByRole(ctx context.Context, role models.Role) ([]models.Identity, error) {
	query := `SELECT ` + identityColumns + ` FROM identities WHERE role = $1 ORDER BY external_id`
	rows, err := s.db.QueryContext(ctx, query, role)
	if err != nil {
		return nil, fmt.Errorf("failed to query identities by role: %w", err)
	}
	defer rows.Close()

	var identities []models.Identity
	for rows.Next() {
		id, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, *id)
	}
	return identities, rows.Err()
}

// CreateIdentity inserts a new identity. Returns ErrAlreadyExists.
func (s *Store) CreateIdentity(ctx context.Context, identity *models.Identity) error {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		identity.ExternalID,
		identity.ChatID,
		identity.Role,
		identity.Status,
		identity.Phone,
		identity.DisplayName,
		identity.Username,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// UpdateIdentityProfile overwrites chat_id; empty name and username keep the
// stored values.
func (s *Store) UpdateIdentityProfile(ctx context.Context, externalID int64, profile models.Profile) (*models.Identity, error) {
	query := `
		UPDATE identities
		SET chat_id = $2,
		    display_name = COALESCE(NULLIF($3, ''), display_name),
		    username = COALESCE(NULLIF($4, ''), username),
		    updated_at = $5
		WHERE external_id = $1
		RETURNING ` + identityColumns
	row := s.db.QueryRowContext(ctx, query, externalID, profile.ChatID, profile.DisplayName, profile.Username, time.Now().UTC())
	id, err := scanIdentity(row)
	return identityResult(id, err, "update")
}

// UpdateIdentityAccess sets role and status.
func (s *Store) UpdateIdentityAccess(ctx context.Context, externalID int64, role models.Role, status models.IdentityStatus) (*models.Identity, error) {
	query := `
		UPDATE identities
		SET role = $2, status = $3, updated_at = $4
		WHERE external_id = $1
		RETURNING ` + identityColumns
	row := s.db.QueryRowContext(ctx, query, externalID, role, status, time.Now().UTC())
	id, err := scanIdentity(row)
	return identityResult(id, err, "update")
}

// unlinkByPhone clears the binding of whichever identity holds phone. A
// customer falls back to unaffiliated; staff and admins keep their role.
func unlinkByPhone(ctx context.Context, tx *sql.Tx, phone string, except int64, now time.Time) error {
	query := `
		UPDATE identities
		SET phone = '',
		    role = CASE WHEN role = 'customer' THEN 'unaffiliated' ELSE role END,
		    updated_at = $3
		WHERE phone = $1 AND external_id <> $2
	`
	if _, err := tx.ExecContext(ctx, query, phone, except, now); err != nil {
		return fmt.Errorf("failed to unlink identity: %w", err)
	}
	return nil
}
