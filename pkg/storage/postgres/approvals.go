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

const approvalColumns = `id, requester_id, phone, display_name, status, decided_by, decided_at, created_at`

func scanApproval(row scanner) (*models.ApprovalRequest, error) {
	req := &models.ApprovalRequest{}
	var decidedAt sql.NullTime
	err := row.Scan(
		&req.ID,
		&req.RequesterID,
		&req.Phone,
		&req.DisplayName,
		&req.Status,
		&req.DecidedBy,
		&decidedAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	req.DecidedAt = timePtr(decidedAt)
	return req, nil
}

func approvalResult(req *models.ApprovalRequest, err error) (*models.ApprovalRequest, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

// CreateApprovalRequest relies on the partial unique index over pending
// (requester_id, phone) pairs; a conflict returns the existing request.
func (s *Store) CreateApprovalRequest(ctx context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, bool, error) {
	query := `
		INSERT INTO approval_requests (` + approvalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (requester_id, phone) WHERE status = 'pending' DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		req.ID,
		req.RequesterID,
		req.Phone,
		req.DisplayName,
		req.Status,
		req.DecidedBy,
		nullTime(req.DecidedAt),
		req.CreatedAt,
	)
	if isUniqueViolation(err) {
		return nil, false, storage.ErrAlreadyExists
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create approval request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create approval request: %w", err)
	}
	if n == 1 {
		return req, true, nil
	}

	existing, err := approvalResult(scanApproval(s.db.QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE requester_id = $1 AND phone = $2 AND status = 'pending'`,
		req.RequesterID, req.Phone,
	)))
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetApprovalRequest retrieves a request by id.
func (s *Store) GetApprovalRequest(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_requests WHERE id = $1`
	return approvalResult(scanApproval(s.db.QueryRowContext(ctx, query, id)))
}

// ApproveRequest locks the request, the requester and the customer row,
// then rebinds the phone and resolves the request in one transaction.
func (s *Store) ApproveRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalOutcome, error) {
	outcome := &models.ApprovalOutcome{}
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := approvalResult(scanApproval(tx.QueryRowContext(ctx,
			`SELECT `+approvalColumns+` FROM approval_requests WHERE id = $1 FOR UPDATE`, id)))
		if err != nil {
			return err
		}
		if req.Status != models.ApprovalPending {
			return storage.ErrAlreadyResolved
		}

		requester, err := scanIdentity(tx.QueryRowContext(ctx,
			`SELECT `+identityColumns+` FROM identities WHERE external_id = $1 FOR UPDATE`, req.RequesterID))
		if requester, err = identityResult(requester, err, "lock"); err != nil {
			return err
		}

		var previousOwner int64
		err = tx.QueryRowContext(ctx, `SELECT linked_identity FROM customers WHERE phone = $1 FOR UPDATE`, req.Phone).Scan(&previousOwner)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to lock customer: %w", err)
		}
		if previousOwner != 0 && previousOwner != req.RequesterID {
			outcome.PreviousOwner = previousOwner
		}
		if err := unlinkByPhone(ctx, tx, req.Phone, req.RequesterID, now); err != nil {
			return err
		}

		if requester.Phone != "" && requester.Phone != req.Phone {
			outcome.PreviousPhone = requester.Phone
			_, err := tx.ExecContext(ctx,
				`UPDATE customers SET linked_identity = 0 WHERE phone = $1 AND linked_identity = $2`,
				requester.Phone, requester.ExternalID)
			if err != nil {
				return fmt.Errorf("failed to unlink previous customer: %w", err)
			}
		}

		customer, err := scanCustomer(tx.QueryRowContext(ctx, `
			INSERT INTO customers (`+customerColumns+`)
			VALUES ($1, $2, '', $3, $4, $5, $6)
			ON CONFLICT (phone) DO UPDATE
			SET linked_identity = EXCLUDED.linked_identity,
			    display_name = COALESCE(NULLIF(customers.display_name, ''), EXCLUDED.display_name)
			RETURNING `+customerColumns,
			req.Phone, req.DisplayName, models.OriginApproval, adminID, req.RequesterID, now,
		))
		if err != nil {
			return fmt.Errorf("failed to upsert customer: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE identities SET phone = $2, role = $3, status = $4, updated_at = $5 WHERE external_id = $1`,
			requester.ExternalID, req.Phone, models.LinkedRole(requester.Role), models.StatusActive, now)
		if err != nil {
			return fmt.Errorf("failed to link requester: %w", err)
		}

		resolved, err := resolve(ctx, tx, id, models.ApprovalApproved, adminID, now)
		if err != nil {
			return err
		}
		outcome.Request = *resolved
		outcome.Customer = *customer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func resolve(ctx context.Context, tx *sql.Tx, id string, status models.ApprovalStatus, adminID int64, now time.Time) (*models.ApprovalRequest, error) {
	req, err := scanApproval(tx.QueryRowContext(ctx, `
		UPDATE approval_requests
		SET status = $2, decided_by = $3, decided_at = $4
		WHERE id = $1 AND status = 'pending'
		RETURNING `+approvalColumns,
		id, status, adminID, now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve approval request: %w", err)
	}
	return req, nil
}

// RejectRequest resolves a pending request as rejected.
func (s *Store) RejectRequest(ctx context.Context, id string, adminID int64, now time.Time) (*models.ApprovalRequest, error) {
	var out *models.ApprovalRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		req, err := resolve(ctx, tx, id, models.ApprovalRejected, adminID, now)
		if errors.Is(err, storage.ErrAlreadyResolved) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM approval_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
				return fmt.Errorf("failed to get approval request: %w", err)
			}
			if !exists {
				return storage.ErrNotFound
			}
		}
		if err != nil {
			return err
		}
		out = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListPendingRequests returns pending requests, oldest first.
func (s *Store) ListPendingRequests(ctx context.Context, limit int) ([]models.ApprovalRequest, error) {
	query := `
		SELECT ` + approvalColumns + `
		FROM approval_requests
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
	`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approval requests: %w", err)
	}
	defer rows.Close()

	var requests []models.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval request: %w", err)
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}
