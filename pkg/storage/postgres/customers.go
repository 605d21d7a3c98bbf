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

const customerColumns = `phone, display_name, note, origin, created_by, linked_identity, created_at`

func scanCustomer(row scanner) (*models.Customer, error) {
	c := &models.Customer{}
	err := row.Scan(
		&c.Phone,
		&c.DisplayName,
		&c.Note,
		&c.Origin,
		&c.CreatedBy,
		&c.LinkedIdentity,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCustomer retrieves a customer by phone.
func (s *Store) GetCustomer(ctx context.Context, phone string) (*models.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone = $1`
	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, phone))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// CreateCustomer inserts a new customer. Returns ErrAlreadyExists.
func (s *Store) CreateCustomer(ctx context.Context, customer *models.Customer) error {
	query := `
		INSERT INTO customers (` + customerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		customer.Phone,
		customer.DisplayName,
		customer.Note,
		customer.Origin,
		customer.CreatedBy,
		customer.LinkedIdentity,
		customer.CreatedAt,
	)
	if isUniqueViolation(err) {
		return storage.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// UpdateCustomerProfile overwrites name and note with non-empty values.
func (s *Store) UpdateCustomerProfile(ctx context.Context, phone, displayName, note string) (*models.Customer, error) {
	query := `
		UPDATE customers
		SET display_name = COALESCE(NULLIF($2, ''), display_name),
		    note = COALESCE(NULLIF($3, ''), note)
		WHERE phone = $1
		RETURNING ` + customerColumns
	c, err := scanCustomer(s.db.QueryRowContext(ctx, query, phone, displayName, note))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update customer: %w", err)
	}
	return c, nil
}

// DeleteCustomer removes the customer, its entries and its identity link in
// one transaction.
func (s *Store) DeleteCustomer(ctx context.Context, phone string) (int, error) {
	var removed int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var linked int64
		err := tx.QueryRowContext(ctx, `SELECT linked_identity FROM customers WHERE phone = $1 FOR UPDATE`, phone).Scan(&linked)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock customer: %w", err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM ledger_entries WHERE phone = $1`, phone)
		if err != nil {
			return fmt.Errorf("failed to delete ledger entries: %w", err)
		}
		if removed, err = res.RowsAffected(); err != nil {
			return fmt.Errorf("failed to count deleted entries: %w", err)
		}

		if err := unlinkByPhone(ctx, tx, phone, 0, time.Now().UTC()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM customers WHERE phone = $1`, phone); err != nil {
			return fmt.Errorf("failed to delete customer: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed), nil
}
