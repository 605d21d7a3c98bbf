package storage

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// CustomerReader defines the interface for reading customer records.
type CustomerReader interface {
	// GetCustomer retrieves a customer by phone. Returns ErrNotFound.
	GetCustomer(ctx context.Context, phone string) (*models.Customer, error)
}

// CustomerStore defines the interface for managing customer records.
type CustomerStore interface {
	CustomerReader

	// CreateCustomer inserts a customer. Returns ErrAlreadyExists.
	CreateCustomer(ctx context.Context, customer *models.Customer) error

	// UpdateCustomerProfile overwrites display_name and note with any
	// non-empty value. Returns ErrNotFound.
	UpdateCustomerProfile(ctx context.Context, phone, displayName, note string) (*models.Customer, error)

	// DeleteCustomer removes the customer, its ledger entries and its identity
	// link. It returns the number of ledger entries removed. Returns ErrNotFound.
	DeleteCustomer(ctx context.Context, phone string) (int, error)
}
