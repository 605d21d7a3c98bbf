package storage

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// IdentityReader defines the interface for reading identities.
type IdentityReader interface {
	// GetIdentity retrieves an identity by its external id. Returns ErrNotFound.
	GetIdentity(ctx context.Context, externalID int64) (*models.Identity, error)

	// ListIdentitiesByRole retrieves every identity holding the given role.
	ListIdentitiesByRole(ctx context.Context, role models.Role) ([]models.Identity, error)
}

// IdentityStore combines reads with the explicit two-branch upsert used on
// every inbound event.
type IdentityStore interface {
	IdentityReader

	// CreateIdentity inserts a new identity. Returns ErrAlreadyExists if one is present.
	CreateIdentity(ctx context.Context, identity *models.Identity) error

	// UpdateIdentityProfile overwrites chat_id and coalesces display_name and
	// username (empty values never erase). Role, status, phone and created_at
	// are left untouched. Returns ErrNotFound.
	UpdateIdentityProfile(ctx context.Context, externalID int64, profile models.Profile) (*models.Identity, error)

	// UpdateIdentityAccess sets role and status. Returns ErrNotFound.
	UpdateIdentityAccess(ctx context.Context, externalID int64, role models.Role, status models.IdentityStatus) (*models.Identity, error)
}
