package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"go.uber.org/zap"
)

// Registry resolves external actors to identities and gates every mutating
// operation on their role and status.
type Registry struct {
	store   storage.IdentityStore
	audit   *audit.Recorder
	adminID int64
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry creates a Registry. adminID is the operator-configured
// bootstrap administrator; zero disables the bootstrap.
func NewRegistry(store storage.IdentityStore, recorder *audit.Recorder, adminID int64, logger *zap.Logger) *Registry {
	return &Registry{
		store:   store,
		audit:   recorder,
		adminID: adminID,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// BootstrapAccess returns the role and status an identity must hold. The
// configured admin always resolves to admin/active; everyone else keeps
// what is stored.
func BootstrapAccess(externalID, adminID int64, role models.Role, status models.IdentityStatus) (models.Role, models.IdentityStatus) {
	if adminID != 0 && externalID == adminID {
		return models.RoleAdmin, models.StatusActive
	}
	return role, status
}

// IsBootstrapAdmin reports whether externalID is the configured admin.
func (r *Registry) IsBootstrapAdmin(externalID int64) bool {
	return r.adminID != 0 && externalID == r.adminID
}

// Resolve fetches or creates the identity for externalID. An existing
// identity only has its profile refreshed: chat_id is overwritten while
// display name and username are coalesced.
func (r *Registry) Resolve(ctx context.Context, externalID int64, profile models.Profile) (*models.Identity, error) {
	id, err := r.store.GetIdentity(ctx, externalID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		id, err = r.create(ctx, externalID, profile)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("failed to get identity: %w", err)
	default:
		id, err = r.store.UpdateIdentityProfile(ctx, externalID, profile)
		if err != nil {
			return nil, fmt.Errorf("failed to update identity profile: %w", err)
		}
	}
	return r.enforceBootstrap(ctx, id)
}

func (r *Registry) create(ctx context.Context, externalID int64, profile models.Profile) (*models.Identity, error) {
	now := r.now()
	role, status := BootstrapAccess(externalID, r.adminID, models.RoleUnaffiliated, models.StatusActive)
	id := &models.Identity{
		ExternalID:  externalID,
		ChatID:      profile.ChatID,
		Role:        role,
		Status:      status,
		DisplayName: profile.DisplayName,
		Username:    profile.Username,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := r.store.CreateIdentity(ctx, id)
	if errors.Is(err, storage.ErrAlreadyExists) {
		// Lost a first-contact race; fall back to the update branch.
		return r.store.UpdateIdentityProfile(ctx, externalID, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}
	return id, nil
}

func (r *Registry) enforceBootstrap(ctx context.Context, id *models.Identity) (*models.Identity, error) {
	role, status := BootstrapAccess(id.ExternalID, r.adminID, id.Role, id.Status)
	if role == id.Role && status == id.Status {
		return id, nil
	}
	r.logger.Warn("restoring bootstrap admin access",
		zap.Int64("external_id", id.ExternalID),
		zap.String("stored_role", string(id.Role)),
		zap.String("stored_status", string(id.Status)),
	)
	updated, err := r.store.UpdateIdentityAccess(ctx, id.ExternalID, role, status)
	if err != nil {
		return nil, fmt.Errorf("failed to restore bootstrap admin: %w", err)
	}
	r.audit.Record(ctx, audit.Event{
		Actor:    id.ExternalID,
		Action:   audit.ActionRoleChange,
		Entity:   audit.EntityIdentity,
		EntityID: strconv.FormatInt(id.ExternalID, 10),
		Metadata: map[string]any{
			"from":        string(id.Role),
			"to":          string(role),
			"from_status": string(id.Status),
			"to_status":   string(status),
			"reason":      "bootstrap",
		},
	})
	return updated, nil
}

// Lookup returns an identity that has contacted the bot.
func (r *Registry) Lookup(ctx context.Context, externalID int64) (*models.Identity, error) {
	id, err := r.store.GetIdentity(ctx, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("user %d has never contacted the bot", externalID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return id, nil
}

// ensure returns the target identity, creating a bare record for users who
// have not contacted the bot yet.
func (r *Registry) ensure(ctx context.Context, externalID int64) (*models.Identity, error) {
	id, err := r.store.GetIdentity(ctx, externalID)
	if errors.Is(err, storage.ErrNotFound) {
		return r.create(ctx, externalID, models.Profile{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return id, nil
}

// Require returns an AuthorizationError, and audits the denial, when actor
// lacks the capability.
func (r *Registry) Require(ctx context.Context, actor *models.Identity, c Capability) error {
	if Authorize(actor, c) {
		return nil
	}
	ev := audit.Event{
		Action: audit.ActionAuthorization,
		Entity: audit.EntityIdentity,
		Err:    fmt.Errorf("missing capability %s", c),
		Metadata: map[string]any{
			"capability": string(c),
		},
	}
	if actor != nil {
		ev.Actor = actor.ExternalID
		ev.EntityID = strconv.FormatInt(actor.ExternalID, 10)
		ev.Metadata["role"] = string(actor.Role)
		ev.Metadata["status"] = string(actor.Status)
	}
	r.audit.Record(ctx, ev)

	if actor != nil && actor.Status == models.StatusLocked {
		return apperrors.Authorization("your account is locked")
	}
	return apperrors.Authorization("you do not have permission to %s", describe(c))
}

// SetRole changes the target's role. Requires manage-staff.
func (r *Registry) SetRole(ctx context.Context, actor *models.Identity, targetID int64, role models.Role) (*models.Identity, error) {
	if err := r.Require(ctx, actor, ManageStaff); err != nil {
		return nil, err
	}
	if !role.Valid() {
		return nil, apperrors.Validation("unknown role %q", role)
	}
	if r.IsBootstrapAdmin(targetID) && role != models.RoleAdmin {
		return nil, apperrors.Validation("the bootstrap administrator cannot be demoted")
	}
	target, err := r.ensure(ctx, targetID)
	if err != nil {
		return nil, err
	}
	updated, err := r.store.UpdateIdentityAccess(ctx, targetID, role, target.Status)
	if err != nil {
		return nil, fmt.Errorf("failed to update identity role: %w", err)
	}
	r.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionRoleChange,
		Entity:   audit.EntityIdentity,
		EntityID: strconv.FormatInt(targetID, 10),
		Metadata: map[string]any{"from": string(target.Role), "to": string(role)},
	})
	return updated, nil
}

// SetStatus locks or unlocks the target. Requires lock-users.
func (r *Registry) SetStatus(ctx context.Context, actor *models.Identity, targetID int64, status models.IdentityStatus) (*models.Identity, error) {
	if err := r.Require(ctx, actor, LockUsers); err != nil {
		return nil, err
	}
	if status != models.StatusActive && status != models.StatusLocked {
		return nil, apperrors.Validation("unknown status %q", status)
	}
	if r.IsBootstrapAdmin(targetID) && status != models.StatusActive {
		return nil, apperrors.Validation("the bootstrap administrator cannot be locked")
	}
	target, err := r.ensure(ctx, targetID)
	if err != nil {
		return nil, err
	}
	updated, err := r.store.UpdateIdentityAccess(ctx, targetID, target.Role, status)
	if err != nil {
		return nil, fmt.Errorf("failed to update identity status: %w", err)
	}
	r.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionStatusChange,
		Entity:   audit.EntityIdentity,
		EntityID: strconv.FormatInt(targetID, 10),
		Metadata: map[string]any{"from": string(target.Status), "to": string(status)},
	})
	return updated, nil
}

// ActiveAdmins lists admins that can receive notifications.
func (r *Registry) ActiveAdmins(ctx context.Context) ([]models.Identity, error) {
	admins, err := r.store.ListIdentitiesByRole(ctx, models.RoleAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	out := admins[:0]
	for _, a := range admins {
		if a.Status == models.StatusActive && a.ChatID != 0 {
			out = append(out, a)
		}
	}
	return out, nil
}
