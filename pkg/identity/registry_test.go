package identity

import (
	"context"
	"strconv"
	"testing"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID = int64(1000)

func newRegistry(t *testing.T) (*Registry, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewRegistry(store, audit.NewRecorder(store, zap.NewNop()), adminID, zap.NewNop()), store
}

func TestAuthorizeMatrix(t *testing.T) {
	all := []Capability{ReadOwn, ReadAny, WriteLedger, ManageStaff, ManageApprovals, LockUsers, RequestLink, DeleteCustomers}
	allowed := map[models.Role][]Capability{
		models.RoleUnaffiliated: {RequestLink},
		models.RoleCustomer:     {ReadOwn, RequestLink},
		models.RoleStaff:        {ReadAny, WriteLedger},
		models.RoleAdmin:        all,
	}

	for role, caps := range allowed {
		for _, c := range all {
			active := &models.Identity{Role: role, Status: models.StatusActive}
			locked := &models.Identity{Role: role, Status: models.StatusLocked}

			assert.Equal(t, contains(caps, c), Authorize(active, c), "%s/%s", role, c)
			assert.False(t, Authorize(locked, c), "locked %s/%s", role, c)
		}
	}
	assert.False(t, Authorize(nil, ReadOwn))
}

func contains(caps []Capability, c Capability) bool {
	for _, have := range caps {
		if have == c {
			return true
		}
	}
	return false
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("Creates With Defaults", func(t *testing.T) {
		r, _ := newRegistry(t)
		id, err := r.Resolve(ctx, 42, models.Profile{ChatID: 420, DisplayName: "Sara"})
		require.NoError(t, err)
		assert.Equal(t, models.RoleUnaffiliated, id.Role)
		assert.Equal(t, models.StatusActive, id.Status)
		assert.Equal(t, int64(420), id.ChatID)
	})

	t.Run("Coalesces Profile", func(t *testing.T) {
		r, _ := newRegistry(t)
		_, err := r.Resolve(ctx, 42, models.Profile{ChatID: 420, DisplayName: "Sara", Username: "sara"})
		require.NoError(t, err)

		id, err := r.Resolve(ctx, 42, models.Profile{ChatID: 421})
		require.NoError(t, err)
		assert.Equal(t, int64(421), id.ChatID)
		assert.Equal(t, "Sara", id.DisplayName)
		assert.Equal(t, "sara", id.Username)
	})

	t.Run("Bootstrap Admin Survives Tampering", func(t *testing.T) {
		r, store := newRegistry(t)
		require.NoError(t, store.CreateIdentity(ctx, &models.Identity{ExternalID: adminID, Role: models.RoleCustomer, Status: models.StatusLocked}))

		id, err := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, id.Role)
		assert.Equal(t, models.StatusActive, id.Status)

		stored, _ := store.GetIdentity(ctx, adminID)
		assert.Equal(t, models.RoleAdmin, stored.Role)

		records := store.AuditRecords()
		require.Len(t, records, 1)
		assert.Equal(t, audit.ActionRoleChange, records[0].Action)
		assert.Equal(t, audit.EntityIdentity, records[0].Entity)
		assert.Equal(t, strconv.FormatInt(adminID, 10), records[0].EntityID)
		assert.Equal(t, string(models.RoleCustomer), records[0].Metadata["from"])
		assert.Equal(t, string(models.RoleAdmin), records[0].Metadata["to"])
		assert.Equal(t, string(models.StatusLocked), records[0].Metadata["from_status"])
		assert.Equal(t, string(models.StatusActive), records[0].Metadata["to_status"])

		again, err := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, again.Role)
		assert.Len(t, store.AuditRecords(), 1)
	})

	t.Run("Bootstrap Admin On First Contact", func(t *testing.T) {
		r, _ := newRegistry(t)
		id, err := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, id.Role)
	})
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()

	t.Run("Admin Promotes Unknown User", func(t *testing.T) {
		r, store := newRegistry(t)
		admin, _ := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})

		updated, err := r.SetRole(ctx, admin, 77, models.RoleStaff)
		require.NoError(t, err)
		assert.Equal(t, models.RoleStaff, updated.Role)

		records := store.AuditRecords()
		require.NotEmpty(t, records)
		last := records[len(records)-1]
		assert.Equal(t, audit.ActionRoleChange, last.Action)
		assert.Equal(t, "77", last.EntityID)
	})

	t.Run("Staff Is Denied And Audited", func(t *testing.T) {
		r, store := newRegistry(t)
		admin, _ := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
		staff, err := r.SetRole(ctx, admin, 5, models.RoleStaff)
		require.NoError(t, err)

		_, err = r.SetRole(ctx, staff, 6, models.RoleStaff)
		assert.ErrorIs(t, err, apperrors.ErrAuthorization)

		records := store.AuditRecords()
		last := records[len(records)-1]
		assert.Equal(t, audit.ActionAuthorization, last.Action)
		assert.False(t, last.OK)
	})

	t.Run("Bootstrap Admin Cannot Be Demoted", func(t *testing.T) {
		r, _ := newRegistry(t)
		admin, _ := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})

		_, err := r.SetRole(ctx, admin, adminID, models.RoleStaff)
		assert.ErrorIs(t, err, apperrors.ErrValidation)

		_, err = r.SetStatus(ctx, admin, adminID, models.StatusLocked)
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})

	t.Run("Invalid Role", func(t *testing.T) {
		r, _ := newRegistry(t)
		admin, _ := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
		_, err := r.SetRole(ctx, admin, 9, models.Role("owner"))
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestSetStatusLocksOut(t *testing.T) {
	ctx := context.Background()
	r, _ := newRegistry(t)
	admin, _ := r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
	_, err := r.SetRole(ctx, admin, 5, models.RoleStaff)
	require.NoError(t, err)

	locked, err := r.SetStatus(ctx, admin, 5, models.StatusLocked)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStaff, locked.Role)

	err = r.Require(ctx, locked, WriteLedger)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
	e, _ := apperrors.As(err)
	assert.Equal(t, "your account is locked", e.Message)
}

func TestActiveAdmins(t *testing.T) {
	ctx := context.Background()
	r, store := newRegistry(t)
	_, _ = r.Resolve(ctx, adminID, models.Profile{ChatID: 1})
	require.NoError(t, store.CreateIdentity(ctx, &models.Identity{ExternalID: 2, ChatID: 2, Role: models.RoleAdmin, Status: models.StatusLocked}))
	require.NoError(t, store.CreateIdentity(ctx, &models.Identity{ExternalID: 3, Role: models.RoleAdmin, Status: models.StatusActive}))

	admins, err := r.ActiveAdmins(ctx)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, adminID, admins[0].ExternalID)
}
