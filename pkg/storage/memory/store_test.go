package memory

import (
	"context"
	"testing"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityUpsertBranches(t *testing.T) {
	ctx := context.Background()
	s := New()

	id := &models.Identity{ExternalID: 1, ChatID: 10, Role: models.RoleStaff, Status: models.StatusActive, DisplayName: "Ali", Phone: "07501234567"}
	require.NoError(t, s.CreateIdentity(ctx, id))
	assert.ErrorIs(t, s.CreateIdentity(ctx, id), storage.ErrAlreadyExists)

	updated, err := s.UpdateIdentityProfile(ctx, 1, models.Profile{ChatID: 11, Username: "ali"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), updated.ChatID)
	assert.Equal(t, "Ali", updated.DisplayName)
	assert.Equal(t, "ali", updated.Username)
	assert.Equal(t, models.RoleStaff, updated.Role)
	assert.Equal(t, "07501234567", updated.Phone)

	_, err = s.UpdateIdentityProfile(ctx, 2, models.Profile{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestApproveRequestRebindsPhone(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	require.NoError(t, s.CreateIdentity(ctx, &models.Identity{ExternalID: 1, Role: models.RoleCustomer, Status: models.StatusActive, Phone: "07501111111"}))
	require.NoError(t, s.CreateIdentity(ctx, &models.Identity{ExternalID: 2, Role: models.RoleCustomer, Status: models.StatusActive, Phone: "07502222222"}))
	require.NoError(t, s.CreateCustomer(ctx, &models.Customer{Phone: "07501111111", LinkedIdentity: 1}))
	require.NoError(t, s.CreateCustomer(ctx, &models.Customer{Phone: "07502222222", DisplayName: "Kept", LinkedIdentity: 2}))

	req := &models.ApprovalRequest{ID: "r1", RequesterID: 1, Phone: "07502222222", DisplayName: "New", Status: models.ApprovalPending, CreatedAt: now}
	_, created, err := s.CreateApprovalRequest(ctx, req)
	require.NoError(t, err)
	require.True(t, created)

	outcome, err := s.ApproveRequest(ctx, "r1", 99, now)
	require.NoError(t, err)
	assert.Equal(t, "07501111111", outcome.PreviousPhone)
	assert.Equal(t, int64(2), outcome.PreviousOwner)
	assert.Equal(t, "Kept", outcome.Customer.DisplayName)

	requester, _ := s.GetIdentity(ctx, 1)
	assert.Equal(t, "07502222222", requester.Phone)
	previous, _ := s.GetIdentity(ctx, 2)
	assert.Empty(t, previous.Phone)
	assert.Equal(t, models.RoleUnaffiliated, previous.Role)
	old, _ := s.GetCustomer(ctx, "07501111111")
	assert.Zero(t, old.LinkedIdentity)

	_, err = s.ApproveRequest(ctx, "r1", 99, now)
	assert.ErrorIs(t, err, storage.ErrAlreadyResolved)
	_, err = s.RejectRequest(ctx, "missing", 99, now)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestPendingGuardBlocksDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := &models.ApprovalRequest{ID: "a", RequesterID: 1, Phone: "07501234567", Status: models.ApprovalPending}
	_, created, err := s.CreateApprovalRequest(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	existing, created, err := s.CreateApprovalRequest(ctx, &models.ApprovalRequest{ID: "b", RequesterID: 1, Phone: "07501234567", Status: models.ApprovalPending})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "a", existing.ID)

	_, err = s.RejectRequest(ctx, "a", 9, time.Now())
	require.NoError(t, err)
	_, created, err = s.CreateApprovalRequest(ctx, &models.ApprovalRequest{ID: "c", RequesterID: 1, Phone: "07501234567", Status: models.ApprovalPending})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeleteCustomerCascades(t *testing.T) {
	ctx := context.Background()
	s := New()
	phone := "07501234567"

	require.NoError(t, s.CreateIdentity(ctx, &models.Identity{ExternalID: 5, Role: models.RoleCustomer, Status: models.StatusActive, Phone: phone}))
	require.NoError(t, s.AppendEntry(ctx, &models.LedgerEntry{EntryID: "e1", Phone: phone, Kind: models.KindDebt, Amount: 10, Currency: models.IQD}, &models.Customer{Phone: phone, LinkedIdentity: 5}))
	require.NoError(t, s.AppendEntry(ctx, &models.LedgerEntry{EntryID: "e2", Phone: phone, Kind: models.KindDebt, Amount: 10, Currency: models.USD}, nil))

	removed, err := s.DeleteCustomer(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = s.GetCustomer(ctx, phone)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	entries, _ := s.ListEntries(ctx, phone, "", 0)
	assert.Empty(t, entries)
	id, _ := s.GetIdentity(ctx, 5)
	assert.Empty(t, id.Phone)
	assert.Equal(t, models.RoleUnaffiliated, id.Role)
}

func TestOutboxTransitions(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	require.NoError(t, s.InsertOutboxItem(ctx, &models.OutboxItem{ID: "o1", Status: models.OutboxPending, CreatedAt: now}))
	require.NoError(t, s.InsertOutboxItem(ctx, &models.OutboxItem{ID: "o2", Status: models.OutboxPending, CreatedAt: now.Add(time.Second)}))

	item, err := s.MarkOutboxFailed(ctx, "o1", "timeout", now)
	require.NoError(t, err)
	assert.Equal(t, 1, item.RetryCount)
	assert.Equal(t, models.OutboxFailed, item.Status)

	candidates, err := s.ListOutboxCandidates(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "o2", candidates[0].ID)

	require.NoError(t, s.MarkOutboxSent(ctx, "o2", now))
	_, err = s.MarkOutboxFailed(ctx, "o2", "late", now)
	assert.ErrorIs(t, err, storage.ErrOutboxItemSent)
}
