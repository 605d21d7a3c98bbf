package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/cache"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testPhone = "07501234567"

type mapCache struct {
	mu    sync.Mutex
	items map[string]models.Balance
	fail  bool
}

func newMapCache() *mapCache { return &mapCache{items: map[string]models.Balance{}} }

func (c *mapCache) Get(_ context.Context, phone string, currency models.Currency) (*models.Balance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errors.New("cache down")
	}
	b, ok := c.items[phone+string(currency)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (c *mapCache) Set(_ context.Context, b *models.Balance) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("cache down")
	}
	c.items[b.Phone+string(b.Currency)] = *b
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cur := range models.SupportedCurrencies {
		delete(c.items, phone+string(cur))
	}
	return nil
}

var _ cache.BalanceCache = (*mapCache)(nil)

func newService(t *testing.T, bc cache.BalanceCache) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	recorder := audit.NewRecorder(store, zap.NewNop())
	registry := identity.NewRegistry(store, recorder, 0, zap.NewNop())
	return NewService(store, registry, bc, recorder, zap.NewNop(), 0), store
}

func actor(id int64, role models.Role) *models.Identity {
	return &models.Identity{ExternalID: id, Role: role, Status: models.StatusActive}
}

func TestRecordScenario(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, nil)
	staff := actor(1, models.RoleStaff)

	r, err := svc.Record(ctx, staff, RecordRequest{Phone: "+964 750 123 4567", Kind: models.KindDebt, Amount: 50000, Currency: models.IQD})
	require.NoError(t, err)
	assert.Equal(t, testPhone, r.Entry.Phone)
	assert.Equal(t, int64(50000), r.Balance.Amount)
	assert.Equal(t, models.OriginLedger, r.Customer.Origin)
	assert.Equal(t, int64(1), r.Customer.CreatedBy)

	r, err = svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindPayment, Amount: 20000})
	require.NoError(t, err)
	assert.Equal(t, models.IQD, r.Entry.Currency)
	assert.Equal(t, int64(30000), r.Balance.Amount)
	assert.Equal(t, int64(50000), r.Balance.DebtTotal)
	assert.Equal(t, int64(20000), r.Balance.PaymentTotal)
	assert.Equal(t, 2, r.Balance.EntryCount)

	usd, err := svc.ResolveBalance(ctx, testPhone, models.USD)
	require.NoError(t, err)
	assert.Equal(t, int64(0), usd.Amount)

	var ledgerAudits int
	for _, rec := range store.AuditRecords() {
		if rec.Action == audit.ActionLedgerEntry {
			ledgerAudits++
			assert.True(t, rec.OK)
		}
	}
	assert.Equal(t, 2, ledgerAudits)
}

func TestRecordValidation(t *testing.T) {
	ctx := context.Background()
	svc, store := newService(t, nil)
	staff := actor(1, models.RoleStaff)

	cases := []struct {
		name string
		req  RecordRequest
	}{
		{"Zero Amount", RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 0}},
		{"Negative Amount", RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: -5}},
		{"Too Large", RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: MaxAmount + 1}},
		{"Bad Currency", RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 1, Currency: "EUR"}},
		{"Bad Phone", RecordRequest{Phone: "12345", Kind: models.KindDebt, Amount: 1}},
		{"Bad Kind", RecordRequest{Phone: testPhone, Kind: "refund", Amount: 1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Record(ctx, staff, tc.req)
			assert.ErrorIs(t, err, apperrors.ErrValidation)
		})
	}

	_, err := store.GetCustomer(ctx, testPhone)
	assert.Error(t, err, "rejected entries must not create a customer")
}

func TestRecordAuthorization(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	req := RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 100}

	for _, role := range []models.Role{models.RoleUnaffiliated, models.RoleCustomer} {
		_, err := svc.Record(ctx, actor(2, role), req)
		assert.ErrorIs(t, err, apperrors.ErrAuthorization, "role %s", role)
	}

	locked := actor(3, models.RoleStaff)
	locked.Status = models.StatusLocked
	_, err := svc.Record(ctx, locked, req)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	_, err = svc.Record(ctx, actor(4, models.RoleAdmin), req)
	assert.NoError(t, err)
}

func TestRecordConcurrent(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, newMapCache())
	staff := actor(1, models.RoleStaff)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			kind := models.KindDebt
			if i%4 == 0 {
				kind = models.KindPayment
			}
			_, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: kind, Amount: 10})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	b, err := svc.ResolveBalance(ctx, testPhone, models.IQD)
	require.NoError(t, err)
	assert.Equal(t, 40, b.EntryCount)
	assert.Equal(t, int64(30*10-10*10), b.Amount)
}

func TestResolveBalanceCache(t *testing.T) {
	ctx := context.Background()
	staff := actor(1, models.RoleStaff)

	t.Run("Fresh Snapshot Is Used", func(t *testing.T) {
		bc := newMapCache()
		svc, store := newService(t, bc)
		_, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 100})
		require.NoError(t, err)

		mark, err := store.EntryMark(ctx, testPhone, models.IQD)
		require.NoError(t, err)
		require.NoError(t, bc.Set(ctx, &models.Balance{
			Phone: testPhone, Currency: models.IQD, Amount: 999,
			EntryCount: mark.Count, LastEntryID: mark.LastEntryID,
		}))

		b, err := svc.ResolveBalance(ctx, testPhone, models.IQD)
		require.NoError(t, err)
		assert.Equal(t, int64(999), b.Amount)
	})

	t.Run("Stale Snapshot Is Ignored", func(t *testing.T) {
		bc := newMapCache()
		svc, store := newService(t, bc)
		_, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 100})
		require.NoError(t, err)

		// A writer that bypasses the service leaves the snapshot behind.
		require.NoError(t, store.AppendEntry(ctx, &models.LedgerEntry{
			EntryID: "ffffffff-ffff-7fff-bfff-ffffffffffff", Phone: testPhone,
			Kind: models.KindDebt, Amount: 50, Currency: models.IQD,
		}, nil))

		b, err := svc.ResolveBalance(ctx, testPhone, models.IQD)
		require.NoError(t, err)
		assert.Equal(t, int64(150), b.Amount)

		cached, _ := bc.Get(ctx, testPhone, models.IQD)
		require.NotNil(t, cached)
		assert.Equal(t, int64(150), cached.Amount)
	})

	t.Run("Smaller Id Committed After Snapshot", func(t *testing.T) {
		bc := newMapCache()
		svc, store := newService(t, bc)
		require.NoError(t, store.AppendEntry(ctx, &models.LedgerEntry{
			EntryID: "0190-b", Phone: testPhone, Kind: models.KindDebt, Amount: 100, Currency: models.IQD,
		}, &models.Customer{Phone: testPhone}))

		b, err := svc.ResolveBalance(ctx, testPhone, models.IQD)
		require.NoError(t, err)
		require.Equal(t, int64(100), b.Amount)

		// Generated first, committed second.
		require.NoError(t, store.AppendEntry(ctx, &models.LedgerEntry{
			EntryID: "0190-a", Phone: testPhone, Kind: models.KindDebt, Amount: 100, Currency: models.IQD,
		}, nil))

		b, err = svc.ResolveBalance(ctx, testPhone, models.IQD)
		require.NoError(t, err)
		assert.Equal(t, int64(200), b.Amount)
		assert.Equal(t, 2, b.EntryCount)
	})

	t.Run("Receipt Includes Own Entry", func(t *testing.T) {
		bc := newMapCache()
		svc, store := newService(t, bc)
		require.NoError(t, store.AppendEntry(ctx, &models.LedgerEntry{
			EntryID: "ffffffff-ffff-7fff-bfff-ffffffffffff", Phone: testPhone,
			Kind: models.KindDebt, Amount: 100, Currency: models.IQD,
		}, &models.Customer{Phone: testPhone}))
		_, err := svc.ResolveBalance(ctx, testPhone, models.IQD)
		require.NoError(t, err)

		r, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 50})
		require.NoError(t, err)
		assert.Equal(t, int64(150), r.Balance.Amount)

		cached, _ := bc.Get(ctx, testPhone, models.IQD)
		require.NotNil(t, cached)
		assert.Equal(t, int64(150), cached.Amount)
		assert.Equal(t, 2, cached.EntryCount)
	})

	t.Run("Cache Failure Falls Back", func(t *testing.T) {
		bc := newMapCache()
		bc.fail = true
		svc, _ := newService(t, bc)
		r, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 70})
		require.NoError(t, err)
		assert.Equal(t, int64(70), r.Balance.Amount)
	})
}

func TestReadAccess(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	_, err := svc.Record(ctx, actor(1, models.RoleStaff), RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 100})
	require.NoError(t, err)

	owner := actor(2, models.RoleCustomer)
	owner.Phone = testPhone
	st, err := svc.Summary(ctx, owner, testPhone)
	require.NoError(t, err)
	require.Len(t, st.Balances, len(models.SupportedCurrencies))
	assert.Equal(t, int64(100), st.Balances[0].Amount)

	other := actor(3, models.RoleCustomer)
	other.Phone = "07700000000"
	_, err = svc.Balance(ctx, other, testPhone, models.IQD)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	_, err = svc.History(ctx, actor(4, models.RoleUnaffiliated), testPhone, 5)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	_, err = svc.Customer(ctx, actor(5, models.RoleStaff), "07811111111")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestHistory(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	staff := actor(1, models.RoleStaff)
	for i := 1; i <= 12; i++ {
		_, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: int64(i)})
		require.NoError(t, err)
	}

	entries, err := svc.History(ctx, staff, testPhone, 0)
	require.NoError(t, err)
	require.Len(t, entries, 10)
	assert.Equal(t, int64(12), entries[0].Amount)
	assert.Equal(t, int64(3), entries[9].Amount)

	entries, err = svc.History(ctx, staff, testPhone, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestRegisterCustomer(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t, nil)
	staff := actor(1, models.RoleStaff)

	c, created, err := svc.RegisterCustomer(ctx, staff, testPhone, "Ali", "corner shop")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.OriginStaff, c.Origin)

	c, created, err = svc.RegisterCustomer(ctx, staff, testPhone, "Ali Hassan", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "Ali Hassan", c.DisplayName)
	assert.Equal(t, "corner shop", c.Note)

	_, _, err = svc.RegisterCustomer(ctx, actor(2, models.RoleCustomer), testPhone, "x", "")
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)
}

func TestDeleteCustomer(t *testing.T) {
	ctx := context.Background()
	bc := newMapCache()
	svc, store := newService(t, bc)
	staff := actor(1, models.RoleStaff)
	admin := actor(9, models.RoleAdmin)

	for i := 0; i < 3; i++ {
		_, err := svc.Record(ctx, staff, RecordRequest{Phone: testPhone, Kind: models.KindDebt, Amount: 10})
		require.NoError(t, err)
	}

	_, err := svc.DeleteCustomer(ctx, staff, testPhone)
	assert.ErrorIs(t, err, apperrors.ErrAuthorization)

	removed, err := svc.DeleteCustomer(ctx, admin, testPhone)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	_, err = store.GetCustomer(ctx, testPhone)
	assert.Error(t, err)
	cached, _ := bc.Get(ctx, testPhone, models.IQD)
	assert.Nil(t, cached)

	_, err = svc.DeleteCustomer(ctx, admin, testPhone)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"50000", 50000, false},
		{"50,000", 50000, false},
		{"1_000", 1000, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"12.5", 0, true},
		{"abc", 0, true},
		{"", 0, true},
		{"1000000000001", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, apperrors.ErrValidation, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency("usd")
	require.NoError(t, err)
	assert.Equal(t, models.USD, c)

	c, err = ParseCurrency("")
	require.NoError(t, err)
	assert.Equal(t, models.IQD, c)

	_, err = ParseCurrency("eur")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.True(t, LooksLikeCurrency("Iqd"))
	assert.True(t, LooksLikeCurrency("EUR"))
	assert.False(t, LooksLikeCurrency("5000"))
	assert.False(t, LooksLikeCurrency("rent"))
	assert.False(t, LooksLikeCurrency("ع12"))
}
