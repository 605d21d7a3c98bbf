package bootstrap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/config"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const adminID = int64(1001)

type fakeTransport struct {
	mu        sync.Mutex
	sent      map[int64][]models.Notification
	callbacks []string
}

func (f *fakeTransport) Send(_ context.Context, destination int64, n models.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[int64][]models.Notification{}
	}
	f.sent[destination] = append(f.sent[destination], n)
	return nil
}

func (f *fakeTransport) AnswerCallback(callbackID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, callbackID)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		AdminTelegramID: adminID,
		StorageBackend:  config.BackendMemory,
		HistoryLimit:    10,
		UpdateMarkerTTL: time.Hour,
		Outbox: config.OutboxConfig{
			MaxRetries:  5,
			BatchSize:   50,
			SendTimeout: time.Second,
		},
	}
}

func TestWire(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	transport := &fakeTransport{}
	app := Wire(testConfig(), zap.NewNop(), Deps{Store: store, Transport: transport})

	app.Dispatcher.HandleEvent(ctx, models.InboundEvent{
		UpdateID: 1,
		ActorID:  adminID,
		ChatID:   adminID,
		Command:  "adddebt",
		Args:     []string{"07501234567", "50000"},
	})
	app.Dispatcher.HandleEvent(ctx, models.InboundEvent{
		UpdateID:   2,
		ActorID:    adminID,
		ChatID:     adminID,
		Command:    "pay",
		Args:       []string{"07501234567", "20000", "IQD"},
		CallbackID: "cb-1",
	})
	// Redelivery of the first update is ignored.
	app.Dispatcher.HandleEvent(ctx, models.InboundEvent{
		UpdateID: 1,
		ActorID:  adminID,
		ChatID:   adminID,
		Command:  "adddebt",
		Args:     []string{"07501234567", "50000"},
	})

	st, err := app.Ledger.Statement(ctx, "07501234567")
	require.NoError(t, err)
	require.Len(t, st.Balances, 2)
	assert.Equal(t, int64(30000), st.Balances[0].Amount)
	assert.Equal(t, 2, st.Balances[0].EntryCount)

	assert.Len(t, transport.sent[adminID], 2)
	assert.Equal(t, []string{"cb-1"}, transport.callbacks)

	for _, item := range store.OutboxItems() {
		assert.Equal(t, models.OutboxSent, item.Status)
	}

	families, err := app.Metrics.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["debtbot_bot_commands_total"])
	assert.True(t, names["debtbot_intake_updates_total"])
	assert.True(t, names["debtbot_outbox_attempts_total"])

	purged, err := app.PurgeExpiredUpdates(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)
	assert.NoError(t, app.Close())
}
