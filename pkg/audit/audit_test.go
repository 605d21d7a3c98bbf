package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingWriter struct{ calls int }

func (f *failingWriter) WriteAudit(context.Context, *models.AuditRecord) error {
	f.calls++
	return errors.New("table unavailable")
}

func TestRecord(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		store := memory.New()
		r := NewRecorder(store, zap.NewNop())

		r.Record(context.Background(), Event{Actor: 7, Action: ActionRoleChange, Entity: EntityIdentity, EntityID: "8", Metadata: map[string]any{"role": "staff"}})
		r.Record(context.Background(), Event{Actor: 7, Action: ActionError, Entity: EntityUpdate, Err: errors.New("boom")})

		records := store.AuditRecords()
		require.Len(t, records, 2)
		assert.True(t, records[0].OK)
		assert.Equal(t, "staff", records[0].Metadata["role"])
		assert.NotEmpty(t, records[0].ID)
		assert.False(t, records[1].OK)
		assert.Equal(t, "boom", records[1].Error)
	})

	t.Run("Writer Error Is Swallowed", func(t *testing.T) {
		w := &failingWriter{}
		r := NewRecorder(w, zap.NewNop())

		assert.NotPanics(t, func() {
			r.Record(context.Background(), Event{Action: ActionError})
		})
		assert.Equal(t, 1, w.calls)
	})
}
