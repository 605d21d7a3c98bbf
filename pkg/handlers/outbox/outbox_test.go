package outbox_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/api"
	handler "github.com/chris/debt-ledger-bot/pkg/handlers/outbox"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/chris/debt-ledger-bot/pkg/storage/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubSweeper struct {
	result outbox.SweepResult
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(context.Context) (outbox.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

func TestSweepOutbox(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		sweeper := &stubSweeper{result: outbox.SweepResult{Attempted: 3, Sent: 2, Failed: 1}}
		h := handler.NewOutboxHandler(new(mocks.ApiStore), sweeper, zap.NewNop())

		rr := httptest.NewRecorder()
		h.SweepOutbox(rr, httptest.NewRequest(http.MethodPost, "/outbox/sweep", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		var body api.SweepResult
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, api.SweepResult{Attempted: 3, Sent: 2, Failed: 1}, body)
		assert.Equal(t, 1, sweeper.calls)
	})

	t.Run("Storage Error", func(t *testing.T) {
		sweeper := &stubSweeper{err: assert.AnError}
		h := handler.NewOutboxHandler(new(mocks.ApiStore), sweeper, zap.NewNop())

		rr := httptest.NewRecorder()
		h.SweepOutbox(rr, httptest.NewRequest(http.MethodPost, "/outbox/sweep", nil))

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestGetOutboxItem(t *testing.T) {
	item := &models.OutboxItem{
		ID:          "item-1",
		Destination: 7,
		Payload:     `{"text":"secret"}`,
		Status:      models.OutboxFailed,
		RetryCount:  2,
		LastError:   "timeout",
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	t.Run("Success", func(t *testing.T) {
		mockStorage := new(mocks.ApiStore)
		mockStorage.On("GetOutboxItem", mock.Anything, "item-1").Once().Return(item, nil)
		h := handler.NewOutboxHandler(mockStorage, &stubSweeper{}, zap.NewNop())

		rr := httptest.NewRecorder()
		h.GetOutboxItem(rr, httptest.NewRequest(http.MethodGet, "/outbox/item-1", nil), "item-1")

		assert.Equal(t, http.StatusOK, rr.Code)
		var body api.OutboxItem
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		assert.Equal(t, api.Failed, body.Status)
		assert.Equal(t, 2, body.RetryCount)
		assert.NotContains(t, rr.Body.String(), "secret")
		mockStorage.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockStorage := new(mocks.ApiStore)
		mockStorage.On("GetOutboxItem", mock.Anything, "missing").Once().Return(nil, storage.ErrNotFound)
		h := handler.NewOutboxHandler(mockStorage, &stubSweeper{}, zap.NewNop())

		rr := httptest.NewRecorder()
		h.GetOutboxItem(rr, httptest.NewRequest(http.MethodGet, "/outbox/missing", nil), "missing")

		assert.Equal(t, http.StatusNotFound, rr.Code)
		mockStorage.AssertExpectations(t)
	})
}
