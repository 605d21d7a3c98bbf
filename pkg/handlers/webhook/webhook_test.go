package webhook_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/chris/debt-ledger-bot/pkg/handlers/webhook"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingHandler struct {
	mu     sync.Mutex
	events []models.InboundEvent
}

func (r *recordingHandler) HandleEvent(_ context.Context, ev models.InboundEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

type stubScheduler struct {
	err    error
	events []models.InboundEvent
}

func (s *stubScheduler) ScheduleEvent(_ context.Context, ev models.InboundEvent) error {
	s.events = append(s.events, ev)
	return s.err
}

const messageUpdate = `{
	"update_id": 1001,
	"message": {
		"message_id": 5,
		"date": 1700000000,
		"text": "/balance 07501234567",
		"chat": {"id": 77, "type": "private"},
		"from": {"id": 42, "is_bot": false, "first_name": "Ali"}
	}
}`

func post(h http.Handler, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	if secret != "" {
		req.Header.Set(webhook.SecretHeader, secret)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestWebhook(t *testing.T) {
	t.Run("Inline", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("s3cret", events, nil, zap.NewNop())

		rr := post(h, messageUpdate, "s3cret")

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, events.events, 1)
		ev := events.events[0]
		assert.Equal(t, int64(1001), ev.UpdateID)
		assert.Equal(t, int64(42), ev.ActorID)
		assert.Equal(t, int64(77), ev.ChatID)
		assert.Equal(t, "balance", ev.Command)
		assert.Equal(t, []string{"07501234567"}, ev.Args)
	})

	t.Run("Queued", func(t *testing.T) {
		events := &recordingHandler{}
		sched := &stubScheduler{}
		h := webhook.NewWebhookHandler("s3cret", events, sched, zap.NewNop())

		rr := post(h, messageUpdate, "s3cret")

		assert.Equal(t, http.StatusOK, rr.Code)
		require.Len(t, sched.events, 1)
		assert.Empty(t, events.events)
	})

	t.Run("Queue Failure Falls Back Inline", func(t *testing.T) {
		events := &recordingHandler{}
		sched := &stubScheduler{err: assert.AnError}
		h := webhook.NewWebhookHandler("s3cret", events, sched, zap.NewNop())

		rr := post(h, messageUpdate, "s3cret")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, events.events, 1)
	})

	t.Run("Bad Secret", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("s3cret", events, nil, zap.NewNop())

		rr := post(h, messageUpdate, "wrong")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, events.events)
	})

	t.Run("Missing Secret", func(t *testing.T) {
		h := webhook.NewWebhookHandler("s3cret", &recordingHandler{}, nil, zap.NewNop())
		assert.Equal(t, http.StatusUnauthorized, post(h, messageUpdate, "").Code)
	})

	t.Run("Empty Secret Fails Closed", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("", events, nil, zap.NewNop())

		rr := post(h, messageUpdate, "")

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Empty(t, events.events)
		assert.Equal(t, http.StatusUnauthorized, post(h, messageUpdate, "anything").Code)
	})

	t.Run("Empty Secret Allowed In Development", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("", events, nil, zap.NewNop())
		h.AllowUnauthenticated = true

		rr := post(h, messageUpdate, "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, events.events, 1)
	})

	t.Run("Configured Secret Ignores Development Flag", func(t *testing.T) {
		h := webhook.NewWebhookHandler("s3cret", &recordingHandler{}, nil, zap.NewNop())
		h.AllowUnauthenticated = true
		assert.Equal(t, http.StatusUnauthorized, post(h, messageUpdate, "").Code)
	})

	t.Run("Invalid Body", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("s3cret", events, nil, zap.NewNop())

		rr := post(h, "not-json", "s3cret")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, events.events)
	})

	t.Run("Ignored Update", func(t *testing.T) {
		events := &recordingHandler{}
		h := webhook.NewWebhookHandler("s3cret", events, nil, zap.NewNop())

		rr := post(h, `{"update_id": 7, "channel_post": {"message_id": 1, "date": 1, "chat": {"id": -1, "type": "channel"}}}`, "s3cret")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, events.events)
	})
}
