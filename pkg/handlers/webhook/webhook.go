// Package webhook receives Telegram updates over HTTP.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/scheduler"
	"github.com/chris/debt-ledger-bot/pkg/telegram"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// SecretHeader carries the secret_token configured with setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxBodyBytes = 1 << 20

// EventHandler processes one inbound event. It never fails; errors are
// answered to the user.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev models.InboundEvent)
}

// WebhookHandler holds the dependencies for the Telegram webhook. Without a
// Secret every call is rejected unless AllowUnauthenticated is set, which
// only local development does.
type WebhookHandler struct {
	Secret               string
	AllowUnauthenticated bool
	Events               EventHandler
	Scheduler            scheduler.Scheduler
	Logger               *zap.Logger
}

// NewWebhookHandler creates a new WebhookHandler. sched may be nil, in which
// case updates are handled inline.
func NewWebhookHandler(secret string, events EventHandler, sched scheduler.Scheduler, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{Secret: secret, Events: events, Scheduler: sched, Logger: logger}
}

func (h *WebhookHandler) authorized(r *http.Request) bool {
	if h.Secret == "" {
		return h.AllowUnauthenticated
	}
	got := r.Header.Get(SecretHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.Secret)) == 1
}

// ServeHTTP accepts one update. Once the body is decoded the response is
// always 200, so Telegram does not redeliver updates the bot chose to ignore
// or already answered with an error message.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.Logger.Warn("rejected webhook call with bad secret token",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Bool("secret_configured", h.Secret != ""),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var update tgbotapi.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&update); err != nil {
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	ev, ok := telegram.ParseUpdate(update)
	if !ok {
		h.Logger.Debug("ignoring update", zap.Int("update_id", update.UpdateID))
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := context.WithoutCancel(r.Context())
	if h.Scheduler != nil {
		err := h.Scheduler.ScheduleEvent(ctx, ev)
		if err == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		h.Logger.Error("failed to queue update, handling inline",
			zap.Int64("update_id", ev.UpdateID),
			zap.Error(err),
		)
	}
	h.Events.HandleEvent(ctx, ev)
	w.WriteHeader(http.StatusOK)
}
