package outbox

import (
	"context"
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/handlers/respond"
	"github.com/chris/debt-ledger-bot/pkg/mapping"
	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"go.uber.org/zap"
)

// Sweeper runs one retry sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (outbox.SweepResult, error)
}

// OutboxHandler exposes outbox inspection and a manual sweep trigger.
type OutboxHandler struct {
	Store   storage.OutboxReader
	Sweeper Sweeper
	Logger  *zap.Logger
}

// NewOutboxHandler creates a new OutboxHandler.
func NewOutboxHandler(store storage.OutboxReader, sweeper Sweeper, logger *zap.Logger) *OutboxHandler {
	return &OutboxHandler{Store: store, Sweeper: sweeper, Logger: logger}
}

// SweepOutbox re-attempts failed and stuck pending items once, using the
// dispatcher's configured batch size and retry ceiling.
func (h *OutboxHandler) SweepOutbox(w http.ResponseWriter, r *http.Request) {
	res, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		respond.Error(w, h.Logger, err)
		return
	}
	h.Logger.Info("manual outbox sweep",
		zap.Int("attempted", res.Attempted),
		zap.Int("sent", res.Sent),
		zap.Int("failed", res.Failed),
		zap.Int("exhausted", res.Exhausted),
	)
	respond.JSON(w, http.StatusOK, mapping.ToApiSweepResult(res))
}

func (h *OutboxHandler) GetOutboxItem(w http.ResponseWriter, r *http.Request, id string) {
	item, err := h.Store.GetOutboxItem(r.Context(), id)
	if err != nil {
		respond.Error(w, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiOutboxItem(item))
}
