package ledger

import (
	"context"
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/api"
	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/handlers/respond"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/mapping"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"go.uber.org/zap"
)

// Reader is the part of the ledger service the API reads through, so
// balances go through the same snapshot check as the bot.
type Reader interface {
	Statement(ctx context.Context, phone string) (*ledger.Statement, error)
	Entries(ctx context.Context, phone string, limit int) ([]models.LedgerEntry, error)
}

// LedgerHandler holds the dependencies for ledger-related handlers.
type LedgerHandler struct {
	Ledger Reader
	Logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(reader Reader, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{Ledger: reader, Logger: logger}
}

// GetCustomerBalance returns the customer with a balance per currency, or
// only the requested currency.
func (h *LedgerHandler) GetCustomerBalance(w http.ResponseWriter, r *http.Request, phone api.Phone, params api.GetCustomerBalanceParams) {
	var keep func(models.Currency) bool
	if params.Currency != nil {
		want := models.Currency(*params.Currency)
		if !want.Valid() {
			respond.Error(w, h.Logger, apperrors.Validation("unsupported currency %q, use IQD or USD", want))
			return
		}
		keep = func(c models.Currency) bool { return c == want }
	}

	st, err := h.Ledger.Statement(r.Context(), phone)
	if err != nil {
		respond.Error(w, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiStatement(st, keep))
}

// ListCustomerEntries returns recent entries, newest first.
func (h *LedgerHandler) ListCustomerEntries(w http.ResponseWriter, r *http.Request, phone api.Phone, params api.ListCustomerEntriesParams) {
	limit := 0
	if params.Limit != nil {
		if *params.Limit < 1 {
			respond.Error(w, h.Logger, apperrors.Validation("limit must be positive"))
			return
		}
		limit = *params.Limit
	}

	entries, err := h.Ledger.Entries(r.Context(), phone, limit)
	if err != nil {
		respond.Error(w, h.Logger, err)
		return
	}

	out := make([]*api.LedgerEntry, len(entries))
	for i := range entries {
		out[i] = mapping.ToApiLedgerEntry(&entries[i])
	}
	respond.JSON(w, http.StatusOK, out)
}
