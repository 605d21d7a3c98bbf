package customers

import (
	"errors"
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/api"
	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/handlers/respond"
	"github.com/chris/debt-ledger-bot/pkg/mapping"
	"github.com/chris/debt-ledger-bot/pkg/phone"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"go.uber.org/zap"
)

// CustomersHandler holds the dependencies for customer-related handlers.
type CustomersHandler struct {
	Store  storage.CustomerReader
	Logger *zap.Logger
}

// NewCustomersHandler creates a new CustomersHandler.
func NewCustomersHandler(store storage.CustomerReader, logger *zap.Logger) *CustomersHandler {
	return &CustomersHandler{Store: store, Logger: logger}
}

// GetCustomer returns a customer record by phone. The phone may be given in
// any accepted form; it is normalised before the lookup.
func (h *CustomersHandler) GetCustomer(w http.ResponseWriter, r *http.Request, raw api.Phone) {
	p, ok := phone.Parse(raw)
	if !ok {
		respond.Error(w, h.Logger, apperrors.Validation("invalid phone number %q, expected 07XXXXXXXXX", raw))
		return
	}

	c, err := h.Store.GetCustomer(r.Context(), p)
	if errors.Is(err, storage.ErrNotFound) {
		respond.Error(w, h.Logger, apperrors.NotFound("no customer with phone %s", p))
		return
	}
	if err != nil {
		respond.Error(w, h.Logger, err)
		return
	}
	respond.JSON(w, http.StatusOK, mapping.ToApiCustomer(c))
}
