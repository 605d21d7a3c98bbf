package handlers

import (
	"net/http"

	"github.com/chris/debt-ledger-bot/pkg/api"
	"github.com/chris/debt-ledger-bot/pkg/handlers/customers"
	"github.com/chris/debt-ledger-bot/pkg/handlers/ledger"
	"github.com/chris/debt-ledger-bot/pkg/handlers/outbox"
	"github.com/chris/debt-ledger-bot/pkg/handlers/respond"
	"github.com/chris/debt-ledger-bot/pkg/handlers/webhook"
	"github.com/chris/debt-ledger-bot/pkg/middleware"
	"github.com/chris/debt-ledger-bot/pkg/scheduler"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ApiHandler implements the generated server interface by composing the
// per-resource handlers.
type ApiHandler struct {
	*ledger.LedgerHandler
	*customers.CustomersHandler
	*outbox.OutboxHandler
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(store storage.ApiStore, reader ledger.Reader, sweeper outbox.Sweeper, logger *zap.Logger) *ApiHandler {
	return &ApiHandler{
		LedgerHandler:    ledger.NewLedgerHandler(reader, logger),
		CustomersHandler: customers.NewCustomersHandler(store, logger),
		OutboxHandler:    outbox.NewOutboxHandler(store, sweeper, logger),
	}
}

// Make sure we conform to the interface
var _ api.ServerInterface = (*ApiHandler)(nil)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Store         storage.ApiStore
	Ledger        ledger.Reader
	Sweeper       outbox.Sweeper
	Events        webhook.EventHandler
	Scheduler     scheduler.Scheduler
	WebhookSecret string
	// AllowOpenWebhook accepts webhook calls without a secret. Only local
	// development sets it.
	AllowOpenWebhook bool
	AdminToken       string
	Gatherer         prometheus.Gatherer
	Logger           *zap.Logger
}

// NewRouter mounts the webhook, health and metrics endpoints, and the admin
// API under /api/v1 behind bearer authentication.
func NewRouter(cfg RouterConfig) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.NewStructuredLogger(cfg.Logger))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	hook := webhook.NewWebhookHandler(cfg.WebhookSecret, cfg.Events, cfg.Scheduler, cfg.Logger)
	hook.AllowUnauthenticated = cfg.AllowOpenWebhook
	router.Method(http.MethodPost, "/telegram/webhook", hook)

	handler := NewApiHandler(cfg.Store, cfg.Ledger, cfg.Sweeper, cfg.Logger)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.AdminToken))
		api.HandlerWithOptions(handler, api.ChiServerOptions{
			BaseRouter:       r,
			ErrorHandlerFunc: respond.ParamError,
		})
	})

	return router
}
