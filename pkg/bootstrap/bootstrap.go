// Package bootstrap assembles the bot from configuration. Every entry point
// (HTTP server, queue worker, sweeper) builds the same App.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/chris/debt-ledger-bot/pkg/approval"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/bot"
	"github.com/chris/debt-ledger-bot/pkg/cache"
	"github.com/chris/debt-ledger-bot/pkg/config"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/intake"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"github.com/chris/debt-ledger-bot/pkg/scheduler"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	ddbstore "github.com/chris/debt-ledger-bot/pkg/storage/dynamodb"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/chris/debt-ledger-bot/pkg/storage/postgres"
	"github.com/chris/debt-ledger-bot/pkg/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// Transport is the outbound chat client: message delivery plus callback
// acknowledgement.
type Transport interface {
	outbox.Sender
	bot.CallbackAnswerer
}

// Deps are the externally created parts of an App.
type Deps struct {
	Store     storage.Storage
	Transport Transport
	Cache     cache.BalanceCache
	Scheduler scheduler.Scheduler
}

// App is the wired bot.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      storage.Storage
	Metrics    *prometheus.Registry
	Registry   *identity.Registry
	Ledger     *ledger.Service
	Approvals  *approval.Workflow
	Outbox     *outbox.Dispatcher
	Dispatcher *bot.Dispatcher
	Scheduler  scheduler.Scheduler

	closers []func() error
}

// Wire builds the services on top of deps. Cache and Scheduler may be nil.
func Wire(cfg *config.Config, logger *zap.Logger, deps Deps) *App {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	recorder := audit.NewRecorder(deps.Store, logger.Named("audit"))
	registry := identity.NewRegistry(deps.Store, recorder, cfg.AdminTelegramID, logger.Named("identity"))
	dispatcher := outbox.NewDispatcher(deps.Store, deps.Transport, recorder, logger.Named("outbox"), outbox.NewMetrics(reg), outbox.Config{
		SendTimeout: cfg.Outbox.SendTimeout,
		MaxRetries:  cfg.Outbox.MaxRetries,
		BatchSize:   cfg.Outbox.BatchSize,
	})
	ledgerSvc := ledger.NewService(deps.Store, registry, deps.Cache, recorder, logger.Named("ledger"), cfg.HistoryLimit)
	workflow := approval.NewWorkflow(deps.Store, registry, dispatcher, recorder, logger.Named("approval"))

	botDispatcher := bot.NewDispatcher(bot.Dependencies{
		Intake:    intake.NewDeduplicator(deps.Store, cfg.UpdateMarkerTTL, reg),
		Registry:  registry,
		Ledger:    ledgerSvc,
		Approvals: workflow,
		Notifier:  dispatcher,
		Callbacks: deps.Transport,
		Audit:     recorder,
		Logger:    logger.Named("bot"),
		Metrics:   reg,
	})

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      deps.Store,
		Metrics:    reg,
		Registry:   registry,
		Ledger:     ledgerSvc,
		Approvals:  workflow,
		Outbox:     dispatcher,
		Dispatcher: botDispatcher,
		Scheduler:  deps.Scheduler,
	}
}

// Build opens the configured store, cache, queue and Telegram client and
// wires them. withQueue controls whether inbound updates are queued to SQS;
// the queue worker itself passes false.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, withQueue bool) (*App, error) {
	var (
		deps    Deps
		closers []func() error
		err     error
	)
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	var awsCfg aws.Config
	if cfg.StorageBackend == config.BackendDynamoDB || (withQueue && cfg.SQSQueueURL != "") {
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
	}

	switch cfg.StorageBackend {
	case config.BackendDynamoDB:
		deps.Store = ddbstore.New(dynamodb.NewFromConfig(awsCfg), ddbstore.Tables{
			Identities: cfg.Tables.Identities,
			Customers:  cfg.Tables.Customers,
			Ledger:     cfg.Tables.Ledger,
			Approvals:  cfg.Tables.Approvals,
			Outbox:     cfg.Tables.Outbox,
			Updates:    cfg.Tables.Updates,
			Audit:      cfg.Tables.Audit,
		})
	case config.BackendPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, db.Close)
		store := postgres.New(db)
		if err := store.Migrate(ctx); err != nil {
			return fail(err)
		}
		deps.Store = store
	case config.BackendMemory:
		logger.Warn("using in-memory storage; all data is lost on restart")
		deps.Store = memory.New()
	default:
		return fail(fmt.Errorf("unknown storage backend %q", cfg.StorageBackend))
	}

	if cfg.Redis.Addr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			// The cache is advisory; run without it.
			logger.Warn("balance cache disabled", zap.Error(err))
		} else {
			closers = append(closers, client.Close)
			deps.Cache = cache.NewRedisBalanceCache(client, "", cfg.Redis.TTL)
		}
	}

	if withQueue && cfg.SQSQueueURL != "" {
		deps.Scheduler = scheduler.NewSQSScheduler(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL)
	}

	botAPI, err := telegram.NewBotAPI(cfg.BotToken)
	if err != nil {
		return fail(err)
	}
	deps.Transport = telegram.NewSender(botAPI)

	app := Wire(cfg, logger, deps)
	app.closers = closers
	return app, nil
}

// Close releases connections opened by Build.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpdatePurger is implemented by stores that cannot expire processed-update
// markers on their own.
type UpdatePurger interface {
	PurgeExpiredUpdates(ctx context.Context, now time.Time) (int64, error)
}

// PurgeExpiredUpdates removes expired markers when the store needs it to.
// It returns 0 for stores with native expiry.
func (a *App) PurgeExpiredUpdates(ctx context.Context) (int64, error) {
	purger, ok := a.Store.(UpdatePurger)
	if !ok {
		return 0, nil
	}
	return purger.PurgeExpiredUpdates(ctx, time.Now().UTC())
}
