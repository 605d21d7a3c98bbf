package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/chris/debt-ledger-bot/pkg/bootstrap"
	"github.com/chris/debt-ledger-bot/pkg/config"
	"github.com/chris/debt-ledger-bot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	zl := logger.Must("outbox-sweeper", cfg.Environment, cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	app, err := bootstrap.Build(context.Background(), cfg, zl, false)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	defer app.Close()

	s := &sweeper{sweep: app.Outbox.Sweep, purge: app.PurgeExpiredUpdates, logger: zl}
	lambda.Start(s.HandleRequest)
}
