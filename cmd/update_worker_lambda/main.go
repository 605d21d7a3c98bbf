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
	zl := logger.Must("update-worker", cfg.Environment, cfg.LogLevel)
	defer func() { _ = zl.Sync() }()

	// The worker consumes the queue, so it never enqueues.
	app, err := bootstrap.Build(context.Background(), cfg, zl, false)
	if err != nil {
		log.Fatalf("failed to build application: %v", err)
	}
	defer app.Close()

	w := &worker{events: app.Dispatcher, logger: zl}
	lambda.Start(w.HandleRequest)
}
