package main

import (
	"context"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"go.uber.org/zap"
)

// runSweeper re-attempts undelivered notifications every interval until ctx
// is done. A zero interval disables it; the sweep is then left to the
// scheduled sweeper lambda or the admin API.
func runSweeper(ctx context.Context, interval time.Duration, sweep func(context.Context) (outbox.SweepResult, error), purge func(context.Context) (int64, error), logger *zap.Logger) {
	if interval <= 0 {
		logger.Info("periodic outbox sweep disabled")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweep(ctx); err != nil {
				logger.Error("outbox sweep failed", zap.Error(err))
				continue
			}
			if purge != nil {
				if _, err := purge(ctx); err != nil {
					logger.Warn("failed to purge expired update markers", zap.Error(err))
				}
			}
		}
	}
}
