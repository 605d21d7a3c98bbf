package main

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"go.uber.org/zap"
)

type sweepFunc func(ctx context.Context) (outbox.SweepResult, error)

type purgeFunc func(ctx context.Context) (int64, error)

type sweeper struct {
	sweep  sweepFunc
	purge  purgeFunc
	logger *zap.Logger
}

// HandleRequest is triggered by an EventBridge Schedule. It re-attempts
// undelivered notifications, then clears expired update markers on stores
// without native expiry.
func (s *sweeper) HandleRequest(ctx context.Context) (outbox.SweepResult, error) {
	s.logger.Info("starting outbox sweep")

	res, err := s.sweep(ctx)
	if err != nil {
		s.logger.Error("outbox sweep failed", zap.Error(err))
		return res, err
	}
	if s.purge != nil {
		n, err := s.purge(ctx)
		if err != nil {
			// Stale markers only cost space; the sweep result stands.
			s.logger.Warn("failed to purge expired update markers", zap.Error(err))
		} else if n > 0 {
			s.logger.Info("purged expired update markers", zap.Int64("count", n))
		}
	}
	return res, nil
}
