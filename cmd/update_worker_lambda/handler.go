package main

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
	"github.com/chris/debt-ledger-bot/pkg/handlers/webhook"
	"github.com/chris/debt-ledger-bot/pkg/scheduler"
	"go.uber.org/zap"
)

type worker struct {
	events webhook.EventHandler
	logger *zap.Logger
}

// HandleRequest processes queued updates in order. A malformed record can
// never succeed, so it is logged and dropped instead of failing the batch.
// Redelivered records are absorbed by the intake deduplicator.
func (w *worker) HandleRequest(ctx context.Context, sqsEvent events.SQSEvent) error {
	for _, message := range sqsEvent.Records {
		ev, err := scheduler.DecodeEvent(message.Body)
		if err != nil {
			w.logger.Error("dropping malformed update message",
				zap.String("message_id", message.MessageId),
				zap.Error(err),
			)
			continue
		}

		w.logger.Debug("processing update",
			zap.String("message_id", message.MessageId),
			zap.Int64("update_id", ev.UpdateID),
		)
		w.events.HandleEvent(ctx, ev)
	}
	return nil
}
