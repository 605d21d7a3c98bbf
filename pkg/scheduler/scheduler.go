// Package scheduler hands inbound updates to a worker queue so the webhook
// can acknowledge Telegram before the update is processed.
package scheduler

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// Scheduler defines the interface for a component that schedules an inbound event for later processing.
type Scheduler interface {
	// ScheduleEvent enqueues an event for asynchronous processing.
	ScheduleEvent(ctx context.Context, ev models.InboundEvent) error
}
