// Package outbox delivers notifications through a durable queue: every item
// is written as pending before the first send attempt, and a periodic sweep
// re-attempts failed items up to a retry ceiling.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender is the outbound transport. It must be safe to call again for the
// same notification after an ambiguous failure.
type Sender interface {
	Send(ctx context.Context, destination int64, n models.Notification) error
}

type Config struct {
	SendTimeout time.Duration
	MaxRetries  int
	BatchSize   int
}

// Outcome of a single delivery attempt.
type Outcome string

const (
	OutcomeSent      Outcome = "sent"
	OutcomeFailed    Outcome = "failed"
	OutcomeExhausted Outcome = "exhausted"
)

// SweepResult summarises one sweep.
type SweepResult struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Exhausted int `json:"exhausted"`
}

type Dispatcher struct {
	store   storage.OutboxStore
	sender  Sender
	audit   *audit.Recorder
	logger  *zap.Logger
	metrics *Metrics
	cfg     Config
	now     func() time.Time
}

func NewDispatcher(store storage.OutboxStore, sender Sender, recorder *audit.Recorder, logger *zap.Logger, metrics *Metrics, cfg Config) *Dispatcher {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Dispatcher{
		store:   store,
		sender:  sender,
		audit:   recorder,
		logger:  logger,
		metrics: metrics,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// EnqueueAndAttempt writes the notification as pending and then tries to
// send it once. Only a failure to write the item is returned; delivery
// failures are recorded on the item for the sweep to retry.
func (d *Dispatcher) EnqueueAndAttempt(ctx context.Context, destination int64, n models.Notification) (*models.OutboxItem, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate outbox id: %w", err)
	}
	now := d.now()
	item := &models.OutboxItem{
		ID:          id.String(),
		Destination: destination,
		Payload:     string(payload),
		Status:      models.OutboxPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.store.InsertOutboxItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to insert outbox item: %w", err)
	}
	d.metrics.Enqueued.Inc()

	d.attempt(ctx, item)
	return item, nil
}

// SweepRetries re-attempts up to maxBatch pending or failed items whose
// retry count is below maxRetries, oldest first.
func (d *Dispatcher) SweepRetries(ctx context.Context, maxBatch, maxRetries int) (SweepResult, error) {
	var result SweepResult
	candidates, err := d.store.ListOutboxCandidates(ctx, maxRetries, maxBatch)
	if err != nil {
		return result, fmt.Errorf("failed to list outbox candidates: %w", err)
	}
	selected := SelectRetryable(candidates, maxBatch, maxRetries, d.now().Add(-d.cfg.SendTimeout))

	for i := range selected {
		if ctx.Err() != nil {
			break
		}
		result.Attempted++
		switch d.attemptWithCeiling(ctx, &selected[i], maxRetries) {
		case OutcomeSent:
			result.Sent++
		case OutcomeFailed:
			result.Failed++
		case OutcomeExhausted:
			result.Failed++
			result.Exhausted++
		}
	}

	if result.Attempted > 0 {
		d.logger.Info("outbox sweep finished",
			zap.Int("attempted", result.Attempted),
			zap.Int("sent", result.Sent),
			zap.Int("failed", result.Failed),
			zap.Int("exhausted", result.Exhausted),
		)
	}
	return result, nil
}

// Sweep runs SweepRetries with the configured batch size and ceiling.
func (d *Dispatcher) Sweep(ctx context.Context) (SweepResult, error) {
	return d.SweepRetries(ctx, d.cfg.BatchSize, d.cfg.MaxRetries)
}

func (d *Dispatcher) attempt(ctx context.Context, item *models.OutboxItem) Outcome {
	return d.attemptWithCeiling(ctx, item, d.cfg.MaxRetries)
}

func (d *Dispatcher) attemptWithCeiling(ctx context.Context, item *models.OutboxItem, maxRetries int) Outcome {
	// Status writes must land even if the caller's context is cancelled
	// after the send.
	writeCtx := context.WithoutCancel(ctx)

	var n models.Notification
	sendErr := json.Unmarshal([]byte(item.Payload), &n)
	if sendErr != nil {
		sendErr = fmt.Errorf("failed to decode payload: %w", sendErr)
	} else {
		sendErr = d.send(ctx, item.Destination, n)
	}

	if sendErr == nil {
		if err := d.store.MarkOutboxSent(writeCtx, item.ID, d.now()); err != nil {
			d.logger.Error("failed to mark outbox item sent", zap.String("outbox_id", item.ID), zap.Error(err))
		}
		item.Status = models.OutboxSent
		d.metrics.Attempts.WithLabelValues(string(OutcomeSent)).Inc()
		return OutcomeSent
	}

	d.logger.Warn("outbox delivery failed",
		zap.String("outbox_id", item.ID),
		zap.Int64("destination", item.Destination),
		zap.Int("retry_count", item.RetryCount),
		zap.Error(sendErr),
	)
	updated, err := d.store.MarkOutboxFailed(writeCtx, item.ID, sendErr.Error(), d.now())
	if err != nil {
		d.logger.Error("failed to mark outbox item failed", zap.String("outbox_id", item.ID), zap.Error(err))
		d.metrics.Attempts.WithLabelValues(string(OutcomeFailed)).Inc()
		return OutcomeFailed
	}
	*item = *updated

	if item.RetryCount >= maxRetries {
		d.logger.Error("outbox item exhausted its retries",
			zap.String("outbox_id", item.ID),
			zap.Int64("destination", item.Destination),
			zap.Int("retry_count", item.RetryCount),
			zap.String("last_error", item.LastError),
		)
		d.audit.Record(writeCtx, audit.Event{
			Action:   audit.ActionOutboxExhausted,
			Entity:   audit.EntityOutbox,
			EntityID: item.ID,
			Err:      sendErr,
			Metadata: map[string]any{
				"destination": item.Destination,
				"retry_count": item.RetryCount,
			},
		})
		d.metrics.Attempts.WithLabelValues(string(OutcomeExhausted)).Inc()
		return OutcomeExhausted
	}
	d.metrics.Attempts.WithLabelValues(string(OutcomeFailed)).Inc()
	return OutcomeFailed
}

// send bounds the transport call by the configured timeout. A timeout is a
// failure even if the transport later reports success.
func (d *Dispatcher) send(ctx context.Context, destination int64, n models.Notification) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sender panicked: %v", r)
			}
		}()
		done <- d.sender.Send(sendCtx, destination, n)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("send timed out after %s: %w", d.cfg.SendTimeout, sendCtx.Err())
	}
}
