// Package intake guards the entry point against redelivered updates.
package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Deduplicator records processed update ids with a single insert-or-fail.
type Deduplicator struct {
	store   storage.IntakeStore
	ttl     time.Duration
	updates *prometheus.CounterVec
	now     func() time.Time
}

// NewDeduplicator creates a Deduplicator. Markers expire after ttl where the
// backend supports expiry; zero keeps them forever.
func NewDeduplicator(store storage.IntakeStore, ttl time.Duration, reg prometheus.Registerer) *Deduplicator {
	return &Deduplicator{
		store: store,
		ttl:   ttl,
		updates: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "debtbot",
			Subsystem: "intake",
			Name:      "updates_total",
			Help:      "Inbound updates by result (first, duplicate).",
		}, []string{"result"}),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// MarkSeen returns true the first time updateID is seen and false for every
// redelivery, including concurrent ones.
func (d *Deduplicator) MarkSeen(ctx context.Context, updateID int64) (bool, error) {
	now := d.now()
	marker := &models.ProcessedUpdate{UpdateID: updateID, ProcessedAt: now}
	if d.ttl > 0 {
		marker.TTL = now.Add(d.ttl).Unix()
	}

	err := d.store.InsertProcessedUpdate(ctx, marker)
	if errors.Is(err, storage.ErrAlreadyExists) {
		d.updates.WithLabelValues("duplicate").Inc()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert processed update: %w", err)
	}
	d.updates.WithLabelValues("first").Inc()
	return true, nil
}
