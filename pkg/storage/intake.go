package storage

import (
	"context"

	"github.com/chris/debt-ledger-bot/pkg/models"
)

// IntakeStore holds processed-update markers.
type IntakeStore interface {
	// InsertProcessedUpdate inserts the marker, or returns ErrAlreadyExists
	// if the update id was seen before. It must never read before writing.
	InsertProcessedUpdate(ctx context.Context, marker *models.ProcessedUpdate) error
}

// AuditWriter is the write-only audit sink.
type AuditWriter interface {
	WriteAudit(ctx context.Context, record *models.AuditRecord) error
}
