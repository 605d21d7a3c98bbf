// Package audit writes the immutable trail of role changes, ledger entries,
// approval decisions and unhandled errors.
package audit

import (
	"context"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Actions recorded in the trail.
const (
	ActionLedgerEntry     = "LEDGER_ENTRY"
	ActionCustomerCreate  = "CUSTOMER_CREATE"
	ActionCustomerUpdate  = "CUSTOMER_UPDATE"
	ActionCustomerDelete  = "CUSTOMER_DELETE"
	ActionRoleChange      = "ROLE_CHANGE"
	ActionStatusChange    = "STATUS_CHANGE"
	ActionApprovalSubmit  = "APPROVAL_SUBMIT"
	ActionApprovalApprove = "APPROVAL_APPROVE"
	ActionApprovalReject  = "APPROVAL_REJECT"
	ActionAuthorization   = "AUTHORIZATION_DENIED"
	ActionOutboxExhausted = "OUTBOX_EXHAUSTED"
	ActionError           = "ERROR"
)

// Entities referenced by records.
const (
	EntityIdentity = "identity"
	EntityCustomer = "customer"
	EntityLedger   = "ledger_entry"
	EntityApproval = "approval_request"
	EntityOutbox   = "outbox_item"
	EntityUpdate   = "update"
)

// Event describes one audit record before it is stamped.
type Event struct {
	Actor    int64
	Action   string
	Entity   string
	EntityID string
	Err      error
	Metadata map[string]any
}

// Recorder stamps and writes audit records. A failed write is logged and
// never fails the operation being audited.
type Recorder struct {
	writer storage.AuditWriter
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(writer storage.AuditWriter, logger *zap.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes ev to the audit sink.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	rec := &models.AuditRecord{
		ID:        uuid.NewString(),
		Actor:     ev.Actor,
		Action:    ev.Action,
		Entity:    ev.Entity,
		EntityID:  ev.EntityID,
		OK:        ev.Err == nil,
		Metadata:  ev.Metadata,
		CreatedAt: r.now(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	if err := r.writer.WriteAudit(ctx, rec); err != nil {
		r.logger.Error("failed to write audit record",
			zap.String("action", ev.Action),
			zap.String("entity_id", ev.EntityID),
			zap.Error(err),
		)
	}
}
