// Package approval runs the self-service link flow: a user asks to be bound
// to a phone, an admin approves or rejects, and both decisions are terminal.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/phone"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/chris/debt-ledger-bot/pkg/telegram"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultPendingLimit = 20

// Notifier queues a notification for delivery.
type Notifier interface {
	EnqueueAndAttempt(ctx context.Context, destination int64, n models.Notification) (*models.OutboxItem, error)
}

type Workflow struct {
	store    storage.ApprovalStore
	registry *identity.Registry
	notifier Notifier
	audit    *audit.Recorder
	logger   *zap.Logger
	now      func() time.Time
}

func NewWorkflow(store storage.ApprovalStore, registry *identity.Registry, notifier Notifier, recorder *audit.Recorder, logger *zap.Logger) *Workflow {
	return &Workflow{
		store:    store,
		registry: registry,
		notifier: notifier,
		audit:    recorder,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Submit files a link request for the actor. When a pending request for the
// same phone already exists it is returned with created=false and admins are
// not notified again.
func (w *Workflow) Submit(ctx context.Context, actor *models.Identity, rawPhone, displayName string) (*models.ApprovalRequest, bool, error) {
	if err := w.registry.Require(ctx, actor, identity.RequestLink); err != nil {
		return nil, false, err
	}
	p, ok := phone.Parse(rawPhone)
	if !ok {
		return nil, false, apperrors.Validation("invalid phone number %q, expected 07XXXXXXXXX", rawPhone)
	}
	name := strings.TrimSpace(displayName)
	if name == "" {
		return nil, false, apperrors.Validation("a name is required to link your account")
	}
	if actor.Phone == p {
		return nil, false, apperrors.Validation("your account is already linked to %s", p)
	}

	req := &models.ApprovalRequest{
		ID:          uuid.NewString(),
		RequesterID: actor.ExternalID,
		Phone:       p,
		DisplayName: name,
		Status:      models.ApprovalPending,
		CreatedAt:   w.now(),
	}
	stored, created, err := w.store.CreateApprovalRequest(ctx, req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create approval request: %w", err)
	}
	if !created {
		return stored, false, nil
	}

	w.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionApprovalSubmit,
		Entity:   audit.EntityApproval,
		EntityID: stored.ID,
		Metadata: map[string]any{"phone": p},
	})
	w.notifyAdmins(ctx, actor, stored)
	return stored, true, nil
}

func (w *Workflow) notifyAdmins(ctx context.Context, requester *models.Identity, req *models.ApprovalRequest) {
	admins, err := w.registry.ActiveAdmins(ctx)
	if err != nil {
		w.logger.Error("failed to list admins for approval notice", zap.String("request_id", req.ID), zap.Error(err))
		return
	}
	who := telegram.Mention(requester.DisplayName, requester.Username, requester.ExternalID)
	n := models.Notification{
		Text: fmt.Sprintf("🔗 New link request %s\n%s (id %d) wants to link to %s as %s.",
			telegram.Code(req.ID), who, requester.ExternalID, telegram.Code(req.Phone), telegram.Bold(req.DisplayName)),
		Actions: []models.Action{
			{Label: "✅ Approve", Data: "/approve " + req.ID},
			{Label: "❌ Reject", Data: "/reject " + req.ID},
		},
	}
	for _, admin := range admins {
		w.notify(ctx, admin.ChatID, n)
	}
}

func (w *Workflow) notify(ctx context.Context, chatID int64, n models.Notification) {
	if chatID == 0 {
		return
	}
	if _, err := w.notifier.EnqueueAndAttempt(ctx, chatID, n); err != nil {
		w.logger.Error("failed to enqueue notification", zap.Int64("destination", chatID), zap.Error(err))
	}
}

func (w *Workflow) decisionError(ctx context.Context, id string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperrors.NotFound("no link request %s", id)
	case errors.Is(err, storage.ErrAlreadyResolved):
		if req, getErr := w.store.GetApprovalRequest(ctx, id); getErr == nil {
			return apperrors.AlreadyResolved("link request %s was already %s", id, req.Status)
		}
		return apperrors.AlreadyResolved("link request %s was already decided", id)
	case errors.Is(err, storage.ErrConflict):
		return apperrors.Conflict(err, "link request %s changed while it was being decided, try again", id)
	default:
		return fmt.Errorf("failed to decide approval request: %w", err)
	}
}

// Approve binds the requester to the phone in one atomic store operation,
// then tells the requester and any displaced previous owner.
func (w *Workflow) Approve(ctx context.Context, actor *models.Identity, id string) (*models.ApprovalOutcome, error) {
	if err := w.registry.Require(ctx, actor, identity.ManageApprovals); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	outcome, err := w.store.ApproveRequest(ctx, id, actor.ExternalID, w.now())
	if err != nil {
		return nil, w.decisionError(ctx, id, err)
	}

	meta := map[string]any{
		"phone":     outcome.Request.Phone,
		"requester": outcome.Request.RequesterID,
	}
	if outcome.PreviousPhone != "" {
		meta["previous_phone"] = outcome.PreviousPhone
	}
	if outcome.PreviousOwner != 0 {
		meta["previous_owner"] = outcome.PreviousOwner
	}
	w.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionApprovalApprove,
		Entity:   audit.EntityApproval,
		EntityID: id,
		Metadata: meta,
	})

	w.notifyIdentity(ctx, outcome.Request.RequesterID, models.Notification{
		Text: fmt.Sprintf("✅ Your account is now linked to %s. Send /me to see your balance.", telegram.Code(outcome.Request.Phone)),
	})
	if outcome.PreviousOwner != 0 {
		w.notifyIdentity(ctx, outcome.PreviousOwner, models.Notification{
			Text: fmt.Sprintf("ℹ️ Your account is no longer linked to %s.", telegram.Code(outcome.Request.Phone)),
		})
	}
	return outcome, nil
}

// Reject closes the request without touching customers or identities.
func (w *Workflow) Reject(ctx context.Context, actor *models.Identity, id string) (*models.ApprovalRequest, error) {
	if err := w.registry.Require(ctx, actor, identity.ManageApprovals); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	req, err := w.store.RejectRequest(ctx, id, actor.ExternalID, w.now())
	if err != nil {
		return nil, w.decisionError(ctx, id, err)
	}
	w.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionApprovalReject,
		Entity:   audit.EntityApproval,
		EntityID: id,
		Metadata: map[string]any{"phone": req.Phone, "requester": req.RequesterID},
	})
	w.notifyIdentity(ctx, req.RequesterID, models.Notification{
		Text: fmt.Sprintf("❌ Your request to link %s was rejected.", telegram.Code(req.Phone)),
	})
	return req, nil
}

func (w *Workflow) notifyIdentity(ctx context.Context, externalID int64, n models.Notification) {
	id, err := w.registry.Lookup(ctx, externalID)
	if err != nil {
		w.logger.Warn("cannot notify identity", zap.Int64("external_id", externalID), zap.Error(err))
		return
	}
	w.notify(ctx, id.ChatID, n)
}

// ListPending returns pending requests, oldest first.
func (w *Workflow) ListPending(ctx context.Context, actor *models.Identity, limit int) ([]models.ApprovalRequest, error) {
	if err := w.registry.Require(ctx, actor, identity.ManageApprovals); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPendingLimit
	}
	reqs, err := w.store.ListPendingRequests(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending requests: %w", err)
	}
	return reqs, nil
}
