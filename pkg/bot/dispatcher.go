// Package bot is the inbound entry point: it deduplicates updates, resolves
// the actor, runs the command and answers through the outbox.
package bot

import (
	"context"
	"fmt"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/approval"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/models"
	tg "github.com/chris/debt-ledger-bot/pkg/telegram"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const genericFailure = "❌ Something went wrong while processing your request. Please try again later."

// Deduplicator reports whether an update id is new.
type Deduplicator interface {
	MarkSeen(ctx context.Context, updateID int64) (bool, error)
}

// CallbackAnswerer acknowledges inline button presses.
type CallbackAnswerer interface {
	AnswerCallback(callbackID, text string) error
}

// Dependencies wires the Dispatcher. Callbacks and Metrics may be nil.
type Dependencies struct {
	Intake    Deduplicator
	Registry  *identity.Registry
	Ledger    *ledger.Service
	Approvals *approval.Workflow
	Notifier  approval.Notifier
	Callbacks CallbackAnswerer
	Audit     *audit.Recorder
	Logger    *zap.Logger
	Metrics   prometheus.Registerer
}

type commandFunc func(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error)

type Dispatcher struct {
	intake    Deduplicator
	registry  *identity.Registry
	ledger    *ledger.Service
	approvals *approval.Workflow
	notifier  approval.Notifier
	callbacks CallbackAnswerer
	audit     *audit.Recorder
	logger    *zap.Logger
	commands  map[string]commandFunc
	handled   *prometheus.CounterVec
}

func NewDispatcher(deps Dependencies) *Dispatcher {
	d := &Dispatcher{
		intake:    deps.Intake,
		registry:  deps.Registry,
		ledger:    deps.Ledger,
		approvals: deps.Approvals,
		notifier:  deps.Notifier,
		callbacks: deps.Callbacks,
		audit:     deps.Audit,
		logger:    deps.Logger,
		handled: promauto.With(deps.Metrics).NewCounterVec(prometheus.CounterOpts{
			Namespace: "debtbot",
			Subsystem: "bot",
			Name:      "commands_total",
			Help:      "Handled commands by command and result (ok, rejected, error, duplicate).",
		}, []string{"command", "result"}),
	}
	d.commands = map[string]commandFunc{
		"start":          d.help,
		"help":           d.help,
		"link":           d.link,
		"me":             d.me,
		"customer":       d.customer,
		"report":         d.report,
		"adddebt":        d.recordEntry(models.KindDebt),
		"pay":            d.recordEntry(models.KindPayment),
		"addcustomer":    d.addCustomer,
		"deletecustomer": d.deleteCustomer,
		"addstaff":       d.addStaff,
		"removestaff":    d.removeStaff,
		"lock":           d.setStatus(models.StatusLocked),
		"unlock":         d.setStatus(models.StatusActive),
		"approve":        d.approve,
		"reject":         d.reject,
		"pending":        d.pending,
	}
	return d
}

func (d *Dispatcher) commandLabel(cmd string) string {
	if _, ok := d.commands[cmd]; ok {
		return cmd
	}
	if cmd == "" {
		return "text"
	}
	return "unknown"
}

// HandleEvent processes one inbound event. It never returns an error and
// never panics: every failure is logged, audited where it matters, and
// answered to the user through the outbox. Redelivered update ids are
// acknowledged without reprocessing.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev models.InboundEvent) {
	label := d.commandLabel(ev.Command)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling update",
				zap.Int64("update_id", ev.UpdateID),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			d.handled.WithLabelValues(label, "error").Inc()
			d.unexpected(ctx, ev, fmt.Errorf("panic: %v", r))
		}
	}()

	first, err := d.intake.MarkSeen(ctx, ev.UpdateID)
	if err != nil {
		d.handled.WithLabelValues(label, "error").Inc()
		d.unexpected(ctx, ev, err)
		return
	}
	if !first {
		d.logger.Info("skipping duplicate update", zap.Int64("update_id", ev.UpdateID))
		d.handled.WithLabelValues(label, "duplicate").Inc()
		return
	}
	defer d.answerCallback(ev)

	actor, err := d.registry.Resolve(ctx, ev.ActorID, models.Profile{
		ChatID:      ev.ChatID,
		DisplayName: ev.DisplayName,
		Username:    ev.Username,
	})
	if err != nil {
		d.handled.WithLabelValues(label, "error").Inc()
		d.unexpected(ctx, ev, err)
		return
	}

	reply, err := d.route(ctx, actor, ev)
	if err != nil {
		if appErr, ok := apperrors.As(err); ok {
			d.handled.WithLabelValues(label, "rejected").Inc()
			d.reply(ctx, ev.ChatID, models.Notification{Text: userMessage(appErr)})
			return
		}
		d.handled.WithLabelValues(label, "error").Inc()
		d.unexpected(ctx, ev, err)
		return
	}
	d.handled.WithLabelValues(label, "ok").Inc()
	d.reply(ctx, ev.ChatID, reply)
}

func (d *Dispatcher) route(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if ev.Command == "" {
		return text("Send /help to see what you can do."), nil
	}
	cmd, ok := d.commands[ev.Command]
	if !ok {
		return text("🤷 Command /%s not recognised. Send /help to see what you can do.", tg.Escape(ev.Command)), nil
	}
	return cmd(ctx, actor, ev)
}

func userMessage(err *apperrors.Error) string {
	msg := tg.Escape(err.Message)
	switch err.Code {
	case apperrors.CodeAuthorization:
		return "⛔ " + msg
	case apperrors.CodeNotFound:
		return "🔍 " + msg
	case apperrors.CodeAlreadyResolved:
		return "ℹ️ " + msg
	default:
		return "⚠️ " + msg
	}
}

// unexpected audits an internal failure and sends the generic reply.
func (d *Dispatcher) unexpected(ctx context.Context, ev models.InboundEvent, err error) {
	d.logger.Error("failed to handle update",
		zap.Int64("update_id", ev.UpdateID),
		zap.Int64("actor_id", ev.ActorID),
		zap.String("command", ev.Command),
		zap.Error(err),
	)
	d.audit.Record(ctx, audit.Event{
		Actor:    ev.ActorID,
		Action:   audit.ActionError,
		Entity:   audit.EntityUpdate,
		EntityID: fmt.Sprint(ev.UpdateID),
		Err:      err,
		Metadata: map[string]any{
			"command": ev.Command,
			"args":    ev.Args,
			"chat_id": ev.ChatID,
		},
	})
	d.reply(ctx, ev.ChatID, models.Notification{Text: genericFailure})
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, n models.Notification) {
	if chatID == 0 || n.Text == "" {
		return
	}
	if _, err := d.notifier.EnqueueAndAttempt(ctx, chatID, n); err != nil {
		d.logger.Error("failed to enqueue reply", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (d *Dispatcher) notifyIdentity(ctx context.Context, externalID int64, n models.Notification) {
	id, err := d.registry.Lookup(ctx, externalID)
	if err != nil {
		d.logger.Warn("cannot notify identity", zap.Int64("external_id", externalID), zap.Error(err))
		return
	}
	d.reply(ctx, id.ChatID, n)
}

func (d *Dispatcher) answerCallback(ev models.InboundEvent) {
	if d.callbacks == nil || ev.CallbackID == "" {
		return
	}
	if err := d.callbacks.AnswerCallback(ev.CallbackID, ""); err != nil {
		d.logger.Warn("failed to answer callback", zap.String("callback_id", ev.CallbackID), zap.Error(err))
	}
}
