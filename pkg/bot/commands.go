package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/models"
	tg "github.com/chris/debt-ledger-bot/pkg/telegram"
)

func usage(format string) error {
	return apperrors.Validation("usage: %s", format)
}

func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.Validation("%q is not a valid user id", raw)
	}
	return id, nil
}

func (d *Dispatcher) help(_ context.Context, actor *models.Identity, _ models.InboundEvent) (models.Notification, error) {
	return models.Notification{Text: helpText(actor)}, nil
}

func (d *Dispatcher) link(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) < 1 {
		return models.Notification{}, usage("/link <phone> <name>")
	}
	name := strings.Join(ev.Args[1:], " ")
	if name == "" {
		name = actor.DisplayName
	}
	req, created, err := d.approvals.Submit(ctx, actor, ev.Args[0], name)
	if err != nil {
		return models.Notification{}, err
	}
	if !created {
		return text("⏳ You already have a pending request %s for %s. An administrator will review it.",
			tg.Code(req.ID), tg.Code(req.Phone)), nil
	}
	return text("📨 Your request to link %s was sent to the administrators. You will be notified of the decision.",
		tg.Code(req.Phone)), nil
}

func (d *Dispatcher) me(ctx context.Context, actor *models.Identity, _ models.InboundEvent) (models.Notification, error) {
	if actor.Phone == "" {
		if actor.Status == models.StatusLocked {
			return models.Notification{}, d.registry.Require(ctx, actor, identity.ReadOwn)
		}
		return text("Your account is not linked to a phone yet. Send /link &lt;phone&gt; &lt;name&gt; to request access."), nil
	}
	st, err := d.ledger.Summary(ctx, actor, actor.Phone)
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{Text: formatStatement(st)}, nil
}

func (d *Dispatcher) customer(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/customer <phone>")
	}
	st, err := d.ledger.Summary(ctx, actor, ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	return models.Notification{Text: formatStatement(st)}, nil
}

func (d *Dispatcher) report(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) < 1 || len(ev.Args) > 2 {
		return models.Notification{}, usage("/report <phone> [limit]")
	}
	limit := 0
	if len(ev.Args) == 2 {
		n, err := strconv.Atoi(ev.Args[1])
		if err != nil || n <= 0 {
			return models.Notification{}, apperrors.Validation("limit must be a positive number")
		}
		limit = n
	}
	entries, err := d.ledger.History(ctx, actor, ev.Args[0], limit)
	if err != nil {
		return models.Notification{}, err
	}
	phone := ev.Args[0]
	if len(entries) > 0 {
		phone = entries[0].Phone
	}
	return models.Notification{Text: formatHistory(phone, entries)}, nil
}

// parseEntryArgs reads "<phone> <amount> [IQD|USD] [note...]". A three-letter
// code after the amount is always read as the currency, so a note starting
// with such a word needs the currency written out first.
func parseEntryArgs(kind models.EntryKind, args []string) (ledger.RecordRequest, error) {
	cmd := "/adddebt"
	if kind == models.KindPayment {
		cmd = "/pay"
	}
	if len(args) < 2 {
		return ledger.RecordRequest{}, usage(cmd + " <phone> <amount> [IQD|USD] [note]")
	}
	amount, err := ledger.ParseAmount(args[1])
	if err != nil {
		return ledger.RecordRequest{}, err
	}
	req := ledger.RecordRequest{Phone: args[0], Kind: kind, Amount: amount, Currency: models.DefaultCurrency}
	rest := args[2:]
	if len(rest) > 0 && ledger.LooksLikeCurrency(rest[0]) {
		req.Currency, err = ledger.ParseCurrency(rest[0])
		if err != nil {
			return ledger.RecordRequest{}, err
		}
		rest = rest[1:]
	}
	req.Note = strings.Join(rest, " ")
	return req, nil
}

func (d *Dispatcher) recordEntry(kind models.EntryKind) commandFunc {
	return func(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
		req, err := parseEntryArgs(kind, ev.Args)
		if err != nil {
			return models.Notification{}, err
		}
		receipt, err := d.ledger.Record(ctx, actor, req)
		if err != nil {
			return models.Notification{}, err
		}
		if owner := receipt.Customer.LinkedIdentity; owner != 0 && owner != actor.ExternalID {
			d.notifyIdentity(ctx, owner, models.Notification{Text: formatCustomerNotice(receipt)})
		}
		return models.Notification{Text: formatReceipt(receipt)}, nil
	}
}

func (d *Dispatcher) addCustomer(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) < 1 {
		return models.Notification{}, usage("/addcustomer <phone> [name]")
	}
	c, created, err := d.ledger.RegisterCustomer(ctx, actor, ev.Args[0], strings.Join(ev.Args[1:], " "), "")
	if err != nil {
		return models.Notification{}, err
	}
	if created {
		return text("✅ Customer %s registered.", tg.Code(c.Phone)), nil
	}
	return text("✏️ Customer %s already existed and was updated.", tg.Code(c.Phone)), nil
}

func (d *Dispatcher) deleteCustomer(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/deletecustomer <phone>")
	}
	removed, err := d.ledger.DeleteCustomer(ctx, actor, ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	return text("🗑 Customer deleted together with %d ledger entries.", removed), nil
}

func (d *Dispatcher) addStaff(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/addstaff <user id>")
	}
	target, err := parseUserID(ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	updated, err := d.registry.SetRole(ctx, actor, target, models.RoleStaff)
	if err != nil {
		return models.Notification{}, err
	}
	d.notifyIdentity(ctx, target, text("🎉 You were given staff access. Send /help to see your commands."))
	return text("✅ User %d is now %s.", updated.ExternalID, updated.Role), nil
}

// removeStaff demotes a staff member to customer when they are linked to a
// phone, otherwise to unaffiliated.
func (d *Dispatcher) removeStaff(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/removestaff <user id>")
	}
	if err := d.registry.Require(ctx, actor, identity.ManageStaff); err != nil {
		return models.Notification{}, err
	}
	target, err := parseUserID(ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	current, err := d.registry.Lookup(ctx, target)
	if err != nil {
		return models.Notification{}, err
	}
	if current.Role != models.RoleStaff {
		return models.Notification{}, apperrors.Validation("user %d is not staff (role %s)", target, current.Role)
	}
	role := models.RoleUnaffiliated
	if current.Phone != "" {
		role = models.RoleCustomer
	}
	updated, err := d.registry.SetRole(ctx, actor, target, role)
	if err != nil {
		return models.Notification{}, err
	}
	return text("✅ User %d is now %s.", updated.ExternalID, updated.Role), nil
}

func (d *Dispatcher) setStatus(status models.IdentityStatus) commandFunc {
	return func(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
		cmd := "/lock"
		if status == models.StatusActive {
			cmd = "/unlock"
		}
		if len(ev.Args) != 1 {
			return models.Notification{}, usage(cmd + " <user id>")
		}
		target, err := parseUserID(ev.Args[0])
		if err != nil {
			return models.Notification{}, err
		}
		updated, err := d.registry.SetStatus(ctx, actor, target, status)
		if err != nil {
			return models.Notification{}, err
		}
		return text("✅ User %d is now %s.", updated.ExternalID, updated.Status), nil
	}
}

func (d *Dispatcher) approve(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/approve <request id>")
	}
	outcome, err := d.approvals.Approve(ctx, actor, ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	msg := fmt.Sprintf("✅ Request %s approved. User %d is linked to %s.",
		tg.Code(outcome.Request.ID), outcome.Request.RequesterID, tg.Code(outcome.Request.Phone))
	if outcome.PreviousOwner != 0 {
		msg += fmt.Sprintf("\nUser %d was unlinked from this phone.", outcome.PreviousOwner)
	}
	if outcome.PreviousPhone != "" {
		msg += fmt.Sprintf("\nThe previous link to %s was removed; its history is kept.", tg.Code(outcome.PreviousPhone))
	}
	return models.Notification{Text: msg}, nil
}

func (d *Dispatcher) reject(ctx context.Context, actor *models.Identity, ev models.InboundEvent) (models.Notification, error) {
	if len(ev.Args) != 1 {
		return models.Notification{}, usage("/reject <request id>")
	}
	req, err := d.approvals.Reject(ctx, actor, ev.Args[0])
	if err != nil {
		return models.Notification{}, err
	}
	return text("❌ Request %s rejected.", tg.Code(req.ID)), nil
}

func (d *Dispatcher) pending(ctx context.Context, actor *models.Identity, _ models.InboundEvent) (models.Notification, error) {
	reqs, err := d.approvals.ListPending(ctx, actor, 0)
	if err != nil {
		return models.Notification{}, err
	}
	return formatPending(reqs), nil
}
