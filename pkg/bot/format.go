package bot

import (
	"fmt"
	"strings"

	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/models"
	tg "github.com/chris/debt-ledger-bot/pkg/telegram"
)

const dateLayout = "2006-01-02 15:04"

func text(format string, args ...any) models.Notification {
	return models.Notification{Text: fmt.Sprintf(format, args...)}
}

func kindLabel(k models.EntryKind) string {
	if k == models.KindPayment {
		return "Payment"
	}
	return "Debt"
}

func kindIcon(k models.EntryKind) string {
	if k == models.KindPayment {
		return "💵"
	}
	return "🧾"
}

func formatStatement(st *ledger.Statement) string {
	var b strings.Builder
	name := st.Customer.DisplayName
	if name == "" {
		name = "Unnamed customer"
	}
	fmt.Fprintf(&b, "👤 %s\n📱 %s\n", tg.Bold(name), tg.Code(st.Customer.Phone))
	if st.Customer.Note != "" {
		fmt.Fprintf(&b, "📝 %s\n", tg.Escape(st.Customer.Note))
	}
	b.WriteString("\n")
	for _, bal := range st.Balances {
		fmt.Fprintf(&b, "%s: %s (%d entries)\n", bal.Currency, tg.Bold(tg.Amount(bal.Amount)), bal.EntryCount)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatHistory(phone string, entries []models.LedgerEntry) string {
	if len(entries) == 0 {
		return fmt.Sprintf("📭 No entries for %s yet.", tg.Code(phone))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📜 Last %d entries for %s\n", len(entries), tg.Code(phone))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s %s %s %s",
			kindIcon(e.Kind), e.CreatedAt.Format(dateLayout), kindLabel(e.Kind),
			tg.Bold(tg.Amount(e.Amount)), e.Currency)
		if e.Note != "" {
			fmt.Fprintf(&b, " · %s", tg.Escape(e.Note))
		}
	}
	return b.String()
}

func formatReceipt(r *ledger.Receipt) string {
	msg := fmt.Sprintf("✅ %s of %s %s recorded for %s.\nNew balance: %s %s",
		kindLabel(r.Entry.Kind), tg.Bold(tg.Amount(r.Entry.Amount)), r.Entry.Currency,
		tg.Code(r.Entry.Phone), tg.Bold(tg.Amount(r.Balance.Amount)), r.Balance.Currency)
	if r.Entry.Note != "" {
		msg += "\n📝 " + tg.Escape(r.Entry.Note)
	}
	return msg
}

func formatCustomerNotice(r *ledger.Receipt) string {
	verb := "A debt of"
	if r.Entry.Kind == models.KindPayment {
		verb = "A payment of"
	}
	msg := fmt.Sprintf("%s %s %s %s was recorded on your account.\nYour balance: %s %s",
		kindIcon(r.Entry.Kind), verb, tg.Bold(tg.Amount(r.Entry.Amount)), r.Entry.Currency,
		tg.Bold(tg.Amount(r.Balance.Amount)), r.Balance.Currency)
	if r.Entry.Note != "" {
		msg += "\n📝 " + tg.Escape(r.Entry.Note)
	}
	return msg
}

func formatPending(reqs []models.ApprovalRequest) models.Notification {
	if len(reqs) == 0 {
		return text("✅ No pending link requests.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "⏳ %d pending link request(s)\n", len(reqs))
	var actions []models.Action
	for _, r := range reqs {
		fmt.Fprintf(&b, "\n%s · %s → %s (user %d)",
			tg.Code(r.ID), tg.Bold(r.DisplayName), tg.Code(r.Phone), r.RequesterID)
	}
	if len(reqs) == 1 {
		actions = []models.Action{
			{Label: "✅ Approve", Data: "/approve " + reqs[0].ID},
			{Label: "❌ Reject", Data: "/reject " + reqs[0].ID},
		}
	}
	return models.Notification{Text: b.String(), Actions: actions}
}

func helpText(actor *models.Identity) string {
	var b strings.Builder
	b.WriteString("📒 <b>Debt ledger</b>\n")
	if actor.Status == models.StatusLocked {
		b.WriteString("\nYour account is locked. Contact an administrator.")
		return b.String()
	}

	if identity.Authorize(actor, identity.RequestLink) {
		b.WriteString("\n/link &lt;phone&gt; &lt;name&gt; - link your account to your phone")
	}
	if identity.Authorize(actor, identity.ReadOwn) {
		b.WriteString("\n/me - show your balance")
	}
	if identity.Authorize(actor, identity.ReadAny) {
		b.WriteString("\n/customer &lt;phone&gt; - customer balance")
		b.WriteString("\n/report &lt;phone&gt; [limit] - recent entries")
	}
	if identity.Authorize(actor, identity.WriteLedger) {
		b.WriteString("\n/adddebt &lt;phone&gt; &lt;amount&gt; [IQD|USD] [note] - record a debt")
		b.WriteString("\n/pay &lt;phone&gt; &lt;amount&gt; [IQD|USD] [note] - record a payment")
		b.WriteString("\n/addcustomer &lt;phone&gt; [name] - register a customer")
	}
	if identity.Authorize(actor, identity.DeleteCustomers) {
		b.WriteString("\n/deletecustomer &lt;phone&gt; - delete a customer and their entries")
	}
	if identity.Authorize(actor, identity.ManageStaff) {
		b.WriteString("\n/addstaff &lt;user id&gt; · /removestaff &lt;user id&gt;")
	}
	if identity.Authorize(actor, identity.LockUsers) {
		b.WriteString("\n/lock &lt;user id&gt; · /unlock &lt;user id&gt;")
	}
	if identity.Authorize(actor, identity.ManageApprovals) {
		b.WriteString("\n/pending · /approve &lt;id&gt; · /reject &lt;id&gt;")
	}
	fmt.Fprintf(&b, "\n\nYour id: %s · role: %s", tg.Code(fmt.Sprint(actor.ExternalID)), actor.Role)
	return b.String()
}
