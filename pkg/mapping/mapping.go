package mapping

import (
	"github.com/chris/debt-ledger-bot/pkg/api"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/outbox"
)

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// ToApiCustomer converts a domain Customer to the API view.
func ToApiCustomer(c *models.Customer) *api.Customer {
	out := &api.Customer{
		Phone:       c.Phone,
		DisplayName: optString(c.DisplayName),
		Note:        optString(c.Note),
		Origin:      string(c.Origin),
		CreatedBy:   c.CreatedBy,
		CreatedAt:   c.CreatedAt,
	}
	if c.LinkedIdentity != 0 {
		linked := c.LinkedIdentity
		out.LinkedIdentity = &linked
	}
	return out
}

// ToApiBalance converts a derived balance to the API view.
func ToApiBalance(b *models.Balance) api.Balance {
	return api.Balance{
		Currency:     api.Currency(b.Currency),
		Amount:       b.Amount,
		DebtTotal:    b.DebtTotal,
		PaymentTotal: b.PaymentTotal,
		EntryCount:   b.EntryCount,
		LastEntryId:  optString(b.LastEntryID),
	}
}

// ToApiStatement converts a statement, keeping only the balances for which
// keep returns true. A nil keep keeps all of them.
func ToApiStatement(st *ledger.Statement, keep func(models.Currency) bool) *api.Statement {
	out := &api.Statement{
		Customer: *ToApiCustomer(&st.Customer),
		Balances: make([]api.Balance, 0, len(st.Balances)),
	}
	for i := range st.Balances {
		if keep != nil && !keep(st.Balances[i].Currency) {
			continue
		}
		out.Balances = append(out.Balances, ToApiBalance(&st.Balances[i]))
	}
	return out
}

// ToApiLedgerEntry converts a domain LedgerEntry to the API view.
func ToApiLedgerEntry(e *models.LedgerEntry) *api.LedgerEntry {
	return &api.LedgerEntry{
		EntryId:   e.EntryID,
		Phone:     e.Phone,
		Kind:      api.LedgerEntryKind(e.Kind),
		Amount:    e.Amount,
		Currency:  api.Currency(e.Currency),
		Note:      optString(e.Note),
		ActorId:   e.ActorID,
		CreatedAt: e.CreatedAt,
	}
}

// ToApiOutboxItem converts an outbox item to the API view. The payload is
// not exposed.
func ToApiOutboxItem(item *models.OutboxItem) *api.OutboxItem {
	return &api.OutboxItem{
		Id:          item.ID,
		Destination: item.Destination,
		Status:      api.OutboxItemStatus(item.Status),
		RetryCount:  item.RetryCount,
		LastError:   optString(item.LastError),
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
		SentAt:      item.SentAt,
	}
}

func ToApiSweepResult(r outbox.SweepResult) *api.SweepResult {
	return &api.SweepResult{
		Attempted: r.Attempted,
		Sent:      r.Sent,
		Failed:    r.Failed,
		Exhausted: r.Exhausted,
	}
}
