package models

import (
	"time"
)

// Role defines what an identity is allowed to do.
type Role string

const (
	RoleUnaffiliated Role = "unaffiliated"
	RoleCustomer     Role = "customer"
	RoleStaff        Role = "staff"
	RoleAdmin        Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUnaffiliated, RoleCustomer, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// LinkedRole is the role an identity holds after an approved phone link.
// Staff and admins keep their role; everyone else becomes a customer.
func LinkedRole(current Role) Role {
	if current == RoleStaff || current == RoleAdmin {
		return current
	}
	return RoleCustomer
}

// IdentityStatus is the lifecycle status of an identity.
type IdentityStatus string

const (
	StatusActive IdentityStatus = "active"
	StatusLocked IdentityStatus = "locked"
)

// Identity represents an external actor (a Telegram user) known to the bot.
// It includes dynamodbav tags for marshalling.
type Identity struct {
	ExternalID  int64          `json:"external_id" dynamodbav:"external_id"`
	ChatID      int64          `json:"chat_id" dynamodbav:"chat_id"`
	Role        Role           `json:"role" dynamodbav:"role"`
	Status      IdentityStatus `json:"status" dynamodbav:"status"`
	Phone       string         `json:"phone,omitempty" dynamodbav:"phone,omitempty"`
	DisplayName string         `json:"display_name,omitempty" dynamodbav:"display_name,omitempty"`
	Username    string         `json:"username,omitempty" dynamodbav:"username,omitempty"`
	CreatedAt   time.Time      `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" dynamodbav:"updated_at"`
}

// Profile carries the mutable, transport-supplied fields of an identity.
type Profile struct {
	ChatID      int64
	DisplayName string
	Username    string
}

// CustomerOrigin records how a customer record came to exist.
type CustomerOrigin string

const (
	OriginLedger   CustomerOrigin = "ledger"
	OriginStaff    CustomerOrigin = "staff"
	OriginApproval CustomerOrigin = "approval"
)

// Customer is keyed by phone, independent of which identity links to it.
type Customer struct {
	Phone          string         `json:"phone" dynamodbav:"phone"`
	DisplayName    string         `json:"display_name,omitempty" dynamodbav:"display_name,omitempty"`
	Note           string         `json:"note,omitempty" dynamodbav:"note,omitempty"`
	Origin         CustomerOrigin `json:"origin" dynamodbav:"origin"`
	CreatedBy      int64          `json:"created_by" dynamodbav:"created_by"`
	LinkedIdentity int64          `json:"linked_identity,omitempty" dynamodbav:"linked_identity,omitempty"`
	CreatedAt      time.Time      `json:"created_at" dynamodbav:"created_at"`
}

// EntryKind is the direction of a ledger entry.
type EntryKind string

const (
	KindDebt    EntryKind = "debt"
	KindPayment EntryKind = "payment"
)

// Valid reports whether k is debt or payment.
func (k EntryKind) Valid() bool {
	return k == KindDebt || k == KindPayment
}

// Currency is an ISO code supported by the ledger.
type Currency string

const (
	IQD Currency = "IQD"
	USD Currency = "USD"
)

// DefaultCurrency is used when a command omits the currency.
const DefaultCurrency = IQD

// SupportedCurrencies lists every currency in report order.
var SupportedCurrencies = []Currency{IQD, USD}

// Valid reports whether c is supported.
func (c Currency) Valid() bool {
	return c == IQD || c == USD
}

// LedgerEntry is a single immutable debt or payment event.
// Amount is always positive; the sign comes from Kind.
type LedgerEntry struct {
	EntryID   string    `json:"entry_id" dynamodbav:"entry_id"`
	Phone     string    `json:"phone" dynamodbav:"phone"`
	Kind      EntryKind `json:"kind" dynamodbav:"kind"`
	Amount    int64     `json:"amount" dynamodbav:"amount"`
	Currency  Currency  `json:"currency" dynamodbav:"currency"`
	Note      string    `json:"note,omitempty" dynamodbav:"note,omitempty"`
	ActorID   int64     `json:"actor_id" dynamodbav:"actor_id"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

// Signed returns the entry's contribution to the balance.
func (e LedgerEntry) Signed() int64 {
	if e.Kind == KindPayment {
		return -e.Amount
	}
	return e.Amount
}

// Balance is derived by folding ledger entries for one phone and currency.
// EntryCount and LastEntryID describe the log it was folded from, so a cached
// copy can be checked for staleness.
type Balance struct {
	Phone        string   `json:"phone"`
	Currency     Currency `json:"currency"`
	Amount       int64    `json:"amount"`
	DebtTotal    int64    `json:"debt_total"`
	PaymentTotal int64    `json:"payment_total"`
	EntryCount   int      `json:"entry_count"`
	LastEntryID  string   `json:"last_entry_id,omitempty"`
}

// Apply folds one entry into the balance.
func (b *Balance) Apply(e LedgerEntry) {
	switch e.Kind {
	case KindDebt:
		b.DebtTotal += e.Amount
	case KindPayment:
		b.PaymentTotal += e.Amount
	}
	b.Amount = b.DebtTotal - b.PaymentTotal
	b.EntryCount++
	if e.EntryID > b.LastEntryID {
		b.LastEntryID = e.EntryID
	}
}

// Mark returns the log state the balance was folded from.
func (b Balance) Mark() EntryMark {
	return EntryMark{Count: b.EntryCount, LastEntryID: b.LastEntryID}
}

// EntryMark is the state of one (phone, currency) log: how many entries it
// holds and the largest entry id among them. Entry ids are generated before
// the write commits, so the id alone does not move forward with every commit;
// the count does, because entries are never updated.
type EntryMark struct {
	Count       int    `json:"count"`
	LastEntryID string `json:"last_entry_id"`
}

// ApprovalStatus is the state of a link request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest asks an admin to bind the requester to a phone.
type ApprovalRequest struct {
	ID          string         `json:"id" dynamodbav:"id"`
	RequesterID int64          `json:"requester_id" dynamodbav:"requester_id"`
	Phone       string         `json:"phone" dynamodbav:"phone"`
	DisplayName string         `json:"display_name" dynamodbav:"display_name"`
	Status      ApprovalStatus `json:"status" dynamodbav:"status"`
	DecidedBy   int64          `json:"decided_by,omitempty" dynamodbav:"decided_by,omitempty"`
	DecidedAt   *time.Time     `json:"decided_at,omitempty" dynamodbav:"decided_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at" dynamodbav:"created_at"`
}

// ApprovalOutcome is returned by a successful approval.
type ApprovalOutcome struct {
	Request       ApprovalRequest
	Customer      Customer
	PreviousPhone string
	PreviousOwner int64
}

// OutboxStatus is the delivery state of an outbox item.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

// OutboxItem is one durable outbound notification.
type OutboxItem struct {
	ID          string       `json:"id" dynamodbav:"id"`
	Destination int64        `json:"destination" dynamodbav:"destination"`
	Payload     string       `json:"payload" dynamodbav:"payload"`
	Status      OutboxStatus `json:"status" dynamodbav:"status"`
	RetryCount  int          `json:"retry_count" dynamodbav:"retry_count"`
	LastError   string       `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	CreatedAt   time.Time    `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" dynamodbav:"updated_at"`
	SentAt      *time.Time   `json:"sent_at,omitempty" dynamodbav:"sent_at,omitempty"`
}

// Notification is the payload serialised into an outbox item.
type Notification struct {
	Text    string   `json:"text"`
	Actions []Action `json:"actions,omitempty"`
}

// Action is an inline button; Data is delivered back as command text.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// ProcessedUpdate marks an inbound update id as handled.
type ProcessedUpdate struct {
	UpdateID    int64     `dynamodbav:"update_id"`
	ProcessedAt time.Time `dynamodbav:"processed_at"`
	TTL         int64     `dynamodbav:"ttl,omitempty"`
}

// AuditRecord is a write-only trail entry.
type AuditRecord struct {
	ID        string         `json:"id" dynamodbav:"id"`
	Actor     int64          `json:"actor" dynamodbav:"actor"`
	Action    string         `json:"action" dynamodbav:"action"`
	Entity    string         `json:"entity" dynamodbav:"entity"`
	EntityID  string         `json:"entity_id,omitempty" dynamodbav:"entity_id,omitempty"`
	OK        bool           `json:"ok" dynamodbav:"ok"`
	Error     string         `json:"error,omitempty" dynamodbav:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at" dynamodbav:"created_at"`
}

// InboundEvent is a transport-neutral inbound command.
type InboundEvent struct {
	UpdateID    int64    `json:"update_id"`
	ActorID     int64    `json:"actor_id"`
	ChatID      int64    `json:"chat_id"`
	Command     string   `json:"command"`
	Args        []string `json:"args,omitempty"`
	DisplayName string   `json:"display_name,omitempty"`
	Username    string   `json:"username,omitempty"`
	CallbackID  string   `json:"callback_id,omitempty"`
}
