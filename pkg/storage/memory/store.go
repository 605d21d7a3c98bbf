// Package memory is an in-process implementation of storage.Storage guarded
// by a single RWMutex. Every multi-record operation runs under the write lock,
// which gives it the same all-or-nothing behaviour the database backends get
// from transactions.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/storage"
)

type Store struct {
	mu         sync.RWMutex
	identities map[int64]models.Identity
	customers  map[string]models.Customer
	entries    map[string][]models.LedgerEntry
	approvals  map[string]models.ApprovalRequest
	pending    map[string]string
	outbox     map[string]models.OutboxItem
	updates    map[int64]models.ProcessedUpdate
	audit      []models.AuditRecord
}

func New() *Store {
	return &Store{
		identities: map[int64]models.Identity{},
		customers:  map[string]models.Customer{},
		entries:    map[string][]models.LedgerEntry{},
		approvals:  map[string]models.ApprovalRequest{},
		pending:    map[string]string{},
		outbox:     map[string]models.OutboxItem{},
		updates:    map[int64]models.ProcessedUpdate{},
	}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

func pendingKey(requester int64, phone string) string {
	return fmt.Sprintf("%d#%s", requester, phone)
}

// Identities

func (s *Store) GetIdentity(_ context.Context, externalID int64) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &id, nil
}

func (s *Store) ListIdentitiesByRole(_ context.Context, role models.Role) ([]models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Identity
	for _, id := range s.identities {
		if id.Role == role {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExternalID < out[j].ExternalID })
	return out, nil
}

func (s *Store) CreateIdentity(_ context.Context, identity *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identity.ExternalID]; ok {
		return storage.ErrAlreadyExists
	}
	s.identities[identity.ExternalID] = *identity
	return nil
}

func (s *Store) UpdateIdentityProfile(_ context.Context, externalID int64, profile models.Profile) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	id.ChatID = profile.ChatID
	if profile.DisplayName != "" {
		id.DisplayName = profile.DisplayName
	}
	if profile.Username != "" {
		id.Username = profile.Username
	}
	id.UpdatedAt = time.Now().UTC()
	s.identities[externalID] = id
	return &id, nil
}

func (s *Store) UpdateIdentityAccess(_ context.Context, externalID int64, role models.Role, status models.IdentityStatus) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	id.Role = role
	id.Status = status
	id.UpdatedAt = time.Now().UTC()
	s.identities[externalID] = id
	return &id, nil
}

// Customers

func (s *Store) GetCustomer(_ context.Context, phone string) (*models.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.customers[phone]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[customer.Phone]; ok {
		return storage.ErrAlreadyExists
	}
	s.customers[customer.Phone] = *customer
	return nil
}

func (s *Store) UpdateCustomerProfile(_ context.Context, phone, displayName, note string) (*models.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if displayName != "" {
		c.DisplayName = displayName
	}
	if note != "" {
		c.Note = note
	}
	s.customers[phone] = c
	return &c, nil
}

func (s *Store) DeleteCustomer(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[phone]
	if !ok {
		return 0, storage.ErrNotFound
	}
	removed := len(s.entries[phone])
	delete(s.entries, phone)
	delete(s.customers, phone)

	if c.LinkedIdentity != 0 {
		if id, ok := s.identities[c.LinkedIdentity]; ok && id.Phone == phone {
			s.identities[id.ExternalID] = unlinkIdentity(id)
		}
	}
	return removed, nil
}

// unlinkIdentity clears the phone binding; a customer falls back to unaffiliated.
func unlinkIdentity(id models.Identity) models.Identity {
	id.Phone = ""
	if id.Role == models.RoleCustomer {
		id.Role = models.RoleUnaffiliated
	}
	id.UpdatedAt = time.Now().UTC()
	return id
}

// Ledger

func (s *Store) AppendEntry(_ context.Context, entry *models.LedgerEntry, customer *models.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries[entry.Phone] {
		if e.EntryID == entry.EntryID {
			return storage.ErrAlreadyExists
		}
	}
	if _, ok := s.customers[entry.Phone]; !ok && customer != nil {
		s.customers[entry.Phone] = *customer
	}
	s.entries[entry.Phone] = append(s.entries[entry.Phone], *entry)
	return nil
}

func (s *Store) ListEntries(_ context.Context, phone string, currency models.Currency, limit int) ([]models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.entries[phone]
	out := make([]models.LedgerEntry, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if currency != "" && all[i].Currency != currency {
			continue
		}
		out = append(out, all[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EntryID > out[j].EntryID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) SumEntries(_ context.Context, phone string, currency models.Currency) (*models.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := &models.Balance{Phone: phone, Currency: currency}
	for _, e := range s.entries[phone] {
		if e.Currency == currency {
			b.Apply(e)
		}
	}
	return b, nil
}

func (s *Store) EntryMark(_ context.Context, phone string, currency models.Currency) (models.EntryMark, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var mark models.EntryMark
	for _, e := range s.entries[phone] {
		if e.Currency != currency {
			continue
		}
		mark.Count++
		if e.EntryID > mark.LastEntryID {
			mark.LastEntryID = e.EntryID
		}
	}
	return mark, nil
}

// Approvals

func (s *Store) CreateApprovalRequest(_ context.Context, req *models.ApprovalRequest) (*models.ApprovalRequest, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pendingKey(req.RequesterID, req.Phone)
	if id, ok := s.pending[key]; ok {
		existing := s.approvals[id]
		return &existing, false, nil
	}
	if _, ok := s.approvals[req.ID]; ok {
		return nil, false, storage.ErrAlreadyExists
	}
	s.approvals[req.ID] = *req
	s.pending[key] = req.ID
	return req, true, nil
}

func (s *Store) GetApprovalRequest(_ context.Context, id string) (*models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.approvals[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &req, nil
}

func (s *Store) resolveLocked(id string, status models.ApprovalStatus, adminID int64, now time.Time) (models.ApprovalRequest, error) {
	req, ok := s.approvals[id]
	if !ok {
		return req, storage.ErrNotFound
	}
	if req.Status != models.ApprovalPending {
		return req, storage.ErrAlreadyResolved
	}
	req.Status = status
	req.DecidedBy = adminID
	decided := now
	req.DecidedAt = &decided
	return req, nil
}

func (s *Store) ApproveRequest(_ context.Context, id string, adminID int64, now time.Time) (*models.ApprovalOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.resolveLocked(id, models.ApprovalApproved, adminID, now)
	if err != nil {
		return nil, err
	}
	requester, ok := s.identities[req.RequesterID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	customer, ok := s.customers[req.Phone]
	if !ok {
		customer = models.Customer{
			Phone:       req.Phone,
			DisplayName: req.DisplayName,
			Origin:      models.OriginApproval,
			CreatedBy:   adminID,
			CreatedAt:   now,
		}
	} else if customer.DisplayName == "" {
		customer.DisplayName = req.DisplayName
	}
	outcome := &models.ApprovalOutcome{}

	// Previous owner of this phone.
	if customer.LinkedIdentity != 0 && customer.LinkedIdentity != req.RequesterID {
		if prev, ok := s.identities[customer.LinkedIdentity]; ok && prev.Phone == req.Phone {
			s.identities[prev.ExternalID] = unlinkIdentity(prev)
		}
		outcome.PreviousOwner = customer.LinkedIdentity
	}

	// Requester's previous phone.
	if requester.Phone != "" && requester.Phone != req.Phone {
		outcome.PreviousPhone = requester.Phone
		if old, ok := s.customers[requester.Phone]; ok && old.LinkedIdentity == requester.ExternalID {
			old.LinkedIdentity = 0
			s.customers[old.Phone] = old
		}
	}

	customer.LinkedIdentity = req.RequesterID
	s.customers[req.Phone] = customer

	requester.Phone = req.Phone
	requester.Role = models.LinkedRole(requester.Role)
	requester.Status = models.StatusActive
	requester.UpdatedAt = now
	s.identities[requester.ExternalID] = requester

	s.approvals[id] = req
	delete(s.pending, pendingKey(req.RequesterID, req.Phone))

	outcome.Request = req
	outcome.Customer = customer
	return outcome, nil
}

func (s *Store) RejectRequest(_ context.Context, id string, adminID int64, now time.Time) (*models.ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, err := s.resolveLocked(id, models.ApprovalRejected, adminID, now)
	if err != nil {
		return nil, err
	}
	s.approvals[id] = req
	delete(s.pending, pendingKey(req.RequesterID, req.Phone))
	return &req, nil
}

func (s *Store) ListPendingRequests(_ context.Context, limit int) ([]models.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ApprovalRequest
	for _, req := range s.approvals {
		if req.Status == models.ApprovalPending {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Outbox

func (s *Store) GetOutboxItem(_ context.Context, id string) (*models.OutboxItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.outbox[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &item, nil
}

func (s *Store) InsertOutboxItem(_ context.Context, item *models.OutboxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outbox[item.ID]; ok {
		return storage.ErrAlreadyExists
	}
	s.outbox[item.ID] = *item
	return nil
}

func (s *Store) MarkOutboxSent(_ context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.outbox[id]
	if !ok {
		return storage.ErrNotFound
	}
	if item.Status == models.OutboxSent {
		return nil
	}
	item.Status = models.OutboxSent
	item.UpdatedAt = now
	sent := now
	item.SentAt = &sent
	s.outbox[id] = item
	return nil
}

func (s *Store) MarkOutboxFailed(_ context.Context, id string, lastError string, now time.Time) (*models.OutboxItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.outbox[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if item.Status == models.OutboxSent {
		return nil, storage.ErrOutboxItemSent
	}
	item.Status = models.OutboxFailed
	item.RetryCount++
	item.LastError = lastError
	item.UpdatedAt = now
	s.outbox[id] = item
	return &item, nil
}

func (s *Store) ListOutboxCandidates(_ context.Context, maxRetries, limit int) ([]models.OutboxItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byStatus := map[models.OutboxStatus][]models.OutboxItem{}
	for _, item := range s.outbox {
		if item.Status == models.OutboxSent || item.RetryCount >= maxRetries {
			continue
		}
		byStatus[item.Status] = append(byStatus[item.Status], item)
	}
	var out []models.OutboxItem
	for _, status := range []models.OutboxStatus{models.OutboxPending, models.OutboxFailed} {
		items := byStatus[status]
		sortOutbox(items)
		if limit > 0 && len(items) > limit {
			items = items[:limit]
		}
		out = append(out, items...)
	}
	return out, nil
}

func sortOutbox(items []models.OutboxItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

// Intake and audit

func (s *Store) InsertProcessedUpdate(_ context.Context, marker *models.ProcessedUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.updates[marker.UpdateID]; ok {
		return storage.ErrAlreadyExists
	}
	s.updates[marker.UpdateID] = *marker
	return nil
}

func (s *Store) WriteAudit(_ context.Context, record *models.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, *record)
	return nil
}

// AuditRecords returns a copy of every audit record written so far.
func (s *Store) AuditRecords() []models.AuditRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.AuditRecord(nil), s.audit...)
}

// OutboxItems returns every outbox item, oldest first.
func (s *Store) OutboxItems() []models.OutboxItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.OutboxItem, 0, len(s.outbox))
	for _, item := range s.outbox {
		out = append(out, item)
	}
	sortOutbox(out)
	return out
}
