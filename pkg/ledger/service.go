// Package ledger appends debt and payment entries and derives balances by
// summing them. Nothing here stores a balance as ground truth.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/cache"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/phone"
	"github.com/chris/debt-ledger-bot/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	maxNoteLength   = 500
	maxHistoryLimit = 100
)

// Store is the storage the ledger needs.
type Store interface {
	storage.LedgerStore
	storage.CustomerStore
}

// RecordRequest describes one debt or payment.
type RecordRequest struct {
	Phone    string
	Kind     models.EntryKind
	Amount   int64
	Currency models.Currency
	Note     string
}

// Receipt is returned by Record.
type Receipt struct {
	Entry    models.LedgerEntry
	Balance  models.Balance
	Customer models.Customer
}

// Statement is a customer with balances in every supported currency.
type Statement struct {
	Customer models.Customer
	Balances []models.Balance
}

type Service struct {
	store        Store
	registry     *identity.Registry
	cache        cache.BalanceCache
	audit        *audit.Recorder
	logger       *zap.Logger
	historyLimit int
	now          func() time.Time
}

// NewService creates a Service. balanceCache may be nil.
func NewService(store Store, registry *identity.Registry, balanceCache cache.BalanceCache, recorder *audit.Recorder, logger *zap.Logger, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 10
	}
	return &Service{
		store:        store,
		registry:     registry,
		cache:        balanceCache,
		audit:        recorder,
		logger:       logger,
		historyLimit: historyLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func normalizePhone(raw string) (string, error) {
	p, ok := phone.Parse(raw)
	if !ok {
		return "", apperrors.Validation("invalid phone number %q, expected 07XXXXXXXXX", raw)
	}
	return p, nil
}

// Record appends one entry, creating the customer record in the same atomic
// write if needed, and returns the balance recomputed from the log.
func (s *Service) Record(ctx context.Context, actor *models.Identity, req RecordRequest) (*Receipt, error) {
	if err := s.registry.Require(ctx, actor, identity.WriteLedger); err != nil {
		return nil, err
	}
	p, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	if !req.Kind.Valid() {
		return nil, apperrors.Validation("unknown entry kind %q", req.Kind)
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if req.Currency == "" {
		req.Currency = models.DefaultCurrency
	}
	if !req.Currency.Valid() {
		return nil, apperrors.Validation("unsupported currency %q, use IQD or USD", req.Currency)
	}
	note := strings.TrimSpace(req.Note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return nil, apperrors.Validation("note is longer than %d characters", maxNoteLength)
	}

	entryID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate entry id: %w", err)
	}
	now := s.now()
	entry := models.LedgerEntry{
		EntryID:   entryID.String(),
		Phone:     p,
		Kind:      req.Kind,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Note:      note,
		ActorID:   actor.ExternalID,
		CreatedAt: now,
	}
	customer := &models.Customer{
		Phone:     p,
		Origin:    models.OriginLedger,
		CreatedBy: actor.ExternalID,
		CreatedAt: now,
	}
	if err := s.store.AppendEntry(ctx, &entry, customer); err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	s.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionLedgerEntry,
		Entity:   audit.EntityLedger,
		EntityID: entry.EntryID,
		Metadata: map[string]any{
			"phone":    p,
			"kind":     string(entry.Kind),
			"amount":   entry.Amount,
			"currency": string(entry.Currency),
		},
	})

	// The receipt must include this entry, so it never comes from a snapshot.
	balance, err := s.sumBalance(ctx, p, entry.Currency)
	if err != nil {
		return nil, err
	}
	stored, err := s.store.GetCustomer(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return &Receipt{Entry: entry, Balance: *balance, Customer: *stored}, nil
}

// ResolveBalance derives the balance for (phone, currency). A cached
// snapshot is used only when its entry count and largest entry id both match
// the store; any cache failure falls back to summing the log.
func (s *Service) ResolveBalance(ctx context.Context, p string, currency models.Currency) (*models.Balance, error) {
	if !currency.Valid() {
		return nil, apperrors.Validation("unsupported currency %q, use IQD or USD", currency)
	}
	if s.cache != nil {
		if b := s.cachedBalance(ctx, p, currency); b != nil {
			return b, nil
		}
	}
	return s.sumBalance(ctx, p, currency)
}

// sumBalance folds the log and refreshes the snapshot.
func (s *Service) sumBalance(ctx context.Context, p string, currency models.Currency) (*models.Balance, error) {
	b, err := s.store.SumEntries(ctx, p, currency)
	if err != nil {
		return nil, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, b); err != nil {
			s.logger.Warn("failed to refresh balance snapshot", zap.String("phone", p), zap.Error(err))
		}
	}
	return b, nil
}

func (s *Service) cachedBalance(ctx context.Context, p string, currency models.Currency) *models.Balance {
	snap, err := s.cache.Get(ctx, p, currency)
	if err != nil {
		s.logger.Warn("failed to read balance snapshot", zap.String("phone", p), zap.Error(err))
		return nil
	}
	if snap == nil {
		return nil
	}
	mark, err := s.store.EntryMark(ctx, p, currency)
	if err != nil {
		s.logger.Warn("failed to read ledger entry mark", zap.String("phone", p), zap.Error(err))
		return nil
	}
	if snap.Mark() != mark {
		s.logger.Debug("stale balance snapshot",
			zap.String("phone", p),
			zap.Int("snapshot_count", snap.EntryCount),
			zap.Int("store_count", mark.Count),
			zap.String("snapshot_entry", snap.LastEntryID),
			zap.String("latest_entry", mark.LastEntryID),
		)
		return nil
	}
	return snap
}

func (s *Service) requireRead(ctx context.Context, actor *models.Identity, p string) error {
	if identity.Authorize(actor, identity.ReadAny) {
		return nil
	}
	if actor != nil && actor.Phone != "" && actor.Phone == p && identity.Authorize(actor, identity.ReadOwn) {
		return nil
	}
	return s.registry.Require(ctx, actor, identity.ReadAny)
}

// Balance returns the balance for one currency after checking read access.
func (s *Service) Balance(ctx context.Context, actor *models.Identity, rawPhone string, currency models.Currency) (*models.Balance, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.ResolveBalance(ctx, p, currency)
}

// Summary returns the customer's statement after checking read access.
func (s *Service) Summary(ctx context.Context, actor *models.Identity, rawPhone string) (*Statement, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.Statement(ctx, p)
}

// Statement returns the customer record and a balance per currency.
func (s *Service) Statement(ctx context.Context, rawPhone string) (*Statement, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	c, err := s.getCustomer(ctx, p)
	if err != nil {
		return nil, err
	}
	st := &Statement{Customer: *c}
	for _, cur := range models.SupportedCurrencies {
		b, err := s.ResolveBalance(ctx, p, cur)
		if err != nil {
			return nil, err
		}
		st.Balances = append(st.Balances, *b)
	}
	return st, nil
}

// History returns recent entries, newest first, after checking read access.
func (s *Service) History(ctx context.Context, actor *models.Identity, rawPhone string, limit int) ([]models.LedgerEntry, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.Entries(ctx, p, limit)
}

// Entries returns entries for an existing customer, newest first.
func (s *Service) Entries(ctx context.Context, rawPhone string, limit int) ([]models.LedgerEntry, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if _, err := s.getCustomer(ctx, p); err != nil {
		return nil, err
	}
	entries, err := s.store.ListEntries(ctx, p, "", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	return entries, nil
}

// Customer returns the customer record after checking read access.
func (s *Service) Customer(ctx context.Context, actor *models.Identity, rawPhone string) (*models.Customer, error) {
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, err
	}
	if err := s.requireRead(ctx, actor, p); err != nil {
		return nil, err
	}
	return s.getCustomer(ctx, p)
}

func (s *Service) getCustomer(ctx context.Context, p string) (*models.Customer, error) {
	c, err := s.store.GetCustomer(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, apperrors.NotFound("no customer with phone %s", p)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// RegisterCustomer creates the customer, or overwrites its name and note
// with any non-empty value when it already exists.
func (s *Service) RegisterCustomer(ctx context.Context, actor *models.Identity, rawPhone, name, note string) (*models.Customer, bool, error) {
	if err := s.registry.Require(ctx, actor, identity.WriteLedger); err != nil {
		return nil, false, err
	}
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return nil, false, err
	}
	name = strings.TrimSpace(name)
	note = strings.TrimSpace(note)

	c := &models.Customer{
		Phone:       p,
		DisplayName: name,
		Note:        note,
		Origin:      models.OriginStaff,
		CreatedBy:   actor.ExternalID,
		CreatedAt:   s.now(),
	}
	err = s.store.CreateCustomer(ctx, c)
	switch {
	case err == nil:
		s.audit.Record(ctx, audit.Event{Actor: actor.ExternalID, Action: audit.ActionCustomerCreate, Entity: audit.EntityCustomer, EntityID: p})
		return c, true, nil
	case errors.Is(err, storage.ErrAlreadyExists):
		updated, err := s.store.UpdateCustomerProfile(ctx, p, name, note)
		if err != nil {
			return nil, false, fmt.Errorf("failed to update customer: %w", err)
		}
		s.audit.Record(ctx, audit.Event{Actor: actor.ExternalID, Action: audit.ActionCustomerUpdate, Entity: audit.EntityCustomer, EntityID: p})
		return updated, false, nil
	default:
		return nil, false, fmt.Errorf("failed to create customer: %w", err)
	}
}

// DeleteCustomer removes the customer, its entries and its identity link.
func (s *Service) DeleteCustomer(ctx context.Context, actor *models.Identity, rawPhone string) (int, error) {
	if err := s.registry.Require(ctx, actor, identity.DeleteCustomers); err != nil {
		return 0, err
	}
	p, err := normalizePhone(rawPhone)
	if err != nil {
		return 0, err
	}
	removed, err := s.store.DeleteCustomer(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, apperrors.NotFound("no customer with phone %s", p)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete customer: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, p); err != nil {
			s.logger.Warn("failed to invalidate balance snapshots", zap.String("phone", p), zap.Error(err))
		}
	}
	s.audit.Record(ctx, audit.Event{
		Actor:    actor.ExternalID,
		Action:   audit.ActionCustomerDelete,
		Entity:   audit.EntityCustomer,
		EntityID: p,
		Metadata: map[string]any{"entries_removed": removed},
	})
	return removed, nil
}
