package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/chris/debt-ledger-bot/pkg/apperrors"
	"github.com/chris/debt-ledger-bot/pkg/approval"
	"github.com/chris/debt-ledger-bot/pkg/audit"
	"github.com/chris/debt-ledger-bot/pkg/identity"
	"github.com/chris/debt-ledger-bot/pkg/intake"
	"github.com/chris/debt-ledger-bot/pkg/ledger"
	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/chris/debt-ledger-bot/pkg/outbox"
	"github.com/chris/debt-ledger-bot/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminID = int64(1000)
	staffID = int64(2000)
	userID  = int64(3000)
	phone   = "07501234567"
)

type chatLog struct {
	mu       sync.Mutex
	messages map[int64][]models.Notification
}

func (c *chatLog) Send(_ context.Context, destination int64, n models.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages[destination] = append(c.messages[destination], n)
	return nil
}

func (c *chatLog) last(chatID int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[chatID]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1].Text
}

func (c *chatLog) count(chatID int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages[chatID])
}

type callbackLog struct {
	mu  sync.Mutex
	ids []string
}

func (c *callbackLog) AnswerCallback(id, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = append(c.ids, id)
	return nil
}

type panickingIntake struct{}

func (panickingIntake) MarkSeen(context.Context, int64) (bool, error) { panic("boom") }

type failingIntake struct{}

func (failingIntake) MarkSeen(context.Context, int64) (bool, error) {
	return false, errors.New("table unavailable")
}

type harness struct {
	d         *Dispatcher
	store     *memory.Store
	chats     *chatLog
	callbacks *callbackLog
	nextID    int64
}

func newHarness(t *testing.T, dedup Deduplicator) *harness {
	t.Helper()
	store := memory.New()
	logger := zap.NewNop()
	recorder := audit.NewRecorder(store, logger)
	registry := identity.NewRegistry(store, recorder, adminID, logger)
	chats := &chatLog{messages: map[int64][]models.Notification{}}
	dispatcher := outbox.NewDispatcher(store, chats, recorder, logger, nil, outbox.Config{})
	if dedup == nil {
		dedup = intake.NewDeduplicator(store, 0, nil)
	}
	callbacks := &callbackLog{}

	d := NewDispatcher(Dependencies{
		Intake:    dedup,
		Registry:  registry,
		Ledger:    ledger.NewService(store, registry, nil, recorder, logger, 10),
		Approvals: approval.NewWorkflow(store, registry, dispatcher, recorder, logger),
		Notifier:  dispatcher,
		Callbacks: callbacks,
		Audit:     recorder,
		Logger:    logger,
	})
	return &harness{d: d, store: store, chats: chats, callbacks: callbacks}
}

// send delivers a command from actor with a fresh update id; the chat id
// equals the actor id.
func (h *harness) send(actor int64, command string) {
	h.nextID++
	h.sendWithID(h.nextID, actor, command)
}

func (h *harness) sendWithID(updateID, actor int64, command string) {
	fields := strings.Fields(command)
	h.d.HandleEvent(context.Background(), models.InboundEvent{
		UpdateID:    updateID,
		ActorID:     actor,
		ChatID:      actor,
		Command:     strings.TrimPrefix(fields[0], "/"),
		Args:        fields[1:],
		DisplayName: "tester",
	})
}

func (h *harness) entries(t *testing.T) int {
	t.Helper()
	b, err := h.store.SumEntries(context.Background(), phone, models.IQD)
	require.NoError(t, err)
	return b.EntryCount
}

func TestExampleScenario(t *testing.T) {
	h := newHarness(t, nil)
	h.send(adminID, "/start")
	h.send(adminID, "/addstaff 2000")
	assert.Contains(t, h.chats.last(adminID), "now staff")

	h.send(staffID, "/adddebt 0750-123-4567 50000 IQD groceries")
	assert.Contains(t, h.chats.last(staffID), "50,000")

	h.send(staffID, "/pay 07501234567 20,000")
	assert.Contains(t, h.chats.last(staffID), "New balance: <b>30,000</b> IQD")

	h.send(staffID, "/report 07501234567")
	report := h.chats.last(staffID)
	assert.Less(t, strings.Index(report, "Payment"), strings.Index(report, "Debt"), "newest first")
	assert.Contains(t, report, "groceries")

	h.send(staffID, "/customer 07501234567")
	assert.Contains(t, h.chats.last(staffID), "IQD: <b>30,000</b>")
}

func TestIdempotentIntake(t *testing.T) {
	h := newHarness(t, nil)
	h.send(adminID, "/addstaff 2000")

	h.sendWithID(500, staffID, "/adddebt 07501234567 1000")
	replies := h.chats.count(staffID)
	h.sendWithID(500, staffID, "/adddebt 07501234567 1000")

	assert.Equal(t, 1, h.entries(t))
	assert.Equal(t, replies, h.chats.count(staffID), "duplicates are not answered again")
}

func TestRejectedCommands(t *testing.T) {
	h := newHarness(t, nil)

	h.send(userID, "/adddebt 07501234567 1000")
	assert.True(t, strings.HasPrefix(h.chats.last(userID), "⛔"))

	h.send(adminID, "/adddebt 07501234567 zero")
	assert.True(t, strings.HasPrefix(h.chats.last(adminID), "⚠️"))

	h.send(adminID, "/adddebt 07501234567")
	assert.Contains(t, h.chats.last(adminID), "usage: /adddebt &lt;phone&gt;")

	h.send(adminID, "/frobnicate")
	assert.Contains(t, h.chats.last(adminID), "not recognised")

	h.send(adminID, "/approve nope")
	assert.True(t, strings.HasPrefix(h.chats.last(adminID), "🔍"))

	assert.Equal(t, 0, h.entries(t))

	var denied int
	for _, rec := range h.store.AuditRecords() {
		if rec.Action == audit.ActionAuthorization {
			denied++
		}
	}
	assert.Equal(t, 1, denied)
}

func TestUnexpectedFailures(t *testing.T) {
	t.Run("Panic", func(t *testing.T) {
		h := newHarness(t, panickingIntake{})
		assert.NotPanics(t, func() { h.send(userID, "/start") })
		assert.Contains(t, h.chats.last(userID), "try again later")

		var audited bool
		for _, rec := range h.store.AuditRecords() {
			if rec.Action == audit.ActionError {
				audited = true
				assert.False(t, rec.OK)
				assert.Contains(t, rec.Error, "boom")
			}
		}
		assert.True(t, audited)
	})

	t.Run("Intake Error", func(t *testing.T) {
		h := newHarness(t, failingIntake{})
		h.send(userID, "/start")
		assert.Contains(t, h.chats.last(userID), "try again later")
		_, err := h.store.GetIdentity(context.Background(), userID)
		assert.Error(t, err, "nothing is processed when the marker cannot be written")
	})
}

func TestLinkFlow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.send(adminID, "/start")
	h.send(adminID, "/addstaff 2000")

	h.send(userID, "/me")
	assert.Contains(t, h.chats.last(userID), "not linked")

	h.send(userID, "/link 07501234567 Ali Hassan")
	assert.Contains(t, h.chats.last(userID), "sent to the administrators")
	notice := h.chats.messages[adminID][len(h.chats.messages[adminID])-1]
	require.Len(t, notice.Actions, 2)

	pending, err := h.store.ListPendingRequests(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// Pressing the inline button arrives as a callback with the action data.
	h.nextID++
	h.d.HandleEvent(ctx, models.InboundEvent{
		UpdateID:   h.nextID,
		ActorID:    adminID,
		ChatID:     adminID,
		Command:    "approve",
		Args:       []string{pending[0].ID},
		CallbackID: "cb-1",
	})
	assert.Contains(t, h.chats.last(adminID), "approved")
	assert.Equal(t, []string{"cb-1"}, h.callbacks.ids)
	assert.Contains(t, h.chats.last(userID), "now linked")

	h.send(staffID, "/adddebt 07501234567 7500 usd")
	assert.Contains(t, h.chats.last(userID), "A debt of <b>7,500</b> USD")

	h.send(userID, "/me")
	me := h.chats.last(userID)
	assert.Contains(t, me, "Ali Hassan")
	assert.Contains(t, me, "USD: <b>7,500</b>")

	h.send(userID, "/customer 07709999999")
	assert.True(t, strings.HasPrefix(h.chats.last(userID), "⛔"))
}

func TestStaffManagement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.send(adminID, "/addstaff 2000")

	h.send(staffID, "/addstaff 3000")
	assert.True(t, strings.HasPrefix(h.chats.last(staffID), "⛔"))

	h.send(adminID, "/lock 2000")
	h.send(staffID, "/adddebt 07501234567 10")
	assert.Contains(t, h.chats.last(staffID), "locked")
	h.send(adminID, "/unlock 2000")

	h.send(adminID, "/removestaff 2000")
	id, err := h.store.GetIdentity(ctx, staffID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUnaffiliated, id.Role)

	h.send(adminID, "/removestaff 2000")
	assert.Contains(t, h.chats.last(adminID), "not staff")

	h.send(adminID, "/lock 1000")
	assert.Contains(t, h.chats.last(adminID), "cannot be locked")
}

func TestDeleteCustomerCommand(t *testing.T) {
	h := newHarness(t, nil)
	h.send(adminID, "/adddebt 07501234567 100")
	h.send(adminID, "/adddebt 07501234567 200")

	h.send(adminID, "/deletecustomer 07501234567")
	assert.Contains(t, h.chats.last(adminID), "2 ledger entries")
	assert.Equal(t, 0, h.entries(t))
}

func TestParseEntryArgs(t *testing.T) {
	req, err := parseEntryArgs(models.KindDebt, []string{"07501234567", "5000", "usd", "two", "bags"})
	require.NoError(t, err)
	assert.Equal(t, models.USD, req.Currency)
	assert.Equal(t, "two bags", req.Note)

	req, err = parseEntryArgs(models.KindPayment, []string{"07501234567", "5000", "cash"})
	require.NoError(t, err)
	assert.Equal(t, models.IQD, req.Currency)
	assert.Equal(t, "cash", req.Note)

	_, err = parseEntryArgs(models.KindDebt, []string{"07501234567", "100", "EUR"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)
	assert.ErrorContains(t, err, `unsupported currency "EUR"`)

	_, err = parseEntryArgs(models.KindDebt, []string{"07501234567", "100", "eur", "rent"})
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	req, err = parseEntryArgs(models.KindDebt, []string{"07501234567", "100", "IQD", "tea"})
	require.NoError(t, err)
	assert.Equal(t, models.IQD, req.Currency)
	assert.Equal(t, "tea", req.Note)

	_, err = parseEntryArgs(models.KindPayment, []string{"07501234567"})
	assert.ErrorContains(t, err, "usage: /pay")
}
