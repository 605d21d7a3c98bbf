package telegram

import (
	"strings"

	"github.com/chris/debt-ledger-bot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// ParseCommand splits "/Cmd@bot a b" into ("cmd", ["a", "b"]). Text that
// does not start with a slash yields an empty command.
func ParseCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	if !strings.HasPrefix(fields[0], "/") {
		return "", fields
	}
	cmd := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	args := fields[1:]
	if len(args) == 0 {
		args = nil
	}
	return strings.ToLower(cmd), args
}

func displayName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// ParseUpdate turns a Telegram update into an InboundEvent. ok is false for
// updates the bot does not handle, such as channel posts.
func ParseUpdate(update tgbotapi.Update) (models.InboundEvent, bool) {
	ev := models.InboundEvent{UpdateID: int64(update.UpdateID)}

	var (
		from *tgbotapi.User
		text string
	)
	switch {
	case update.CallbackQuery != nil:
		cq := update.CallbackQuery
		from = cq.From
		text = cq.Data
		ev.CallbackID = cq.ID
		if cq.Message != nil && cq.Message.Chat != nil {
			ev.ChatID = cq.Message.Chat.ID
		}
	case update.Message != nil:
		from = update.Message.From
		text = update.Message.Text
		if update.Message.Chat != nil {
			ev.ChatID = update.Message.Chat.ID
		}
	case update.EditedMessage != nil:
		from = update.EditedMessage.From
		text = update.EditedMessage.Text
		if update.EditedMessage.Chat != nil {
			ev.ChatID = update.EditedMessage.Chat.ID
		}
	default:
		return ev, false
	}
	if from == nil || from.IsBot {
		return ev, false
	}

	ev.ActorID = from.ID
	if ev.ChatID == 0 {
		ev.ChatID = from.ID
	}
	ev.DisplayName = displayName(from)
	ev.Username = from.UserName
	ev.Command, ev.Args = ParseCommand(text)
	return ev, true
}
