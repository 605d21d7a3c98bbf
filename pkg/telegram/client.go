// Package telegram adapts the Telegram Bot API to the bot: outbound
// notifications, update parsing and callback acknowledgement.
package telegram

import (
	"context"
	"fmt"

	"github.com/chris/debt-ledger-bot/pkg/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotClient is the subset of *tgbotapi.BotAPI the bot uses.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

var _ BotClient = (*tgbotapi.BotAPI)(nil)

// NewBotAPI connects with token. The token is checked with getMe.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram client: %w", err)
	}
	return api, nil
}

// Sender delivers notifications as HTML messages.
type Sender struct {
	client BotClient
}

func NewSender(client BotClient) *Sender {
	return &Sender{client: client}
}

// Send implements the outbox transport. The Bot API client does not take a
// context, so cancellation is only checked before the call.
func (s *Sender) Send(ctx context.Context, destination int64, n models.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.Send(NewMessage(destination, n)); err != nil {
		return fmt.Errorf("failed to send telegram message: %w", err)
	}
	return nil
}

// NewMessage builds an HTML message with one inline button row per action.
func NewMessage(chatID int64, n models.Notification) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, n.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(n.Actions) > 0 {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(n.Actions))
		for _, a := range n.Actions {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data))
		}
		msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return msg
}

// AnswerCallback stops the client's loading indicator on an inline button.
func (s *Sender) AnswerCallback(callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	if _, err := s.client.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("failed to answer callback: %w", err)
	}
	return nil
}
