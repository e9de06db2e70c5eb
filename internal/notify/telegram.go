package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/and161185/anonmatch/internal/errs"
	"github.com/and161185/anonmatch/internal/model"
)

// Sender is the part of *tgbotapi.BotAPI the notifier needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends events as chat messages; participant ids are Telegram chat ids.
type Telegram struct {
	bot Sender
}

// NewTelegram constructs a Telegram notifier over bot.
func NewTelegram(bot Sender) *Telegram { return &Telegram{bot: bot} }

var (
	chatMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("⏭️ Next"), tgbotapi.NewKeyboardButton("🛑 Stop")),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("🔒 Secret Mode")),
	)
	mainMenu = tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("🔍 Find Partner"), tgbotapi.NewKeyboardButton("👥 Search by Gender")),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton("📊 Stats")),
	)
)

// Text renders the user-facing message for ev.
func Text(ev model.Event) string {
	switch ev.Kind {
	case model.EventPartnerFound:
		return "🎉 Partner found! The chat has started.\nUse /stop to end the chat or /next to look for someone new."
	case model.EventPartnerLeft:
		if ev.Reason == model.LeaveNext {
			return "💔 Your partner went looking for someone new. Thanks for chatting!"
		}
		return "💔 Your partner ended the chat. Thanks for chatting!"
	case model.EventChatEnded:
		return "💔 Chat ended. Thank you!"
	case model.EventSearchTimedOut:
		return "⏰ No partner found in time. Please try again later."
	case model.EventSearchCancelled:
		return "❌ Search cancelled."
	case model.EventDeliveryFailed:
		return "❌ Could not reach your partner. Please try again."
	}
	return string(ev.Kind)
}

func (t *Telegram) Notify(_ context.Context, to model.ParticipantID, ev model.Event) error {
	msg := tgbotapi.NewMessage(to, Text(ev))
	if ev.Kind == model.EventPartnerFound {
		msg.ReplyMarkup = chatMenu
	} else {
		msg.ReplyMarkup = mainMenu
	}
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("%w: telegram: %v", errs.ErrDeliveryFailed, err)
	}
	return nil
}
