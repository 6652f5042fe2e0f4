package handlers

import (
	"context"
	"errors"

	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/telegram/format"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"
	"github.com/m3rciful/afkbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot used to post outside of an update.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// InactiveNotifier posts "is now AFK" notices for users the sweep marked away.
type InactiveNotifier struct {
	Bot Sender
	// Dispatcher queues the send when set; otherwise the send is synchronous.
	Dispatcher *sender.Dispatcher
}

// NotifyInactive posts the notice to the user's chat.
func (n InactiveNotifier) NotifyInactive(ctx context.Context, st status.Status) error {
	if n.Bot == nil {
		return errors.New("notifier: nil bot")
	}
	text := awayText(format.MentionHTML(st.UserID, st.DisplayName), st.Reason)
	chat := tele.ChatID(st.ChatID)
	run := func() error {
		_, err := n.Bot.Send(chat, text, tghelpers.HTMLOptions(nil))
		return err
	}
	if n.Dispatcher == nil {
		return run()
	}
	return n.Dispatcher.Enqueue(ctx, "notify.inactive", "sendMessage", run)
}
