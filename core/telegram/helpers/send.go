package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/afkbot/core/logger"
	"github.com/m3rciful/afkbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
// A nil dispatcher makes helpers send synchronously.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

func currentDispatcher() *sender.Dispatcher {
	return globalDispatcher.Load()
}

func sendAsync(c tele.Context, action, endpoint string, run func() error) error {
	disp := currentDispatcher()
	if disp == nil {
		return run()
	}

	ctx := BuildContext(c)
	if err := disp.Enqueue(ctx, action, endpoint, run); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("op", action),
				slog.String("method", endpoint),
				slog.String("err", err.Error()),
			)
			return run()
		}
		return err
	}
	return nil
}

// HTMLOptions returns send options for HTML parse mode without link previews.
func HTMLOptions(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	}
}

// SendHTML sends an HTML message to the current chat, preceded by a typing action.
func SendHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	opts := HTMLOptions(firstMarkup(markup))
	return sendAsync(c, "send.html", "sendMessage", func() error {
		_ = c.Notify(tele.Typing)
		return c.Send(text, opts)
	})
}

// ReplyHTML replies to the current message in HTML, preceded by a typing action.
// Without a message to reply to it behaves like SendHTML.
func ReplyHTML(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	if c.Message() == nil {
		return SendHTML(c, text, markup...)
	}
	opts := HTMLOptions(firstMarkup(markup))
	return sendAsync(c, "reply.html", "sendMessage", func() error {
		_ = c.Notify(tele.Typing)
		return c.Reply(text, opts)
	})
}

// ReplyText replies with plain text, preceded by a typing action.
func ReplyText(c tele.Context, text string) error {
	if c.Message() == nil {
		return sendAsync(c, "send.text", "sendMessage", func() error {
			_ = c.Notify(tele.Typing)
			return c.Send(text)
		})
	}
	return sendAsync(c, "reply.text", "sendMessage", func() error {
		_ = c.Notify(tele.Typing)
		return c.Reply(text)
	})
}

const answeredKey = "cb_answered"

// Alert answers the current callback query with a popup.
func Alert(c tele.Context, text string) error {
	return Answer(c, &tele.CallbackResponse{Text: text, ShowAlert: true})
}

// Answer responds to the current callback query and remembers that it did,
// so the router does not send a second, empty answer.
func Answer(c tele.Context, resp *tele.CallbackResponse) error {
	c.Set(answeredKey, true)
	if resp == nil {
		return c.Respond()
	}
	return c.Respond(resp)
}

// Answered reports whether the callback query was already answered.
func Answered(c tele.Context) bool {
	done, _ := c.Get(answeredKey).(bool)
	return done
}

func firstMarkup(markup []*tele.ReplyMarkup) *tele.ReplyMarkup {
	if len(markup) > 0 {
		return markup[0]
	}
	return nil
}
