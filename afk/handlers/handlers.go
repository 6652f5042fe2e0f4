// Package handlers wires the AFK service to Telegram commands, the "I'm back"
// button and the catch-all message handler.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/afkbot/afk"
	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/logger"
	tg "github.com/m3rciful/afkbot/core/telegram"
	"github.com/m3rciful/afkbot/core/telegram/callbacks"
	"github.com/m3rciful/afkbot/core/telegram/commands"
	"github.com/m3rciful/afkbot/core/telegram/format"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"
	"github.com/m3rciful/afkbot/core/telegram/keyboard"
	"github.com/m3rciful/afkbot/core/telegram/router"
	"github.com/m3rciful/afkbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// BackButtonUnique is the callback key of the "I'm back" button.
const BackButtonUnique = "afk_back"

// Service is the AFK service surface used by the handlers.
type Service interface {
	GoAway(ctx context.Context, id status.Identity, reason string, now time.Time) (status.Status, error)
	ComeBack(ctx context.Context, key status.Key, now time.Time) (afk.Return, bool, error)
	Lookup(ctx context.Context, key status.Key) (status.Status, error)
	Observe(id status.Identity, now time.Time)
	Announce(ctx context.Context, key status.Key, now time.Time) (status.Status, bool, error)
	ResolveMention(ctx context.Context, chatID int64, username string) (status.Status, bool, error)
	Stats(ctx context.Context) (afk.Stats, error)
}

// Options configure Handlers.
type Options struct {
	Now func() time.Time
	// SenderStats reports outbound dispatcher counters for /stats.
	SenderStats func() sender.Stats
}

// Handlers holds the Telegram entry points of the bot.
type Handlers struct {
	svc         Service
	now         func() time.Time
	senderStats func() sender.Stats
}

// New returns handlers backed by svc.
func New(svc Service, opts Options) *Handlers {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SenderStats == nil {
		opts.SenderStats = func() sender.Stats { return sender.Stats{} }
	}
	return &Handlers{svc: svc, now: opts.Now, senderStats: opts.SenderStats}
}

// Register adds the commands and the callback to reg.
func (h *Handlers) Register(reg *tg.Registry) error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: h.Start, Description: "Start bot and see help", Aliases: []string{"help"}}},
		{"/afk", commands.Command{Handler: h.AFK, Description: "Set yourself AFK", Aliases: []string{"brb"}}},
		{"/back", commands.Command{Handler: h.Back, Description: "Return from AFK"}},
		{"/stats", commands.Command{Handler: h.Stats, Description: "Show AFK statistics", AdminOnly: true, Hidden: true}},
	}
	for _, c := range cmds {
		if err := reg.RegisterCommand(c.name, c.cmd); err != nil {
			return err
		}
	}
	if err := reg.RegisterCallback(BackButtonUnique, h.BackButton); err != nil {
		return fmt.Errorf("register %s callback: %w", BackButtonUnique, err)
	}
	return nil
}

// Routes returns the catch-all message routes.
func (h *Handlers) Routes() []tg.Route {
	return router.MessageRoutes("activity", h.Activity)
}

func identityOf(chat *tele.Chat, u *tele.User) status.Identity {
	return status.Identity{
		Key:         status.Key{ChatID: chat.ID, UserID: u.ID},
		Username:    u.Username,
		DisplayName: format.FullName(u.FirstName, u.LastName),
	}
}

func mentionOf(u *tele.User) string {
	return format.MentionHTML(u.ID, format.FullName(u.FirstName, u.LastName))
}

// Start greets the user and lists the commands.
func (h *Handlers) Start(c tele.Context) error {
	if c.Sender() == nil {
		return router.ErrSkipped
	}
	return tghelpers.ReplyHTML(c, startText(mentionOf(c.Sender())))
}

// AFK marks the sender away with the optional reason after the command.
func (h *Handlers) AFK(c tele.Context) error {
	u, chat := c.Sender(), c.Chat()
	if u == nil || chat == nil {
		return router.ErrSkipped
	}
	ctx := tghelpers.BuildContext(c)

	st, err := h.svc.GoAway(ctx, identityOf(chat, u), c.Message().Payload, h.now())
	if err != nil {
		return fmt.Errorf("go away: %w", err)
	}
	markup := keyboard.Single(keyboard.Button{
		Text:   backButtonText,
		Unique: BackButtonUnique,
		Data:   strconv.FormatInt(u.ID, 10),
	})
	return tghelpers.ReplyHTML(c, awayText(mentionOf(u), st.Reason), markup)
}

// Back clears the sender's away state.
func (h *Handlers) Back(c tele.Context) error {
	u, chat := c.Sender(), c.Chat()
	if u == nil || chat == nil {
		return router.ErrSkipped
	}
	ctx := tghelpers.BuildContext(c)
	now := h.now()
	id := identityOf(chat, u)
	h.svc.Observe(id, now)

	ret, ok, err := h.svc.ComeBack(ctx, id.Key, now)
	if err != nil {
		return fmt.Errorf("come back: %w", err)
	}
	if !ok {
		return tghelpers.ReplyText(c, notAFKText)
	}
	return tghelpers.ReplyHTML(c, backText(mentionOf(u), ret.Duration))
}

// BackButton handles the "I'm back" button. Only the user it was issued to may press it.
func (h *Handlers) BackButton(c tele.Context) error {
	u, chat := c.Sender(), c.Chat()
	if u == nil || chat == nil {
		return router.ErrSkipped
	}
	owner, err := callbacks.PayloadInt64(c)
	if err != nil || owner != u.ID {
		return tghelpers.Alert(c, notYoursText)
	}

	ctx := tghelpers.BuildContext(c)
	now := h.now()
	id := identityOf(chat, u)
	h.svc.Observe(id, now)

	ret, ok, err := h.svc.ComeBack(ctx, id.Key, now)
	if err != nil {
		return fmt.Errorf("come back: %w", err)
	}
	if cb := c.Callback(); cb != nil && cb.Message != nil {
		if _, err := c.Bot().EditReplyMarkup(cb.Message, nil); err != nil && !errors.Is(err, tele.ErrTrueResult) {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "afk.button.clear_failed", slog.String("err", err.Error()))
		}
	}
	if !ok {
		return tghelpers.Answer(c, &tele.CallbackResponse{Text: notAFKText})
	}
	return tghelpers.SendHTML(c, backText(mentionOf(u), ret.Duration))
}

// Stats reports service counters to the admin.
func (h *Handlers) Stats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	st, err := h.svc.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	return tghelpers.ReplyHTML(c, statsText(st, h.senderStats()))
}
