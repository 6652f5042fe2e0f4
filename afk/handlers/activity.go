package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/afkbot/afk/status"
	"github.com/m3rciful/afkbot/core/logger"
	"github.com/m3rciful/afkbot/core/telegram/format"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"
	"github.com/m3rciful/afkbot/core/telegram/router"

	tele "gopkg.in/telebot.v4"
)

// target is a user referenced by a message, with the name to mention them by.
type target struct {
	userID int64
	name   string
}

// Activity runs for every non-command message. It records the sender's
// activity, returns them from AFK and announces referenced AFK users.
func (h *Handlers) Activity(c tele.Context) error {
	msg, u, chat := c.Message(), c.Sender(), c.Chat()
	if msg == nil || u == nil || chat == nil || u.IsBot {
		return router.ErrSkipped
	}
	ctx := tghelpers.BuildContext(c)
	now := h.now()
	id := identityOf(chat, u)
	h.svc.Observe(id, now)

	var (
		acted bool
		errs  []error
	)

	st, err := h.svc.Lookup(ctx, id.Key)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("lookup sender: %w", err))
	case st.Away:
		ret, ok, err := h.svc.ComeBack(ctx, id.Key, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("come back: %w", err))
			break
		}
		if ok {
			acted = true
			if err := tghelpers.ReplyHTML(c, backText(mentionOf(u), ret.Duration)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	for _, t := range h.targets(ctx, chat.ID, msg, u.ID) {
		key := status.Key{ChatID: chat.ID, UserID: t.userID}
		st, ok, err := h.svc.Announce(ctx, key, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("announce %s: %w", key, err))
			continue
		}
		if !ok {
			continue
		}
		name := t.name
		if name == "" {
			name = st.DisplayName
		}
		acted = true
		if err := tghelpers.ReplyHTML(c, announceText(format.MentionHTML(t.userID, name), st.Reason, st.AwayFor(now))); err != nil {
			errs = append(errs, err)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	if !acted {
		return router.ErrSkipped
	}
	return nil
}

// targets collects the users a message points at, in order: the replied-to
// user, text mentions, then @username mentions known in this chat. The sender,
// bots and duplicates are left out; bots are never recorded, so an @mention of
// one does not resolve.
func (h *Handlers) targets(ctx context.Context, chatID int64, msg *tele.Message, senderID int64) []target {
	seen := map[int64]bool{senderID: true}
	var out []target
	add := func(u *tele.User) {
		if u == nil || u.IsBot || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		out = append(out, target{userID: u.ID, name: format.FullName(u.FirstName, u.LastName)})
	}

	if msg.ReplyTo != nil {
		add(msg.ReplyTo.Sender)
	}

	entities := msg.Entities
	if len(entities) == 0 {
		entities = msg.CaptionEntities
	}
	var usernames []string
	for _, e := range entities {
		switch e.Type {
		case tele.EntityTMention:
			add(e.User)
		case tele.EntityMention:
			usernames = append(usernames, msg.EntityText(e))
		}
	}

	for _, raw := range usernames {
		name := status.NormalizeUsername(raw)
		if name == "" {
			continue
		}
		st, ok, err := h.svc.ResolveMention(ctx, chatID, name)
		if err != nil {
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "afk.mention.resolve_failed",
				slog.String("username", logger.SanitizeLimit(name, 64)),
				slog.String("err", err.Error()),
			)
			continue
		}
		if !ok || seen[st.UserID] {
			continue
		}
		seen[st.UserID] = true
		out = append(out, target{userID: st.UserID, name: st.DisplayName})
	}
	return out
}
