package middleware

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maypok86/otter"

	"github.com/m3rciful/afkbot/core/logger"
	"github.com/m3rciful/afkbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

const (
	recentCapacity = 4096
	recentTTL      = 10 * time.Second
)

// recentUpdates remembers update IDs that already produced a receipt line.
var recentUpdates otter.Cache[int, struct{}]

func init() {
	c, err := newUpdateSet(recentCapacity, recentTTL)
	if err != nil {
		panic(err)
	}
	recentUpdates = c
}

func newUpdateSet(capacity int, ttl time.Duration) (otter.Cache[int, struct{}], error) {
	b, err := otter.NewBuilder[int, struct{}](capacity)
	if err != nil {
		return otter.Cache[int, struct{}]{}, fmt.Errorf("failed to create update set with capacity %d: %w", capacity, err)
	}
	c, err := b.WithTTL(ttl).Build()
	if err != nil {
		return otter.Cache[int, struct{}]{}, fmt.Errorf("failed to create update set with ttl %s: %w", ttl, err)
	}
	return c, nil
}

func alreadyLogged(updateID int) bool {
	if _, ok := recentUpdates.Get(updateID); ok {
		return true
	}
	recentUpdates.Set(updateID, struct{}{})
	return false
}

// LoggerMiddleware stores the update's logging context and logs one receipt line per update.
// It runs both globally and on routes, so receipts are deduplicated by update_id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if _, ok := tghelpers.ContextFrom(c); ok {
			return next(c)
		}

		upd := c.Update()
		user := c.Sender()
		chat := c.Chat()

		var chatID, userID int64
		if chat != nil {
			chatID = chat.ID
		}
		if user != nil {
			userID = user.ID
		}
		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set(tghelpers.RIDKey, rid)
		ctx := tghelpers.BuildContext(c)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat != nil {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user != nil {
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}

			switch {
			case upd.Callback != nil:
				key, payload := callbacks.ParseCallbackData(upd.Callback)
				if key != "" {
					attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
				}
				if payload != "" {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(payload, 256)))
				}
			case upd.Message != nil:
				// Group chatter is only observed; only commands are logged verbatim.
				if t := c.Text(); strings.HasPrefix(t, "/") {
					attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
				} else {
					attrs = append(attrs, slog.Int("text_len", len(t)))
				}
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
