package router

import (
	"time"

	tg "github.com/m3rciful/afkbot/core/telegram"
	"github.com/m3rciful/afkbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// MessageEndpoints lists the non-command message kinds routed to the activity handler.
var MessageEndpoints = []string{
	tele.OnText,
	tele.OnPhoto,
	tele.OnVideo,
	tele.OnAnimation,
	tele.OnDocument,
	tele.OnSticker,
	tele.OnVoice,
	tele.OnVideoNote,
	tele.OnAudio,
	tele.OnLocation,
	tele.OnContact,
	tele.OnPoll,
	tele.OnDice,
}

// MessageRoutes binds handler to every endpoint in MessageEndpoints under one
// handler name.
func MessageRoutes(name string, handler tele.HandlerFunc) []tg.Route {
	if handler == nil {
		return nil
	}
	name = normalizeHandlerName(name)
	wrapped := func(c tele.Context) error {
		return handleWithSummary(c, name, time.Now(), func() error { return handler(c) })
	}
	h := middleware.RecoverMiddleware(middleware.LoggerMiddleware(wrapped))

	routes := make([]tg.Route, 0, len(MessageEndpoints))
	for _, ep := range MessageEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: h})
	}
	return routes
}
