package middleware

import (
	"errors"
	"testing"
	"time"

	"github.com/m3rciful/afkbot/core/logger"
	tghelpers "github.com/m3rciful/afkbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

func offlineBot(t *testing.T) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "1:test", Offline: true})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return b
}

func messageUpdate(id int, userID, chatID int64) tele.Update {
	return tele.Update{
		ID: id,
		Message: &tele.Message{
			ID:     id,
			Sender: &tele.User{ID: userID, FirstName: "Ann"},
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatGroup},
			Text:   "hello",
		},
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	b := offlineBot(t)
	clock := time.Unix(1_700_000_000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		Now:       func() time.Time { return clock },
		OnLimited: func(tele.Context) error { limited++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(b.NewContext(messageUpdate(1, 7, -100)))
	_ = h(b.NewContext(messageUpdate(2, 7, -100)))
	_ = h(b.NewContext(messageUpdate(3, 8, -100)))
	clock = clock.Add(2 * time.Second)
	_ = h(b.NewContext(messageUpdate(4, 7, -100)))

	if calls != 3 || limited != 1 {
		t.Fatalf("calls=%d limited=%d, want 3/1", calls, limited)
	}
}

func TestRateLimitExclusions(t *testing.T) {
	b := offlineBot(t)
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{"message": {}},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 1; i <= 3; i++ {
		_ = h(b.NewContext(messageUpdate(i, 7, -100)))
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestUpdateKind(t *testing.T) {
	tests := map[string]tele.Update{
		"callback":     {Callback: &tele.Callback{}},
		"message":      {Message: &tele.Message{}},
		"inline_query": {Query: &tele.Query{}},
		"other":        {},
	}
	for want, upd := range tests {
		if got := UpdateKind(upd); got != want {
			t.Errorf("UpdateKind = %q, want %q", got, want)
		}
	}
}

func TestRecoverMiddleware(t *testing.T) {
	b := offlineBot(t)
	h := RecoverMiddleware(func(tele.Context) error { panic("boom") })
	if err := h(b.NewContext(messageUpdate(1, 7, -100))); err == nil {
		t.Fatal("expected panic to be converted into an error")
	}

	want := errors.New("plain")
	h = RecoverMiddleware(func(tele.Context) error { return want })
	if err := h(b.NewContext(messageUpdate(2, 7, -100))); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestAdminOnlyMiddleware(t *testing.T) {
	b := offlineBot(t)
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID:  42,
		OnReject: func(tele.Context) error { rejected++; return nil },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(b.NewContext(messageUpdate(1, 42, 42)))
	_ = h(b.NewContext(messageUpdate(2, 7, 7)))
	if calls != 1 || rejected != 1 {
		t.Fatalf("calls=%d rejected=%d", calls, rejected)
	}

	locked := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { calls++; return nil })
	_ = locked(b.NewContext(messageUpdate(3, 42, 42)))
	if calls != 1 {
		t.Fatal("admin-only handler ran without a configured admin")
	}
}

func TestLoggerMiddlewareStoresContext(t *testing.T) {
	b := offlineBot(t)
	var seen string
	h := LoggerMiddleware(LoggerMiddleware(func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		seen = logger.RIDFrom(ctx)
		if logger.ChatIDFrom(ctx) != -100 || logger.UserIDFrom(ctx) != 7 {
			t.Errorf("unexpected meta chat=%d user=%d", logger.ChatIDFrom(ctx), logger.UserIDFrom(ctx))
		}
		return nil
	}))
	if err := h(b.NewContext(messageUpdate(5, 7, -100))); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if seen != "5:-100:7" {
		t.Fatalf("rid = %q", seen)
	}
}

func TestMetricsCounters(t *testing.T) {
	b := offlineBot(t)
	var msgs int
	var kb bool
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		mc := c.(metricsContext)
		mc.incMessages(false)
		mc.incMessages(hasKeyboard([]interface{}{&tele.SendOptions{ReplyMarkup: &tele.ReplyMarkup{}}}))
		msgs, kb = GetCounters(c)
		return nil
	})
	_ = h(b.NewContext(messageUpdate(1, 7, -100)))
	if msgs != 2 || !kb {
		t.Fatalf("msgs=%d kb=%v", msgs, kb)
	}
	if hasKeyboard([]interface{}{tele.ModeHTML}) {
		t.Fatal("parse mode is not a keyboard")
	}
}

func TestAlreadyLoggedOncePerUpdate(t *testing.T) {
	const id = 987654
	if alreadyLogged(id) {
		t.Fatal("first sighting reported as logged")
	}
	if !alreadyLogged(id) {
		t.Fatal("second sighting not deduplicated")
	}
	if alreadyLogged(id + 1) {
		t.Fatal("distinct update deduplicated")
	}
}

func TestNewUpdateSetRejectsBadCapacity(t *testing.T) {
	if _, err := newUpdateSet(0, time.Second); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	set, err := newUpdateSet(8, time.Second)
	if err != nil {
		t.Fatalf("newUpdateSet: %v", err)
	}
	defer set.Close()
	set.Set(1, struct{}{})
	if _, ok := set.Get(1); !ok {
		t.Fatal("entry missing right after Set")
	}
}
