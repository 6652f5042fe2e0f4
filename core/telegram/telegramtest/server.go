// Package telegramtest provides a fake Bot API server for handler tests.
package telegramtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"
)

// Token is the bot token the fake server accepts.
const Token = "123456:TEST"

// Call is one recorded Bot API request.
type Call struct {
	Method string
	Params map[string]string
}

// Server records Bot API calls and answers them with minimal success payloads.
type Server struct {
	*httptest.Server

	mu     sync.Mutex
	calls  []Call
	nextID int
	fail   map[string]string
}

// NewServer starts a fake API server closed at test cleanup.
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{nextID: 1000, fail: make(map[string]string)}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

// Bot returns an offline telebot instance talking to the fake server.
func (s *Server) Bot(t testing.TB) *tele.Bot {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{
		URL:     s.URL,
		Token:   Token,
		Offline: true,
		Client:  s.Client(),
	})
	if err != nil {
		t.Fatalf("telegramtest: NewBot: %v", err)
	}
	b.Me = &tele.User{ID: 1, IsBot: true, Username: "afk_test_bot", FirstName: "AFK"}
	return b
}

// FailMethod makes every call to method return a Bot API error with description.
func (s *Server) FailMethod(method, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[method] = description
}

// Calls returns recorded calls, optionally filtered by method.
func (s *Server) Calls(method string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Call
	for _, c := range s.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Texts returns the text of every sendMessage call in order.
func (s *Server) Texts() []string {
	var out []string
	for _, c := range s.Calls("sendMessage") {
		out = append(out, c.Params["text"])
	}
	return out
}

// Reset forgets recorded calls.
func (s *Server) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	params := decodeParams(r)

	s.mu.Lock()
	s.calls = append(s.calls, Call{Method: method, Params: params})
	s.nextID++
	id := s.nextID
	failure, failing := s.fail[method]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error_code": 400, "description": failure})
		return
	}

	var result any = true
	if strings.HasPrefix(method, "send") && method != "sendChatAction" {
		chatID, _ := strconv.ParseInt(params["chat_id"], 10, 64)
		result = map[string]any{
			"message_id": id,
			"date":       0,
			"chat":       map[string]any{"id": chatID, "type": "group"},
			"text":       params["text"],
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

// decodeParams flattens JSON or form bodies into string values.
func decodeParams(r *http.Request) map[string]string {
	out := make(map[string]string)
	body, _ := io.ReadAll(r.Body)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		raw := make(map[string]any)
		if err := json.Unmarshal(body, &raw); err == nil {
			for k, v := range raw {
				switch x := v.(type) {
				case string:
					out[k] = x
				case float64:
					out[k] = strconv.FormatFloat(x, 'f', -1, 64)
				default:
					b, _ := json.Marshal(x)
					out[k] = string(b)
				}
			}
			return out
		}
	}
	if values, err := url.ParseQuery(string(body)); err == nil {
		for k := range values {
			out[k] = values.Get(k)
		}
	}
	for k := range r.URL.Query() {
		if _, ok := out[k]; !ok {
			out[k] = r.URL.Query().Get(k)
		}
	}
	return out
}

// String renders a call for test failure messages.
func (c Call) String() string {
	return fmt.Sprintf("%s %v", c.Method, c.Params)
}
