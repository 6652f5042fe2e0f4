package httpstatus

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	body := map[string]any{}
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func TestEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var dbErr error
	s := New(Options{
		Ready: pingFunc(func(context.Context) error { return dbErr }),
		Stats: func(context.Context) (any, error) { return map[string]int{"away": 2}, nil },
	})
	h := s.Handler()

	tests := []struct {
		path string
		code int
		key  string
		want any
	}{
		{"/healthz", http.StatusOK, "status", "ok"},
		{"/readyz", http.StatusOK, "status", "ready"},
		{"/stats", http.StatusOK, "away", float64(2)},
		{"/version", http.StatusOK, "version", "dev"},
		{"/nope", http.StatusNotFound, "error", "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, body := get(t, h, tt.path)
			if w.Code != tt.code {
				t.Fatalf("code = %d, want %d", w.Code, tt.code)
			}
			if body[tt.key] != tt.want {
				t.Fatalf("%s = %v, want %v", tt.key, body[tt.key], tt.want)
			}
		})
	}

	dbErr = errors.New("connection refused")
	w, body := get(t, h, "/readyz")
	if w.Code != http.StatusServiceUnavailable || body["error"] != "connection refused" {
		t.Fatalf("readyz on failure = %d %v", w.Code, body)
	}
}

func TestStatsErrorAndDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := New(Options{Stats: func(context.Context) (any, error) { return nil, errors.New("boom") }})
	if w, _ := get(t, s.Handler(), "/stats"); w.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", w.Code)
	}

	s = New(Options{})
	if w, _ := get(t, s.Handler(), "/stats"); w.Code != http.StatusNotFound {
		t.Fatalf("disabled stats code = %d", w.Code)
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("code = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestRunWithoutListenBlocksUntilCancel(t *testing.T) {
	s := New(Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run = %v", err)
	}
}
