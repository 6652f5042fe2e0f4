package telegram

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
)

type scriptedTransport struct {
	calls   int
	results []func(*http.Request) (*http.Response, error)
	bodies  []string
}

func (s *scriptedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		s.bodies = append(s.bodies, string(b))
	}
	fn := s.results[min(s.calls, len(s.results)-1)]
	s.calls++
	return fn(req)
}

func respond(code int) func(*http.Request) (*http.Response, error) {
	return func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: code,
			Body:       io.NopCloser(strings.NewReader(`{"ok":true}`)),
			Request:    req,
		}, nil
	}
}

func dialFailure(*http.Request) (*http.Response, error) {
	return nil, &net.OpError{Op: "dial", Err: errors.New("connection refused")}
}

func TestRetryTransportRecoversFromDialError(t *testing.T) {
	base := &scriptedTransport{results: []func(*http.Request) (*http.Response, error){dialFailure, dialFailure, respond(http.StatusOK)}}
	rt := &retryTransport{base: base, maxRetries: 3}

	req, _ := http.NewRequest(http.MethodPost, "http://api.invalid/botX/sendMessage", strings.NewReader("chat_id=1"))
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
	for i, b := range base.bodies {
		if b != "chat_id=1" {
			t.Fatalf("attempt %d body = %q", i+1, b)
		}
	}
}

func TestRetryTransportGivesUp(t *testing.T) {
	base := &scriptedTransport{results: []func(*http.Request) (*http.Response, error){dialFailure}}
	rt := &retryTransport{base: base, maxRetries: 2}

	req, _ := http.NewRequest(http.MethodGet, "http://api.invalid/botX/getMe", nil)
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestRetryTransportGatewayStatus(t *testing.T) {
	base := &scriptedTransport{results: []func(*http.Request) (*http.Response, error){respond(http.StatusBadGateway), respond(http.StatusOK)}}
	rt := &retryTransport{base: base, maxRetries: 1}

	req, _ := http.NewRequest(http.MethodGet, "http://api.invalid/botX/getMe", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || base.calls != 2 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, base.calls)
	}
}

func TestRetryTransportNoRetryOnClientError(t *testing.T) {
	base := &scriptedTransport{results: []func(*http.Request) (*http.Response, error){respond(http.StatusBadRequest), respond(http.StatusOK)}}
	rt := &retryTransport{base: base, maxRetries: 3}

	req, _ := http.NewRequest(http.MethodGet, "http://api.invalid/botX/getMe", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest || base.calls != 1 {
		t.Fatalf("status=%d calls=%d", resp.StatusCode, base.calls)
	}
}
