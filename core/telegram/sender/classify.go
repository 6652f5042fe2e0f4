package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

const (
	codeTimeout     = "timeout"
	codeCancelled   = "cancelled"
	codeDNS         = "dns"
	codeDial        = "dial"
	codeTLS         = "tls"
	codeRateLimited = "rate_limited"
	codeHTTP5xx     = "http_5xx"
	codeHTTP4xx     = "http_4xx"
	codeUnknown     = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// RedactToken masks Telegram bot tokens embedded in URLs or error messages.
func RedactToken(msg string) string {
	if msg == "" {
		return ""
	}
	return tokenRe.ReplaceAllString(msg, "bot<redacted>")
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// classifyError maps a failed send to a short, low-cardinality code for logs.
func classifyError(err error) string {
	if err == nil {
		return ""
	}
	var (
		netErr   net.Error
		dnsErr   *net.DNSError
		opErr    *net.OpError
		alertErr tls.AlertError
	)
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return codeTimeout
	case errors.Is(err, context.DeadlineExceeded):
		return codeTimeout
	case errors.Is(err, context.Canceled):
		return codeCancelled
	case errors.As(err, &dnsErr):
		return codeDNS
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return codeDial
	case errors.As(err, &alertErr):
		return codeTLS
	}

	switch status := httpStatusFromError(err); {
	case status == http.StatusTooManyRequests:
		return codeRateLimited
	case status >= 500:
		return codeHTTP5xx
	case status >= 400:
		return codeHTTP4xx
	}
	return codeUnknown
}

func httpStatusFromError(err error) int {
	var (
		apiErr   *tele.Error
		floodErr tele.FloodError
		groupErr tele.GroupError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr.Code
	case errors.As(err, &floodErr):
		return http.StatusTooManyRequests
	case errors.As(err, &groupErr):
		return http.StatusBadRequest
	}

	// telebot formats unknown API errors as "telegram: <description> (<code>)"
	msg := strings.TrimSpace(err.Error())
	if !strings.HasSuffix(msg, ")") {
		return 0
	}
	open := strings.LastIndex(msg, "(")
	if open < 0 {
		return 0
	}
	code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : len(msg)-1]))
	if convErr != nil {
		return 0
	}
	return code
}
