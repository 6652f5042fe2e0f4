package logger

import "strings"

var levelNames = map[string]string{
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
	"fatal":   "FATAL",
}

var (
	allowedStatus  = set("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	allowedCache   = set("hit", "miss", "refresh")
	allowedOutcome = set("ok", "fail", "cancelled", "rate_limited")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

func normalizeLevel(level string) string {
	if level == "" {
		return "INFO"
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// normalizeStatus lower-cases known statuses; unknown ones pass through trimmed.
func normalizeStatus(status string) string {
	trimmed := strings.TrimSpace(status)
	if lower := strings.ToLower(trimmed); lower != "" {
		if _, ok := allowedStatus[lower]; ok {
			return lower
		}
	}
	return trimmed
}

func normalizeCache(cache string) (string, bool) {
	cache = strings.ToLower(strings.TrimSpace(cache))
	_, ok := allowedCache[cache]
	return cache, ok
}

func normalizeOutcome(outcome string) (string, bool) {
	outcome = strings.ToLower(strings.TrimSpace(outcome))
	_, ok := allowedOutcome[outcome]
	return outcome, ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"run_id",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"cb_key",
	"outcome",
	"duration_ms",
	"messages",
	"kb",
	"cache",
	"away",
	"reason",
	"afk_ms",
	"announced",
	"count",
	"batches",
	"marked",
	"pruned",
	"flushed",
	"pending",
	"payload",
	"lang",
	"username",
	"mode",
	"listen",
	"public_url",
	"method",
	"path",
	"http_code",
	"driver",
	"db",
	"host",
	"err",
	"err_code",
	"cause",
	"attempts",
}
