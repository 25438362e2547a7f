package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var allowedLevels = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

// status is free-form; these spellings are folded onto the canonical one.
var statusAliases = map[string]string{
	"error":     "fail",
	"failed":    "fail",
	"skipped":   "skip",
	"canceled":  "cancelled",
	"throttled": "rate_limited",
}

// outcome is a closed set: handler results, conversation outcome kinds and
// matching pair results. Unknown values are dropped from the record.
var allowedOutcome = map[string]struct{}{
	"ok":              {},
	"fail":            {},
	"cancelled":       {},
	"rate_limited":    {},
	"validation":      {},
	"transient":       {},
	"ignored":         {},
	"matched":         {},
	"notify_failed":   {},
	"contended":       {},
	"missing_profile": {},
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := allowedLevels[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

func normalizeStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	if mapped, ok := statusAliases[status]; ok {
		return mapped
	}
	return status
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
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"chat_type",
	"handler",
	"op",
	"branch",
	"outcome",
	"duration_ms",
	"messages",
	"state",
	"next_state",
	"interest",
	"keyword",
	"count",
	"partner_id",
	"members",
	"pools",
	"matched",
	"skipped",
	"contended",
	"failed",
	"driver",
	"db",
	"host",
	"port",
	"mode",
	"listen",
	"public_url",
	"http_code",
	"err",
	"err_code",
	"cause",
	"retryable",
	"attempts",
	"backoff_ms",
	"collapsed",
	"repeats",
}
