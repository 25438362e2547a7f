package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"regexp"
	"time"

	tele "gopkg.in/telebot.v4"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Classify maps an outbound call error to a short label for logs and
// metrics. Recipient errors get their own labels because a match
// notification to a user who blocked the bot or never opened a chat can
// never succeed.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, tele.ErrBlockedByUser):
		return "blocked"
	case errors.Is(err, tele.ErrChatNotFound):
		return "chat_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "flood"
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return "dial"
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}
	return "unknown"
}

// RetryAfter returns the wait Telegram asked for on flood control, or 0.
func RetryAfter(err error) time.Duration {
	var flood tele.FloodError
	if errors.As(err, &flood) && flood.RetryAfter > 0 {
		return time.Duration(flood.RetryAfter) * time.Second
	}
	return 0
}

// Redact hides bot tokens that net/http errors embed in request URLs.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
