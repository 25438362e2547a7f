package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	tele "gopkg.in/telebot.v4"
)

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"url timeout", &url.Error{Op: "Post", URL: "https://api.telegram.org", Err: context.DeadlineExceeded}, true},
		{"dns timeout", &net.DNSError{IsTimeout: true}, true},
		{"flood", tele.FloodError{RetryAfter: 3}, true},
		{"blocked", fmt.Errorf("send: %w", tele.ErrBlockedByUser), false},
		{"server", &tele.Error{Code: 502, Description: "Bad Gateway"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ShouldRetry(tc.err))
		})
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("notify: %w", tele.ErrBlockedByUser), "blocked"},
		{tele.ErrChatNotFound, "chat_not_found"},
		{tele.FloodError{RetryAfter: 3}, "flood"},
		{&tele.Error{Code: 502, Description: "Bad Gateway"}, "http_5xx"},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, "dial"},
		{&net.DNSError{Name: "api.telegram.org"}, "dns"},
		{context.DeadlineExceeded, "timeout"},
		{errors.New("boom"), "unknown"},
	}
	for i, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.err), "case %d", i)
	}
}

func TestRetryAfterAndRedact(t *testing.T) {
	assert.Equal(t, 3*time.Second, RetryAfter(tele.FloodError{RetryAfter: 3}))
	assert.Zero(t, RetryAfter(errors.New("boom")))

	err := errors.New(`Post "https://api.telegram.org/bot123:AbC-d_9/sendMessage": EOF`)
	assert.Equal(t, `Post "https://api.telegram.org/bot<redacted>/sendMessage": EOF`, Redact(err))
}
