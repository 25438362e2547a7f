package bot

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/interestbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Sender is the part of *tele.Bot the transport uses.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// ErrNotBound is returned by Transport before the bot has started.
var ErrNotBound = errors.New("bot: transport not bound")

type binding struct {
	bot  Sender
	disp *sender.Dispatcher
}

// Transport sends messages to users outside of an update, for match
// notifications. It is created before the bot and bound once the bot runs.
type Transport struct {
	b atomic.Pointer[binding]
}

// NewTransport returns an unbound Transport.
func NewTransport() *Transport {
	return &Transport{}
}

// Bind attaches the bot and the dispatcher used for retries. disp may be nil.
func (t *Transport) Bind(bot Sender, disp *sender.Dispatcher) {
	t.b.Store(&binding{bot: bot, disp: disp})
}

// SendMessage delivers text to the private chat of userID and waits for the
// result.
func (t *Transport) SendMessage(ctx context.Context, userID int64, text string) error {
	b := t.b.Load()
	if b == nil || b.bot == nil {
		return ErrNotBound
	}
	run := func() error {
		_, err := b.bot.Send(tele.ChatID(userID), text)
		return err
	}
	if b.disp == nil {
		return run()
	}
	return b.disp.Do(ctx, "notify.match", "sendMessage", run)
}

// UserHandle returns the public username of u without '@'.
func UserHandle(u *tele.User) (string, bool) {
	if u == nil {
		return "", false
	}
	h := strings.TrimPrefix(strings.TrimSpace(u.Username), "@")
	return h, h != ""
}
