// Package bot binds the conversation flow, the keyword counter and the
// matching engine to Telegram commands and text messages.
package bot

import (
	"context"
	"fmt"
	"strings"

	tg "github.com/m3rciful/interestbot/core/telegram"
	"github.com/m3rciful/interestbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/interestbot/core/telegram/helpers"
	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/conversation"
	"github.com/m3rciful/interestbot/internal/counter"

	tele "gopkg.in/telebot.v4"
)

// HelpText lists commands and the two keyword flows.
const HelpText = "🌟 Available commands:\n" +
	"/add <keyword> - Count statistics\n" +
	"/hello <name> - Greet someone\n" +
	"/help - Show help\n\n" +
	"💡 Features:\n" +
	"1. Send \"recommend activities\" to get interest-based suggestions\n" +
	"2. Send \"find partners\" to find partners with shared interests"

// Conversation handles free text.
type Conversation interface {
	Handle(ctx context.Context, in conversation.Inbound, r conversation.Replier) conversation.Outcome
}

// Counter increments keyword counters.
type Counter interface {
	Increment(ctx context.Context, raw string) (string, int64, error)
}

// Handlers holds the Telegram handlers.
type Handlers struct {
	conv    Conversation
	counter Counter
	matcher conversation.Matcher
}

// NewHandlers constructs Handlers. matcher may be nil, which leaves /match
// unregistered.
func NewHandlers(conv Conversation, cnt Counter, matcher conversation.Matcher) *Handlers {
	return &Handlers{conv: conv, counter: cnt, matcher: matcher}
}

var _ Counter = (*counter.Service)(nil)

// Register adds the commands and the text fallback to reg.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/add", commands.Command{
		Handler:     h.Add,
		Description: "Count statistics for a keyword",
	})
	reg.RegisterCommand("/hello", commands.Command{
		Handler:     h.Hello,
		Description: "Greet someone",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     h.Help,
		Description: "Show help",
		Aliases:     []string{"start"},
	})
	if h.matcher != nil {
		reg.RegisterCommand("/match", commands.Command{
			Handler:     h.Match,
			Description: "Run a matching pass",
			AdminOnly:   true,
			Hidden:      true,
		})
	}
	reg.SetTextFallback(h.Text)
}

// Add handles /add <keyword>.
func (h *Handlers) Add(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	keyword, n, err := h.counter.Increment(ctx, payload(c))
	if err != nil {
		if v, ok := apperr.AsValidation(err); ok {
			return tghelpers.SendText(c, "❌ "+v.Message)
		}
		_ = tghelpers.SendText(c, conversation.ReplyUnavailable)
		return err
	}
	return tghelpers.SendText(c, fmt.Sprintf("✅ [%s] Count updated: %d", keyword, n))
}

// Hello handles /hello <name>.
func (h *Handlers) Hello(c tele.Context) error {
	name := strings.Join(strings.Fields(payload(c)), " ")
	if name == "" {
		name = "friend"
	}
	return tghelpers.SendText(c, fmt.Sprintf("👋 Hello, %s!", name))
}

// Help handles /help.
func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c, HelpText)
}

// Match runs a matching pass on demand and reports the result.
func (h *Handlers) Match(c tele.Context) error {
	res, err := h.matcher.RunPass(tghelpers.BuildContext(c))
	if err != nil {
		_ = tghelpers.SendText(c, conversation.ReplyUnavailable)
		return apperr.Transient("bot.match", err)
	}
	return tghelpers.SendText(c, "Matching pass: "+res.String())
}

// Text feeds a non-command message to the conversation flow. Replies are
// sent synchronously so they reach the user before any match notification
// the same message triggers.
func (h *Handlers) Text(c tele.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}
	handle, _ := UserHandle(sender)
	in := conversation.Inbound{
		UserID: sender.ID,
		Handle: handle,
		Text:   c.Text(),
	}
	reply := conversation.ReplierFunc(func(_ context.Context, text string) error {
		return tghelpers.SendTextNow(c, text)
	})

	out := h.conv.Handle(tghelpers.BuildContext(c), in, reply)
	if out.Kind == conversation.KindTransient {
		return out.Err
	}
	return nil
}

func payload(c tele.Context) string {
	if msg := c.Message(); msg != nil {
		return msg.Payload
	}
	return ""
}
