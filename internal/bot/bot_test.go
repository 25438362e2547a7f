package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tg "github.com/m3rciful/interestbot/core/telegram"
	"github.com/m3rciful/interestbot/internal/conversation"
	"github.com/m3rciful/interestbot/internal/counter"
	"github.com/m3rciful/interestbot/internal/matching"
	"github.com/m3rciful/interestbot/internal/recommend"
	"github.com/m3rciful/interestbot/internal/store/memstore"

	tele "gopkg.in/telebot.v4"
)

// fakeContext implements the parts of tele.Context the handlers touch.
type fakeContext struct {
	tele.Context

	msg  *tele.Message
	vals map[string]any
	sent []string
}

func newContext(userID int64, username, text, payload string) *fakeContext {
	return &fakeContext{
		msg: &tele.Message{
			Sender:  &tele.User{ID: userID, Username: username},
			Chat:    &tele.Chat{ID: userID, Type: tele.ChatPrivate},
			Text:    text,
			Payload: payload,
		},
		vals: map[string]any{},
	}
}

func (c *fakeContext) Message() *tele.Message { return c.msg }
func (c *fakeContext) Sender() *tele.User     { return c.msg.Sender }
func (c *fakeContext) Chat() *tele.Chat       { return c.msg.Chat }
func (c *fakeContext) Text() string           { return c.msg.Text }
func (c *fakeContext) Update() tele.Update    { return tele.Update{ID: 1, Message: c.msg} }
func (c *fakeContext) Get(key string) any     { return c.vals[key] }
func (c *fakeContext) Set(key string, v any)  { c.vals[key] = v }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	c.sent = append(c.sent, what.(string))
	return nil
}

func (c *fakeContext) last() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type fakeBot struct {
	mu   sync.Mutex
	sent map[int64][]string
	err  error
}

func (b *fakeBot) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	if b.sent == nil {
		b.sent = map[int64][]string{}
	}
	id := int64(to.(tele.ChatID))
	b.sent[id] = append(b.sent[id], what.(string))
	return &tele.Message{}, nil
}

type stubGenerator struct{ reply string }

func (g stubGenerator) Generate(context.Context, string) (string, error) { return g.reply, nil }

func newHandlers(t *testing.T, st *memstore.Store, transport *Transport) *Handlers {
	t.Helper()
	prompt, err := recommend.NewPrompt("")
	require.NoError(t, err)
	engine := matching.NewEngine(st, transport)
	machine := conversation.NewMachine(st, stubGenerator{reply: "go play"}, prompt, engine)
	return NewHandlers(machine, counter.NewService(st), engine)
}

func TestAddCommand(t *testing.T) {
	h := newHandlers(t, memstore.New(), NewTransport())

	c := newContext(1, "alice", "/add go lang", " go   lang ")
	require.NoError(t, h.Add(c))
	assert.Equal(t, "✅ [go lang] Count updated: 1", c.last())

	c = newContext(1, "alice", "/add go lang", "go lang")
	require.NoError(t, h.Add(c))
	assert.Equal(t, "✅ [go lang] Count updated: 2", c.last())

	c = newContext(1, "alice", "/add", "")
	require.NoError(t, h.Add(c))
	assert.Equal(t, "❌ Usage: /add <keyword>", c.last())
}

func TestHelloCommand(t *testing.T) {
	h := newHandlers(t, memstore.New(), NewTransport())

	c := newContext(1, "", "/hello", "")
	require.NoError(t, h.Hello(c))
	assert.Equal(t, "👋 Hello, friend!", c.last())

	c = newContext(1, "", "/hello Ada Lovelace", "Ada Lovelace")
	require.NoError(t, h.Hello(c))
	assert.Equal(t, "👋 Hello, Ada Lovelace!", c.last())
}

func TestRegisterHidesAdminCommands(t *testing.T) {
	reg := tg.NewRegistry()
	newHandlers(t, memstore.New(), NewTransport()).Register(reg)

	var visible []string
	for _, cmd := range reg.ListCommands(true) {
		visible = append(visible, cmd.Text)
	}
	assert.Equal(t, []string{"/add", "/hello", "/help"}, visible)
	_, _, ok := reg.LookupCommand("/match")
	assert.True(t, ok)
	assert.NotNil(t, reg.TextFallback())
}

func TestTextMatchesTwoUsers(t *testing.T) {
	st := memstore.New()
	bot := &fakeBot{}
	transport := NewTransport()
	transport.Bind(bot, nil)
	h := newHandlers(t, st, transport)

	for _, step := range []struct {
		id   int64
		user string
		text string
	}{
		{100, "alice", "find partners"},
		{100, "alice", "Chess"},
		{200, "bob", "find partners"},
		{200, "bob", "chess"},
	} {
		c := newContext(step.id, step.user, step.text, "")
		require.NoError(t, h.Text(c))
	}

	assert.Equal(t, []string{matching.MatchMessage("chess", "bob")}, bot.sent[100])
	assert.Equal(t, []string{matching.MatchMessage("chess", "alice")}, bot.sent[200])
}

func TestTextWithoutUsernameIsRejected(t *testing.T) {
	h := newHandlers(t, memstore.New(), NewTransport())
	c := newContext(5, "", "find partners", "")
	require.NoError(t, h.Text(c))
	assert.Equal(t, conversation.ReplyNeedHandle, c.last())
}

func TestTransportRequiresBinding(t *testing.T) {
	tr := NewTransport()
	assert.ErrorIs(t, tr.SendMessage(context.Background(), 1, "hi"), ErrNotBound)

	boom := errors.New("chat not found")
	tr.Bind(&fakeBot{err: boom}, nil)
	assert.ErrorIs(t, tr.SendMessage(context.Background(), 1, "hi"), boom)
}

func TestUserHandle(t *testing.T) {
	h, ok := UserHandle(&tele.User{Username: "@alice"})
	assert.True(t, ok)
	assert.Equal(t, "alice", h)

	_, ok = UserHandle(&tele.User{})
	assert.False(t, ok)
	_, ok = UserHandle(nil)
	assert.False(t, ok)
}
