package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/matching"
	"github.com/m3rciful/interestbot/internal/recommend"
	"github.com/m3rciful/interestbot/internal/store"
	"github.com/m3rciful/interestbot/internal/store/memstore"
)

type fakeGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

type replies struct {
	mu   sync.Mutex
	sent []string
}

func (r *replies) Reply(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *replies) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return ""
	}
	return r.sent[len(r.sent)-1]
}

type notifications struct {
	mu   sync.Mutex
	byID map[int64][]string
}

func (n *notifications) SendMessage(_ context.Context, userID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.byID == nil {
		n.byID = map[int64][]string{}
	}
	n.byID[userID] = append(n.byID[userID], text)
	return nil
}

// flakyStore fails the selected operations with a backend error.
type flakyStore struct {
	*memstore.Store
	failSet    bool
	failClear  bool
	failUpsert bool
	failAdd    bool
}

var errBackend = errors.New("connection reset by peer")

func (s *flakyStore) SetState(ctx context.Context, id int64, st store.State) error {
	if s.failSet {
		return errBackend
	}
	return s.Store.SetState(ctx, id, st)
}

func (s *flakyStore) ClearState(ctx context.Context, id int64) error {
	if s.failClear {
		return errBackend
	}
	return s.Store.ClearState(ctx, id)
}

func (s *flakyStore) UpsertProfile(ctx context.Context, p store.Profile) error {
	if s.failUpsert {
		return errBackend
	}
	return s.Store.UpsertProfile(ctx, p)
}

func (s *flakyStore) AddToPool(ctx context.Context, interest string, id int64) error {
	if s.failAdd {
		return errBackend
	}
	return s.Store.AddToPool(ctx, interest, id)
}

func newMachine(t *testing.T, st Store, gen recommend.Generator, m Matcher) *Machine {
	t.Helper()
	p, err := recommend.NewPrompt("")
	require.NoError(t, err)
	return NewMachine(st, gen, p, m)
}

func stateOf(t *testing.T, st store.States, id int64) store.State {
	t.Helper()
	s, _, err := st.GetState(context.Background(), id)
	require.NoError(t, err)
	return s
}

func TestRecommendFlow(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	gen := &fakeGenerator{reply: "1. Join a chess club"}
	m := newMachine(t, st, gen, nil)
	r := &replies{}

	out := m.Handle(ctx, Inbound{UserID: 1, Text: "  Recommend Activities "}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, store.StateWaitingInterest, out.Next)
	assert.Equal(t, ReplyAskInterest, r.last())
	assert.Equal(t, store.StateWaitingInterest, stateOf(t, st, 1))

	out = m.Handle(ctx, Inbound{UserID: 1, Text: "Chess"}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, BranchRecommendation, out.Branch)
	assert.Equal(t, RecommendHeader+"1. Join a chess club", r.last())
	assert.Equal(t, store.StateIdle, stateOf(t, st, 1))
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "chess")
}

func TestCommandsWinOverStoredState(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	gen := &fakeGenerator{reply: "ok"}
	m := newMachine(t, st, gen, nil)
	r := &replies{}

	require.NoError(t, st.SetState(ctx, 7, store.StateWaitingInterest))
	out := m.Handle(ctx, Inbound{UserID: 7, Handle: "alice", Text: "find partners"}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, store.StateWaitingInterest, out.Prev)
	assert.Equal(t, store.StateWaitingMatchInterest, stateOf(t, st, 7))

	out = m.Handle(ctx, Inbound{UserID: 7, Text: "RECOMMEND ACTIVITIES"}, r)
	assert.Equal(t, BranchRecommendCommand, out.Branch)
	assert.Equal(t, store.StateWaitingInterest, stateOf(t, st, 7))
	assert.Empty(t, gen.prompts)
}

func TestFindPartnersRequiresHandle(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	m := newMachine(t, st, &fakeGenerator{}, nil)
	r := &replies{}

	out := m.Handle(ctx, Inbound{UserID: 3, Text: "find partners"}, r)
	assert.Equal(t, KindValidation, out.Kind)
	assert.Equal(t, ReplyNeedHandle, r.last())
	_, ok := apperr.AsValidation(out.Err)
	assert.True(t, ok)

	_, found, err := st.GetState(ctx, 3)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestIdleTextIsForwardedVerbatim(t *testing.T) {
	st := memstore.New()
	gen := &fakeGenerator{reply: "Hi there"}
	m := newMachine(t, st, gen, nil)
	r := &replies{}

	out := m.Handle(context.Background(), Inbound{UserID: 5, Text: " What's Up? "}, r)
	assert.Equal(t, BranchChat, out.Branch)
	assert.Equal(t, []string{"What's Up?"}, gen.prompts)
	assert.Equal(t, "Hi there", r.last())
}

func TestEmptyInputIsIgnored(t *testing.T) {
	gen := &fakeGenerator{reply: "x"}
	m := newMachine(t, memstore.New(), gen, nil)
	r := &replies{}

	out := m.Handle(context.Background(), Inbound{UserID: 1, Text: "   "}, r)
	assert.Equal(t, KindIgnored, out.Kind)
	assert.Empty(t, r.sent)
	assert.Empty(t, gen.prompts)
}

func TestGenerationFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	gen := &fakeGenerator{err: apperr.Transient("generation", errBackend)}
	m := newMachine(t, st, gen, nil)
	r := &replies{}

	require.NoError(t, st.SetState(ctx, 1, store.StateWaitingInterest))
	out := m.Handle(ctx, Inbound{UserID: 1, Text: "chess"}, r)
	assert.Equal(t, KindTransient, out.Kind)
	assert.True(t, apperr.IsTransient(out.Err))
	assert.Equal(t, ReplyUnavailable, r.last())
	assert.Equal(t, store.StateWaitingInterest, stateOf(t, st, 1))

	gen.err = nil
	gen.reply = "try it"
	out = m.Handle(ctx, Inbound{UserID: 1, Text: "chess"}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, store.StateIdle, stateOf(t, st, 1))
}

func TestStoreFailureOnCommand(t *testing.T) {
	st := &flakyStore{Store: memstore.New(), failSet: true}
	m := newMachine(t, st, &fakeGenerator{}, nil)
	r := &replies{}

	out := m.Handle(context.Background(), Inbound{UserID: 1, Text: "recommend activities"}, r)
	assert.Equal(t, KindTransient, out.Kind)
	assert.Equal(t, store.StateIdle, out.Next)
	assert.Equal(t, ReplyUnavailable, r.last())
}

func TestEnrollmentFailureLeavesUserWaiting(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memstore.New(), failAdd: true}
	m := newMachine(t, st, &fakeGenerator{}, nil)
	r := &replies{}

	require.NoError(t, st.Store.SetState(ctx, 1, store.StateWaitingMatchInterest))
	out := m.Handle(ctx, Inbound{UserID: 1, Handle: "alice", Text: "chess"}, r)
	assert.Equal(t, KindTransient, out.Kind)
	assert.Equal(t, store.StateWaitingMatchInterest, stateOf(t, st, 1))
	assert.Nil(t, st.Members("chess"))

	st.failAdd = false
	out = m.Handle(ctx, Inbound{UserID: 1, Handle: "alice", Text: "chess"}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, []int64{1}, st.Members("chess"))
}

func TestClearStateFailureStillReplies(t *testing.T) {
	ctx := context.Background()
	st := &flakyStore{Store: memstore.New(), failClear: true}
	m := newMachine(t, st, &fakeGenerator{reply: "ideas"}, nil)
	r := &replies{}

	require.NoError(t, st.Store.SetState(ctx, 1, store.StateWaitingInterest))
	out := m.Handle(ctx, Inbound{UserID: 1, Text: "chess"}, r)
	assert.Equal(t, KindOK, out.Kind)
	assert.Equal(t, store.StateWaitingInterest, out.Next)
	assert.Equal(t, RecommendHeader+"ideas", r.last())
}

func TestEnrollmentNormalizesInterest(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	m := newMachine(t, st, &fakeGenerator{}, nil)
	r := &replies{}

	m.Handle(ctx, Inbound{UserID: 1, Handle: "alice", Text: "find partners"}, r)
	out := m.Handle(ctx, Inbound{UserID: 1, Handle: "alice", Text: "  Chess "}, r)
	require.Equal(t, KindOK, out.Kind)
	assert.Equal(t, ReplyEnrolled, r.last())

	p, ok := st.Profile(1)
	require.True(t, ok)
	assert.Equal(t, store.Profile{UserID: 1, Interest: "chess", Handle: "alice", Status: store.StatusAvailable}, p)
	assert.Equal(t, []int64{1}, st.Members("chess"))
	assert.Equal(t, store.StateIdle, stateOf(t, st, 1))
}

func TestTwoUsersAreMatchedAfterEnrollment(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	n := &notifications{}
	m := newMachine(t, st, &fakeGenerator{}, matching.NewEngine(st, n))

	alice := &replies{}
	bob := &replies{}
	m.Handle(ctx, Inbound{UserID: 100, Handle: "alice", Text: "find partners"}, alice)
	m.Handle(ctx, Inbound{UserID: 100, Handle: "alice", Text: "chess"}, alice)
	assert.Empty(t, n.byID)

	m.Handle(ctx, Inbound{UserID: 200, Handle: "bob", Text: "Find Partners"}, bob)
	m.Handle(ctx, Inbound{UserID: 200, Handle: "bob", Text: "chess"}, bob)

	assert.Equal(t, []string{matching.MatchMessage("chess", "bob")}, n.byID[100])
	assert.Equal(t, []string{matching.MatchMessage("chess", "alice")}, n.byID[200])
	assert.Equal(t, ReplyEnrolled, bob.last())
	assert.Empty(t, st.Members("chess"))

	for _, id := range []int64{100, 200} {
		p, ok := st.Profile(id)
		require.True(t, ok)
		assert.Equal(t, store.StatusMatched, p.Status)
	}
}

func TestReplyPrecedesMatchNotification(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
	}
	notifier := notifierFunc(func(_ context.Context, id int64, _ string) error {
		if id == 2 {
			record("notify")
		}
		return nil
	})
	m := newMachine(t, st, &fakeGenerator{}, matching.NewEngine(st, notifier))

	m.Handle(ctx, Inbound{UserID: 1, Handle: "a", Text: "find partners"}, &replies{})
	m.Handle(ctx, Inbound{UserID: 1, Handle: "a", Text: "go"}, &replies{})
	m.Handle(ctx, Inbound{UserID: 2, Handle: "b", Text: "find partners"}, &replies{})
	m.Handle(ctx, Inbound{UserID: 2, Handle: "b", Text: "go"}, ReplierFunc(func(_ context.Context, text string) error {
		if strings.HasPrefix(text, "🔍") {
			record("reply")
		}
		return nil
	}))

	assert.Equal(t, []string{"reply", "notify"}, order)
}

type notifierFunc func(ctx context.Context, userID int64, text string) error

func (f notifierFunc) SendMessage(ctx context.Context, userID int64, text string) error {
	return f(ctx, userID, text)
}
