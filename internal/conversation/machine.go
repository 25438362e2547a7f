// Package conversation interprets a user's free-text messages according to
// the conversation state stored for that user.
//
// Two keyword commands start a flow and always win over a stored state:
// "recommend activities" asks for an interest and answers with generated
// suggestions, "find partners" asks for an interest and enrolls the user into
// that interest's match pool. Any other text completes the active flow or,
// with no flow, is forwarded to the generation backend as is.
package conversation

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/matching"
	"github.com/m3rciful/interestbot/internal/metrics"
	"github.com/m3rciful/interestbot/internal/recommend"
	"github.com/m3rciful/interestbot/internal/store"
)

const component = "conversation"

// Keyword commands, compared against normalized input.
const (
	CommandRecommend    = "recommend activities"
	CommandFindPartners = "find partners"
)

// User-facing replies.
const (
	ReplyAskInterest      = "🎯 Please tell me your interest (e.g., programming, photography):"
	ReplyAskMatchInterest = "🤝 Please enter the interest you want to match:"
	ReplyNeedHandle       = "❌ Please set a Telegram username first (Settings → Username)"
	ReplyEnrolled         = "🔍 Added to match pool. Searching for partners..."
	ReplyUnavailable      = "⚠️ Service temporarily unavailable. Please try again later"
	RecommendHeader       = "🎁 Recommended activities for you:\n\n"
)

// Inbound is one text message from a user. Handle is the user's public
// handle without the leading '@', empty when the user has none.
type Inbound struct {
	UserID int64
	Handle string
	Text   string
}

// Replier answers the user who sent the message being handled.
type Replier interface {
	Reply(ctx context.Context, text string) error
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, text string) error

// Reply calls f.
func (f ReplierFunc) Reply(ctx context.Context, text string) error { return f(ctx, text) }

// Matcher runs a matching pass.
type Matcher interface {
	RunPass(ctx context.Context) (matching.PassResult, error)
}

// Store is the subset of store.Store used by the machine.
type Store interface {
	store.States
	store.Profiles
	store.Pools
}

// Kind classifies how a message was handled.
type Kind string

const (
	KindOK         Kind = "ok"
	KindValidation Kind = "validation"
	KindTransient  Kind = "transient"
	KindIgnored    Kind = "ignored"
)

// Branch names the transition taken.
type Branch string

const (
	BranchRecommendCommand Branch = "recommend_command"
	BranchPartnersCommand  Branch = "find_partners_command"
	BranchRecommendation   Branch = "recommendation"
	BranchEnrollment       Branch = "enrollment"
	BranchChat             Branch = "chat"
	BranchEmpty            Branch = "empty"
)

// Outcome is the explicit result of handling one message.
type Outcome struct {
	Kind   Kind
	Branch Branch
	// Prev and Next are the conversation states before and after.
	Prev  store.State
	Next  store.State
	Reply string
	Err   error

	// then runs after the reply has been sent.
	then func(ctx context.Context)
}

// Machine is the conversation state machine. It holds no per-user data; the
// store is the only source of truth.
type Machine struct {
	store   Store
	gen     recommend.Generator
	prompt  *recommend.Prompt
	matcher Matcher
}

// NewMachine constructs a Machine. matcher may be nil, in which case
// enrollment does not trigger a pass.
func NewMachine(st Store, gen recommend.Generator, prompt *recommend.Prompt, matcher Matcher) *Machine {
	return &Machine{store: st, gen: gen, prompt: prompt, matcher: matcher}
}

// Normalize trims and lowercases text for command and state matching.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// Handle processes one message, sends the reply through r and returns the
// outcome. Errors never escape: they are logged and turned into replies.
func (m *Machine) Handle(ctx context.Context, in Inbound, r Replier) Outcome {
	start := time.Now()
	text := Normalize(in.Text)

	var out Outcome
	switch text {
	case "":
		out = Outcome{Kind: KindIgnored, Branch: BranchEmpty, Prev: store.StateIdle, Next: store.StateIdle}
	case CommandRecommend:
		out = m.startRecommend(ctx, in)
	case CommandFindPartners:
		out = m.startFindPartners(ctx, in)
	default:
		out = m.continueFlow(ctx, in, text)
	}

	if out.Kind == KindTransient && out.Reply == "" {
		out.Reply = ReplyUnavailable
	}
	if out.Reply != "" && r != nil {
		if err := r.Reply(ctx, out.Reply); err != nil {
			logger.Warn(ctx, component, "reply.fail",
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
	if out.then != nil {
		out.then(ctx)
	}

	m.record(ctx, in, out, start)
	return out
}

func (m *Machine) startRecommend(ctx context.Context, in Inbound) Outcome {
	out := Outcome{Branch: BranchRecommendCommand, Prev: m.peekState(ctx, in.UserID)}
	if err := m.store.SetState(ctx, in.UserID, store.StateWaitingInterest); err != nil {
		return transient(out, "set_state", err)
	}
	out.Kind = KindOK
	out.Next = store.StateWaitingInterest
	out.Reply = ReplyAskInterest
	return out
}

func (m *Machine) startFindPartners(ctx context.Context, in Inbound) Outcome {
	prev := m.peekState(ctx, in.UserID)
	out := Outcome{Branch: BranchPartnersCommand, Prev: prev}
	if strings.TrimSpace(in.Handle) == "" {
		out.Kind = KindValidation
		out.Next = prev
		out.Reply = ReplyNeedHandle
		out.Err = apperr.Validation("handle", "public username is required to find partners")
		return out
	}
	if err := m.store.SetState(ctx, in.UserID, store.StateWaitingMatchInterest); err != nil {
		return transient(out, "set_state", err)
	}
	out.Kind = KindOK
	out.Next = store.StateWaitingMatchInterest
	out.Reply = ReplyAskMatchInterest
	return out
}

func (m *Machine) continueFlow(ctx context.Context, in Inbound, text string) Outcome {
	st, _, err := m.store.GetState(ctx, in.UserID)
	if err != nil {
		return transient(Outcome{Branch: BranchChat, Prev: store.StateIdle}, "get_state", err)
	}
	switch st {
	case store.StateWaitingInterest:
		return m.recommendFor(ctx, in, text)
	case store.StateWaitingMatchInterest:
		return m.enroll(ctx, in, text)
	default:
		return m.chat(ctx, in)
	}
}

func (m *Machine) recommendFor(ctx context.Context, in Inbound, interest string) Outcome {
	out := Outcome{Branch: BranchRecommendation, Prev: store.StateWaitingInterest}
	prompt, err := m.prompt.Render(interest)
	if err != nil {
		return transient(out, "render_prompt", err)
	}
	reply, err := m.gen.Generate(ctx, prompt)
	if err != nil {
		return transient(out, "generate", err)
	}
	out.Kind = KindOK
	out.Reply = RecommendHeader + reply
	out.Next = store.StateIdle
	if err := m.store.ClearState(ctx, in.UserID); err != nil {
		logger.Error(ctx, component, "clear_state.fail",
			slog.String("state", string(out.Prev)),
			slog.String("err", err.Error()),
		)
		out.Next = out.Prev
	}
	return out
}

func (m *Machine) enroll(ctx context.Context, in Inbound, interest string) Outcome {
	out := Outcome{Branch: BranchEnrollment, Prev: store.StateWaitingMatchInterest}
	if strings.TrimSpace(in.Handle) == "" {
		out.Kind = KindValidation
		out.Next = out.Prev
		out.Reply = ReplyNeedHandle
		out.Err = apperr.Validation("handle", "public username is required to find partners")
		return out
	}

	profile := store.Profile{
		UserID:   in.UserID,
		Interest: interest,
		Handle:   in.Handle,
		Status:   store.StatusAvailable,
	}
	if err := m.store.UpsertProfile(ctx, profile); err != nil {
		return transient(out, "upsert_profile", err)
	}
	if err := m.store.AddToPool(ctx, interest, in.UserID); err != nil {
		return transient(out, "add_to_pool", err)
	}
	metrics.Enrollments.Inc()

	out.Kind = KindOK
	out.Next = store.StateIdle
	if err := m.store.ClearState(ctx, in.UserID); err != nil {
		logger.Error(ctx, component, "clear_state.fail",
			slog.String("state", string(out.Prev)),
			slog.String("err", err.Error()),
		)
		out.Next = out.Prev
	}
	logger.Info(ctx, component, "enrolled",
		slog.String("status", "ok"),
		slog.String("interest", interest),
	)
	out.Reply = ReplyEnrolled
	if m.matcher != nil {
		out.then = func(ctx context.Context) {
			_, _ = m.matcher.RunPass(ctx)
		}
	}
	return out
}

func (m *Machine) chat(ctx context.Context, in Inbound) Outcome {
	out := Outcome{Branch: BranchChat, Prev: store.StateIdle, Next: store.StateIdle}
	reply, err := m.gen.Generate(ctx, strings.TrimSpace(in.Text))
	if err != nil {
		return transient(out, "generate", err)
	}
	out.Kind = KindOK
	out.Reply = reply
	return out
}

// peekState reads the current state for logging; failures read as idle.
func (m *Machine) peekState(ctx context.Context, userID int64) store.State {
	st, _, err := m.store.GetState(ctx, userID)
	if err != nil {
		return store.StateIdle
	}
	return st
}

func transient(out Outcome, op string, err error) Outcome {
	out.Kind = KindTransient
	out.Err = apperr.Transient(component+"."+op, err)
	out.Next = out.Prev
	out.Reply = ReplyUnavailable
	return out
}

func (m *Machine) record(ctx context.Context, in Inbound, out Outcome, start time.Time) {
	metrics.Transitions.WithLabelValues(string(out.Branch), string(out.Kind)).Inc()

	attrs := []slog.Attr{
		slog.String("status", statusOf(out.Kind)),
		slog.Int64("user_id", in.UserID),
		slog.String("op", string(out.Branch)),
		slog.String("state", string(out.Prev)),
		slog.String("next_state", string(out.Next)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	}
	switch out.Kind {
	case KindTransient:
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(out.Err.Error(), 256)))
		logger.Error(ctx, component, "transition", attrs...)
	case KindValidation:
		attrs = append(attrs, slog.String("cause", out.Err.Error()))
		logger.Info(ctx, component, "transition", attrs...)
	case KindIgnored:
		logger.Debug(ctx, component, "transition", attrs...)
	default:
		logger.Info(ctx, component, "transition", attrs...)
	}
}

func statusOf(k Kind) string {
	switch k {
	case KindOK:
		return "ok"
	case KindIgnored:
		return "skip"
	default:
		return "fail"
	}
}
