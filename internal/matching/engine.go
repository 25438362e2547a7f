// Package matching pairs users waiting in the same interest pool.
//
// A pass scans every pool with at least two members and walks its members in
// enrollment order, two at a time. Each pair is claimed by a conditional
// removal from the pool before anyone is notified; the removal succeeds for
// exactly one caller, so concurrent passes never notify the same pair twice.
// A pair whose notification fails stays out of the pool and keeps the
// available status.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/metrics"
	"github.com/m3rciful/interestbot/internal/store"
)

const component = "matching"

// Notifier delivers a text message to a user.
type Notifier interface {
	SendMessage(ctx context.Context, userID int64, text string) error
}

// Store is the subset of store.Store the engine works with.
type Store interface {
	store.Pools
	store.Profiles
}

// PassResult summarises one matching pass.
type PassResult struct {
	// Pools is the number of matchable pools scanned.
	Pools int
	// Matched counts pairs notified and marked matched.
	Matched int
	// Failed counts pairs removed from a pool whose notification failed.
	Failed int
	// Skipped counts pools left untouched because a profile was missing or
	// the store failed.
	Skipped int
	// Contended counts pairs already claimed by a concurrent pass.
	Contended int
}

func (r PassResult) String() string {
	return fmt.Sprintf("pools=%d matched=%d failed=%d skipped=%d contended=%d",
		r.Pools, r.Matched, r.Failed, r.Skipped, r.Contended)
}

// Engine runs matching passes.
type Engine struct {
	store    Store
	notifier Notifier
}

// NewEngine constructs an Engine.
func NewEngine(st Store, n Notifier) *Engine {
	return &Engine{store: st, notifier: n}
}

// MatchMessage is the notification sent to each member of a pair.
func MatchMessage(interest, partnerHandle string) string {
	return fmt.Sprintf("🎉 Match successful!\nShared interest: %s\nPartner username: @%s", interest, partnerHandle)
}

type pairOutcome int

const (
	pairMatched pairOutcome = iota
	pairNotifyFailed
	pairContended
	pairMissingProfile
	pairStoreError
)

// RunPass scans all matchable pools once. Only a failure to list pools is
// returned; per-pool failures are logged and counted.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	start := time.Now()
	metrics.MatchPasses.Inc()

	pools, err := e.store.FindMatchablePools(ctx)
	if err != nil {
		logger.Error(ctx, component, "pass.fail",
			slog.String("err", err.Error()),
		)
		return PassResult{}, err
	}

	res := PassResult{Pools: len(pools)}
	for _, p := range pools {
		e.runPool(ctx, p, &res)
	}

	logger.Info(ctx, component, "pass.done",
		slog.String("status", "ok"),
		slog.Int("pools", res.Pools),
		slog.Int("matched", res.Matched),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed),
		slog.Int("contended", res.Contended),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}

// runPool pairs members of one pool in enrollment order. It stops at the
// first pair it cannot complete: a missing profile or store error leaves the
// rest of the pool for a later pass, and a lost claim means another pass is
// working through the same members.
func (e *Engine) runPool(ctx context.Context, p store.Pool, res *PassResult) {
	for i := 0; i+1 < len(p.Members); i += 2 {
		switch e.matchPair(ctx, p.Interest, p.Members[i], p.Members[i+1]) {
		case pairMatched:
			res.Matched++
		case pairNotifyFailed:
			res.Failed++
		case pairContended:
			res.Contended++
			return
		case pairMissingProfile, pairStoreError:
			res.Skipped++
			return
		}
	}
}

func (e *Engine) matchPair(ctx context.Context, interest string, a, b int64) pairOutcome {
	ids := []int64{a, b}

	profiles, err := e.store.GetProfiles(ctx, ids)
	if err != nil {
		logger.Error(ctx, component, "pair.profiles.fail",
			slog.String("interest", interest),
			slog.String("err", err.Error()),
		)
		metrics.MatchPairs.WithLabelValues("error").Inc()
		return pairStoreError
	}
	if len(profiles) < 2 {
		logger.Warn(ctx, component, "pair.skip",
			slog.String("status", "skip"),
			slog.String("interest", interest),
			slog.String("cause", "missing_profile"),
			slog.Int("count", len(profiles)),
		)
		metrics.MatchPairs.WithLabelValues("missing_profile").Inc()
		return pairMissingProfile
	}
	first, second := profiles[0], profiles[1]

	claimed, err := e.store.RemoveFromPool(ctx, interest, ids)
	if err != nil {
		logger.Error(ctx, component, "pair.claim.fail",
			slog.String("interest", interest),
			slog.String("err", err.Error()),
		)
		metrics.MatchPairs.WithLabelValues("error").Inc()
		return pairStoreError
	}
	if !claimed {
		logger.Debug(ctx, component, "pair.contended",
			slog.String("status", "skip"),
			slog.String("interest", interest),
		)
		metrics.MatchPairs.WithLabelValues("contended").Inc()
		return pairContended
	}

	if errs := e.notifyPair(ctx, interest, first, second); len(errs) > 0 {
		for _, nerr := range errs {
			logger.Error(ctx, component, "pair.notify.fail",
				slog.String("status", "fail"),
				slog.String("interest", interest),
				slog.Int64("user_id", nerr.UserID),
				slog.String("err", logger.SanitizeLimit(nerr.Error(), 256)),
				slog.String("err_code", nerr.Code()),
			)
		}
		metrics.MatchPairs.WithLabelValues("notify_failed").Inc()
		return pairNotifyFailed
	}

	if err := e.store.MarkMatched(ctx, ids); err != nil {
		logger.Error(ctx, component, "pair.mark.fail",
			slog.String("interest", interest),
			slog.String("err", err.Error()),
		)
	}
	logger.Info(ctx, component, "pair.matched",
		slog.String("status", "ok"),
		slog.String("interest", interest),
		slog.Int64("user_id", first.UserID),
		slog.Int64("partner_id", second.UserID),
	)
	metrics.MatchPairs.WithLabelValues("matched").Inc()
	return pairMatched
}

// notifyPair sends both notifications concurrently and returns one error per
// user the transport could not reach.
func (e *Engine) notifyPair(ctx context.Context, interest string, first, second store.Profile) []*apperr.NotificationError {
	targets := [2]struct {
		to      store.Profile
		partner store.Profile
	}{{first, second}, {second, first}}

	var (
		g    errgroup.Group
		errs [2]error
	)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			if err := e.notifier.SendMessage(ctx, t.to.UserID, MatchMessage(interest, t.partner.Handle)); err != nil {
				errs[i] = &apperr.NotificationError{UserID: t.to.UserID, Err: err}
			}
			return errs[i]
		})
	}
	_ = g.Wait()

	var out []*apperr.NotificationError
	for _, err := range errs {
		if err != nil {
			out = append(out, err.(*apperr.NotificationError))
		}
	}
	return out
}

// Sweep runs a pass every interval until ctx is done.
func (e *Engine) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = e.RunPass(ctx)
		}
	}
}
