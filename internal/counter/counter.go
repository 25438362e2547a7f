// Package counter implements the /add keyword counter.
package counter

import (
	"context"
	"log/slog"
	"strings"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/metrics"
	"github.com/m3rciful/interestbot/internal/store"
)

// Service increments keyword counters.
type Service struct {
	store store.Counters
}

// NewService constructs a Service.
func NewService(st store.Counters) *Service {
	return &Service{store: st}
}

// Normalize trims the keyword and collapses inner whitespace.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Increment bumps the counter of the normalized keyword and returns the
// keyword together with its new value.
func (s *Service) Increment(ctx context.Context, raw string) (string, int64, error) {
	keyword := Normalize(raw)
	if keyword == "" {
		return "", 0, apperr.Validation("keyword", "Usage: /add <keyword>")
	}
	n, err := s.store.IncrementCounter(ctx, keyword)
	if err != nil {
		logger.Error(ctx, "counter", "increment.fail",
			slog.String("keyword", keyword),
			slog.String("err", err.Error()),
		)
		return keyword, 0, apperr.Transient("counter.increment", err)
	}
	metrics.CounterIncrements.Inc()
	logger.Debug(ctx, "counter", "increment.ok",
		slog.String("keyword", keyword),
		slog.Int64("count", n),
	)
	return keyword, n, nil
}
