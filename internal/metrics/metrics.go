// Package metrics exposes Prometheus counters for the conversation flow and
// the matching engine, plus an optional HTTP listener serving /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Transitions counts handled messages by the branch the flow took.
	Transitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interestbot_conversation_transitions_total",
		Help: "Handled messages by conversation branch and outcome kind",
	}, []string{"branch", "outcome"})

	// Enrollments counts users added to an interest pool.
	Enrollments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interestbot_enrollments_total",
		Help: "Users enrolled into an interest pool",
	})

	// MatchPairs counts pairs taken out of pools by result:
	// matched, notify_failed, contended, missing_profile, error.
	MatchPairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interestbot_match_pairs_total",
		Help: "Candidate pairs processed by the matching engine, by result",
	}, []string{"result"})

	// MatchPasses counts matching passes.
	MatchPasses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interestbot_match_passes_total",
		Help: "Matching passes executed",
	})

	// CounterIncrements counts successful /add increments.
	CounterIncrements = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interestbot_counter_increments_total",
		Help: "Keyword counter increments",
	})
)
