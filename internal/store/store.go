// Package store declares the persistence contract of the bot: conversation
// states, user profiles, interest match pools and keyword counters.
//
// Every backend must provide the atomic primitives relied upon by the
// matching engine: set-add on pools, and a conditional removal that succeeds
// only when all requested members are still present.
package store

import "context"

// State identifies a step of the conversation flow.
type State string

const (
	// StateIdle means there is no active flow; it is never persisted.
	StateIdle State = "idle"
	// StateWaitingInterest waits for an interest to recommend activities for.
	StateWaitingInterest State = "waiting_interest"
	// StateWaitingMatchInterest waits for an interest to enroll into matching.
	StateWaitingMatchInterest State = "waiting_match_interest"
)

// Status is the matching status of a user profile.
type Status string

const (
	// StatusAvailable marks a profile enrolled and waiting for a partner.
	StatusAvailable Status = "available"
	// StatusMatched marks a profile that was paired and notified.
	StatusMatched Status = "matched"
)

// Profile is the record written when a user completes the "find partners" flow.
type Profile struct {
	UserID   int64
	Interest string
	Handle   string
	Status   Status
}

// Pool is a matchable interest group. Members are ordered by enrollment,
// earliest first, and contain no duplicates.
type Pool struct {
	Interest string
	Members  []int64
}

// States persists the per-user conversation state.
type States interface {
	// GetState returns the stored state and whether a record exists.
	GetState(ctx context.Context, userID int64) (State, bool, error)
	SetState(ctx context.Context, userID int64, st State) error
	ClearState(ctx context.Context, userID int64) error
}

// Profiles persists user profiles.
type Profiles interface {
	UpsertProfile(ctx context.Context, p Profile) error
	// GetProfiles returns the profiles found for userIDs in the requested
	// order; missing users are omitted.
	GetProfiles(ctx context.Context, userIDs []int64) ([]Profile, error)
	MarkMatched(ctx context.Context, userIDs []int64) error
}

// Pools persists interest match pools.
type Pools interface {
	// AddToPool appends userID to the pool of interest, creating the pool on
	// first use. Adding a present member is a no-op.
	AddToPool(ctx context.Context, interest string, userID int64) error
	// RemoveFromPool removes exactly userIDs from the pool in one atomic step.
	// It reports false and changes nothing unless every id is still present,
	// so concurrent callers racing for the same members see true exactly once.
	RemoveFromPool(ctx context.Context, interest string, userIDs []int64) (bool, error)
	// FindMatchablePools returns pools holding at least two members.
	FindMatchablePools(ctx context.Context) ([]Pool, error)
}

// Counters persists keyword counters.
type Counters interface {
	// IncrementCounter atomically increments key, creating it on first use,
	// and returns the post-increment value.
	IncrementCounter(ctx context.Context, key string) (int64, error)
}

// Store aggregates all collections served by a backend.
type Store interface {
	States
	Profiles
	Pools
	Counters

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Driver names accepted by storage.driver.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)
