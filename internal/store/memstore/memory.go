// Package memstore is an in-process store backend used for development runs
// and as the test double of every component built on store.Store.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/m3rciful/interestbot/internal/store"
)

type pool struct {
	members []int64
	index   map[int64]struct{}
}

// Store keeps all collections in maps guarded by a single RWMutex.
type Store struct {
	mu       sync.RWMutex
	states   map[int64]store.State
	profiles map[int64]store.Profile
	pools    map[string]*pool
	counters map[string]int64
}

var _ store.Store = (*Store)(nil)

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		states:   make(map[int64]store.State),
		profiles: make(map[int64]store.Profile),
		pools:    make(map[string]*pool),
		counters: make(map[string]int64),
	}
}

// GetState returns the stored state for a user.
func (s *Store) GetState(_ context.Context, userID int64) (store.State, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[userID]
	if !ok {
		return store.StateIdle, false, nil
	}
	return st, true, nil
}

// SetState upserts the state record of a user.
func (s *Store) SetState(_ context.Context, userID int64, st store.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[userID] = st
	return nil
}

// ClearState deletes the state record of a user.
func (s *Store) ClearState(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, userID)
	return nil
}

// UpsertProfile creates or overwrites a profile.
func (s *Store) UpsertProfile(_ context.Context, p store.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// GetProfiles returns the known profiles in request order.
func (s *Store) GetProfiles(_ context.Context, userIDs []int64) ([]store.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.Profile, 0, len(userIDs))
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// MarkMatched flips the status of existing profiles to matched.
func (s *Store) MarkMatched(_ context.Context, userIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range userIDs {
		if p, ok := s.profiles[id]; ok {
			p.Status = store.StatusMatched
			s.profiles[id] = p
		}
	}
	return nil
}

// AddToPool appends userID to the ordered member set of interest.
func (s *Store) AddToPool(_ context.Context, interest string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[interest]
	if !ok {
		p = &pool{index: make(map[int64]struct{})}
		s.pools[interest] = p
	}
	if _, seen := p.index[userID]; seen {
		return nil
	}
	p.index[userID] = struct{}{}
	p.members = append(p.members, userID)
	return nil
}

// RemoveFromPool removes userIDs only if all of them are present.
func (s *Store) RemoveFromPool(_ context.Context, interest string, userIDs []int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[interest]
	if !ok || len(userIDs) == 0 {
		return false, nil
	}
	drop := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, present := p.index[id]; !present {
			return false, nil
		}
		drop[id] = struct{}{}
	}
	kept := p.members[:0]
	for _, id := range p.members {
		if _, gone := drop[id]; gone {
			delete(p.index, id)
			continue
		}
		kept = append(kept, id)
	}
	p.members = kept
	return true, nil
}

// FindMatchablePools returns copies of pools with two or more members,
// sorted by interest for a stable scan order.
func (s *Store) FindMatchablePools(_ context.Context) ([]store.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Pool
	for interest, p := range s.pools {
		if len(p.members) < 2 {
			continue
		}
		out = append(out, store.Pool{
			Interest: interest,
			Members:  append([]int64(nil), p.members...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Interest < out[j].Interest })
	return out, nil
}

// IncrementCounter increments key and returns the new value.
func (s *Store) IncrementCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key], nil
}

// Members returns a copy of the pool members of interest; nil if the pool
// was never created.
func (s *Store) Members(interest string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[interest]
	if !ok {
		return nil
	}
	return append([]int64{}, p.members...)
}

// Profile returns the stored profile of userID.
func (s *Store) Profile(userID int64) (store.Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }
