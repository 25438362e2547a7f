// Package pgstore implements store.Store on PostgreSQL using sqlx.
//
// The schema lives in the migrations directory and is applied by
// core/database.RunMigrations before the store is used. Pool membership is a
// row per (interest, user_id); enrolled_seq keeps the enrollment order.
// There is no sharding on this backend, so no shard key is added to queries.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/store"
)

// Store is the PostgreSQL backend.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an opened connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type profileRow struct {
	UserID   int64  `db:"user_id"`
	Interest string `db:"interest"`
	Username string `db:"username"`
	Status   string `db:"status"`
}

type memberRow struct {
	Interest string `db:"interest"`
	UserID   int64  `db:"user_id"`
}

// GetState returns the stored state for a user.
func (s *Store) GetState(ctx context.Context, userID int64) (store.State, bool, error) {
	var st string
	err := s.db.GetContext(ctx, &st, `SELECT state FROM user_states WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.StateIdle, false, nil
	}
	if err != nil {
		return store.StateIdle, false, apperr.Transient("pg.get_state", err)
	}
	return store.State(st), true, nil
}

// SetState upserts the state record of a user.
func (s *Store) SetState(ctx context.Context, userID int64, st store.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_states (user_id, state) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state`,
		userID, string(st),
	)
	return apperr.Transient("pg.set_state", err)
}

// ClearState deletes the state record of a user.
func (s *Store) ClearState(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = $1`, userID)
	return apperr.Transient("pg.clear_state", err)
}

// UpsertProfile creates or overwrites a profile.
func (s *Store) UpsertProfile(ctx context.Context, p store.Profile) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO users (user_id, interest, username, status)
		VALUES (:user_id, :interest, :username, :status)
		ON CONFLICT (user_id) DO UPDATE SET
			interest = EXCLUDED.interest,
			username = EXCLUDED.username,
			status = EXCLUDED.status,
			updated_at = now()`,
		profileRow{UserID: p.UserID, Interest: p.Interest, Username: p.Handle, Status: string(p.Status)},
	)
	return apperr.Transient("pg.upsert_profile", err)
}

// GetProfiles returns the known profiles in request order.
func (s *Store) GetProfiles(ctx context.Context, userIDs []int64) ([]store.Profile, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var rows []profileRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, interest, username, status FROM users WHERE user_id = ANY($1)`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, apperr.Transient("pg.get_profiles", err)
	}
	found := make(map[int64]profileRow, len(rows))
	for _, r := range rows {
		found[r.UserID] = r
	}
	out := make([]store.Profile, 0, len(rows))
	for _, id := range userIDs {
		r, ok := found[id]
		if !ok {
			continue
		}
		out = append(out, store.Profile{
			UserID:   r.UserID,
			Interest: r.Interest,
			Handle:   r.Username,
			Status:   store.Status(r.Status),
		})
	}
	return out, nil
}

// MarkMatched flips the status of the given profiles to matched.
func (s *Store) MarkMatched(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET status = $1, updated_at = now() WHERE user_id = ANY($2)`,
		string(store.StatusMatched), pq.Array(userIDs),
	)
	return apperr.Transient("pg.mark_matched", err)
}

// AddToPool creates the pool if needed and appends the member; an existing
// member keeps its original enrollment position.
func (s *Store) AddToPool(ctx context.Context, interest string, userID int64) error {
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO match_pools (interest) VALUES ($1) ON CONFLICT (interest) DO NOTHING`,
			interest,
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO match_pool_members (interest, user_id) VALUES ($1, $2)
			 ON CONFLICT (interest, user_id) DO NOTHING`,
			interest, userID,
		)
		return err
	})
	return apperr.Transient("pg.add_to_pool", err)
}

// RemoveFromPool deletes the members and commits only if every one of them
// was deleted by this transaction. A concurrent remover blocks on the row
// locks and then sees fewer rows, so it rolls back.
func (s *Store) RemoveFromPool(ctx context.Context, interest string, userIDs []int64) (bool, error) {
	ids := uniqueIDs(userIDs)
	if len(ids) == 0 {
		return false, nil
	}
	errIncomplete := errors.New("pool members already removed")
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM match_pool_members WHERE interest = $1 AND user_id = ANY($2)`,
			interest, pq.Array(ids),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return errIncomplete
		}
		return nil
	})
	if errors.Is(err, errIncomplete) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Transient("pg.remove_from_pool", err)
	}
	return true, nil
}

// FindMatchablePools returns pools with at least two members, members in
// enrollment order.
func (s *Store) FindMatchablePools(ctx context.Context) ([]store.Pool, error) {
	var rows []memberRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.interest, m.user_id
		FROM match_pool_members m
		WHERE m.interest IN (
			SELECT interest FROM match_pool_members
			GROUP BY interest HAVING COUNT(*) >= 2
		)
		ORDER BY m.interest, m.enrolled_seq`)
	if err != nil {
		return nil, apperr.Transient("pg.find_pools", err)
	}
	var out []store.Pool
	for _, r := range rows {
		if n := len(out); n == 0 || out[n-1].Interest != r.Interest {
			out = append(out, store.Pool{Interest: r.Interest})
		}
		last := &out[len(out)-1]
		last.Members = append(last.Members, r.UserID)
	}
	return out, nil
}

// IncrementCounter increments key in a single upsert and returns the new value.
func (s *Store) IncrementCounter(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, `
		INSERT INTO counters (keyword, count) VALUES ($1, 1)
		ON CONFLICT (keyword) DO UPDATE SET count = counters.count + 1
		RETURNING count`, key)
	if err != nil {
		return 0, apperr.Transient("pg.increment_counter", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return apperr.Transient("pg.ping", s.db.PingContext(ctx))
}

// Close closes the connection pool.
func (s *Store) Close(context.Context) error {
	return s.db.Close()
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
