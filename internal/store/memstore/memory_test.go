package memstore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/interestbot/internal/store"
)

func TestStateLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	st, found, err := s.GetState(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, store.StateIdle, st)

	require.NoError(t, s.SetState(ctx, 1, store.StateWaitingInterest))
	st, found, err = s.GetState(ctx, 1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, store.StateWaitingInterest, st)

	require.NoError(t, s.ClearState(ctx, 1))
	_, found, err = s.GetState(ctx, 1)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestProfilesKeepRequestOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertProfile(ctx, store.Profile{UserID: 1, Handle: "a", Interest: "go", Status: store.StatusAvailable}))
	require.NoError(t, s.UpsertProfile(ctx, store.Profile{UserID: 2, Handle: "b", Interest: "go", Status: store.StatusAvailable}))

	got, err := s.GetProfiles(ctx, []int64{2, 3, 1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].UserID)
	assert.Equal(t, int64(1), got[1].UserID)

	require.NoError(t, s.MarkMatched(ctx, []int64{1}))
	p, _ := s.Profile(1)
	assert.Equal(t, store.StatusMatched, p.Status)
}

func TestPoolMembership(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AddToPool(ctx, "chess", 3))
	require.NoError(t, s.AddToPool(ctx, "chess", 1))
	require.NoError(t, s.AddToPool(ctx, "chess", 3))
	require.NoError(t, s.AddToPool(ctx, "go", 9))

	pools, err := s.FindMatchablePools(ctx)
	require.NoError(t, err)
	assert.Equal(t, []store.Pool{{Interest: "chess", Members: []int64{3, 1}}}, pools)

	ok, err := s.RemoveFromPool(ctx, "chess", []int64{3, 7})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{3, 1}, s.Members("chess"))

	ok, err = s.RemoveFromPool(ctx, "chess", []int64{1, 3})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, s.Members("chess"))

	ok, err = s.RemoveFromPool(ctx, "chess", []int64{1, 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRemoveFromPoolSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.AddToPool(ctx, "chess", 1))
	require.NoError(t, s.AddToPool(ctx, "chess", 2))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.RemoveFromPool(ctx, "chess", []int64{1, 2})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestIncrementCounter(t *testing.T) {
	ctx := context.Background()
	s := New()
	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrementCounter(ctx, "go")
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
}

func TestUserMayWaitInSeveralPools(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, interest := range []string{"chess", "go"} {
		require.NoError(t, s.AddToPool(ctx, interest, 1))
		require.NoError(t, s.AddToPool(ctx, interest, 2))
	}

	pools, err := s.FindMatchablePools(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 2)
	assert.Equal(t, []int64{1, 2}, s.Members("chess"))
	assert.Equal(t, []int64{1, 2}, s.Members("go"))
}
