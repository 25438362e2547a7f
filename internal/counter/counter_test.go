package counter

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/interestbot/internal/apperr"
	"github.com/m3rciful/interestbot/internal/store/memstore"
)

func TestIncrementSequential(t *testing.T) {
	svc := NewService(memstore.New())
	ctx := context.Background()

	var last int64
	for i := 1; i <= 5; i++ {
		kw, n, err := svc.Increment(ctx, "  go   lang ")
		require.NoError(t, err)
		assert.Equal(t, "go lang", kw)
		last = n
	}
	assert.EqualValues(t, 5, last)
}

func TestIncrementConcurrentNoLostUpdates(t *testing.T) {
	st := memstore.New()
	svc := NewService(st)
	ctx := context.Background()

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				_, _, err := svc.Increment(ctx, "chess")
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	n, err := st.IncrementCounter(ctx, "chess")
	require.NoError(t, err)
	assert.EqualValues(t, workers*perWorker+1, n)
}

func TestIncrementRequiresKeyword(t *testing.T) {
	_, _, err := NewService(memstore.New()).Increment(context.Background(), "   ")
	ve, ok := apperr.AsValidation(err)
	require.True(t, ok)
	assert.Equal(t, "keyword", ve.Field)
}

type brokenCounters struct{}

func (brokenCounters) IncrementCounter(context.Context, string) (int64, error) {
	return 0, errors.New("server selection timeout")
}

func TestIncrementStoreFailureIsTransient(t *testing.T) {
	_, _, err := NewService(brokenCounters{}).Increment(context.Background(), "chess")
	assert.True(t, apperr.IsTransient(err))
}
