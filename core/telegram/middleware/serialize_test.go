package middleware

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestUserLocksSerializeSameUser(t *testing.T) {
	locks := &userLocks{locks: make(map[int64]*userLock)}

	var (
		active  atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ul := locks.acquire(42)
			n := active.Add(1)
			for {
				m := maxSeen.Load()
				if n <= m || maxSeen.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			locks.release(42, ul)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load())
	assert.Empty(t, locks.locks)
}

func TestUserLocksDoNotBlockOtherUsers(t *testing.T) {
	locks := &userLocks{locks: make(map[int64]*userLock)}
	held := locks.acquire(1)
	defer locks.release(1, held)

	done := make(chan struct{})
	go func() {
		ul := locks.acquire(2)
		locks.release(2, ul)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("user 2 blocked by user 1")
	}
}
