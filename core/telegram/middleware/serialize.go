package middleware

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// userLocks hands out one mutex per user and forgets it once nobody holds
// or waits for it.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) acquire(userID int64) *userLock {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return ul
}

func (l *userLocks) release(userID int64, ul *userLock) {
	ul.mu.Unlock()

	l.mu.Lock()
	ul.refs--
	if ul.refs == 0 {
		delete(l.locks, userID)
	}
	l.mu.Unlock()
}

// SerializePerUser runs updates of the same sender one at a time, so a read
// and write of that user's conversation state never interleave with another
// of their updates. Different users still run concurrently.
func SerializePerUser() tele.MiddlewareFunc {
	locks := &userLocks{locks: make(map[int64]*userLock)}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			user := c.Sender()
			if user == nil {
				return next(c)
			}
			ul := locks.acquire(user.ID)
			defer locks.release(user.ID, ul)
			return next(c)
		}
	}
}
