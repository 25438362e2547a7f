package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/interestbot/core/logger"
	tghelpers "github.com/m3rciful/interestbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of processed update IDs to avoid double logging.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	// GC old entries
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware builds the update's logging context and logs a sampled
// receipt line once per update id.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		c.Set("update_start", time.Now())
		ctx := tghelpers.BuildContext(c)
		updateID, chatID, userID := tghelpers.UpdateIDs(c)

		if logger.ShouldSampleDebug() && !alreadyLogged(updateID) {
			attrs := []slog.Attr{slog.String("status", "ok")}
			if chat := c.Chat(); chat != nil && chatID != 0 {
				attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
			}
			if user := c.Sender(); user != nil && userID != 0 && user.Username == "" {
				attrs = append(attrs, slog.Bool("no_username", true))
			}
			if c.Message() != nil {
				if t := c.Text(); t != "" {
					attrs = append(attrs, slog.Int("text_len", len([]rune(t))))
				}
			}
			logger.Debug(ctx, "tg", "update.received", attrs...)
		}

		return next(c)
	}
}
