package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	tele "gopkg.in/telebot.v4"
)

const messagesKey = "messages"

var (
	updatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tg_updates_total",
		Help: "Updates that reached a handler",
	})
	repliesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tg_replies_total",
		Help: "Messages sent in reply to an update",
	})
)

// replyCounter wraps tele.Context to count replies sent by a handler.
type replyCounter struct{ tele.Context }

func (m replyCounter) count(err error) error {
	if err != nil {
		return err
	}
	n, _ := m.Get(messagesKey).(int)
	m.Set(messagesKey, n+1)
	repliesTotal.Inc()
	return nil
}

// Send proxies tele.Context.Send and counts the reply.
func (m replyCounter) Send(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Send(what, opts...))
}

// Reply proxies tele.Context.Reply and counts the reply.
func (m replyCounter) Reply(what interface{}, opts ...interface{}) error {
	return m.count(m.Context.Reply(what, opts...))
}

// MessageMetricsMiddleware counts handled updates and the replies each
// handler sends. The per-update count feeds the handler summary log.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		updatesTotal.Inc()
		c.Set(messagesKey, 0)
		return next(replyCounter{Context: c})
	}
}

// RepliesSent returns the number of replies counted for the update.
func RepliesSent(c tele.Context) int {
	n, _ := c.Get(messagesKey).(int)
	return n
}
