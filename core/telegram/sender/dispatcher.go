// Package sender runs outbound Telegram calls with retries, backoff and a
// shared rate limit. Replies to the current update go through Do so they
// keep their order; fire-and-forget sends go through Enqueue.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/m3rciful/interestbot/core/logger"
	"github.com/m3rciful/interestbot/core/telegram/netutil"
)

const component = "tg.sender"

var (
	// ErrQueueClosed is returned when enqueue is attempted after dispatcher stop.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	errNilRun = errors.New("telegram sender: nil run function")

	sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tg_sends_total",
		Help: "Outbound Telegram calls by action and result",
	}, []string{"action", "result"})
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
	// RatePerSecond caps outbound calls across all workers and Do callers.
	// Zero disables the limit.
	RatePerSecond float64
	// Burst is the limiter bucket size; defaults to 1.
	Burst int
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls with retries, either queued
// (Enqueue) or inline (Do).
type Dispatcher struct {
	opts    Options
	limiter *rate.Limiter

	mu   sync.RWMutex
	jobs chan job
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
	errs atomic.Uint64
}

// NewDispatcher starts the workers; zero options take defaults.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	if opts.RatePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst)
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				_ = d.execute(j)
			}
		}()
	}
	return d
}

func (d *Dispatcher) closed() bool {
	select {
	case <-d.stop:
		return true
	default:
		return false
	}
}

// Enqueue schedules run for asynchronous execution. run must be safe to
// call more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed() {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Do runs the call on the caller's goroutine with the same retry policy as
// queued jobs and returns the last error.
func (d *Dispatcher) Do(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errNilRun
	}
	if d.closed() {
		return ErrQueueClosed
	}
	return d.execute(job{ctx: ctx, action: action, endpoint: endpoint, run: run})
}

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close stops accepting work and waits for queued jobs to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		close(d.stop)
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) execute(j job) error {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadline, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if d.limiter != nil {
			if werr := d.limiter.Wait(deadline); werr != nil {
				err = werr
				break
			}
		}
		if err = j.run(); err == nil {
			d.logSuccess(ctx, j, attempt, start)
			return nil
		}
		if !netutil.ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := d.backoff(err, attempt)
		logger.Debug(ctx, component, "send.retry.backoff",
			j.attrs(
				slog.Int("attempt", attempt),
				slog.Duration("backoff", delay),
				slog.String("err_code", netutil.Classify(err)),
			)...,
		)
		if werr := sleep(deadline, delay); werr != nil {
			err = werr
			break
		}
	}

	d.errs.Add(1)
	kind := netutil.Classify(err)
	sendsTotal.WithLabelValues(j.action, kind).Inc()
	logger.Error(ctx, component, "send.fail",
		j.attrs(
			slog.String("err", netutil.Redact(err)),
			slog.String("err_code", kind),
			slog.Int("attempts", attempts),
			slog.Duration("duration", time.Since(start)),
		)...,
	)
	return err
}

// backoff grows linearly with the attempt; flood control answers carry
// their own wait, which wins when longer.
func (d *Dispatcher) backoff(err error, attempt int) time.Duration {
	delay := d.opts.RetryBackoff * time.Duration(attempt)
	if after := netutil.RetryAfter(err); after > delay {
		delay = after
	}
	return delay
}

func (d *Dispatcher) logSuccess(ctx context.Context, j job, attempt int, start time.Time) {
	sendsTotal.WithLabelValues(j.action, "ok").Inc()
	attrs := j.attrs(
		slog.Int("attempts", attempt),
		slog.Duration("duration", time.Since(start)),
	)
	if attempt > 1 {
		logger.Info(ctx, component, "send.retry.success", attrs...)
		return
	}
	logger.Debug(ctx, component, "send.success", attrs...)
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(extra)+2)
	attrs = append(attrs, slog.String("op", j.action))
	if j.endpoint != "" {
		attrs = append(attrs, slog.String("endpoint", j.endpoint))
	}
	return append(attrs, extra...)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
