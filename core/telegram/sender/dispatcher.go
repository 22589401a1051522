// Package sender delivers outbound Bot API calls from a small worker pool,
// so handlers return before Telegram answers.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m3rciful/issuebot/core/logger"
	"github.com/m3rciful/issuebot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options sizes the pool. Zero values pick the defaults.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds one job including its retries.
	MaxDuration time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	o.MaxRetries = max(o.MaxRetries, 0)
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = 12 * time.Second
	}
	return o
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

func (j job) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := append([]slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
	}, logger.TraceFrom(j.ctx).Attrs()...)
	return append(attrs, extra...)
}

// Dispatcher runs queued sends with retries on transient failures.
type Dispatcher struct {
	opts   Options
	jobs   chan job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
	failed atomic.Uint64
}

// NewDispatcher starts the workers.
func NewDispatcher(opts Options) *Dispatcher {
	opts = opts.withDefaults()
	d := &Dispatcher{opts: opts, jobs: make(chan job, opts.QueueSize)}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer d.wg.Done()
			for j := range d.jobs {
				d.deliver(j)
			}
		}()
	}
	return d
}

// Enqueue schedules run. A retried run is called again from the start,
// so it must skip work that already succeeded.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- job{ctx: ctx, action: action, endpoint: endpoint, run: run}:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount is the number of jobs that failed for good.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.failed.Load()
}

// Close stops accepting jobs and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(j job) {
	// The update context may already be done once the handler returned; only its values matter here.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(j.ctx), d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	logger.Debug(ctx, logger.CompSender, "send.start", j.attrs()...)

	attempt := 1
	err := j.run()
	for err != nil && attempt <= d.opts.MaxRetries {
		delay, ok := d.retryDelay(err, attempt)
		if !ok {
			break
		}
		logger.Debug(ctx, logger.CompSender, "send.retry.backoff", j.attrs(
			slog.Int("attempt", attempt),
			slog.Duration("backoff", delay),
			slog.String("cause", errorKind(err)),
		)...)
		if werr := netutil.Sleep(ctx, delay); werr != nil {
			err = werr
			break
		}
		attempt++
		err = j.run()
	}

	if err != nil {
		d.failed.Add(1)
		logger.Error(ctx, logger.CompSender, "send.fail", j.attrs(
			slog.String("status", "fail"),
			slog.String("err", redact(err)),
			slog.String("err_code", errorKind(err)),
			slog.Int("attempts", attempt),
			slog.Duration("duration", logger.Took(start)),
		)...)
		return
	}
	if attempt > 1 {
		logger.Info(ctx, logger.CompSender, "send.retry.success", j.attrs(
			slog.Int("attempts", attempt),
			slog.Duration("duration", logger.Took(start)),
		)...)
		return
	}
	logger.Debug(ctx, logger.CompSender, "send.success", j.attrs(
		slog.Duration("duration", logger.Took(start)),
	)...)
}

// retryDelay honours Telegram's retry_after on flood errors and backs off linearly on network errors.
func (d *Dispatcher) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter) * time.Second
		return wait, wait <= d.opts.MaxDuration
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

// errorKind buckets a failure for the err_code field.
func errorKind(err error) string {
	var (
		flood  tele.FloodError
		api    *tele.Error
		dns    *net.DNSError
		op     *net.OpError
		ne     net.Error
		alert  tls.AlertError
		record tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &flood):
		return "rate_limited"
	case errors.As(err, &api):
		if api.Code >= 500 {
			return "http_5xx"
		}
		return "http_4xx"
	case errors.As(err, &dns):
		if dns.IsTimeout {
			return "timeout"
		}
		return "dns"
	case errors.As(err, &ne) && ne.Timeout():
		return "timeout"
	case errors.As(err, &op) && op.Op == "dial":
		return "dial"
	case errors.As(err, &alert), errors.As(err, &record):
		return "tls"
	default:
		return "unknown"
	}
}

// redact keeps bot tokens embedded in request URLs out of the logs.
func redact(err error) string {
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
