package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

const (
	DefaultRatePerSec      = 25
	DefaultBatchSize       = 25
	DefaultBatchPause      = time.Second
	DefaultMaxThrottleWait = 5 * time.Minute
	DefaultCallTimeout     = 10 * time.Second

	// fallbackThrottleWait applies when the provider throttles without a hint.
	fallbackThrottleWait = time.Second
)

// Action delivers to one recipient.
type Action func(ctx context.Context, to transport.ChatTarget) error

type Config struct {
	RatePerSec      int // <0 disables pacing
	BatchSize       int
	BatchPause      time.Duration
	MaxThrottleWait time.Duration
	CallTimeout     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec == 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	} else if c.BatchPause == 0 {
		c.BatchPause = DefaultBatchPause
	}
	if c.MaxThrottleWait <= 0 {
		c.MaxThrottleWait = DefaultMaxThrottleWait
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Result is the outcome of one batch. Permanent is a subset of Failed;
// Throttled counts throttle events, not recipients.
type Result struct {
	Total     int
	Attempted int
	Succeeded int
	Failed    int
	Permanent int
	Throttled int
	// Capped counts throttle hints longer than MaxThrottleWait; the retry
	// after a capped wait is likely to be throttled again.
	Capped    int
	Canceled  bool
	Took      time.Duration
}

type Dispatcher struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	log     logx.Logger

	// sleep waits d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewDispatcher(cfg Config, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{log: log.With(logx.Comp("dispatch")), sleep: sleepCtx}
	d.Apply(cfg)
	return d
}

// Apply swaps the configuration. Running batches keep their snapshot.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	d.mu.Lock()
	d.cfg = cfg
	d.limiter = lim
	d.mu.Unlock()
}

func (d *Dispatcher) snapshot() (Config, *rate.Limiter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.limiter
}

// Run performs action for every recipient in order and blocks until the
// batch is done or ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context, recipients []transport.ChatTarget, action Action) Result {
	return d.run(ctx, recipients, action, nil)
}

func (d *Dispatcher) run(ctx context.Context, recipients []transport.ChatTarget, action Action, progress func(Result)) (res Result) {
	cfg, lim := d.snapshot()
	start := time.Now()
	res = Result{Total: len(recipients)}
	defer func() { res.Took = time.Since(start) }()

	report := func() {
		if progress != nil {
			res.Took = time.Since(start)
			progress(res)
		}
	}

	for i, to := range recipients {
		if ctx.Err() != nil {
			res.Canceled = true
			break
		}
		if i > 0 && i%cfg.BatchSize == 0 && cfg.BatchPause > 0 {
			if err := d.sleep(ctx, cfg.BatchPause); err != nil {
				res.Canceled = true
				break
			}
		}
		if err := lim.Wait(ctx); err != nil {
			res.Canceled = true
			break
		}

		res.Attempted++
		err := d.call(ctx, cfg, action, to)
		if transport.IsThrottled(err) {
			res.Throttled++
			wait, _ := transport.RetryAfterOf(err)
			if wait <= 0 {
				wait = fallbackThrottleWait
			}
			if wait > cfg.MaxThrottleWait {
				res.Capped++
				d.log.Warn("retry-after exceeds max throttle wait",
					logx.Duration("retry_after", wait),
					logx.Duration("max_throttle_wait", cfg.MaxThrottleWait),
				)
				wait = cfg.MaxThrottleWait
			}
			d.log.Warn("dispatch throttled; pausing batch",
				logx.Int64("chat_id", to.ChatID),
				logx.Duration("wait", wait),
				logx.Int("done", res.Attempted-1),
				logx.Int("total", res.Total),
			)
			if serr := d.sleep(ctx, wait); serr != nil {
				res.Failed++
				res.Canceled = true
				break
			}
			err = d.call(ctx, cfg, action, to)
			if transport.IsThrottled(err) {
				res.Throttled++
			}
		}

		switch {
		case err == nil:
			res.Succeeded++
		case transport.IsPermanent(err):
			res.Failed++
			res.Permanent++
			d.log.Debug("dispatch recipient unreachable", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		default:
			res.Failed++
			d.log.Debug("dispatch recipient failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		}
		report()
	}
	if res.Canceled {
		report()
	}
	return res
}

func (d *Dispatcher) call(ctx context.Context, cfg Config, action Action, to transport.ChatTarget) error {
	cctx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
	defer cancel()
	return action(cctx, to)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
