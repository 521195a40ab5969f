package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}

func newTestDispatcher(cfg Config) (*Dispatcher, *sleepRecorder) {
	if cfg.RatePerSec == 0 {
		cfg.RatePerSec = -1
	}
	d := NewDispatcher(cfg, logx.Nop())
	rec := &sleepRecorder{}
	d.sleep = rec.sleep
	return d, rec
}

func targets(n int) []transport.ChatTarget {
	out := make([]transport.ChatTarget, n)
	for i := range out {
		out[i] = transport.UserTarget(int64(i + 1))
	}
	return out
}

func TestRunCountsPermanentFailures(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	calls := 0
	res := d.Run(context.Background(), targets(10), func(_ context.Context, to transport.ChatTarget) error {
		calls++
		switch to.ChatID {
		case 3:
			return transport.Permanent(transport.ErrBlocked, errors.New("bot was blocked by the user"))
		case 7:
			return transport.Permanent(transport.ErrNotFound, errors.New("chat not found"))
		}
		return nil
	})
	if calls != 10 {
		t.Fatalf("calls = %d, want 10 (no retries for permanent errors)", calls)
	}
	want := Result{Total: 10, Attempted: 10, Succeeded: 8, Failed: 2, Permanent: 2}
	res.Took = 0
	if res != want {
		t.Fatalf("result = %+v, want %+v", res, want)
	}
}

func TestRunTransientFailureNotRetried(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	calls := 0
	res := d.Run(context.Background(), targets(2), func(_ context.Context, to transport.ChatTarget) error {
		calls++
		if to.ChatID == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	if calls != 2 || res.Failed != 1 || res.Permanent != 0 || res.Succeeded != 1 {
		t.Fatalf("calls=%d result=%+v", calls, res)
	}
}

func TestRunThrottlePausesAndRetriesOnce(t *testing.T) {
	d, rec := newTestDispatcher(Config{MaxThrottleWait: 5 * time.Second})
	attempts := map[int64]int{}
	res := d.Run(context.Background(), targets(4), func(_ context.Context, to transport.ChatTarget) error {
		attempts[to.ChatID]++
		switch {
		case to.ChatID == 2 && attempts[2] == 1:
			return transport.Throttled(errors.New("too many requests"), 3*time.Second)
		case to.ChatID == 4:
			return transport.Throttled(errors.New("too many requests"), time.Hour)
		}
		return nil
	})
	if attempts[2] != 2 || attempts[4] != 2 || attempts[1] != 1 {
		t.Fatalf("attempts = %v", attempts)
	}
	if res.Succeeded != 3 || res.Failed != 1 || res.Throttled != 3 || res.Attempted != 4 || res.Capped != 1 {
		t.Fatalf("result = %+v", res)
	}
	want := []time.Duration{3 * time.Second, 5 * time.Second}
	if len(rec.waits) != len(want) || rec.waits[0] != want[0] || rec.waits[1] != want[1] {
		t.Fatalf("waits = %v, want %v", rec.waits, want)
	}
}

func TestDefaultThrottleWaitCoversLongHints(t *testing.T) {
	d, rec := newTestDispatcher(Config{})
	res := d.Run(context.Background(), targets(1), func(_ context.Context, to transport.ChatTarget) error {
		if len(rec.waits) == 0 {
			return transport.Throttled(errors.New("too many requests"), 3*time.Minute)
		}
		return nil
	})
	if res.Succeeded != 1 || res.Capped != 0 {
		t.Fatalf("result = %+v", res)
	}
	if len(rec.waits) != 1 || rec.waits[0] != 3*time.Minute {
		t.Fatalf("waits = %v, want [3m]", rec.waits)
	}
}

func TestRunBatchPause(t *testing.T) {
	d, rec := newTestDispatcher(Config{BatchSize: 25, BatchPause: 2 * time.Second})
	res := d.Run(context.Background(), targets(60), func(context.Context, transport.ChatTarget) error { return nil })
	if res.Succeeded != 60 {
		t.Fatalf("result = %+v", res)
	}
	if len(rec.waits) != 2 || rec.waits[0] != 2*time.Second {
		t.Fatalf("pauses = %v, want two of 2s", rec.waits)
	}
}

func TestRunCancellationReturnsPartialCounts(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := d.Run(ctx, targets(10), func(_ context.Context, to transport.ChatTarget) error {
		if to.ChatID == 3 {
			cancel()
		}
		return nil
	})
	if !res.Canceled || res.Attempted != 3 || res.Succeeded != 3 || res.Total != 10 {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunCallTimeout(t *testing.T) {
	d, _ := newTestDispatcher(Config{CallTimeout: 50 * time.Millisecond})
	res := d.Run(context.Background(), targets(1), func(ctx context.Context, _ transport.ChatTarget) error {
		dl, ok := ctx.Deadline()
		if !ok || time.Until(dl) > 50*time.Millisecond {
			t.Errorf("missing or wrong deadline: %v %v", dl, ok)
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if res.Failed != 1 || res.Canceled {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunEmpty(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	res := d.Run(context.Background(), nil, func(context.Context, transport.ChatTarget) error { return nil })
	if res.Total != 0 || res.Attempted != 0 || res.Canceled {
		t.Fatalf("result = %+v", res)
	}
}

func TestRunReportsElapsed(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	res := d.Run(context.Background(), targets(2), func(context.Context, transport.ChatTarget) error {
		time.Sleep(20 * time.Millisecond)
		return nil
	})
	if res.Succeeded != 2 {
		t.Fatalf("succeeded = %d", res.Succeeded)
	}
	if res.Took < 40*time.Millisecond {
		t.Fatalf("took = %s after two 20ms sends", res.Took)
	}
}
