package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	d, _ := newTestDispatcher(Config{})
	s := NewService(ServiceConfig{Workers: 1, QueueSize: 4}, d, logx.Nop())
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestServiceSubmitAndStatus(t *testing.T) {
	s := newTestService(t)
	done := make(chan JobStatus, 1)
	id, err := s.Submit("test", targets(5), func(_ context.Context, to transport.ChatTarget) error {
		if to.ChatID == 5 {
			return transport.Permanent(transport.ErrBlocked, errors.New("blocked"))
		}
		return nil
	}, func(st JobStatus) { done <- st })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case st := <-done:
		if st.ID != id || st.Result.Succeeded != 4 || st.Result.Permanent != 1 || !st.Done() || st.Running {
			t.Fatalf("final status = %+v", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("job did not finish")
	}

	st, ok := s.Status(id)
	if !ok || st.Result.Attempted != 5 {
		t.Fatalf("status = %+v ok=%v", st, ok)
	}
	if s.Cancel(id) {
		t.Fatalf("cancel of finished job reported true")
	}
	if s.Cancel("missing") {
		t.Fatalf("cancel of unknown job reported true")
	}
}

func TestServiceCancelRunningJob(t *testing.T) {
	s := newTestService(t)
	started := make(chan struct{})
	done := make(chan JobStatus, 1)
	id, err := s.Submit("slow", targets(3), func(ctx context.Context, to transport.ChatTarget) error {
		if to.ChatID == 1 {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, func(st JobStatus) { done <- st })
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-started
	if !s.Cancel(id) {
		t.Fatalf("cancel reported false")
	}
	select {
	case st := <-done:
		if !st.Result.Canceled || st.Result.Succeeded != 0 {
			t.Fatalf("status = %+v", st)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("job not canceled")
	}
}

func TestServiceRejectsWhenStopped(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	s := NewService(ServiceConfig{}, d, logx.Nop())
	if _, err := s.Submit("x", targets(1), func(context.Context, transport.ChatTarget) error { return nil }, nil); !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}

func TestPrune(t *testing.T) {
	d, _ := newTestDispatcher(Config{})
	s := NewService(ServiceConfig{StatusMax: 2, StatusTTL: time.Hour}, d, logx.Nop())
	now := time.Now()
	s.status["old"] = &JobStatus{ID: "old", DoneAt: now.Add(-2 * time.Hour)}
	s.status["a"] = &JobStatus{ID: "a", DoneAt: now.Add(-3 * time.Minute)}
	s.status["b"] = &JobStatus{ID: "b", DoneAt: now.Add(-2 * time.Minute)}
	s.status["c"] = &JobStatus{ID: "c", DoneAt: now.Add(-1 * time.Minute)}
	s.status["run"] = &JobStatus{ID: "run", Running: true}

	if n := s.Prune(now); n != 3 {
		t.Fatalf("pruned %d, want 3", n)
	}
	for _, id := range []string{"c", "run"} {
		if _, ok := s.Status(id); !ok {
			t.Fatalf("%s pruned", id)
		}
	}
}
