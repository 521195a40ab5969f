package contest

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

func newTestEngine(t *testing.T, cap int) *Engine {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kino.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewEngine(st, cap, logx.Nop(), WithRand(rand.New(rand.NewPCG(1, 2))))
}

func mustStart(t *testing.T, e *Engine) State {
	t.Helper()
	s, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestPhases(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()

	s, _ := e.State(ctx)
	if s.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %s", s.Phase())
	}
	if _, err := e.Join(ctx, 1); !errors.Is(err, ErrNotActive) {
		t.Fatalf("join while idle: %v", err)
	}
	if _, err := e.PickWinner(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("pick while idle: %v", err)
	}
	if _, err := e.Finish(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("finish while idle: %v", err)
	}

	s = mustStart(t, e)
	if s.Phase() != PhaseActive || s.Cycle != 1 {
		t.Fatalf("after start = %+v", s)
	}
	if _, err := e.Start(ctx); !errors.Is(err, ErrActive) {
		t.Fatalf("second start: %v", err)
	}

	s, err := e.Finish(ctx)
	if err != nil || s.Phase() != PhaseFinished {
		t.Fatalf("finish = %+v %v", s, err)
	}
	s = mustStart(t, e)
	if s.Cycle != 2 || s.Phase() != PhaseActive {
		t.Fatalf("restart = %+v", s)
	}
}

func TestThreeDistinctWinnersThenCap(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()
	mustStart(t, e)
	for _, id := range []int64{11, 22, 33, 44, 55} {
		if _, err := e.Join(ctx, id); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}

	seen := map[int64]bool{}
	for place := 1; place <= 3; place++ {
		p, err := e.PickWinner(ctx)
		if err != nil {
			t.Fatalf("pick %d: %v", place, err)
		}
		if p.Place != place || seen[p.Winner] {
			t.Fatalf("pick %d = %+v (seen %v)", place, p, seen)
		}
		seen[p.Winner] = true
		if p.Finished != (place == 3) {
			t.Fatalf("pick %d finished = %v", place, p.Finished)
		}
	}

	if _, err := e.PickWinner(ctx); !errors.Is(err, ErrNotActive) && !errors.Is(err, ErrCapReached) {
		t.Fatalf("fourth pick: %v", err)
	}
	s, _ := e.State(ctx)
	if s.Phase() != PhaseFinished || len(s.Winners) != 3 {
		t.Fatalf("state after cap = %+v", s)
	}
}

func TestLoweredCapClosesDraw(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()
	mustStart(t, e)
	for _, id := range []int64{11, 22, 33, 44, 55} {
		if _, err := e.Join(ctx, id); err != nil {
			t.Fatalf("join %d: %v", id, err)
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := e.PickWinner(ctx); err != nil {
			t.Fatalf("pick %d: %v", i+1, err)
		}
	}

	e.SetCap(2)
	p, err := e.PickWinner(ctx)
	if !errors.Is(err, ErrCapReached) || !p.Finished || p.Winner != 0 || len(p.Winners) != 2 {
		t.Fatalf("pick at lowered cap = %+v, %v", p, err)
	}
	s, _ := e.State(ctx)
	if s.Phase() != PhaseFinished || len(s.Winners) != 2 {
		t.Fatalf("state after lowered cap = %+v", s)
	}
	if _, err := e.PickWinner(ctx); !errors.Is(err, ErrNotActive) {
		t.Fatalf("pick after close: %v", err)
	}
}

func TestNoCandidatesLeavesWinners(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()
	mustStart(t, e)

	if _, err := e.PickWinner(ctx); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("empty pool: %v", err)
	}
	_, _ = e.Join(ctx, 7)
	p, err := e.PickWinner(ctx)
	if err != nil || p.Winner != 7 {
		t.Fatalf("pick = %+v %v", p, err)
	}
	if _, err := e.PickWinner(ctx); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("exhausted pool: %v", err)
	}
	s, _ := e.State(ctx)
	if !reflect.DeepEqual(s.Winners, []int64{7}) || !s.Active {
		t.Fatalf("state = %+v", s)
	}
}

func TestStartResetsPoolAndWinners(t *testing.T) {
	e := newTestEngine(t, 1)
	ctx := context.Background()
	mustStart(t, e)
	_, _ = e.Join(ctx, 5)
	if added, _ := e.Join(ctx, 5); added {
		t.Fatalf("repeated join reported as new")
	}
	p, _ := e.PickWinner(ctx)
	if !p.Finished {
		t.Fatalf("cap of 1 not finished: %+v", p)
	}
	_ = e.RecordAnnouncements(ctx, []storage.AnnouncementRef{{ChatID: -100, MessageID: 3}})

	s := mustStart(t, e)
	if len(s.Winners) != 0 || len(s.Announcements) != 0 {
		t.Fatalf("state not reset: %+v", s)
	}
	if ps, _ := e.Pool().List(ctx); len(ps) != 0 {
		t.Fatalf("pool not cleared: %v", ps)
	}
}

func TestConcurrentPicksRespectCap(t *testing.T) {
	e := newTestEngine(t, 3)
	ctx := context.Background()
	mustStart(t, e)
	for id := int64(1); id <= 20; id++ {
		_, _ = e.Join(ctx, id)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		finished int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := e.PickWinner(ctx)
			if err != nil {
				return
			}
			mu.Lock()
			ok++
			if p.Finished {
				finished++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()
	if ok != 3 || finished != 1 {
		t.Fatalf("successful picks = %d, finished = %d", ok, finished)
	}
	s, _ := e.State(ctx)
	seen := map[int64]bool{}
	for _, w := range s.Winners {
		if seen[w] {
			t.Fatalf("duplicate winner in %v", s.Winners)
		}
		seen[w] = true
	}
}

func TestMedal(t *testing.T) {
	for place, want := range map[int]string{1: "🥇", 2: "🥈", 3: "🥉", 4: "🏅"} {
		if got := Medal(place); got != want {
			t.Fatalf("Medal(%d) = %q", place, got)
		}
	}
}
