package stats

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

func TestConcurrentRecordSearch(t *testing.T) {
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kino.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer st.Close()
	c := New(st)
	ctx := context.Background()

	if _, ok, _ := c.Read(ctx, "42"); ok {
		t.Fatalf("counter exists before first increment")
	}

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := c.RecordSearch(ctx, "42"); err != nil {
				t.Errorf("search: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := c.RecordView(ctx, "42"); err != nil {
				t.Errorf("view: %v", err)
			}
		}()
	}
	wg.Wait()

	got, ok, err := c.Read(ctx, "42")
	if err != nil || !ok {
		t.Fatalf("read: ok=%v err=%v", ok, err)
	}
	if got.Searched != n || got.Viewed != n {
		t.Fatalf("counter = %+v, want %d/%d", got, n, n)
	}
}

func TestRecordRejectsEmptyCode(t *testing.T) {
	c := New(nil)
	if err := c.RecordSearch(context.Background(), ""); err == nil {
		t.Fatalf("expected error")
	}
}
