package access

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

func newTestAdmins(t *testing.T) *Admins {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kino.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewAdmins(st, []int64{1}, logx.Nop())
}

func TestOwnersAlwaysAdmin(t *testing.T) {
	a := newTestAdmins(t)
	ctx := context.Background()
	if !a.IsAdmin(ctx, 1) {
		t.Fatalf("owner not admin")
	}
	if a.IsAdmin(ctx, 2) {
		t.Fatalf("stranger is admin")
	}
	if _, err := a.Remove(ctx, 1); !errors.Is(err, ErrOwner) {
		t.Fatalf("remove owner: %v", err)
	}
}

func TestAddRemoveInvalidatesCache(t *testing.T) {
	a := newTestAdmins(t)
	ctx := context.Background()
	_ = a.IsAdmin(ctx, 5) // warm the cache

	if added, err := a.Add(ctx, 5, 1); err != nil || !added {
		t.Fatalf("add: %v %v", added, err)
	}
	if !a.IsAdmin(ctx, 5) {
		t.Fatalf("added admin not visible")
	}
	all, _ := a.All(ctx)
	if !reflect.DeepEqual(all, []int64{1, 5}) {
		t.Fatalf("all = %v", all)
	}
	if removed, _ := a.Remove(ctx, 5); !removed {
		t.Fatalf("remove reported false")
	}
	if a.IsAdmin(ctx, 5) {
		t.Fatalf("removed admin still cached")
	}
}
