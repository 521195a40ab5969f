package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

func newTestRegistry(t *testing.T) (*Registry, storage.Store) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "kino.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewRegistry(st, logx.Nop()), st
}

func TestRegistryRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	e := Entry{
		Code: "91", Channel: "@kino", BasePosition: 120, PartCount: 12,
		Title: "Night Train", Voice: "sub", Genres: []string{"drama"}, Status: "done", MediaRef: "file",
	}
	if err := r.Upsert(ctx, e); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	got, ok, err := r.Get(ctx, " 91 ")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	got.UpdatedAt = e.UpdatedAt
	if !reflect.DeepEqual(got, e) {
		t.Fatalf("got %+v\nwant %+v", got, e)
	}
}

func TestRegistryUpsertRejectsInvalid(t *testing.T) {
	r, _ := newTestRegistry(t)
	bad := []Entry{
		{Channel: "@kino", BasePosition: 1},
		{Code: "1 2", Channel: "@kino", BasePosition: 1},
		{Code: "1", BasePosition: 1},
		{Code: "1", Channel: "@kino", BasePosition: 1, PartCount: -1},
		{Code: strings.Repeat("9", MaxCodeLen+1), Channel: "@kino", BasePosition: 1},
	}
	for i, e := range bad {
		if err := r.Upsert(context.Background(), e); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d: err=%v, want ErrInvalid", i, err)
		}
	}
}

func TestRegistryLandingAndResolve(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Upsert(ctx, Entry{Code: "7", Channel: "@kino", BasePosition: 40, PartCount: 2})

	e, tgt, err := r.Landing(ctx, "7")
	if err != nil || tgt.Position != 39 || e.PartCount != 2 {
		t.Fatalf("landing = %+v %+v %v", e, tgt, err)
	}
	if tgt, err := r.Resolve(ctx, "7", 2); err != nil || tgt.Position != 41 {
		t.Fatalf("resolve = %+v %v", tgt, err)
	}
	if _, err := r.Resolve(ctx, "7", 3); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("resolve past end: %v", err)
	}
	if _, _, err := r.Landing(ctx, "8"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("landing unknown: %v", err)
	}
	if _, err := r.Resolve(ctx, "8", 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolve unknown: %v", err)
	}
}

func TestRegistryRenameConflictLeavesBoth(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Upsert(ctx, Entry{Code: "1", Channel: "@kino", BasePosition: 5, PartCount: 1, Title: "one"})
	_ = r.Upsert(ctx, Entry{Code: "2", Channel: "@kino", BasePosition: 9, PartCount: 1, Title: "two"})

	if err := r.Rename(ctx, "1", "2", "x"); !errors.Is(err, ErrConflict) {
		t.Fatalf("err=%v, want ErrConflict", err)
	}
	if err := r.Rename(ctx, "1", strings.Repeat("x", MaxCodeLen+1), ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("long code err=%v, want ErrInvalid", err)
	}
	one, _, _ := r.Get(ctx, "1")
	two, _, _ := r.Get(ctx, "2")
	if one.Title != "one" || two.Title != "two" {
		t.Fatalf("entries changed: %+v %+v", one, two)
	}
	if err := r.Rename(ctx, "3", "4", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
}

func TestRegistryDeleteUnknown(t *testing.T) {
	r, st := newTestRegistry(t)
	ctx := context.Background()
	_ = r.Upsert(ctx, Entry{Code: "1", Channel: "@kino", BasePosition: 5, PartCount: 1})

	ok, err := r.Delete(ctx, "2")
	if err != nil || ok {
		t.Fatalf("delete unknown = %v, %v", ok, err)
	}
	if n, _ := r.Count(ctx); n != 1 {
		t.Fatalf("count = %d", n)
	}
	if _, found, _ := st.GetStat(ctx, "1"); !found {
		t.Fatalf("unrelated counter removed")
	}
}
