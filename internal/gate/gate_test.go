package gate

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

type fakeChecker struct {
	status map[transport.Channel]transport.MemberStatus
	errs   map[transport.Channel]error
	block  map[transport.Channel]bool
	calls  atomic.Int32
}

func (f *fakeChecker) Membership(ctx context.Context, ch transport.Channel, _ int64) (transport.MemberStatus, error) {
	f.calls.Add(1)
	if f.block[ch] {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err := f.errs[ch]; err != nil {
		return "", err
	}
	return f.status[ch], nil
}

func TestUnsatisfiedStatuses(t *testing.T) {
	chs := []transport.Channel{"@a", "@b", "@c", "@d", "@e", "@f"}
	f := &fakeChecker{status: map[transport.Channel]transport.MemberStatus{
		"@a": transport.StatusMember,
		"@b": transport.StatusLeft,
		"@c": transport.StatusAdministrator,
		"@d": transport.StatusKicked,
		"@e": transport.StatusCreator,
		"@f": transport.StatusRestricted,
	}}
	g := New(f, chs, time.Second, logx.Nop())

	got := g.Unsatisfied(context.Background(), 1)
	want := []transport.Channel{"@b", "@d", "@f"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unsatisfied = %v, want %v", got, want)
	}
	if n := f.calls.Load(); n != int32(len(chs)) {
		t.Fatalf("calls = %d, want %d", n, len(chs))
	}
}

func TestUnsatisfiedFailsClosed(t *testing.T) {
	f := &fakeChecker{
		status: map[transport.Channel]transport.MemberStatus{"@ok": transport.StatusMember},
		errs:   map[transport.Channel]error{"@err": errors.New("provider down")},
		block:  map[transport.Channel]bool{"@slow": true},
	}
	g := New(f, []transport.Channel{"@slow", "@ok", "@err"}, 20*time.Millisecond, logx.Nop())

	got := g.Unsatisfied(context.Background(), 1)
	want := []transport.Channel{"@slow", "@err"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unsatisfied = %v, want %v", got, want)
	}
	if g.Satisfied(context.Background(), 1) {
		t.Fatalf("satisfied with failing lookups")
	}
}

func TestNoChannelsAlwaysSatisfied(t *testing.T) {
	f := &fakeChecker{}
	g := New(f, nil, 0, logx.Nop())
	if got := g.Unsatisfied(context.Background(), 1); len(got) != 0 {
		t.Fatalf("unsatisfied = %v", got)
	}
	if f.calls.Load() != 0 {
		t.Fatalf("provider queried with empty channel set")
	}
}

func TestNoCaching(t *testing.T) {
	f := &fakeChecker{status: map[transport.Channel]transport.MemberStatus{"@a": transport.StatusLeft}}
	g := New(f, []transport.Channel{"@a"}, time.Second, logx.Nop())
	if g.Satisfied(context.Background(), 1) {
		t.Fatalf("satisfied before joining")
	}
	f.status["@a"] = transport.StatusMember
	if !g.Satisfied(context.Background(), 1) {
		t.Fatalf("stale result after joining")
	}
}

func TestConfigureReplacesChannels(t *testing.T) {
	f := &fakeChecker{status: map[transport.Channel]transport.MemberStatus{}}
	g := New(f, []transport.Channel{"@a"}, time.Second, logx.Nop())
	g.Configure([]transport.Channel{"@b", "", "@c"}, 0)
	if got := g.Channels(); !reflect.DeepEqual(got, []transport.Channel{"@b", "@c"}) {
		t.Fatalf("channels = %v", got)
	}
}
