package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "kinobot/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
	to   []kit.ChatTarget
}

func (c *captureSender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, text)
	c.to = append(c.to, to)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestRenderRecordSortsFields(t *testing.T) {
	got := renderRecord([]byte(`{"level":"warn","message":"gate lookup failed","time":"x","comp":"gate","channel":"@a"}`))
	want := "[WARN] gate lookup failed\n- channel=@a\n- comp=gate"
	if got != want {
		t.Fatalf("renderRecord = %q, want %q", got, want)
	}
}

func TestRenderRecordNonJSON(t *testing.T) {
	if got := renderRecord([]byte("  plain line \n")); got != "plain line" {
		t.Fatalf("renderRecord = %q", got)
	}
}

func TestTelegramSinkRespectsMinLevel(t *testing.T) {
	snd := &captureSender{}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: false, MinLevel: "warn", RatePerSec: 100},
	}, snd)
	svc.SetTelegramTarget(-1001, 0)
	svc.Apply(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	})
	t.Cleanup(func() { _ = svc.Close() })

	log.Info("not mirrored")
	log.Warn("mirrored", Comp("test"))

	deadline := time.Now().Add(2 * time.Second)
	for snd.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	snd.mu.Lock()
	defer snd.mu.Unlock()
	if len(snd.msgs) != 1 {
		t.Fatalf("mirrored %d records, want 1: %v", len(snd.msgs), snd.msgs)
	}
	if !strings.Contains(snd.msgs[0], "mirrored") || snd.to[0].ChatID != -1001 {
		t.Fatalf("unexpected record %q to %+v", snd.msgs[0], snd.to[0])
	}
}

func TestWithKeepsParentFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(Comp("catalog"))
	child := log.With(String("code", "91"))
	child.Info("entry registered")
	log.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	if !strings.Contains(lines[0], `"code":"91"`) || !strings.Contains(lines[0], `"comp":"catalog"`) {
		t.Fatalf("child line missing fields: %s", lines[0])
	}
	if strings.Contains(lines[1], `"code"`) {
		t.Fatalf("parent line leaked child field: %s", lines[1])
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Error("dropped")
	if Nop().IsZero() {
		t.Fatalf("Nop logger should not be zero")
	}
}
