package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		throttled bool
		blocked   bool
		notFound  bool
	}{
		{name: "blocked", err: tele.ErrBlockedByUser, blocked: true},
		{name: "deactivated wrapped", err: fmt.Errorf("send: %w", tele.ErrUserIsDeactivated), blocked: true},
		{name: "chat not found", err: tele.ErrChatNotFound, notFound: true},
		{name: "forward source missing", err: tele.ErrNotFoundToForward, notFound: true},
		{name: "429 without hint", err: &tele.Error{Code: 429, Description: "Too Many Requests"}, throttled: true},
		{name: "403 generic", err: &tele.Error{Code: 403, Description: "Forbidden: bot is not a member"}, blocked: true},
		{name: "400 copy missing", err: &tele.Error{Code: 400, Description: "Bad Request: message to copy not found"}, notFound: true},
		{name: "500", err: &tele.Error{Code: 500, Description: "Internal Server Error"}},
		{name: "network", err: errors.New("dial tcp: i/o timeout")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if transport.IsThrottled(got) != tt.throttled {
				t.Fatalf("throttled = %v", transport.IsThrottled(got))
			}
			if errors.Is(got, transport.ErrBlocked) != tt.blocked {
				t.Fatalf("blocked = %v", errors.Is(got, transport.ErrBlocked))
			}
			if errors.Is(got, transport.ErrNotFound) != tt.notFound {
				t.Fatalf("not found = %v", errors.Is(got, transport.ErrNotFound))
			}
			transient := !tt.throttled && !tt.blocked && !tt.notFound
			if transport.IsTransient(got) != transient {
				t.Fatalf("transient = %v", transport.IsTransient(got))
			}
			if !errors.Is(got, tt.err) {
				t.Fatalf("classified error lost the original")
			}
		})
	}
	if classify(nil) != nil {
		t.Fatalf("classify(nil) != nil")
	}
}

func TestClassifyThrottleWait(t *testing.T) {
	got := classify(&tele.Error{Code: 429})
	if d, ok := transport.RetryAfterOf(got); !ok || d != throttleFallback {
		t.Fatalf("wait = %v %v", d, ok)
	}
	already := transport.Throttled(errors.New("x"), 7*time.Second)
	if d, _ := transport.RetryAfterOf(classify(already)); d != 7*time.Second {
		t.Fatalf("reclassified wait = %v", d)
	}
}

func TestSplitText(t *testing.T) {
	short := "hello"
	if got := splitText(short, 10, ""); len(got) != 1 || got[0] != short {
		t.Fatalf("short = %q", got)
	}
	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitText(long, 10, "")
	if len(got) != 2 || got[0] != strings.Repeat("a", 8) || got[1] != strings.Repeat("b", 8) {
		t.Fatalf("long = %q", got)
	}
	html := "abcdef<b>xyz</b>"
	for _, c := range splitText(html, 8, "HTML") {
		if strings.Count(c, "<") != strings.Count(c, ">") {
			t.Fatalf("chunk cuts a tag: %q (all %q)", c, splitText(html, 8, "HTML"))
		}
	}
}

func TestRecipients(t *testing.T) {
	if recipient("@kino").Recipient() != "@kino" {
		t.Fatalf("channel recipient")
	}
	if userRecipient(42).Recipient() != "42" {
		t.Fatalf("user recipient")
	}
}
