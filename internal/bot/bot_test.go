package bot

import (
	"strconv"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"kinobot/internal/transport"
)

func TestCodeRequestBehindGate(t *testing.T) {
	h := newHarness(t, "@required")
	h.register(t, "91", 5, 3)

	h.message(t, userA, "91", nil)
	if len(h.p.copies) != 0 {
		t.Fatalf("content copied before subscribing: %+v", h.p.copies)
	}
	if got := h.p.lastText(t); !strings.Contains(got, "Subscribe") {
		t.Fatalf("expected gate prompt, got %q", got)
	}
	if c, ok, err := h.bot.d.Stats.Read(h.ctx, "91"); err != nil || ok {
		t.Fatalf("gated request was counted: %+v ok=%v err=%v", c, ok, err)
	}

	h.p.join("@required", userA)
	h.callback(t, userA, "gate", "check", "91")
	if len(h.p.copies) != 1 {
		t.Fatalf("copies after subscribing: %d", len(h.p.copies))
	}
	cp := h.p.copies[0]
	if cp.From != "@server" || cp.Position != 4 || cp.To.ChatID != userA || !cp.Markup {
		t.Fatalf("landing copy: %+v", cp)
	}
	c, _, _ := h.bot.d.Stats.Read(h.ctx, "91")
	if c.Searched != 1 || c.Viewed != 1 {
		t.Fatalf("counters after delivery: %+v", c)
	}
}

func TestCodeRequestUnknownCode(t *testing.T) {
	h := newHarness(t)
	h.message(t, userA, "777", nil)
	if got := h.p.lastText(t); got != "❌ Code not found." {
		t.Fatalf("reply: %q", got)
	}
	c, ok, err := h.bot.d.Stats.Read(h.ctx, "777")
	if err != nil || !ok || c.Searched != 1 || c.Viewed != 0 {
		t.Fatalf("unknown code counters: %+v ok=%v err=%v", c, ok, err)
	}
}

func TestStartWithCodeDeliversLanding(t *testing.T) {
	h := newHarness(t)
	h.register(t, "12", 10, 1)
	h.command(t, userB, "/start 12")
	if len(h.p.copies) != 1 || h.p.copies[0].Position != 9 {
		t.Fatalf("copies: %+v", h.p.copies)
	}
	subs, err := h.st.ListSubscribers(h.ctx)
	if err != nil || len(subs) != 1 || subs[0] != userB {
		t.Fatalf("subscribers: %v err=%v", subs, err)
	}
}

func TestPartCallback(t *testing.T) {
	h := newHarness(t)
	h.register(t, "91", 5, 3)

	h.callback(t, userA, "part", "91", "2")
	if len(h.p.copies) != 1 || h.p.copies[0].Position != 6 {
		t.Fatalf("part copy: %+v", h.p.copies)
	}

	h.callback(t, userA, "part", "91", "4")
	if len(h.p.copies) != 1 {
		t.Fatalf("out of range part was copied")
	}
	last := h.p.answers[len(h.p.answers)-1]
	if last.Text != "❌ No such part" || !last.Alert {
		t.Fatalf("answer: %+v", last)
	}
}

func TestPartCallbackGated(t *testing.T) {
	h := newHarness(t, "@required")
	h.register(t, "91", 5, 3)
	h.callback(t, userA, "part", "91", "1")
	if len(h.p.copies) != 0 {
		t.Fatalf("gated part was copied")
	}
	if len(h.p.answers) == 0 || !h.p.answers[0].Alert {
		t.Fatalf("expected alert answer, got %+v", h.p.answers)
	}
}

func TestAdminCommandRejected(t *testing.T) {
	h := newHarness(t)
	h.command(t, userA, "/stats")
	if got := h.p.lastText(t); got != "⛔ This command is for admins only." {
		t.Fatalf("reply: %q", got)
	}
}

func TestRenameWizard(t *testing.T) {
	h := newHarness(t)
	h.register(t, "91", 5, 3)
	h.register(t, "93", 20, 1)

	h.command(t, ownerID, "/rename")
	h.message(t, ownerID, "91", nil)
	h.message(t, ownerID, "92", nil)
	h.message(t, ownerID, "-", nil)

	if got := h.p.lastText(t); got != "✅ Code and title updated." {
		t.Fatalf("reply: %q", got)
	}
	e, ok, err := h.bot.d.Registry.Get(h.ctx, "92")
	if err != nil || !ok {
		t.Fatalf("renamed entry missing: ok=%v err=%v", ok, err)
	}
	if e.Title != "Title 91" || e.BasePosition != 5 {
		t.Fatalf("renamed entry: %+v", e)
	}
	if _, ok, _ := h.bot.d.Registry.Get(h.ctx, "91"); ok {
		t.Fatalf("old code still present")
	}

	h.command(t, ownerID, "/rename")
	h.message(t, ownerID, "92", nil)
	h.message(t, ownerID, "93", nil)
	h.message(t, ownerID, "New", nil)
	if got := h.p.lastText(t); !strings.Contains(got, "already exists") {
		t.Fatalf("conflict reply: %q", got)
	}
	if _, ok := h.bot.sessions.Get(ownerID); ok {
		t.Fatalf("session left open")
	}
}

func TestDeleteConfirm(t *testing.T) {
	h := newHarness(t)
	h.register(t, "91", 5, 3)

	h.command(t, ownerID, "/del 91")
	if _, ok, _ := h.bot.d.Registry.Get(h.ctx, "91"); !ok {
		t.Fatalf("deleted before confirmation")
	}
	h.callback(t, ownerID, "del", "yes", "91")
	if _, ok, _ := h.bot.d.Registry.Get(h.ctx, "91"); ok {
		t.Fatalf("entry still present")
	}
	if n := len(h.p.edits); n == 0 || !strings.Contains(h.p.edits[n-1], "deleted") {
		t.Fatalf("edits: %v", h.p.edits)
	}
}

func TestIngestPublishesAndRegisters(t *testing.T) {
	h := newHarness(t)

	h.command(t, ownerID, "/ingest")
	h.message(t, ownerID, "", &transport.Media{Kind: transport.MediaPhoto, FileID: "ad"})
	h.message(t, ownerID, "", &transport.Media{Kind: transport.MediaVideo, FileID: "p1"})
	h.message(t, ownerID, "", &transport.Media{Kind: transport.MediaVideo, FileID: "p2"})
	h.command(t, ownerID, "/done")
	h.message(t, ownerID, "95 Naruto", nil)

	if len(h.p.media) != 3 {
		t.Fatalf("media posted: %d", len(h.p.media))
	}
	if h.p.media[1].Caption != "Naruto - part 1" {
		t.Fatalf("part caption: %q", h.p.media[1].Caption)
	}
	e, ok, err := h.bot.d.Registry.Get(h.ctx, "95")
	if err != nil || !ok {
		t.Fatalf("entry missing: ok=%v err=%v", ok, err)
	}
	if e.Channel != "@server" || e.PartCount != 2 || e.Title != "Naruto" || e.MediaRef != "ad" {
		t.Fatalf("entry: %+v", e)
	}
	if len(h.p.copies) != 1 {
		t.Fatalf("publish copies: %+v", h.p.copies)
	}
	cp := h.p.copies[0]
	if cp.To.ChatID != -200 || cp.Position != e.BasePosition-1 || !cp.Markup {
		t.Fatalf("publish copy: %+v (base %d)", cp, e.BasePosition)
	}
}

func TestDrawFlow(t *testing.T) {
	h := newHarness(t)

	h.callback(t, userA, "contest", "join", "")
	if a := h.p.answers[len(h.p.answers)-1]; a.Text != "The draw is not active!" {
		t.Fatalf("join while inactive: %+v", a)
	}

	h.command(t, ownerID, "/draw_start")
	for _, id := range []int64{userA, userB, userC} {
		h.callback(t, id, "contest", "join", "")
	}
	h.callback(t, userA, "contest", "join", "")
	if a := h.p.answers[len(h.p.answers)-1]; a.Text != "You are already taking part!" {
		t.Fatalf("duplicate join: %+v", a)
	}

	for i := 0; i < 3; i++ {
		h.command(t, ownerID, "/draw_pick")
	}
	st, err := h.bot.d.Contest.State(h.ctx)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.Active || len(st.Winners) != 3 {
		t.Fatalf("state after three picks: %+v", st)
	}
	seen := map[int64]bool{}
	for _, w := range st.Winners {
		if seen[w] {
			t.Fatalf("duplicate winner %d", w)
		}
		seen[w] = true
	}

	announced := h.p.textsTo(-200)
	if len(announced) != 2 {
		t.Fatalf("announcements: %q", announced)
	}
	if !strings.Contains(announced[1], "The draw is over!") {
		t.Fatalf("results announcement: %q", announced[1])
	}
	if len(st.Announcements) != 2 {
		t.Fatalf("announcement refs: %+v", st.Announcements)
	}

	h.command(t, ownerID, "/draw_pick")
	if got := h.p.lastText(t); got != "❗ No active draw. /draw_start first." {
		t.Fatalf("pick after finish: %q", got)
	}
}

func TestBroadcastForwardsToSubscribers(t *testing.T) {
	h := newHarness(t)
	for _, id := range []int64{userA, userB} {
		if _, err := h.st.AddSubscriber(h.ctx, id); err != nil {
			t.Fatalf("add subscriber: %v", err)
		}
	}

	h.command(t, ownerID, "/broadcast @source 42")

	deadline := time.Now().Add(3 * time.Second)
	for {
		if reports := h.p.textsTo(ownerID); len(reports) > 0 && strings.Contains(reports[len(reports)-1], "Broadcast finished") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("broadcast did not finish; owner got %q", h.p.textsTo(ownerID))
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.p.mu.Lock()
	defer h.p.mu.Unlock()
	if len(h.p.forwards) != 2 {
		t.Fatalf("forwards: %+v", h.p.forwards)
	}
	for _, f := range h.p.forwards {
		if f.From != "@source" || f.Position != 42 {
			t.Fatalf("forward: %+v", f)
		}
	}
}

func TestContactRelayAndReply(t *testing.T) {
	h := newHarness(t)

	h.command(t, userA, "/contact")
	h.message(t, userA, "hello admins", nil)
	if got := h.p.textsTo(ownerID); len(got) != 1 || !strings.Contains(got[0], "hello admins") {
		t.Fatalf("owner got %q", got)
	}
	if got := h.p.lastText(t); got != "✅ Your message was sent to the admins." {
		t.Fatalf("user reply: %q", got)
	}

	h.callback(t, ownerID, "admin", "reply", "1001")
	h.message(t, ownerID, "hi there", nil)
	got := h.p.textsTo(userA)
	if len(got) == 0 || !strings.Contains(got[len(got)-1], "hi there") {
		t.Fatalf("user got %q", got)
	}
}

func TestDrawClosesWhenCapLowered(t *testing.T) {
	h := newHarness(t)
	h.command(t, ownerID, "/draw_start")
	for _, id := range []int64{userA, userB, userC} {
		h.callback(t, id, "contest", "join", "")
	}
	h.command(t, ownerID, "/draw_pick")

	h.bot.d.Contest.SetCap(1)
	h.command(t, ownerID, "/draw_pick")

	announced := h.p.textsTo(-200)
	if len(announced) != 2 || !strings.Contains(announced[1], "The draw is over!") {
		t.Fatalf("announcements: %q", announced)
	}
	st, err := h.bot.d.Contest.State(h.ctx)
	if err != nil || st.Active || len(st.Winners) != 1 {
		t.Fatalf("state: %+v err=%v", st, err)
	}
}

func TestGatedUnknownCodeLeavesNoStats(t *testing.T) {
	h := newHarness(t, "@required")
	h.message(t, userA, "123456789", nil)
	if c, ok, err := h.bot.d.Stats.Read(h.ctx, "123456789"); err != nil || ok {
		t.Fatalf("stats row created for gated request: %+v ok=%v err=%v", c, ok, err)
	}
}

func TestListIsPublicAndSorted(t *testing.T) {
	h := newHarness(t)
	for _, code := range []string{"10", "9", "2"} {
		h.register(t, code, 5, 3)
	}

	h.command(t, userA, "/list")
	text := h.p.lastText(t)
	i2, i9, i10 := strings.Index(text, "Title 2<"), strings.Index(text, "Title 9<"), strings.Index(text, "Title 10<")
	if i2 < 0 || i2 > i9 || i9 > i10 {
		t.Fatalf("order wrong: %q", text)
	}
	if strings.Contains(text, "(3)") {
		t.Fatalf("public list shows part counts: %q", text)
	}
}

func TestListPaging(t *testing.T) {
	h := newHarness(t)
	for k := 1; k <= codesPageSize+5; k++ {
		h.register(t, strconv.Itoa(k), 5, 1)
	}

	h.command(t, userA, "/list")
	if text := h.p.lastText(t); !strings.Contains(text, "Page 1/2") || strings.Contains(text, "Title 31<") {
		t.Fatalf("first page: %q", text)
	}
	h.callback(t, userA, "list", "page", "1")
	edit := h.p.edits[len(h.p.edits)-1]
	if !strings.Contains(edit, "Page 2/2") || !strings.Contains(edit, "Title 35<") {
		t.Fatalf("second page: %q", edit)
	}
}

func TestPostWizard(t *testing.T) {
	h := newHarness(t)
	link := "https://example.com/naruto"

	h.command(t, ownerID, "/post")
	h.message(t, ownerID, "no photo", nil)
	if !strings.Contains(h.p.lastText(t), "Send a photo") {
		t.Fatalf("text accepted as photo: %q", h.p.lastText(t))
	}
	h.message(t, ownerID, "", &transport.Media{Kind: transport.MediaPhoto, FileID: "poster"})
	h.message(t, ownerID, "Naruto", nil)
	h.message(t, ownerID, "ftp://example.com/naruto", nil)
	if len(h.p.media) != 0 {
		t.Fatalf("post sent with a bad link")
	}
	h.message(t, ownerID, link, nil)

	if len(h.p.media) != 1 || h.p.media[0].FileID != "poster" || h.p.media[0].Caption != "Naruto" {
		t.Fatalf("post media: %+v", h.p.media)
	}
	rm, ok := h.p.mediaOpt[0].ReplyMarkupAdapter.(*tele.ReplyMarkup)
	if !ok || len(rm.InlineKeyboard) != 1 || rm.InlineKeyboard[0][0].URL != link {
		t.Fatalf("post markup: %+v", h.p.mediaOpt[0])
	}
	if _, pending := h.bot.sessions.Get(ownerID); pending {
		t.Fatalf("session left open")
	}
}

func TestAdminGuidePages(t *testing.T) {
	h := newHarness(t)

	h.command(t, ownerID, "/guide")
	if text := h.p.lastText(t); !strings.Contains(text, "Adding content") || !strings.Contains(text, "1/5") {
		t.Fatalf("first guide page: %q", text)
	}
	h.callback(t, ownerID, "help", "page", "3")
	if edit := h.p.edits[len(h.p.edits)-1]; !strings.Contains(edit, "Prize draws") {
		t.Fatalf("draw page: %q", edit)
	}
	h.callback(t, ownerID, "help", "page", "99")
	if edit := h.p.edits[len(h.p.edits)-1]; !strings.Contains(edit, "5/5") {
		t.Fatalf("out of range page: %q", edit)
	}

	before := len(h.p.edits)
	h.callback(t, userA, "help", "page", "1")
	if len(h.p.edits) != before {
		t.Fatalf("non-admin turned a guide page")
	}
}
