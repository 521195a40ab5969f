package bot

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/catalog"
	"kinobot/internal/contest"
	"kinobot/internal/dispatch"
	"kinobot/internal/eventbus"
	"kinobot/internal/gate"
	"kinobot/internal/stats"
	"kinobot/internal/storage"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

type sent struct {
	To   transport.ChatTarget
	Text string
	Opt  *transport.SendOptions
}

type copied struct {
	From     transport.Channel
	Position int
	To       transport.ChatTarget
	Markup   bool
}

type answer struct {
	Text  string
	Alert bool
}

// fakeProvider records every outgoing call.
type fakeProvider struct {
	mu       sync.Mutex
	members  map[transport.Channel]map[int64]bool
	chats    map[transport.Channel]int64
	texts    []sent
	copies   []copied
	forwards []copied
	media    []transport.Media
	mediaOpt []*transport.SendOptions
	edits    []string
	answers  []answer
	nextID   int
	copyErr  error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		members: map[transport.Channel]map[int64]bool{},
		chats:   map[transport.Channel]int64{},
		nextID:  100,
	}
}

func (f *fakeProvider) join(ch transport.Channel, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[ch] == nil {
		f.members[ch] = map[int64]bool{}
	}
	f.members[ch][userID] = true
}

func (f *fakeProvider) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeProvider) Stop(context.Context) error                          { return nil }

func (f *fakeProvider) Membership(_ context.Context, ch transport.Channel, userID int64) (transport.MemberStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.members[ch][userID] {
		return transport.StatusMember, nil
	}
	return transport.StatusLeft, nil
}

func (f *fakeProvider) InviteLink(_ context.Context, ch transport.Channel) (string, error) {
	if u := ch.URL(); u != "" {
		return u, nil
	}
	return "https://t.me/+invite", nil
}

func (f *fakeProvider) ResolveChat(_ context.Context, ch transport.Channel) (transport.ChatTarget, error) {
	if id, ok := ch.ChatID(); ok {
		return transport.ChatTarget{ChatID: id}, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.chats[ch]
	if !ok {
		return transport.ChatTarget{}, transport.Permanent(transport.ErrNotFound, context.Canceled)
	}
	return transport.ChatTarget{ChatID: id}, nil
}

func (f *fakeProvider) ref(to transport.ChatTarget) transport.MessageRef {
	f.nextID++
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}
}

func (f *fakeProvider) CopyMessage(_ context.Context, from transport.Channel, position int, to transport.ChatTarget, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.copyErr != nil {
		return transport.MessageRef{}, f.copyErr
	}
	f.copies = append(f.copies, copied{From: from, Position: position, To: to, Markup: opt != nil && opt.ReplyMarkupAdapter != nil})
	return f.ref(to), nil
}

func (f *fakeProvider) ForwardMessage(_ context.Context, from transport.Channel, position int, to transport.ChatTarget) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwards = append(f.forwards, copied{From: from, Position: position, To: to})
	return f.ref(to), nil
}

func (f *fakeProvider) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sent{To: to, Text: text, Opt: opt})
	return f.ref(to), nil
}

func (f *fakeProvider) SendMedia(_ context.Context, to transport.ChatTarget, m transport.Media, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, m)
	f.mediaOpt = append(f.mediaOpt, opt)
	return f.ref(to), nil
}

func (f *fakeProvider) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeProvider) AnswerCallback(_ context.Context, _ string, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{Text: text, Alert: alert})
	return nil
}

func (f *fakeProvider) lastText(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		t.Fatalf("no text sent")
	}
	return f.texts[len(f.texts)-1].Text
}

func (f *fakeProvider) textsTo(chatID int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.texts {
		if s.To.ChatID == chatID {
			out = append(out, s.Text)
		}
	}
	return out
}

const (
	ownerID = int64(1)
	userA   = int64(1001)
	userB   = int64(1002)
	userC   = int64(1003)
)

type harness struct {
	bot *Bot
	p   *fakeProvider
	st  storage.Store
	ctx context.Context
}

func newHarness(t *testing.T, gated ...transport.Channel) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	p := newFakeProvider()
	log := logx.Nop()
	svc := dispatch.NewService(dispatch.ServiceConfig{Workers: 1, QueueSize: 4},
		dispatch.NewDispatcher(dispatch.Config{RatePerSec: -1, BatchPause: -1}, log), log)
	svc.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		svc.Stop(ctx)
	})

	b := New(Deps{
		Provider: p,
		Store:    st,
		Registry: catalog.NewRegistry(st, log),
		Stats:    stats.New(st),
		Gate:     gate.New(p, gated, time.Second, log),
		Contest:  contest.NewEngine(st, 3, log),
		Dispatch: svc,
		Admins:   access.NewAdmins(st, []int64{ownerID}, log),
		Bus:      eventbus.New(),
	}, Settings{
		BotUsername:      "kino_bot",
		ServerChannel:    "@server",
		PublishChannels:  []transport.Channel{"@main"},
		AnnounceChannels: []transport.Channel{"@main"},
	}, 1, log)
	p.chats["@server"] = -100
	p.chats["@main"] = -200
	return &harness{bot: b, p: p, st: st, ctx: context.Background()}
}

func (h *harness) request(from int64, name string) *Request {
	return h.bot.router.newRequest(transport.Update{}, transport.UserTarget(from), from, name)
}

// command runs a registered command through the middleware chain.
func (h *harness) command(t *testing.T, from int64, line string) {
	t.Helper()
	word, rest, ok := splitCommand(line)
	if !ok {
		t.Fatalf("not a command: %q", line)
	}
	cmd, found := h.bot.router.cmds[word]
	if !found {
		t.Fatalf("unknown command %q", word)
	}
	req := h.request(from, cmd.Name)
	req.Text, req.RawArgs, req.Args = line, rest, strings.Fields(rest)
	if err := h.bot.router.wrap(cmd.Handle, cmd.Admin, 0)(h.ctx, req); err != nil {
		t.Fatalf("%s: %v", line, err)
	}
}

func (h *harness) message(t *testing.T, from int64, text string, media *transport.Media) {
	t.Helper()
	req := h.request(from, "message")
	req.Text, req.Media = text, media
	if err := h.bot.router.wrap(h.bot.onMessage, false, 0)(h.ctx, req); err != nil {
		t.Fatalf("message %q: %v", text, err)
	}
}

func (h *harness) callback(t *testing.T, from int64, scope, action, payload string) {
	t.Helper()
	route, ok := h.bot.router.cbs[scope][action]
	if !ok {
		route, ok = h.bot.router.cbs[scope]["*"]
		if payload != "" {
			payload = action + ":" + payload
		} else {
			payload = action
		}
	}
	if !ok {
		t.Fatalf("no callback route %s:%s", scope, action)
	}
	req := h.request(from, "cb:"+scope+":"+action)
	req.CallbackID, req.Payload, req.MessageID = "cb1", payload, 7
	if err := h.bot.router.wrap(route.Handle, route.Admin, 0)(h.ctx, req); err != nil {
		t.Fatalf("callback %s:%s: %v", scope, action, err)
	}
}

func (h *harness) register(t *testing.T, code string, base, parts int) {
	t.Helper()
	err := h.bot.d.Registry.Upsert(h.ctx, catalog.Entry{Code: code, Channel: "@server", BasePosition: base, PartCount: parts, Title: "Title " + code})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
}
