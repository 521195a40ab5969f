package bot

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"kinobot/internal/catalog"
	"kinobot/internal/eventbus"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

const codesPageSize = 30

// /add <code> <channel> <base> <parts> <title...>
func (b *Bot) cmdAdd(ctx context.Context, req *Request) error {
	if len(req.Args) < 5 {
		req.Reply(ctx, "Usage: /add <code> <channel> <base> <parts> <title>\nExample: /add 91 @MyKino 4 12 Naruto")
		return nil
	}
	base, err1 := strconv.Atoi(req.Args[2])
	parts, err2 := strconv.Atoi(req.Args[3])
	if err1 != nil || err2 != nil {
		req.Reply(ctx, "❗ base and parts must be numbers.")
		return nil
	}
	e := catalog.Entry{
		Code:         req.Args[0],
		Channel:      transport.NormalizeChannel(req.Args[1]),
		BasePosition: base,
		PartCount:    parts,
		Title:        strings.Join(req.Args[4:], " "),
	}
	start := time.Now()
	if err := b.d.Registry.Upsert(ctx, e); err != nil {
		if errors.Is(err, catalog.ErrInvalid) {
			req.Reply(ctx, "❗ "+err.Error())
			return nil
		}
		b.audit(ctx, req, "content.add", e.Code, 0, 1, err, start)
		return err
	}
	b.audit(ctx, req, "content.add", e.Code, 1, 0, nil, start)
	b.publish(eventbus.ContentRegistered, eventbus.ContentEvent{Code: e.Code, ActorID: req.FromID})
	_, err := req.Send(ctx, tgui.New().
		Title("✅", "Saved").
		KV("Code", e.Code).
		KV("Title", e.Title).
		KV("Channel", e.Channel.String()).
		KV("Parts", strconv.Itoa(e.PartCount)).
		HTML(b.deepLinkLine(e.Code)).
		Build())
	return err
}

func (b *Bot) deepLink(code string) string {
	u := b.cfg().BotUsername
	if u == "" {
		return ""
	}
	return "https://t.me/" + u + "?start=" + code
}

func (b *Bot) deepLinkLine(code string) tgui.H {
	if l := b.deepLink(code); l != "" {
		return tgui.H("🔗 ") + tgui.Link("Link for users", l)
	}
	return ""
}

// /del <code> asks for confirmation first.
func (b *Bot) cmdDelete(ctx context.Context, req *Request) error {
	code := catalog.NormalizeCode(req.Arg(0))
	if code == "" {
		req.Reply(ctx, "Usage: /del <code>")
		return nil
	}
	e, ok, err := b.d.Registry.Get(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		req.Reply(ctx, "❌ Code not found.")
		return nil
	}
	yes := tgui.Data("del", "yes", code)
	if tgui.CheckData(yes) != nil {
		req.Reply(ctx, "❗ Code too long.")
		return nil
	}
	_, err = req.Send(ctx, tgui.New().
		Title("🗑", "Delete this code?").
		KV("Code", e.Code).
		KV("Title", e.Title).
		Inline(tgui.ConfirmInline(tgui.Btn("✅ Delete", yes), tgui.Btn("✖️ Keep", tgui.Data("del", "no", "")))).
		Build())
	return err
}

func (b *Bot) cbDeleteConfirm(ctx context.Context, req *Request) error {
	code := req.Payload
	start := time.Now()
	deleted, err := b.d.Registry.Delete(ctx, code)
	if err != nil {
		b.audit(ctx, req, "content.delete", code, 0, 1, err, start)
		req.Answer(ctx, "❌ Failed", true)
		return err
	}
	if !deleted {
		req.Answer(ctx, "Already gone", false)
		_ = req.Edit(ctx, tgui.New().Line("❌ Code "+code+" not found.").Build())
		return nil
	}
	b.audit(ctx, req, "content.delete", code, 1, 0, nil, start)
	b.publish(eventbus.ContentDeleted, eventbus.ContentEvent{Code: code, ActorID: req.FromID})
	req.Answer(ctx, "Deleted", false)
	_ = req.Edit(ctx, tgui.New().Line("✅ Code "+code+" deleted.").Build())
	return nil
}

func (b *Bot) cbDeleteAbort(ctx context.Context, req *Request) error {
	req.Answer(ctx, "Kept", false)
	_ = req.Edit(ctx, tgui.New().Line("Deletion cancelled.").Build())
	return nil
}

// ---- rename wizard ----

func (b *Bot) cmdRename(ctx context.Context, req *Request) error {
	b.sessions.Set(req.FromID, Session{Step: StepRenameOld})
	req.Reply(ctx, "✏️ Which code do you want to edit? Send the current code.")
	return nil
}

func (b *Bot) continueRename(ctx context.Context, req *Request, ss Session) error {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		req.Reply(ctx, "Send text, or /cancel.")
		return nil
	}
	switch ss.Step {
	case StepRenameOld:
		e, ok, err := b.d.Registry.Get(ctx, text)
		if err != nil {
			return err
		}
		if !ok {
			req.Reply(ctx, "❌ No such code. Try again or /cancel.")
			return nil
		}
		b.sessions.Set(req.FromID, Session{Step: StepRenameNew, OldCode: e.Code})
		req.Reply(ctx, fmt.Sprintf("🔎 Code: %s\n📌 Title: %s\n\nSend the new code (or the same one).", e.Code, e.Title))
	case StepRenameNew:
		if strings.ContainsAny(text, " \t\n") {
			req.Reply(ctx, "❗ A code cannot contain spaces.")
			return nil
		}
		ss.Step, ss.NewCode = StepRenameTitle, text
		b.sessions.Set(req.FromID, ss)
		req.Reply(ctx, "Send the new title, or \"-\" to keep it.")
	case StepRenameTitle:
		b.sessions.Clear(req.FromID)
		title := text
		if title == "-" {
			title = ""
		}
		start := time.Now()
		err := b.d.Registry.Rename(ctx, ss.OldCode, ss.NewCode, title)
		switch {
		case errors.Is(err, catalog.ErrConflict):
			req.Reply(ctx, "❌ Code "+ss.NewCode+" already exists. Nothing changed.")
			return nil
		case errors.Is(err, catalog.ErrNotFound):
			req.Reply(ctx, "❌ Code "+ss.OldCode+" no longer exists.")
			return nil
		case err != nil:
			b.audit(ctx, req, "content.rename", ss.OldCode, 0, 1, err, start)
			req.Reply(ctx, "❌ Error: "+err.Error())
			return err
		}
		b.audit(ctx, req, "content.rename", ss.OldCode+"→"+ss.NewCode, 1, 0, nil, start)
		b.publish(eventbus.ContentRenamed, eventbus.ContentEvent{Code: ss.NewCode, OldCode: ss.OldCode, ActorID: req.FromID})
		req.Reply(ctx, "✅ Code and title updated.")
	}
	return nil
}

// ---- listing and counters ----

func (b *Bot) cmdCodes(ctx context.Context, req *Request) error {
	page, _ := strconv.Atoi(req.Arg(0))
	m, err := b.codesPage(ctx, "codes", max(page-1, 0))
	if err != nil {
		return err
	}
	_, err = req.Send(ctx, m)
	return err
}

// /list is the public catalogue: code and title only.
func (b *Bot) cmdList(ctx context.Context, req *Request) error {
	page, _ := strconv.Atoi(req.Arg(0))
	m, err := b.codesPage(ctx, "list", max(page-1, 0))
	if err != nil {
		return err
	}
	_, err = req.Send(ctx, m)
	return err
}

func (b *Bot) cbCodesPage(ctx context.Context, req *Request) error {
	return b.turnPage(ctx, req, "codes")
}

func (b *Bot) cbListPage(ctx context.Context, req *Request) error {
	return b.turnPage(ctx, req, "list")
}

func (b *Bot) turnPage(ctx context.Context, req *Request, scope string) error {
	page, _ := strconv.Atoi(req.Payload)
	m, err := b.codesPage(ctx, scope, page)
	if err != nil {
		return err
	}
	req.Answer(ctx, "", false)
	_ = req.Edit(ctx, m)
	return nil
}

// codesPage renders one page of the catalogue in display order. The "codes"
// scope is the admin view and adds part counts.
func (b *Bot) codesPage(ctx context.Context, scope string, page int) (tgui.Message, error) {
	list, err := b.d.Registry.List(ctx)
	if err != nil {
		return tgui.Message{}, err
	}
	if len(list) == 0 {
		return tgui.New().Line("⛔️ No codes yet.").Build(), nil
	}
	catalog.SortSummaries(list)
	admin := scope == "codes"
	items, p := tgui.Paginate(list, page, codesPageSize)
	emoji, title := "🎬", "All titles"
	if admin {
		emoji, title = "📄", "Codes"
	}
	mb := tgui.New().Title(emoji, title).Line(p.Label()).Blank()
	for _, s := range items {
		line := tgui.Code(s.Code) + tgui.H(" - ") + tgui.B(s.Title)
		if admin {
			line += tgui.Esc(fmt.Sprintf(" (%d)", s.PartCount))
		}
		mb.HTML(line)
	}
	nav := tgui.NewInline()
	var btns []tgui.Button
	if p.HasPrev {
		btns = append(btns, tgui.Btn("⬅️", tgui.Data(scope, "page", strconv.Itoa(p.Index-1))))
	}
	if p.HasNext {
		btns = append(btns, tgui.Btn("➡️", tgui.Data(scope, "page", strconv.Itoa(p.Index+1))))
	}
	nav.Row(btns...)
	return mb.Inline(nav).Build(), nil
}

func (b *Bot) cmdStats(ctx context.Context, req *Request) error {
	codes, err := b.d.Registry.Count(ctx)
	if err != nil {
		return err
	}
	users, err := b.d.Store.CountSubscribers(ctx)
	if err != nil {
		return err
	}
	_, err = req.Send(ctx, tgui.New().
		Title("📊", "Statistics").
		KV("📦 Codes", strconv.Itoa(codes)).
		KV("👥 Users", strconv.Itoa(users)).
		Build())
	return err
}

func (b *Bot) cmdStat(ctx context.Context, req *Request) error {
	code := catalog.NormalizeCode(req.Arg(0))
	if code == "" {
		req.Reply(ctx, "Usage: /stat <code>")
		return nil
	}
	c, ok, err := b.d.Stats.Read(ctx, code)
	if err != nil {
		return err
	}
	if !ok {
		req.Reply(ctx, "❗ No statistics for this code.")
		return nil
	}
	_, err = req.Send(ctx, tgui.New().
		Title("📊", code+" statistics").
		KV("🔍 Searched", strconv.FormatInt(c.Searched, 10)).
		KV("👁 Viewed", strconv.FormatInt(c.Viewed, 10)).
		Build())
	return err
}

// ---- publishing wizard ----

func (b *Bot) cmdIngest(ctx context.Context, req *Request) error {
	if b.cfg().ServerChannel == "" {
		req.Reply(ctx, "❗ content.server_channel is not configured.")
		return nil
	}
	b.sessions.Set(req.FromID, Session{Step: StepIngestMedia})
	_, err := req.Send(ctx, tgui.New().
		Title("📌", "New content").
		Line("1. Send the ad post (photo or video).").
		Line("2. Send every part (video), one message each.").
		Line("3. Send /done when finished.").
		Build())
	return err
}

func (b *Bot) continueIngest(ctx context.Context, req *Request, ss Session) error {
	if ss.Step == StepIngestMedia {
		if req.Media == nil {
			req.Reply(ctx, "Send a photo or video, /done to finish, or /cancel.")
			return nil
		}
		ss.Media = append(ss.Media, *req.Media)
		b.sessions.Set(req.FromID, ss)
		if len(ss.Media) == 1 {
			req.Reply(ctx, "✅ Ad post received. Now send the parts.")
		} else {
			req.Reply(ctx, fmt.Sprintf("✅ Part received. %d so far.", len(ss.Media)-1))
		}
		return nil
	}

	code, title, _ := strings.Cut(strings.TrimSpace(req.Text), " ")
	title = strings.TrimSpace(title)
	if code == "" || title == "" || !isNumeric(code) {
		req.Reply(ctx, "❌ Wrong format. Send: <code> <title>")
		return nil
	}
	b.sessions.Clear(req.FromID)
	return b.publishContent(ctx, req, code, title, ss.Media)
}

func (b *Bot) cmdDone(ctx context.Context, req *Request) error {
	ss, ok := b.sessions.Get(req.FromID)
	if !ok || ss.Step != StepIngestMedia {
		req.Reply(ctx, "Nothing to finish.")
		return nil
	}
	if len(ss.Media) < 2 {
		b.sessions.Clear(req.FromID)
		req.Reply(ctx, "❌ At least one ad post and one part are needed.")
		return nil
	}
	ss.Step = StepIngestInfo
	b.sessions.Set(req.FromID, ss)
	req.Reply(ctx, fmt.Sprintf("🎉 %d part(s) received.\n\nNow send: <code> <title>\nExample: 91 Naruto", len(ss.Media)-1))
	return nil
}

// publishContent re-posts the ad and parts to the server channel, registers
// the entry and fans the ad out to the publish channels.
func (b *Bot) publishContent(ctx context.Context, req *Request, code, title string, media []transport.Media) error {
	start := time.Now()
	if e, ok, err := b.d.Registry.Get(ctx, code); err != nil {
		return err
	} else if ok {
		req.Reply(ctx, fmt.Sprintf("❌ %s already exists: %s", code, e.Title))
		return nil
	}
	s := b.cfg()
	server, err := b.d.Provider.ResolveChat(ctx, s.ServerChannel)
	if err != nil {
		req.Reply(ctx, "❌ Server channel unavailable: "+err.Error())
		return err
	}

	ad, parts := media[0], media[1:]
	adRef, err := b.d.Provider.SendMedia(ctx, server, ad, nil)
	if err != nil {
		b.audit(ctx, req, "content.ingest", code, 0, 1, err, start)
		req.Reply(ctx, "❌ Could not post the ad: "+err.Error())
		return err
	}
	// Parts must be contiguous after the ad; stop at the first failure.
	for i, p := range parts {
		if strings.TrimSpace(p.Caption) == "" {
			p.Caption = fmt.Sprintf("%s - part %d", title, i+1)
		}
		if _, err := b.d.Provider.SendMedia(ctx, server, p, nil); err != nil {
			b.audit(ctx, req, "content.ingest", code, i, 1, err, start)
			req.Reply(ctx, fmt.Sprintf("❌ Part %d failed: %v\nNothing was registered.", i+1, err))
			return err
		}
	}

	e := catalog.Entry{
		Code:         code,
		Channel:      s.ServerChannel,
		BasePosition: adRef.MessageID + 1,
		PartCount:    len(parts),
		Title:        title,
		MediaRef:     ad.FileID,
	}
	if err := b.d.Registry.Upsert(ctx, e); err != nil {
		b.audit(ctx, req, "content.ingest", code, 0, 1, err, start)
		return err
	}
	b.publish(eventbus.ContentRegistered, eventbus.ContentEvent{Code: code, ActorID: req.FromID})

	res := b.fanOutChannels(ctx, "publish "+code, s.PublishChannels, func(ctx context.Context, to transport.ChatTarget) error {
		opt := &transport.SendOptions{}
		if l := b.deepLink(code); l != "" {
			opt.ReplyMarkupAdapter = tgui.NewInline().Row(tgui.URLBtn("📥 Download", l)).Markup()
		}
		_, err := b.d.Provider.CopyMessage(ctx, s.ServerChannel, adRef.MessageID, to, opt)
		return err
	})
	b.audit(ctx, req, "content.ingest", code, res.Succeeded, res.Failed, nil, start)

	_, err = req.Send(ctx, tgui.New().
		Title("✅", title+" added").
		KV("🔢 Code", code).
		KV("📦 Parts", strconv.Itoa(len(parts))).
		KV("📣 Published", fmt.Sprintf("%d/%d channels", res.Succeeded, res.Total)).
		HTML(b.deepLinkLine(code)).
		Build())
	return err
}

// ---- post builder ----

// /post builds a photo post with a download button: photo, title, link.
func (b *Bot) cmdPost(ctx context.Context, req *Request) error {
	b.sessions.Set(req.FromID, Session{Step: StepPostPhoto})
	req.Reply(ctx, "🖼 Send the poster photo.")
	return nil
}

func (b *Bot) continuePost(ctx context.Context, req *Request, ss Session) error {
	switch ss.Step {
	case StepPostPhoto:
		if req.Media == nil || req.Media.Kind != transport.MediaPhoto {
			req.Reply(ctx, "Send a photo, or /cancel.")
			return nil
		}
		ss.Step, ss.Media = StepPostTitle, []transport.Media{*req.Media}
		b.sessions.Set(req.FromID, ss)
		req.Reply(ctx, "📝 Now send the title.")
	case StepPostTitle:
		title := strings.TrimSpace(req.Text)
		if title == "" {
			req.Reply(ctx, "Send the title as text, or /cancel.")
			return nil
		}
		ss.Step, ss.Title = StepPostLink, title
		b.sessions.Set(req.FromID, ss)
		req.Reply(ctx, "🔗 Now send the download link (http or https).")
	case StepPostLink:
		link := strings.TrimSpace(req.Text)
		if !isWebLink(link) {
			req.Reply(ctx, "❗ That is not an http(s) link. Try again or /cancel.")
			return nil
		}
		b.sessions.Clear(req.FromID)
		photo := ss.Media[0]
		photo.Caption = ss.Title
		opt := &transport.SendOptions{
			ReplyMarkupAdapter: tgui.NewInline().Row(tgui.URLBtn("📥 Download", link)).Markup(),
		}
		start := time.Now()
		if _, err := b.d.Provider.SendMedia(ctx, req.Chat, photo, opt); err != nil {
			b.audit(ctx, req, "content.post", ss.Title, 0, 1, err, start)
			req.Reply(ctx, "❌ Could not send the post: "+err.Error())
			return err
		}
		b.audit(ctx, req, "content.post", ss.Title, 1, 0, nil, start)
		req.Reply(ctx, "✅ Post ready. Forward it wherever you need.")
	}
	return nil
}

func isWebLink(s string) bool {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// fanOutChannels resolves channel handles and runs action on each through
// the dispatcher. Unresolvable channels count as failures.
func (b *Bot) fanOutChannels(ctx context.Context, name string, chans []transport.Channel, action func(ctx context.Context, to transport.ChatTarget) error) dispatchResult {
	var targets []transport.ChatTarget
	unresolved := 0
	for _, ch := range chans {
		t, err := b.d.Provider.ResolveChat(ctx, ch)
		if err != nil {
			b.log.Warn("channel resolve failed", logx.String("job", name), logx.String("channel", ch.String()), logx.Err(err))
			unresolved++
			continue
		}
		targets = append(targets, t)
	}
	res := b.d.Dispatch.Dispatcher().Run(ctx, targets, action)
	return dispatchResult{Total: len(chans), Succeeded: res.Succeeded, Failed: res.Failed + unresolved, Targets: targets}
}

type dispatchResult struct {
	Total     int
	Succeeded int
	Failed    int
	Targets   []transport.ChatTarget
}
