package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"kinobot/internal/catalog"
	"kinobot/internal/contest"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

func (b *Bot) cmdStart(ctx context.Context, req *Request) error {
	if _, err := b.d.Store.AddSubscriber(ctx, req.FromID); err != nil {
		req.Logger.Warn("subscriber insert failed", logx.Err(err))
	}
	if code := catalog.NormalizeCode(req.Arg(0)); code != "" {
		return b.requestCode(ctx, req, code)
	}
	mb := tgui.New().
		Title("👋", "Welcome!").
		Line("Send a code number to get the content.").
		Line("/list shows every title.")
	if b.isAdmin(ctx, req.FromID) {
		mb.Blank().HTML(tgui.H("Admin commands: ") + tgui.Code("/help"))
	}
	_, err := req.Send(ctx, mb.Build())
	return err
}

// onMessage handles non-command text: pending wizard steps first, then
// bare numeric codes.
func (b *Bot) onMessage(ctx context.Context, req *Request) error {
	if ss, ok := b.sessions.Get(req.FromID); ok {
		return b.continueSession(ctx, req, ss)
	}
	text := strings.TrimSpace(req.Text)
	if req.Media == nil && isNumeric(text) {
		if _, err := b.d.Store.AddSubscriber(ctx, req.FromID); err != nil {
			req.Logger.Warn("subscriber insert failed", logx.Err(err))
		}
		return b.requestCode(ctx, req, text)
	}
	req.Reply(ctx, "Send a code number to get the content.")
	return nil
}

func (b *Bot) continueSession(ctx context.Context, req *Request, ss Session) error {
	switch ss.Step {
	case StepContact:
		return b.relayContact(ctx, req)
	case StepReply:
		return b.deliverReply(ctx, req, ss)
	case StepRenameOld, StepRenameNew, StepRenameTitle:
		return b.continueRename(ctx, req, ss)
	case StepIngestMedia, StepIngestInfo:
		return b.continueIngest(ctx, req, ss)
	case StepPostPhoto, StepPostTitle, StepPostLink:
		return b.continuePost(ctx, req, ss)
	default:
		b.sessions.Clear(req.FromID)
		return nil
	}
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// requestCode either prompts for the unmet channels or serves the code.
// Gated requests are not counted.
func (b *Bot) requestCode(ctx context.Context, req *Request, code string) error {
	if unmet := b.d.Gate.Unsatisfied(ctx, req.FromID); len(unmet) > 0 {
		_, err := req.Send(ctx, b.gatePrompt(ctx, code, unmet, false))
		return err
	}
	return b.serveCode(ctx, req.FromID, code, req.Logger)
}

// serveCode runs once the gate is clear: count the search, then deliver.
func (b *Bot) serveCode(ctx context.Context, userID int64, code string, log logx.Logger) error {
	if err := b.d.Stats.RecordSearch(ctx, code); err != nil {
		log.Warn("search count failed", logx.String("code", code), logx.Err(err))
	}
	return b.deliverLanding(ctx, userID, code, log)
}

// gatePrompt lists one join button per unmet channel and a re-check button.
func (b *Bot) gatePrompt(ctx context.Context, code string, unmet []transport.Channel, again bool) tgui.Message {
	links := make([]tgui.JoinLink, 0, len(unmet))
	for i, ch := range unmet {
		url, err := b.d.Provider.InviteLink(ctx, ch)
		if err != nil {
			b.log.Warn("invite link failed", logx.String("channel", ch.String()), logx.Err(err))
			continue
		}
		title := fmt.Sprintf("🔔 Join channel %d", i+1)
		if ch.Public() {
			title = "🔔 Join " + ch.String()
		}
		links = append(links, tgui.JoinLink{Title: title, URL: url})
	}
	recheck := tgui.Data("gate", "check", code)
	if tgui.CheckData(recheck) != nil {
		recheck = ""
	}
	text := "❗ Subscribe to the channel(s) below before getting the content:"
	if again {
		text = "❗ You are still not subscribed to every channel. Please join them all:"
	}
	return tgui.New().
		Line(text).
		Inline(tgui.GateKeyboard(links, "✅ Check", recheck)).
		Build()
}

// deliverLanding copies the landing post with the part keyboard. The view
// is counted on attempt, before the copy.
func (b *Bot) deliverLanding(ctx context.Context, userID int64, code string, log logx.Logger) error {
	to := transport.UserTarget(userID)
	entry, target, err := b.d.Registry.Landing(ctx, code)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		_, err = b.d.Provider.SendText(ctx, to, "❌ Code not found.", nil)
		return err
	case errors.Is(err, catalog.ErrOutOfRange):
		log.Warn("landing out of range", logx.String("code", code))
		_, err = b.d.Provider.SendText(ctx, to, "❌ This content is not available.", nil)
		return err
	case err != nil:
		return err
	}

	if err := b.d.Stats.RecordView(ctx, code); err != nil {
		log.Warn("view count failed", logx.String("code", code), logx.Err(err))
	}
	opt := &transport.SendOptions{}
	if rm := tgui.PartKeyboard(entry.Code, entry.PartCount).Markup(); rm != nil {
		opt.ReplyMarkupAdapter = rm
	}
	if _, err := b.d.Provider.CopyMessage(ctx, target.Channel, target.Position, to, opt); err != nil {
		log.Warn("landing copy failed", logx.String("code", code), logx.String("channel", target.Channel.String()), logx.Int("position", target.Position), logx.Err(err))
		_, _ = b.d.Provider.SendText(ctx, to, "❌ Could not send the post, try again later.", nil)
		return nil
	}
	return nil
}

func (b *Bot) cbGateCheck(ctx context.Context, req *Request) error {
	code := catalog.NormalizeCode(req.Payload)
	if unmet := b.d.Gate.Unsatisfied(ctx, req.FromID); len(unmet) > 0 {
		req.Answer(ctx, "Not subscribed yet", false)
		_ = req.Edit(ctx, b.gatePrompt(ctx, code, unmet, true))
		return nil
	}
	req.Answer(ctx, "", false)
	_ = req.Edit(ctx, tgui.New().Line("✅ Subscription confirmed!").Build())
	if code == "" {
		return nil
	}
	return b.serveCode(ctx, req.FromID, code, req.Logger)
}

// cbPart handles "part:<code>:<k>".
func (b *Bot) cbPart(ctx context.Context, req *Request) error {
	i := strings.LastIndexByte(req.Payload, ':')
	if i <= 0 {
		req.Answer(ctx, "❌ Bad button", true)
		return nil
	}
	code := req.Payload[:i]
	k, err := strconv.Atoi(req.Payload[i+1:])
	if err != nil {
		req.Answer(ctx, "❌ Bad button", true)
		return nil
	}

	if unmet := b.d.Gate.Unsatisfied(ctx, req.FromID); len(unmet) > 0 {
		req.Answer(ctx, "Subscribe to the channels first", true)
		_, err := req.Send(ctx, b.gatePrompt(ctx, code, unmet, false))
		return err
	}

	target, err := b.d.Registry.Resolve(ctx, code, k)
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		req.Answer(ctx, "❌ Code not found", true)
		return nil
	case errors.Is(err, catalog.ErrOutOfRange):
		req.Answer(ctx, "❌ No such part", true)
		return nil
	case err != nil:
		req.Answer(ctx, "❌ Try again later", true)
		return err
	}
	req.Answer(ctx, "", false)
	if _, err := b.d.Provider.CopyMessage(ctx, target.Channel, target.Position, transport.UserTarget(req.FromID), nil); err != nil {
		req.Logger.Warn("part copy failed", logx.String("code", code), logx.Int("part", k), logx.Err(err))
		_, _ = b.d.Provider.SendText(ctx, transport.UserTarget(req.FromID), "❌ Could not send this part, try again later.", nil)
	}
	return nil
}

func (b *Bot) cbContestJoin(ctx context.Context, req *Request) error {
	added, err := b.d.Contest.Join(ctx, req.FromID)
	switch {
	case errors.Is(err, contest.ErrNotActive):
		req.Answer(ctx, "The draw is not active!", true)
		return nil
	case err != nil:
		req.Answer(ctx, "❌ Try again later", true)
		return err
	case !added:
		req.Answer(ctx, "You are already taking part!", true)
		return nil
	}
	req.Answer(ctx, "Thanks for taking part!", false)
	_, _ = b.d.Provider.SendText(ctx, transport.UserTarget(req.FromID),
		fmt.Sprintf("🎟 You joined the draw with ID %d.", req.FromID), nil)
	return nil
}

// ---- contact relay ----

func (b *Bot) cmdContact(ctx context.Context, req *Request) error {
	b.sessions.Set(req.FromID, Session{Step: StepContact})
	req.Reply(ctx, "✍️ Write your message for the admins. /cancel to abort.")
	return nil
}

func (b *Bot) relayContact(ctx context.Context, req *Request) error {
	b.sessions.Clear(req.FromID)
	text := strings.TrimSpace(req.Text)
	if text == "" && req.Media == nil {
		req.Reply(ctx, "Empty message, nothing sent.")
		return nil
	}
	admins, err := b.d.Admins.All(ctx)
	if err != nil {
		return err
	}
	who := tgui.Mention(firstNonEmpty(req.FromName, "user"), req.FromID)
	if req.FromUsername != "" {
		who += tgui.Esc(" @" + req.FromUsername)
	}
	msg := tgui.New().
		Title("📩", "Message from a user").
		HTML(who + tgui.H(" (") + tgui.Code(strconv.FormatInt(req.FromID, 10)) + tgui.H(")")).
		Blank().
		Line(text).
		Inline(tgui.NewInline().Row(tgui.Btn("↩️ Reply", tgui.Data("admin", "reply", strconv.FormatInt(req.FromID, 10))))).
		Build()

	recipients := make([]transport.ChatTarget, 0, len(admins))
	for _, id := range admins {
		recipients = append(recipients, transport.UserTarget(id))
	}
	res := b.d.Dispatch.Dispatcher().Run(ctx, recipients, func(ctx context.Context, to transport.ChatTarget) error {
		if req.Media != nil {
			if _, err := b.d.Provider.SendMedia(ctx, to, *req.Media, nil); err != nil {
				return err
			}
		}
		_, err := msg.Send(ctx, b.d.Provider, to)
		return err
	})
	req.Logger.Info("contact relayed", logx.Int("ok", res.Succeeded), logx.Int("fail", res.Failed))
	if res.Succeeded == 0 {
		req.Reply(ctx, "❌ Could not reach the admins, try again later.")
		return nil
	}
	req.Reply(ctx, "✅ Your message was sent to the admins.")
	return nil
}

func (b *Bot) cbAdminReply(ctx context.Context, req *Request) error {
	uid, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil || uid == 0 {
		req.Answer(ctx, "❌ Bad button", true)
		return nil
	}
	b.sessions.Set(req.FromID, Session{Step: StepReply, Target: uid})
	req.Answer(ctx, "", false)
	_, _ = b.d.Provider.SendText(ctx, transport.UserTarget(req.FromID),
		fmt.Sprintf("✍️ Write the reply for %d. /cancel to abort.", uid), nil)
	return nil
}

func (b *Bot) deliverReply(ctx context.Context, req *Request, ss Session) error {
	b.sessions.Clear(req.FromID)
	to := transport.UserTarget(ss.Target)
	var err error
	if req.Media != nil {
		_, err = b.d.Provider.SendMedia(ctx, to, *req.Media, nil)
	} else {
		_, err = tgui.New().Title("📬", "Reply from the admins").Blank().Line(req.Text).Build().Send(ctx, b.d.Provider, to)
	}
	if err != nil {
		req.Logger.Warn("admin reply failed", logx.Int64("to", ss.Target), logx.Err(err))
		req.Reply(ctx, "❌ Could not deliver the reply: "+err.Error())
		return nil
	}
	b.audit(ctx, req, "contact.reply", strconv.FormatInt(ss.Target, 10), 1, 0, nil, time.Time{})
	req.Reply(ctx, "✅ Reply delivered.")
	return nil
}

func (b *Bot) cmdCancel(ctx context.Context, req *Request) error {
	if b.sessions.Clear(req.FromID) {
		req.Reply(ctx, "❎ Cancelled.")
	} else {
		req.Reply(ctx, "Nothing to cancel.")
	}
	return nil
}

func firstNonEmpty(v ...string) string {
	for _, s := range v {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}
