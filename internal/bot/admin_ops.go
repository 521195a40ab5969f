package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/dispatch"
	"kinobot/internal/eventbus"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

// ---- broadcast ----

// /broadcast <channel> <message_id> forwards one channel post to every
// subscriber through the async dispatcher.
func (b *Bot) cmdBroadcast(ctx context.Context, req *Request) error {
	if len(req.Args) != 2 {
		req.Reply(ctx, "Usage: /broadcast <channel> <message_id>\nExample: /broadcast @mychannel 123")
		return nil
	}
	from := transport.NormalizeChannel(req.Args[0])
	msgID, err := strconv.Atoi(req.Args[1])
	if err != nil || msgID <= 0 {
		req.Reply(ctx, "❗ The message id must be a number.")
		return nil
	}
	users, err := b.d.Store.ListSubscribers(ctx)
	if err != nil {
		return err
	}
	recipients := make([]transport.ChatTarget, 0, len(users))
	for _, id := range users {
		recipients = append(recipients, transport.UserTarget(id))
	}

	name := fmt.Sprintf("broadcast %s/%d", from, msgID)
	admin := req.Chat
	started := time.Now()
	id, err := b.d.Dispatch.Submit(name, recipients,
		func(ctx context.Context, to transport.ChatTarget) error {
			_, err := b.d.Provider.ForwardMessage(ctx, from, msgID, to)
			return err
		},
		func(st dispatch.JobStatus) {
			b.broadcastDone(admin, req, st, started)
		},
	)
	switch {
	case errors.Is(err, dispatch.ErrQueueFull):
		req.Reply(ctx, "⏳ Too many broadcasts queued, try again later.")
		return nil
	case err != nil:
		return err
	}
	_, err = req.Send(ctx, tgui.New().
		Title("📨", "Broadcast queued").
		KV("Job", id).
		KV("Recipients", strconv.Itoa(len(recipients))).
		HTML(tgui.H("Progress: ")+tgui.Code("/bc_status "+id)).
		Build())
	return err
}

// broadcastDone runs on the dispatcher worker after the job ends.
func (b *Bot) broadcastDone(admin transport.ChatTarget, req *Request, st dispatch.JobStatus, started time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	r := st.Result
	b.publish(eventbus.DispatchFinished, eventbus.DispatchEvent{
		JobID: st.ID, Name: st.Name, Total: r.Total, Succeeded: r.Succeeded, Failed: r.Failed, Canceled: r.Canceled,
	})
	b.audit(ctx, req, "broadcast", st.Name, r.Succeeded, r.Failed, nil, started)
	_, err := resultMessage("📬 Broadcast finished", st).Send(ctx, b.d.Provider, admin)
	if err != nil {
		b.log.Warn("broadcast report failed", logx.String("job", st.ID), logx.Err(err))
	}
}

func resultMessage(title string, st dispatch.JobStatus) tgui.Message {
	r := st.Result
	mb := tgui.New().
		Title("", title).
		KV("Job", st.ID).
		KV("✅ Sent", strconv.Itoa(r.Succeeded)).
		KV("❌ Failed", strconv.Itoa(r.Failed)).
		KV("🚫 Blocked/not found", strconv.Itoa(r.Permanent)).
		KV("⏸ Throttled", strconv.Itoa(r.Throttled)).
		KV("Progress", fmt.Sprintf("%d/%d", r.Attempted, r.Total))
	if r.Capped > 0 {
		mb.KV("⏳ Retry-after over cap", strconv.Itoa(r.Capped))
	}
	if r.Took > 0 {
		mb.KV("Took", r.Took.Round(time.Second).String())
	}
	if r.Canceled {
		mb.Line("⚠️ cancelled before completion")
	}
	return mb.Build()
}

func (b *Bot) cmdBroadcastStatus(ctx context.Context, req *Request) error {
	id := req.Arg(0)
	if id == "" {
		req.Reply(ctx, "Usage: /bc_status <id>")
		return nil
	}
	st, ok := b.d.Dispatch.Status(id)
	if !ok {
		req.Reply(ctx, "❌ Unknown or expired job.")
		return nil
	}
	title := "⏳ Queued"
	switch {
	case st.Done():
		title = "📬 Finished"
	case st.Running:
		title = "🚚 Running"
	}
	_, err := req.Send(ctx, resultMessage(title, st))
	return err
}

func (b *Bot) cmdBroadcastCancel(ctx context.Context, req *Request) error {
	id := req.Arg(0)
	if id == "" {
		req.Reply(ctx, "Usage: /bc_cancel <id>")
		return nil
	}
	if !b.d.Dispatch.Cancel(id) {
		req.Reply(ctx, "❌ Unknown or already finished job.")
		return nil
	}
	b.audit(ctx, req, "broadcast.cancel", id, 1, 0, nil, time.Time{})
	req.Reply(ctx, "🛑 Cancel requested.")
	return nil
}

// ---- admin set ----

func parseUserID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	return id, err == nil && id > 0
}

func (b *Bot) cmdAdminAdd(ctx context.Context, req *Request) error {
	id, ok := parseUserID(req.Arg(0))
	if !ok {
		req.Reply(ctx, "❗ Send a numeric Telegram user id: /admin_add <user_id>")
		return nil
	}
	added, err := b.d.Admins.Add(ctx, id, req.FromID)
	if err != nil {
		b.audit(ctx, req, "admin.add", strconv.FormatInt(id, 10), 0, 1, err, time.Time{})
		return err
	}
	if !added {
		req.Reply(ctx, "ℹ️ This user is already an admin.")
		return nil
	}
	b.audit(ctx, req, "admin.add", strconv.FormatInt(id, 10), 1, 0, nil, time.Time{})
	_, _ = req.Send(ctx, tgui.New().HTML(tgui.H("✅ ")+tgui.Code(strconv.FormatInt(id, 10))+tgui.H(" is now an admin.")).Build())
	if _, err := b.d.Provider.SendText(ctx, transport.UserTarget(id), "✅ You were added as a bot admin. Send /help.", nil); err != nil {
		req.Reply(ctx, "⚠️ Could not notify the new admin.")
	}
	return nil
}

func (b *Bot) cmdAdminRemove(ctx context.Context, req *Request) error {
	id, ok := parseUserID(req.Arg(0))
	if !ok {
		req.Reply(ctx, "Usage: /admin_rm <user_id>")
		return nil
	}
	removed, err := b.d.Admins.Remove(ctx, id)
	switch {
	case errors.Is(err, access.ErrOwner):
		req.Reply(ctx, "⛔ Owners are configured in the config file and cannot be removed.")
		return nil
	case err != nil:
		return err
	case !removed:
		req.Reply(ctx, "ℹ️ Not an admin.")
		return nil
	}
	b.audit(ctx, req, "admin.remove", strconv.FormatInt(id, 10), 1, 0, nil, time.Time{})
	req.Reply(ctx, "✅ Admin removed.")
	return nil
}

func (b *Bot) cmdAdmins(ctx context.Context, req *Request) error {
	ids, err := b.d.Admins.All(ctx)
	if err != nil {
		return err
	}
	mb := tgui.New().Title("👮", "Admins")
	for _, id := range ids {
		line := tgui.H("• ") + tgui.Code(strconv.FormatInt(id, 10))
		if b.d.Admins.IsOwner(id) {
			line += tgui.H(" (owner)")
		}
		mb.HTML(line)
	}
	_, err = req.Send(ctx, mb.Build())
	return err
}
