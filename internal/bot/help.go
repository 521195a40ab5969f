package bot

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

func (b *Bot) cmdHelp(ctx context.Context, req *Request) error {
	admin := b.isAdmin(ctx, req.FromID)
	mb := tgui.New().Title("📚", "Commands")
	var adminLines []tgui.H
	for _, c := range b.router.Commands() {
		if c.Hidden {
			continue
		}
		line := tgui.Code(c.Usage) + tgui.Esc(" - "+c.Description)
		if c.Admin {
			adminLines = append(adminLines, line)
			continue
		}
		mb.HTML(line)
	}
	mb.Line("Or just send a code number.")
	if admin && len(adminLines) > 0 {
		mb.Blank().Title("🔐", "Admin")
		for _, l := range adminLines {
			mb.HTML(l)
		}
		mb.Inline(tgui.NewInline().Row(tgui.Btn("📖 Guide", tgui.Data("help", "page", "0"))))
	}
	_, err := req.Send(ctx, mb.Build())
	return err
}

func (b *Bot) cmdHealth(ctx context.Context, req *Request) error {
	mb := tgui.New().Title("🩺", "Health")

	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := b.d.Store.Ping(pctx)
	cancel()
	storeState := "ok"
	if err != nil {
		storeState = "error: " + err.Error()
	}
	mb.KV("Storage ("+b.d.Store.Driver()+")", storeState)
	mb.KV("Sessions", strconv.Itoa(b.sessions.Len()))
	mb.KV("Bus dropped", strconv.FormatUint(b.d.Bus.Dropped(), 10))

	if b.d.Supervisors != nil {
		snaps := b.d.Supervisors()
		names := make([]string, 0, len(snaps))
		for n := range snaps {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			s := snaps[n]
			v := strconv.FormatInt(s.Active, 10) + " running"
			if s.FirstError != "" {
				v += ", first error: " + tgui.TruncRunes(s.FirstError, 120)
			}
			mb.KV(n, v)
		}
	}
	_, err = req.Send(ctx, mb.Build())
	return err
}

// audit appends one admin action to the audit table. Failures are logged only.
func (b *Bot) audit(ctx context.Context, req *Request, action, target string, ok, fail int, cause error, start time.Time) {
	e := storage.AuditEntry{
		At:            time.Now(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Action:        action,
		Target:        target,
		OK:            ok,
		Fail:          fail,
	}
	if cause != nil {
		e.Error = cause.Error()
	}
	if !start.IsZero() {
		e.TookMS = time.Since(start).Milliseconds()
	}
	if meta, err := json.Marshal(map[string]string{"rid": req.ReqID, "cmd": req.Command}); err == nil {
		e.MetaJSON = string(meta)
	}
	if err := b.d.Store.AppendAudit(ctx, e); err != nil {
		b.log.Warn("audit append failed", logx.String("action", action), logx.Err(err))
	}
}
