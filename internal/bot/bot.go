package bot

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"kinobot/internal/access"
	"kinobot/internal/catalog"
	"kinobot/internal/contest"
	"kinobot/internal/dispatch"
	"kinobot/internal/eventbus"
	"kinobot/internal/gate"
	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/internal/stats"
	"kinobot/internal/storage"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

// Deps are the services the handlers drive.
type Deps struct {
	Provider transport.Provider
	Store    storage.Store
	Registry *catalog.Registry
	Stats    *stats.Counters
	Gate     *gate.Gate
	Contest  *contest.Engine
	Dispatch *dispatch.Service
	Admins   *access.Admins
	Bus      eventbus.Bus
	// Supervisors feeds /health; may be nil.
	Supervisors func() map[string]rtsup.Snapshot
}

// Settings is the hot-reloadable part of the bot configuration.
type Settings struct {
	BotUsername      string
	ServerChannel    transport.Channel
	PublishChannels  []transport.Channel
	AnnounceChannels []transport.Channel
	RequestTimeout   time.Duration
	SessionTTL       time.Duration
}

const DefaultRequestTimeout = 30 * time.Second

type Bot struct {
	d        Deps
	log      logx.Logger
	router   *Router
	sessions *Sessions
	settings atomic.Pointer[Settings]
}

func New(d Deps, s Settings, workers int, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.New()
	}
	b := &Bot{
		d:        d,
		log:      log.With(logx.Comp("bot")),
		sessions: NewSessions(s.SessionTTL),
	}
	b.router = NewRouter(d.Provider, b.isAdmin, workers, log)
	b.Apply(s)
	b.router.SetRegistry(b.commands(), b.callbacks(), b.onMessage)
	return b
}

func (b *Bot) Apply(s Settings) {
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = DefaultRequestTimeout
	}
	s.BotUsername = strings.TrimPrefix(strings.TrimSpace(s.BotUsername), "@")
	b.settings.Store(&s)
	b.router.SetTimeout(s.RequestTimeout)
	b.sessions.SetTTL(s.SessionTTL)
}

func (b *Bot) cfg() Settings { return *b.settings.Load() }

// SetBotUsername fills the deep-link username when the config leaves it empty.
func (b *Bot) SetBotUsername(name string) {
	s := b.cfg()
	if s.BotUsername != "" || name == "" {
		return
	}
	s.BotUsername = name
	b.settings.Store(&s)
}

func (b *Bot) Router() *Router     { return b.router }
func (b *Bot) Sessions() *Sessions { return b.sessions }

// Run routes updates until ctx ends.
func (b *Bot) Run(ctx context.Context, updates <-chan transport.Update) error {
	b.updateMenu(ctx)
	return b.router.DispatchLoop(ctx, updates)
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	if b.d.Admins == nil {
		return false
	}
	return b.d.Admins.IsAdmin(ctx, userID)
}

func (b *Bot) updateMenu(ctx context.Context) {
	up, ok := b.d.Provider.(transport.CommandMenuUpdater)
	if !ok {
		return
	}
	var menu []transport.BotCommand
	for _, c := range b.router.Commands() {
		if c.Admin || c.Hidden {
			continue
		}
		menu = append(menu, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(cctx, menu); err != nil {
		b.log.Warn("menu update failed", logx.Err(err))
	}
}

func (b *Bot) publish(typ string, data any) {
	b.d.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func (b *Bot) commands() []Command {
	return []Command{
		{Name: "start", Description: "start the bot or open a code", Usage: "/start [code]", Handle: b.cmdStart},
		{Name: "help", Aliases: []string{"h"}, Description: "list commands", Usage: "/help", Handle: b.cmdHelp},
		{Name: "contact", Description: "write to the admins", Usage: "/contact", Handle: b.cmdContact},
		{Name: "cancel", Description: "abort the current step", Usage: "/cancel", Handle: b.cmdCancel},
		{Name: "list", Aliases: []string{"all"}, Description: "browse every title", Usage: "/list [page]", Handle: b.cmdList},

		{Name: "add", Admin: true, Description: "register content manually", Usage: "/add <code> <channel> <base> <parts> <title>", Handle: b.cmdAdd},
		{Name: "ingest", Admin: true, Description: "publish new content from uploads", Usage: "/ingest", Handle: b.cmdIngest},
		{Name: "post", Admin: true, Description: "build a photo post with a download link", Usage: "/post", Handle: b.cmdPost},
		{Name: "done", Admin: true, Hidden: true, Description: "finish uploading parts", Usage: "/done", Handle: b.cmdDone},
		{Name: "del", Admin: true, Description: "delete a code", Usage: "/del <code>", Handle: b.cmdDelete},
		{Name: "rename", Admin: true, Description: "change a code and title", Usage: "/rename", Handle: b.cmdRename},
		{Name: "codes", Admin: true, Description: "list all codes", Usage: "/codes [page]", Handle: b.cmdCodes},
		{Name: "stats", Admin: true, Description: "totals", Usage: "/stats", Handle: b.cmdStats},
		{Name: "stat", Admin: true, Description: "counters for one code", Usage: "/stat <code>", Handle: b.cmdStat},

		{Name: "broadcast", Aliases: []string{"bc"}, Admin: true, Description: "forward a channel post to all subscribers", Usage: "/broadcast <channel> <message_id>", Handle: b.cmdBroadcast},
		{Name: "bc_status", Admin: true, Description: "broadcast progress", Usage: "/bc_status <id>", Handle: b.cmdBroadcastStatus},
		{Name: "bc_cancel", Admin: true, Description: "stop a broadcast", Usage: "/bc_cancel <id>", Handle: b.cmdBroadcastCancel},

		{Name: "admin_add", Admin: true, Description: "grant admin", Usage: "/admin_add <user_id>", Handle: b.cmdAdminAdd},
		{Name: "admin_rm", Admin: true, Description: "revoke admin", Usage: "/admin_rm <user_id>", Handle: b.cmdAdminRemove},
		{Name: "admins", Admin: true, Description: "list admins", Usage: "/admins", Handle: b.cmdAdmins},

		{Name: "draw_start", Admin: true, Description: "open a prize draw", Usage: "/draw_start", Handle: b.cmdDrawStart},
		{Name: "draw_pick", Admin: true, Description: "pick the next winner", Usage: "/draw_pick", Handle: b.cmdDrawPick},
		{Name: "draw_finish", Admin: true, Description: "close the draw and announce", Usage: "/draw_finish", Handle: b.cmdDrawFinish},
		{Name: "draw_status", Admin: true, Description: "draw state", Usage: "/draw_status", Handle: b.cmdDrawStatus},

		{Name: "guide", Admin: true, Description: "step-by-step admin manual", Usage: "/guide", Handle: b.cmdGuide},
		{Name: "health", Admin: true, Description: "runtime health", Usage: "/health", Handle: b.cmdHealth},
	}
}

func (b *Bot) callbacks() []CallbackRoute {
	return []CallbackRoute{
		{Scope: "part", Action: "*", Handle: b.cbPart},
		{Scope: "gate", Action: "check", Handle: b.cbGateCheck},
		{Scope: "contest", Action: "join", Handle: b.cbContestJoin},
		{Scope: "admin", Action: "reply", Admin: true, Handle: b.cbAdminReply},
		{Scope: "del", Action: "yes", Admin: true, Handle: b.cbDeleteConfirm},
		{Scope: "del", Action: "no", Admin: true, Handle: b.cbDeleteAbort},
		{Scope: "codes", Action: "page", Admin: true, Handle: b.cbCodesPage},
		{Scope: "list", Action: "page", Handle: b.cbListPage},
		{Scope: "help", Action: "page", Admin: true, Handle: b.cbGuidePage},
	}
}
