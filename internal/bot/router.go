package bot

import (
	"context"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	rtsup "kinobot/internal/runtime/supervisor"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
	"kinobot/pkg/tgui"
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Admin       bool
	// Hidden commands are routed but left out of /help and the menu.
	Hidden  bool
	Timeout time.Duration
	Handle  HandlerFunc
}

// CallbackRoute handles "scope:action[:payload]" callback data. Action "*"
// matches any action of the scope.
type CallbackRoute struct {
	Scope   string
	Action  string
	Admin   bool
	Timeout time.Duration
	Handle  HandlerFunc
}

const (
	defaultJobQueue = 256
	defaultWorkers  = 4
)

// Router turns updates into requests and runs them on a bounded worker pool.
type Router struct {
	provider transport.Provider
	log      logx.Logger
	isAdmin  func(ctx context.Context, userID int64) bool

	mu       sync.RWMutex
	cmds     map[string]Command
	names    []string
	cbs      map[string]map[string]CallbackRoute
	fallback HandlerFunc

	timeout atomic.Int64
	workers int

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewRouter(p transport.Provider, isAdmin func(ctx context.Context, userID int64) bool, workers int, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = defaultWorkers
	}
	if isAdmin == nil {
		isAdmin = func(context.Context, int64) bool { return false }
	}
	return &Router{
		provider: p,
		log:      log.With(logx.Comp("router")),
		isAdmin:  isAdmin,
		cmds:     map[string]Command{},
		cbs:      map[string]map[string]CallbackRoute{},
		workers:  workers,
		jobs:     make(chan func(), defaultJobQueue),
	}
}

// SetTimeout sets the default per-request timeout.
func (r *Router) SetTimeout(d time.Duration) { r.timeout.Store(int64(d)) }

// SetRegistry replaces all routes at once.
func (r *Router) SetRegistry(cmds []Command, cbs []CallbackRoute, fallback HandlerFunc) {
	cm := map[string]Command{}
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cm[name] = c
		names = append(names, name)
		for _, a := range c.Aliases {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				if _, exists := cm[a]; !exists {
					cm[a] = c
				}
			}
		}
	}
	sort.Strings(names)

	cb := map[string]map[string]CallbackRoute{}
	for _, rt := range cbs {
		if rt.Scope == "" || rt.Action == "" || rt.Handle == nil {
			continue
		}
		if cb[rt.Scope] == nil {
			cb[rt.Scope] = map[string]CallbackRoute{}
		}
		cb[rt.Scope][rt.Action] = rt
	}

	r.mu.Lock()
	r.cmds, r.names, r.cbs, r.fallback = cm, names, cb, fallback
	r.mu.Unlock()
}

// Commands returns the registered commands by name, without aliases.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.cmds[n])
	}
	return out
}

// Supervisor is the worker pool supervisor, nil when not running.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false // jobs closed during shutdown
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.runMu.Lock()
	r.sup, r.running = sup, true
	r.runMu.Unlock()

	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					r.runJob(idx, job)
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		r.runMu.Lock()
		r.running = false
		close(r.jobs)
		r.runMu.Unlock()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in job", logx.Int("worker", worker), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) route(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		r.routeMessage(ctx, up)
	case transport.UpdateCallback:
		r.routeCallback(ctx, up)
	}
}

func (r *Router) newRequest(up transport.Update, chat transport.ChatTarget, from int64, name string) *Request {
	rid := newReqID()
	return &Request{
		Update:   up,
		Chat:     chat,
		FromID:   from,
		Command:  name,
		ReqID:    rid,
		provider: r.provider,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", name),
		),
	}
}

func (r *Router) routeMessage(ctx context.Context, up transport.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	chat := transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	cmds, fallback := r.cmds, r.fallback
	r.mu.RUnlock()

	var (
		h       HandlerFunc
		name    string
		admin   bool
		timeout time.Duration
		rest    string
	)
	if word, args, ok := splitCommand(msg.Text); ok && msg.Media == nil {
		cmd, found := cmds[word]
		if !found {
			if msg.IsGroup {
				return
			}
			_, _ = r.provider.SendText(ctx, chat, "Unknown command. Try /help", nil)
			return
		}
		h, name, admin, timeout, rest = cmd.Handle, cmd.Name, cmd.Admin, cmd.Timeout, args
	} else {
		if msg.IsGroup || fallback == nil {
			return
		}
		h, name = fallback, "message"
	}

	req := r.newRequest(up, chat, msg.FromID, name)
	req.FromName = msg.FromName
	req.FromUsername = msg.FromUsername
	req.Text = msg.Text
	req.Media = msg.Media
	req.MessageID = msg.ID
	req.RawArgs = rest
	req.Args = strings.Fields(rest)

	final := r.wrap(h, admin, timeout)
	if !r.tryEnqueue(func() { _ = final(ctx, req) }) {
		_, _ = r.provider.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up transport.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	scope, action, payload, ok := tgui.ParseData(cb.Data)
	if !ok {
		return
	}
	r.mu.RLock()
	route, found := r.cbs[scope][action]
	if !found {
		// "*" takes any action; the handler sees "action:payload".
		if route, found = r.cbs[scope]["*"]; found && payload != "" {
			payload = action + ":" + payload
		} else if found {
			payload = action
		}
	}
	r.mu.RUnlock()
	if !found {
		_ = r.provider.AnswerCallback(ctx, cb.ID, "", false)
		return
	}

	req := r.newRequest(up, transport.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+scope+":"+action)
	req.CallbackID = cb.ID
	req.MessageID = cb.MessageID
	req.Payload = payload

	final := r.wrap(route.Handle, route.Admin, route.Timeout)
	if !r.tryEnqueue(func() {
		_ = final(ctx, req)
		// stops the client spinner when the handler did not answer
		req.Answer(ctx, "", false)
	}) {
		_ = r.provider.AnswerCallback(ctx, cb.ID, "Busy, try again", false)
	}
}

func (r *Router) wrap(h HandlerFunc, admin bool, timeout time.Duration) HandlerFunc {
	if timeout <= 0 {
		timeout = time.Duration(r.timeout.Load())
	}
	mws := []Middleware{MWPanicRecover(), MWRequestLog(), MWTimeout(timeout)}
	if admin {
		mws = append(mws, MWAdminOnly(r.isAdmin))
	}
	return Chain(h, mws...)
}
