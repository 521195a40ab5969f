// Package gate decides whether a user satisfies the channel membership
// requirement. Every call queries the provider; nothing is cached.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

const DefaultCheckTimeout = 5 * time.Second

// MembershipChecker is the provider capability the gate needs.
type MembershipChecker interface {
	Membership(ctx context.Context, ch transport.Channel, userID int64) (transport.MemberStatus, error)
}

type Gate struct {
	checker  MembershipChecker
	log      logx.Logger
	channels atomic.Pointer[[]transport.Channel]
	timeout  atomic.Int64
}

func New(checker MembershipChecker, channels []transport.Channel, timeout time.Duration, log logx.Logger) *Gate {
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gate{checker: checker, log: log.With(logx.Comp("gate"))}
	g.Configure(channels, timeout)
	return g
}

// Configure swaps the required channel set and lookup timeout. Safe to call
// while checks are running.
func (g *Gate) Configure(channels []transport.Channel, timeout time.Duration) {
	cp := make([]transport.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != "" {
			cp = append(cp, ch)
		}
	}
	g.channels.Store(&cp)
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	g.timeout.Store(int64(timeout))
}

// Channels returns the configured channels in configuration order.
func (g *Gate) Channels() []transport.Channel {
	p := g.channels.Load()
	if p == nil {
		return nil
	}
	return append([]transport.Channel(nil), (*p)...)
}

// Unsatisfied returns the channels userID is not a member of, in
// configuration order. Lookup errors and timeouts count as not a member.
// All channels are checked concurrently.
func (g *Gate) Unsatisfied(ctx context.Context, userID int64) []transport.Channel {
	channels := g.Channels()
	if len(channels) == 0 {
		return nil
	}
	timeout := time.Duration(g.timeout.Load())

	ok := make([]bool, len(channels))
	var wg sync.WaitGroup
	for i, ch := range channels {
		wg.Add(1)
		go func(i int, ch transport.Channel) {
			defer wg.Done()
			ok[i] = g.check(ctx, ch, userID, timeout)
		}(i, ch)
	}
	wg.Wait()

	var out []transport.Channel
	for i, ch := range channels {
		if !ok[i] {
			out = append(out, ch)
		}
	}
	return out
}

// Satisfied is shorthand for len(Unsatisfied) == 0.
func (g *Gate) Satisfied(ctx context.Context, userID int64) bool {
	return len(g.Unsatisfied(ctx, userID)) == 0
}

func (g *Gate) check(ctx context.Context, ch transport.Channel, userID int64, timeout time.Duration) bool {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	st, err := g.checker.Membership(cctx, ch, userID)
	if err != nil {
		g.log.Debug("membership lookup failed",
			logx.String("channel", ch.String()),
			logx.Int64("user_id", userID),
			logx.Err(err),
		)
		return false
	}
	return st.Subscribed()
}
