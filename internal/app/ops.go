package app

import (
	"context"
	"time"

	"kinobot/internal/config"
	"kinobot/internal/contest"
	"kinobot/internal/observability/ops"
	rtsup "kinobot/internal/runtime/supervisor"
)

func mapOpsConfig(cfg *config.Config) (ops.Config, error) {
	oc := cfg.Ops
	read, err := config.ParseDurationOrDefault("ops.read_timeout", oc.ReadTimeout, 5*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	// pprof profile/trace stream for up to 30s by default.
	write, err := config.ParseDurationOrDefault("ops.write_timeout", oc.WriteTimeout, 35*time.Second)
	if err != nil {
		return ops.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("ops.idle_timeout", oc.IdleTimeout, time.Minute)
	if err != nil {
		return ops.Config{}, err
	}
	return ops.Config{
		Enabled:       oc.Enabled,
		Addr:          oc.Addr,
		Token:         oc.Token,
		AllowInsecure: oc.AllowInsecure,
		Pprof:         oc.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

type statusReport struct {
	Bot         string                    `json:"bot"`
	Storage     string                    `json:"storage"`
	Uptime      string                    `json:"uptime"`
	Codes       int                       `json:"codes"`
	Subscribers int                       `json:"subscribers"`
	Draw        drawReport                `json:"draw"`
	Supervisors map[string]rtsup.Snapshot `json:"supervisors"`
}

type drawReport struct {
	Phase   contest.Phase `json:"phase"`
	Cycle   int           `json:"cycle"`
	Winners []int64       `json:"winners"`
	Cap     int           `json:"cap"`
}

type codeReport struct {
	Code     string `json:"code"`
	Title    string `json:"title,omitempty"`
	Parts    int    `json:"parts,omitempty"`
	Searched int64  `json:"searched"`
	Viewed   int64  `json:"viewed"`
}

func (a *App) opsSources() ops.Sources {
	return ops.Sources{
		Healthy: func() bool {
			if a.sup == nil || a.sup.Err() != nil {
				return false
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return a.core.Store.Ping(ctx) == nil
		},
		Status: a.statusReport,
		Code:   a.codeReport,
	}
}

func (a *App) statusReport(ctx context.Context) (any, error) {
	codes, err := a.core.Registry.Count(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := a.core.Store.CountSubscribers(ctx)
	if err != nil {
		return nil, err
	}
	st, err := a.core.Contest.State(ctx)
	if err != nil {
		return nil, err
	}
	return statusReport{
		Bot:         a.adapter.Username(),
		Storage:     a.core.Store.Driver(),
		Uptime:      time.Since(a.started).Round(time.Second).String(),
		Codes:       codes,
		Subscribers: subs,
		Draw:        drawReport{Phase: st.Phase(), Cycle: st.Cycle, Winners: st.Winners, Cap: st.Cap},
		Supervisors: a.supervisors(),
	}, nil
}

// codeReport also answers for codes that were searched but never registered.
func (a *App) codeReport(ctx context.Context, code string) (any, bool, error) {
	c, counted, err := a.core.Stats.Read(ctx, code)
	if err != nil {
		return nil, false, err
	}
	e, registered, err := a.core.Registry.Get(ctx, code)
	if err != nil {
		return nil, false, err
	}
	if !counted && !registered {
		return nil, false, nil
	}
	return codeReport{Code: code, Title: e.Title, Parts: e.PartCount, Searched: c.Searched, Viewed: c.Viewed}, true, nil
}
