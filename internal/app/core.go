package app

import (
	"kinobot/internal/access"
	"kinobot/internal/catalog"
	"kinobot/internal/config"
	"kinobot/internal/contest"
	"kinobot/internal/stats"
	"kinobot/internal/storage"
	logx "kinobot/pkg/logx"
)

// Core is the storage-backed domain layer shared by the bot and the CLI.
type Core struct {
	Store    storage.Store
	Registry *catalog.Registry
	Stats    *stats.Counters
	Contest  *contest.Engine
	Admins   *access.Admins
}

// OpenCore opens the configured store and builds the domain services on it.
func OpenCore(cfg *config.Config, log logx.Logger) (*Core, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(sc, log.With(logx.Comp("storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage ready", logx.String("driver", st.Driver()))
	return &Core{
		Store:    st,
		Registry: catalog.NewRegistry(st, log.With(logx.Comp("catalog"))),
		Stats:    stats.New(st),
		Contest:  contest.NewEngine(st, winnersCap(cfg), log.With(logx.Comp("contest"))),
		Admins:   access.NewAdmins(st, cfg.Telegram.OwnerUserIDs, log.With(logx.Comp("access"))),
	}, nil
}

func (c *Core) Close() error { return c.Store.Close() }
