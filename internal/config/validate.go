package config

import (
	"fmt"
	"strings"
)

// Validate rejects configs that would fail later at wiring time.
// Missing values that have defaults are accepted.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	for _, d := range durationFields(cfg) {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	ints := []struct {
		path string
		v    int
	}{
		{"contest.winners_cap", cfg.Contest.WinnersCap},
		{"dispatch.workers", cfg.Dispatch.Workers},
		{"dispatch.queue_size", cfg.Dispatch.QueueSize},
		{"dispatch.rate_per_sec", cfg.Dispatch.RatePerSec},
		{"dispatch.batch_size", cfg.Dispatch.BatchSize},
		{"dispatch.status_max", cfg.Dispatch.StatusMax},
		{"bot.workers", cfg.Bot.Workers},
		{"storage.max_open_conns", cfg.Storage.MaxOpenConns},
	}
	for _, n := range ints {
		if n.v < 0 {
			return fmt.Errorf("%s must be >= 0", n.path)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "sqlite", "sqlite3":
		// path defaults at wiring time
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn (or $%s) is required when storage.driver=postgres", EnvDSN)
		}
	default:
		return fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}

	for i, ch := range cfg.Gate.Channels {
		if strings.TrimSpace(ch) == "" {
			return fmt.Errorf("gate.channels[%d] is empty", i)
		}
	}
	return nil
}
