package app

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"kinobot/internal/bot"
	"kinobot/internal/config"
	"kinobot/internal/dispatch"
	"kinobot/internal/storage"
	"kinobot/internal/transport"
	"kinobot/internal/transport/telegram"
	logx "kinobot/pkg/logx"
)

const (
	defaultSQLitePath   = "./data/kinobot.db"
	defaultGateTimeout  = 5 * time.Second
	defaultWinnersCap   = 3
	defaultAdminRefresh = "@every 10m"
	defaultStatusPrune  = "@every 5m"
	defaultSessionPrune = "@every 1m"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	switch driver {
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			path = defaultSQLitePath
		}
		return storage.Config{Driver: "sqlite", Path: filepath.Clean(path), BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		return storage.Config{Driver: "postgres", DSN: sc.DSN, MaxOpenConns: sc.MaxOpenConns}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapTelegramConfig(cfg *config.Config, offline bool) (telegram.Config, error) {
	poll, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	call, err := config.ParseDurationField("telegram.call_timeout", cfg.Telegram.CallTimeout)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll, CallTimeout: call, Offline: offline}, nil
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

// logTarget parses telegram.group_log; 0 disables the Telegram sink.
func logTarget(cfg *config.Config) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(cfg.Telegram.GroupLog), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, dispatch.ServiceConfig, error) {
	dc := cfg.Dispatch
	pause, err := config.ParseDurationField("dispatch.batch_pause", dc.BatchPause)
	if err != nil {
		return dispatch.Config{}, dispatch.ServiceConfig{}, err
	}
	maxWait, err := config.ParseDurationField("dispatch.max_throttle_wait", dc.MaxThrottleWait)
	if err != nil {
		return dispatch.Config{}, dispatch.ServiceConfig{}, err
	}
	call, err := config.ParseDurationField("dispatch.call_timeout", dc.CallTimeout)
	if err != nil {
		return dispatch.Config{}, dispatch.ServiceConfig{}, err
	}
	ttl, err := config.ParseDurationField("dispatch.status_ttl", dc.StatusTTL)
	if err != nil {
		return dispatch.Config{}, dispatch.ServiceConfig{}, err
	}
	return dispatch.Config{
			RatePerSec:      dc.RatePerSec,
			BatchSize:       dc.BatchSize,
			BatchPause:      pause,
			MaxThrottleWait: maxWait,
			CallTimeout:     call,
		}, dispatch.ServiceConfig{
			Workers:   dc.Workers,
			QueueSize: dc.QueueSize,
			StatusMax: dc.StatusMax,
			StatusTTL: ttl,
		}, nil
}

func mapGate(cfg *config.Config) ([]transport.Channel, time.Duration, error) {
	timeout, err := config.ParseDurationOrDefault("gate.check_timeout", cfg.Gate.CheckTimeout, defaultGateTimeout)
	if err != nil {
		return nil, 0, err
	}
	return channels(cfg.Gate.Channels), timeout, nil
}

func winnersCap(cfg *config.Config) int {
	if cfg.Contest.WinnersCap <= 0 {
		return defaultWinnersCap
	}
	return cfg.Contest.WinnersCap
}

func mapBotSettings(cfg *config.Config) (bot.Settings, error) {
	rt, err := config.ParseDurationField("bot.request_timeout", cfg.Bot.RequestTimeout)
	if err != nil {
		return bot.Settings{}, err
	}
	ttl, err := config.ParseDurationField("bot.session_ttl", cfg.Bot.SessionTTL)
	if err != nil {
		return bot.Settings{}, err
	}
	return bot.Settings{
		BotUsername:      cfg.Telegram.BotUsername,
		ServerChannel:    transport.NormalizeChannel(cfg.Content.ServerChannel),
		PublishChannels:  channels(cfg.Content.PublishChannels),
		AnnounceChannels: channels(cfg.Contest.AnnounceChannels),
		RequestTimeout:   rt,
		SessionTTL:       ttl,
	}, nil
}

func channels(raw []string) []transport.Channel {
	out := make([]transport.Channel, 0, len(raw))
	seen := map[transport.Channel]bool{}
	for _, r := range raw {
		ch := transport.NormalizeChannel(r)
		if ch == "" || seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out
}

// maintenanceSpecs returns the cron spec per job; "off" disables one.
func maintenanceSpecs(cfg *config.Config) map[string]string {
	pick := func(raw, def string) string {
		s := strings.TrimSpace(raw)
		switch {
		case s == "":
			return def
		case strings.EqualFold(s, "off"):
			return ""
		}
		return s
	}
	mc := cfg.Maintenance
	return map[string]string{
		jobAdminRefresh: pick(mc.AdminRefresh, defaultAdminRefresh),
		jobStatusPrune:  pick(mc.StatusPrune, defaultStatusPrune),
		jobSessionPrune: pick(mc.SessionPrune, defaultSessionPrune),
	}
}

// DispatchConfig maps the dispatch section for one-shot senders such as the
// operator CLI.
func DispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc, _, err := mapDispatchConfig(cfg)
	return dc, err
}
