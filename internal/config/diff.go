package config

import (
	"reflect"
	"sort"
	"strings"

	logx "kinobot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Secrets (token, dsn) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) ||
		strings.TrimSpace(ot.CallTimeout) != strings.TrimSpace(nt.CallTimeout) ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		ot.BotUsername != nt.BotUsername {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
			logx.String("telegram.bot_username", nt.BotUsername),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Gate, newCfg.Gate) {
		changed = append(changed, "gate")
		attrs = append(attrs, logx.Int("gate.channels", len(newCfg.Gate.Channels)))
	}
	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		changed = append(changed, "content")
		attrs = append(attrs, logx.Int("content.publish_channels", len(newCfg.Content.PublishChannels)))
	}
	if !reflect.DeepEqual(oldCfg.Contest, newCfg.Contest) {
		changed = append(changed, "contest")
		attrs = append(attrs, logx.Int("contest.winners_cap", newCfg.Contest.WinnersCap))
	}
	if !reflect.DeepEqual(oldCfg.Dispatch, newCfg.Dispatch) {
		changed = append(changed, "dispatch")
		attrs = append(attrs,
			logx.Int("dispatch.rate_per_sec", newCfg.Dispatch.RatePerSec),
			logx.Int("dispatch.batch_size", newCfg.Dispatch.BatchSize),
		)
	}
	if !reflect.DeepEqual(oldCfg.Bot, newCfg.Bot) {
		changed = append(changed, "bot")
	}
	if !reflect.DeepEqual(oldCfg.Maintenance, newCfg.Maintenance) {
		changed = append(changed, "maintenance")
		attrs = append(attrs, logx.Bool("maintenance.enabled", newCfg.Maintenance.Enabled))
	}
	if !reflect.DeepEqual(oldCfg.Ops, newCfg.Ops) {
		changed = append(changed, "ops")
		attrs = append(attrs, logx.Bool("ops.enabled", newCfg.Ops.Enabled), logx.String("ops.addr", newCfg.Ops.Addr))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired reports sections whose changes only apply after a restart.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "storage", "bot", "maintenance":
			out = append(out, s)
		}
	}
	return out
}
