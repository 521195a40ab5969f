package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// durationField is one duration-valued config key and its raw text.
type durationField struct{ path, raw string }

func durationFields(cfg *Config) []durationField {
	return []durationField{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"telegram.call_timeout", cfg.Telegram.CallTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"gate.check_timeout", cfg.Gate.CheckTimeout},
		{"dispatch.batch_pause", cfg.Dispatch.BatchPause},
		{"dispatch.max_throttle_wait", cfg.Dispatch.MaxThrottleWait},
		{"dispatch.call_timeout", cfg.Dispatch.CallTimeout},
		{"dispatch.status_ttl", cfg.Dispatch.StatusTTL},
		{"bot.request_timeout", cfg.Bot.RequestTimeout},
		{"bot.session_ttl", cfg.Bot.SessionTTL},
		{"ops.read_timeout", cfg.Ops.ReadTimeout},
		{"ops.write_timeout", cfg.Ops.WriteTimeout},
		{"ops.idle_timeout", cfg.Ops.IdleTimeout},
	}
}

// ParseDurationField parses a config duration. Besides Go syntax ("90s",
// "1h30m") it takes whole days ("7d") and bare seconds ("30"). Empty is 0.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := parseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.ParseInt(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("day count %q is not an integer", days)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// ParseDurationOrDefault is ParseDurationField with def for empty or zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
