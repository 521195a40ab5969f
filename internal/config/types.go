package config

// Config is the on-disk configuration (JSON, or YAML converted to JSON).
//
// All durations are Go duration strings ("500ms", "10s", "1m").
type Config struct {
	Telegram    TelegramConfig    `json:"telegram"`
	Logging     LoggingConfig     `json:"logging"`
	Storage     StorageConfig     `json:"storage"`
	Gate        GateConfig        `json:"gate"`
	Content     ContentConfig     `json:"content"`
	Contest     ContestConfig     `json:"contest"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Bot         BotConfig         `json:"bot"`
	Maintenance MaintenanceConfig `json:"maintenance"`
	Ops         OpsConfig         `json:"ops"`
}

type TelegramConfig struct {
	// Token falls back to $KINOBOT_TOKEN when empty.
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// BotUsername is used to build deep links (t.me/<bot>?start=<code>).
	BotUsername string `json:"bot_username"`
	PollTimeout string `json:"poll_timeout"`
	// CallTimeout bounds every Bot API request.
	CallTimeout string `json:"call_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the relational backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/kinobot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://kino@localhost/kino" }
type StorageConfig struct {
	Driver string `json:"driver"`
	Path   string `json:"path,omitempty"`
	// DSN falls back to $KINOBOT_DSN when empty (postgres only).
	DSN          string `json:"dsn,omitempty"`
	BusyTimeout  string `json:"busy_timeout,omitempty"` // sqlite
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

// GateConfig lists the channels a user must be a member of.
type GateConfig struct {
	Channels     []string `json:"channels"`
	CheckTimeout string   `json:"check_timeout,omitempty"`
}

type ContentConfig struct {
	// ServerChannel receives re-posted media from the publishing wizard.
	ServerChannel string `json:"server_channel"`
	// PublishChannels receive the promo post with a deep-link button.
	PublishChannels []string `json:"publish_channels"`
}

type ContestConfig struct {
	WinnersCap       int      `json:"winners_cap"`
	AnnounceChannels []string `json:"announce_channels"`
}

type DispatchConfig struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	BatchSize       int    `json:"batch_size"`
	BatchPause      string `json:"batch_pause"`
	MaxThrottleWait string `json:"max_throttle_wait"`
	CallTimeout     string `json:"call_timeout"`
	StatusMax       int    `json:"status_max,omitempty"`
	StatusTTL       string `json:"status_ttl,omitempty"`
}

type BotConfig struct {
	Workers        int    `json:"workers"`
	RequestTimeout string `json:"request_timeout"`
	SessionTTL     string `json:"session_ttl"`
}

// MaintenanceConfig schedules periodic housekeeping. Specs accept the
// robfig/cron syntax, including descriptors such as "@every 5m".
type MaintenanceConfig struct {
	Enabled      bool   `json:"enabled"`
	AdminRefresh string `json:"admin_refresh,omitempty"`
	StatusPrune  string `json:"status_prune,omitempty"`
	SessionPrune string `json:"session_prune,omitempty"`
}

// OpsConfig controls the optional operations HTTP server (health, status,
// per-code counters and pprof). Keep it on loopback unless a token is set.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr"`
	// Token falls back to $KINOBOT_OPS_TOKEN when empty.
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	WriteTimeout  string `json:"write_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}
