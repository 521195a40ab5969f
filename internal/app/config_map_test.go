package app

import (
	"path/filepath"
	"testing"
	"time"

	"kinobot/internal/config"
	"kinobot/internal/transport"
	logx "kinobot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		name    string
		in      config.StorageConfig
		driver  string
		path    string
		wantErr bool
	}{
		{name: "default", in: config.StorageConfig{}, driver: "sqlite", path: filepath.Clean(defaultSQLitePath)},
		{name: "sqlite3 alias", in: config.StorageConfig{Driver: "sqlite3", Path: "x.db"}, driver: "sqlite", path: "x.db"},
		{name: "postgres", in: config.StorageConfig{Driver: "pgx", DSN: "postgres://x"}, driver: "postgres"},
		{name: "unknown", in: config.StorageConfig{Driver: "mongo"}, wantErr: true},
		{name: "bad busy", in: config.StorageConfig{BusyTimeout: "soon"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sc, err := mapStorageConfig(&config.Config{Storage: tc.in})
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if tc.wantErr {
				return
			}
			if sc.Driver != tc.driver || sc.Path != tc.path {
				t.Fatalf("got %+v", sc)
			}
		})
	}
}

func TestMapBotSettingsNormalizesChannels(t *testing.T) {
	cfg := &config.Config{}
	cfg.Content.ServerChannel = "https://t.me/kino_server"
	cfg.Content.PublishChannels = []string{"main", "@main", "-1001"}
	cfg.Contest.AnnounceChannels = []string{"@news"}
	cfg.Bot.RequestTimeout = "20s"

	s, err := mapBotSettings(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if s.ServerChannel != "@kino_server" {
		t.Fatalf("server channel %q", s.ServerChannel)
	}
	want := []transport.Channel{"@main", "-1001"}
	if len(s.PublishChannels) != len(want) || s.PublishChannels[0] != want[0] || s.PublishChannels[1] != want[1] {
		t.Fatalf("publish channels %v", s.PublishChannels)
	}
	if s.RequestTimeout != 20*time.Second {
		t.Fatalf("timeout %s", s.RequestTimeout)
	}
}

func TestMapDispatchConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Dispatch = config.DispatchConfig{RatePerSec: 20, BatchSize: 100, BatchPause: "2s", Workers: 3, StatusTTL: "1h"}
	dc, sc, err := mapDispatchConfig(cfg)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if dc.RatePerSec != 20 || dc.BatchSize != 100 || dc.BatchPause != 2*time.Second {
		t.Fatalf("dispatcher config %+v", dc)
	}
	if sc.Workers != 3 || sc.StatusTTL != time.Hour {
		t.Fatalf("service config %+v", sc)
	}

	cfg.Dispatch.MaxThrottleWait = "-1s"
	if _, _, err := mapDispatchConfig(cfg); err == nil {
		t.Fatalf("negative duration accepted")
	}
}

func TestWinnersCapDefault(t *testing.T) {
	if got := winnersCap(&config.Config{}); got != 3 {
		t.Fatalf("default cap %d", got)
	}
	cfg := &config.Config{}
	cfg.Contest.WinnersCap = 5
	if got := winnersCap(cfg); got != 5 {
		t.Fatalf("cap %d", got)
	}
}

func TestMaintenanceSpecs(t *testing.T) {
	cfg := &config.Config{}
	cfg.Maintenance.StatusPrune = "off"
	cfg.Maintenance.SessionPrune = "*/2 * * * *"
	specs := maintenanceSpecs(cfg)
	if specs[jobAdminRefresh] != defaultAdminRefresh {
		t.Fatalf("admin refresh %q", specs[jobAdminRefresh])
	}
	if specs[jobStatusPrune] != "" {
		t.Fatalf("disabled job kept spec %q", specs[jobStatusPrune])
	}
	if specs[jobSessionPrune] != "*/2 * * * *" {
		t.Fatalf("session prune %q", specs[jobSessionPrune])
	}
}

func TestLogTarget(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = " -100200 "
	if got := logTarget(cfg); got != -100200 {
		t.Fatalf("target %d", got)
	}
	cfg.Telegram.GroupLog = "@logs"
	if got := logTarget(cfg); got != 0 {
		t.Fatalf("handle should disable the sink, got %d", got)
	}
}

func TestOpenCoreSQLite(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Path = filepath.Join(t.TempDir(), "core.db")
	cfg.Telegram.OwnerUserIDs = []int64{42}
	core, err := OpenCore(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer core.Close()
	if core.Store.Driver() != "sqlite" {
		t.Fatalf("driver %q", core.Store.Driver())
	}
	if core.Contest.Cap() != 3 || !core.Admins.IsOwner(42) {
		t.Fatalf("core not configured")
	}
}

func TestMapOpsConfig(t *testing.T) {
	oc, err := mapOpsConfig(&config.Config{Ops: config.OpsConfig{Enabled: true, Addr: "127.0.0.1:9000", ReadTimeout: "2s"}})
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	if !oc.Enabled || oc.Addr != "127.0.0.1:9000" || oc.ReadTimeout != 2*time.Second || oc.IdleTimeout != time.Minute {
		t.Fatalf("ops config: %+v", oc)
	}
	if _, err := mapOpsConfig(&config.Config{Ops: config.OpsConfig{WriteTimeout: "forever"}}); err == nil {
		t.Fatalf("bad duration accepted")
	}
}
