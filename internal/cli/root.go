// Package cli is the kinobot operator command line.
package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kinobot/internal/app"
	"kinobot/internal/config"
	"kinobot/internal/transport/telegram"
	logx "kinobot/pkg/logx"
)

const defaultConfigPath = "./config.json"

type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
}

// Root builds the kinobot command tree.
func Root(version string) *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:     "kinobot",
		Short:   "Telegram content gate bot",
		Version: version,
		Long: `kinobot hands out channel content by numeric code, after checking that the
user joined the required channels. It also runs prize draws and broadcasts.

Run "kinobot serve" for the bot itself. The other commands work on the same
database and are meant for operators.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv(g.envFiles...)
		},
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", envOr("KINOBOT_CONFIG", defaultConfigPath), "path to config (json or yaml)")
	root.PersistentFlags().StringSliceVar(&g.envFiles, "env-file", nil, "dotenv files to load (default .env)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "WARN", "log level for operator commands")

	root.AddCommand(serveCmd(g))
	root.AddCommand(contentCmd(g))
	root.AddCommand(adminCmd(g))
	root.AddCommand(drawCmd(g))
	root.AddCommand(broadcastCmd(g))
	return root
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// session is what an operator command needs: the parsed config and the
// domain layer on top of the configured store.
type session struct {
	cfg  *config.Config
	core *app.Core
	log  logx.Logger
}

func (g *globalFlags) open() (*session, error) {
	cfg, err := config.NewConfigManager(g.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", g.configPath, err)
	}
	log := logx.NewConsole(g.logLevel)
	core, err := app.OpenCore(cfg, log)
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, core: core, log: log}, nil
}

func (s *session) Close() { _ = s.core.Close() }

// provider builds a send-only Telegram client; it never polls.
func (s *session) provider() (*telegram.Adapter, error) {
	tc := telegram.Config{Token: s.cfg.Telegram.Token, Offline: true}
	if tc.Token == "" {
		return nil, fmt.Errorf("telegram token missing (config or $%s)", config.EnvToken)
	}
	return telegram.New(tc, s.log)
}

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	failMark = color.New(color.FgRed).Sprint("✗")
	bold     = color.New(color.Bold).SprintFunc()
	dim      = color.New(color.Faint).SprintFunc()
)

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
