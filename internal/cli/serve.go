package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kinobot/internal/app"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var stopTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot",
		Long: `Start long polling and serve users until SIGINT or SIGTERM.

The config file is watched; most sections apply without a restart.

Examples:
  kinobot serve
  kinobot serve -c /etc/kinobot/config.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(ctxOf(cmd), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.NewApp(g.configPath)
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				_ = a.Stop(context.Background(), app.StopFatalError)
				return err
			}

			reason := app.StopSignal
			select {
			case <-ctx.Done():
			case <-a.Done():
				reason = app.StopFatalError
			}
			sctx, scancel := context.WithTimeout(context.Background(), stopTimeout)
			defer scancel()
			stopErr := a.Stop(sctx, reason)
			if err := a.Err(); err != nil {
				return err
			}
			return stopErr
		},
	}
	cmd.Flags().DurationVar(&stopTimeout, "stop-timeout", 15*time.Second, "upper bound for graceful shutdown")
	return cmd
}
