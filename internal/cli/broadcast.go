package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kinobot/internal/app"
	"kinobot/internal/dispatch"
	"kinobot/internal/transport"
)

func broadcastCmd(g *globalFlags) *cobra.Command {
	var (
		from  string
		msgID int
	)
	cmd := &cobra.Command{
		Use:   "broadcast",
		Short: "Forward a channel post to every subscriber",
		Long: `Forward one channel message to every user who ever started the bot.
Sending is paced by the dispatch section of the config and blocks until done.

Examples:
  kinobot broadcast --from @kino_news --msg 314`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := transport.NormalizeChannel(from)
			if ch == "" || msgID <= 0 {
				return fmt.Errorf("--from and a positive --msg are required")
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			p, err := s.provider()
			if err != nil {
				return err
			}
			dcfg, err := app.DispatchConfig(s.cfg)
			if err != nil {
				return err
			}
			ctx := ctxOf(cmd)
			users, err := s.core.Store.ListSubscribers(ctx)
			if err != nil {
				return err
			}
			recipients := make([]transport.ChatTarget, 0, len(users))
			for _, id := range users {
				recipients = append(recipients, transport.UserTarget(id))
			}
			fmt.Printf("forwarding %s/%d to %d subscriber(s)...\n", ch, msgID, len(recipients))

			res := dispatch.NewDispatcher(dcfg, s.log).Run(ctx, recipients,
				func(ctx context.Context, to transport.ChatTarget) error {
					_, err := p.ForwardMessage(ctx, ch, msgID, to)
					return err
				})
			mark := okMark
			if res.Failed > 0 || res.Canceled {
				mark = failMark
			}
			fmt.Printf("%s sent %d/%d, failed %d (blocked %d), throttled %d, took %s\n",
				mark, res.Succeeded, res.Total, res.Failed, res.Permanent, res.Throttled, res.Took.Round(time.Millisecond))
			if res.Canceled {
				return ctx.Err()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source channel (@name or -100 id)")
	cmd.Flags().IntVar(&msgID, "msg", 0, "message id in the source channel")
	return cmd
}
