package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kinobot/internal/bot"
	"kinobot/internal/contest"
	"kinobot/internal/storage"
	"kinobot/internal/transport"
	"kinobot/pkg/tgui"
)

func drawCmd(g *globalFlags) *cobra.Command {
	var announce bool
	cmd := &cobra.Command{
		Use:   "draw",
		Short: "Run the prize draw",
		Long: `Start a draw, pick winners one by one and finish it. With --announce the
start and the results are posted to contest.announce_channels.

Examples:
  kinobot draw start --announce
  kinobot draw pick
  kinobot draw finish --announce`,
	}
	cmd.PersistentFlags().BoolVar(&announce, "announce", false, "post to contest.announce_channels")

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Open a new draw cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.core.Contest.Start(ctxOf(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%s draw #%d started (%d winners)\n", okMark, st.Cycle, st.Cap)
			if announce {
				return s.announce(ctxOf(cmd), bot.DrawStartMessage())
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "pick",
		Short: "Pick the next winner",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := ctxOf(cmd)
			p, err := s.core.Contest.PickWinner(ctx)
			switch {
			case errors.Is(err, contest.ErrCapReached) && p.Finished:
				fmt.Println(dim("winner limit lowered below the winner count; draw closed"))
			case err != nil:
				return err
			default:
				fmt.Printf("%s place %d: %s\n", contest.Medal(p.Place), p.Place, bold(p.Winner))
				if !p.Finished {
					return nil
				}
				fmt.Println(dim("all winners picked; draw finished"))
			}
			if announce {
				st, err := s.core.Contest.State(ctx)
				if err != nil {
					return err
				}
				return s.announce(ctx, bot.DrawResultsMessage(st))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "finish",
		Short: "Close the draw early",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.core.Contest.Finish(ctxOf(cmd))
			if err != nil {
				return err
			}
			fmt.Printf("%s draw #%d finished with %d winner(s)\n", okMark, st.Cycle, len(st.Winners))
			if announce {
				return s.announce(ctxOf(cmd), bot.DrawResultsMessage(st))
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the draw state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := ctxOf(cmd)
			st, err := s.core.Contest.State(ctx)
			if err != nil {
				return err
			}
			pool, err := s.core.Contest.Pool().List(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("State:        %s\nCycle:        %d\nParticipants: %d\nWinners:      %d/%d\n",
				bold(st.Phase()), st.Cycle, len(pool), len(st.Winners), st.Cap)
			for i, id := range st.Winners {
				fmt.Printf("  %s %d\n", contest.Medal(i+1), id)
			}
			return nil
		},
	})
	return cmd
}

// announce posts msg to every announce channel and records where it landed.
func (s *session) announce(ctx context.Context, msg tgui.Message) error {
	p, err := s.provider()
	if err != nil {
		return err
	}
	var refs []storage.AnnouncementRef
	for _, raw := range s.cfg.Contest.AnnounceChannels {
		ch := transport.NormalizeChannel(raw)
		to, err := p.ResolveChat(ctx, ch)
		if err == nil {
			var ref transport.MessageRef
			if ref, err = msg.Send(ctx, p, to); err == nil {
				refs = append(refs, storage.AnnouncementRef{ChatID: ref.ChatID, MessageID: ref.MessageID})
			}
		}
		if err != nil {
			fmt.Printf("%s %s: %v\n", failMark, ch, err)
			continue
		}
		fmt.Printf("%s announced in %s\n", okMark, ch)
	}
	return s.core.Contest.RecordAnnouncements(ctx, refs)
}
