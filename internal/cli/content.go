package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"kinobot/internal/catalog"
	"kinobot/internal/transport"
)

func contentCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "content",
		Aliases: []string{"code"},
		Short:   "Manage registered content codes",
	}
	cmd.AddCommand(contentAddCmd(g))
	cmd.AddCommand(contentRemoveCmd(g))
	cmd.AddCommand(contentRenameCmd(g))
	cmd.AddCommand(contentListCmd(g))
	cmd.AddCommand(contentStatCmd(g))
	return cmd
}

func contentAddCmd(g *globalFlags) *cobra.Command {
	var e catalog.Entry
	var channel string
	cmd := &cobra.Command{
		Use:   "add <code> <title...>",
		Short: "Register or replace a code",
		Long: `Register a code. The landing post is the message just before --base;
part k is message base+k-1.

Examples:
  kinobot content add 91 Naruto --channel @kino_server --base 120 --parts 12`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			e.Code = args[0]
			e.Title = strings.Join(args[1:], " ")
			e.Channel = transport.NormalizeChannel(channel)
			if e.Channel == "" {
				e.Channel = transport.NormalizeChannel(s.cfg.Content.ServerChannel)
			}
			if err := s.core.Registry.Upsert(ctxOf(cmd), e); err != nil {
				return err
			}
			fmt.Printf("%s %s registered: %s, landing %d, parts %d..%d\n",
				okMark, bold(e.Code), e.Channel, e.BasePosition-1, e.BasePosition, e.BasePosition+e.PartCount-1)
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "origin channel (default content.server_channel)")
	cmd.Flags().IntVar(&e.BasePosition, "base", 0, "message id of part 1")
	cmd.Flags().IntVar(&e.PartCount, "parts", 0, "number of parts")
	_ = cmd.MarkFlagRequired("base")
	_ = cmd.MarkFlagRequired("parts")
	return cmd
}

func contentRemoveCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <code>",
		Aliases: []string{"del"},
		Short:   "Delete a code",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ok, err := s.core.Registry.Delete(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("code %s not found", args[0])
			}
			fmt.Printf("%s %s deleted\n", okMark, bold(args[0]))
			return nil
		},
	}
}

func contentRenameCmd(g *globalFlags) *cobra.Command {
	var title string
	cmd := &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Move a code, keeping its counters",
		Long: `Move a code to a new number. The title is kept unless --title is set.

Examples:
  kinobot content rename 91 191
  kinobot content rename 91 91 --title "Naruto Shippuden"`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			err = s.core.Registry.Rename(ctxOf(cmd), args[0], args[1], title)
			switch {
			case errors.Is(err, catalog.ErrConflict):
				return fmt.Errorf("code %s already exists", args[1])
			case errors.Is(err, catalog.ErrNotFound):
				return fmt.Errorf("code %s not found", args[0])
			case err != nil:
				return err
			}
			fmt.Printf("%s %s → %s\n", okMark, args[0], bold(args[1]))
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "new title")
	return cmd
}

func contentListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List codes in numeric order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			list, err := s.core.Registry.List(ctxOf(cmd))
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println(dim("no codes registered"))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tPARTS\tTITLE")
			for _, e := range list {
				fmt.Fprintf(w, "%s\t%d\t%s\n", e.Code, e.PartCount, e.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Println(dim(strconv.Itoa(len(list)) + " codes"))
			return nil
		},
	}
}

func contentStatCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stat [code]",
		Short: "Show counters for one code, or totals",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ctx := ctxOf(cmd)
			if len(args) == 0 {
				codes, err := s.core.Registry.Count(ctx)
				if err != nil {
					return err
				}
				users, err := s.core.Store.CountSubscribers(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Codes:       %s\nSubscribers: %s\n", bold(codes), bold(users))
				return nil
			}
			c, ok, err := s.core.Stats.Read(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no statistics for %s", args[0])
			}
			e, found, err := s.core.Registry.Get(ctx, args[0])
			if err != nil {
				return err
			}
			title := color.New(color.FgYellow).Sprint("(not registered)")
			if found {
				title = e.Title
			}
			fmt.Printf("%s  %s\n  searched: %d\n  viewed:   %d\n", bold(c.Code), title, c.Searched, c.Viewed)
			return nil
		},
	}
}
