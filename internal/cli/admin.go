package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"kinobot/internal/access"
)

func adminCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage bot admins",
		Long: `Owners come from telegram.owner_user_ids and are always admins.
These commands manage the additional admins kept in the database.`,
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <user_id>",
		Short: "Grant admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			added, err := s.core.Admins.Add(ctxOf(cmd), id, 0)
			if err != nil {
				return err
			}
			if !added {
				fmt.Printf("%d is already an admin\n", id)
				return nil
			}
			fmt.Printf("%s %d is now an admin\n", okMark, id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <user_id>",
		Short: "Revoke admin rights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			removed, err := s.core.Admins.Remove(ctxOf(cmd), id)
			switch {
			case errors.Is(err, access.ErrOwner):
				return fmt.Errorf("%d is an owner; edit telegram.owner_user_ids instead", id)
			case err != nil:
				return err
			case !removed:
				return fmt.Errorf("%d is not an admin", id)
			}
			fmt.Printf("%s %d removed\n", okMark, id)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List owners and admins",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := g.open()
			if err != nil {
				return err
			}
			defer s.Close()
			ids, err := s.core.Admins.All(ctxOf(cmd))
			if err != nil {
				return err
			}
			for _, id := range ids {
				tag := ""
				if s.core.Admins.IsOwner(id) {
					tag = dim(" (owner)")
				}
				fmt.Printf("%d%s\n", id, tag)
			}
			return nil
		},
	})
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return id, nil
}
