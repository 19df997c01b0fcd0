package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/zen-systems/nexus/pkg/conversation"
)

func conversationsCmd() *cobra.Command {
	var userFlag string

	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   "Manage recorded conversations",
		Long: `Lists and edits conversations recorded by "nexus chat". Without a
	database_url conversations live only for the duration of one command.`,
	}
	cmd.PersistentFlags().StringVar(&userFlag, "user", "", "owner id (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	var (
		limitFlag     int
		offsetFlag    int
		favoritesFlag bool
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List conversations, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			items, err := a.repo.List(cmd.Context(), userFlag, conversation.ListOptions{
				Limit:         limitFlag,
				Offset:        offsetFlag,
				FavoritesOnly: favoritesFlag,
			})
			if err != nil {
				return err
			}
			total, err := a.repo.Count(cmd.Context(), userFlag)
			if err != nil {
				return err
			}
			return writeConversationList(os.Stdout, items, offsetFlag, total)
		},
	}
	list.Flags().IntVar(&limitFlag, "limit", conversation.DefaultListLimit, "maximum conversations to list")
	list.Flags().IntVar(&offsetFlag, "offset", 0, "conversations to skip")
	list.Flags().BoolVar(&favoritesFlag, "favorites", false, "only favorites")

	show := &cobra.Command{
		Use:   "show [id]",
		Short: "Print a conversation with its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.repo.Get(cmd.Context(), userFlag, args[0])
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	}

	rename := &cobra.Command{
		Use:   "rename [id] [title]",
		Short: "Change a conversation's title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.repo.UpdateTitle(cmd.Context(), userFlag, args[0], args[1])
		},
	}

	favorite := &cobra.Command{
		Use:   "favorite [id] [true|false]",
		Short: "Mark or unmark a conversation as favorite",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := true
			if len(args) == 2 {
				v, err := strconv.ParseBool(args[1])
				if err != nil {
					return fmt.Errorf("invalid favorite value %q: %w", args[1], err)
				}
				value = v
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.repo.SetFavorite(cmd.Context(), userFlag, args[0], value)
		},
	}

	del := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a conversation and its messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.repo.Delete(cmd.Context(), userFlag, args[0])
		},
	}

	cmd.AddCommand(list, show, rename, favorite, del)
	return cmd
}

func writeConversationList(out io.Writer, items []conversation.Conversation, offset, total int) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tMODEL\tMODE\tFAVORITE\tUPDATED")
	for _, c := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n",
			c.ID, c.Title, c.Model, c.Mode, c.Favorite, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(items) == 0 {
		_, err := fmt.Fprintf(out, "\n0 of %d conversations\n", total)
		return err
	}
	offset = max(offset, 0)
	_, err := fmt.Fprintf(out, "\n%d-%d of %d conversations\n", offset+1, offset+len(items), total)
	return err
}
