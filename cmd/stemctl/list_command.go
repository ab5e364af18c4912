package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// recentLister is implemented by document stores that index tracks by time
type recentLister interface {
	Recent(ctx context.Context, limit int64) ([]string, error)
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recently stored tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents(cmd.Context())
			if err != nil {
				return err
			}

			lister, ok := components.Tracks.(recentLister)
			if !ok {
				return errors.New("listing requires the redis document backend")
			}

			ids, err := lister.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No tracks stored")
				return nil
			}

			rows := make([][]string, 0, len(ids))
			for _, id := range ids {
				track, err := components.Tracks.Get(cmd.Context(), id)
				if err != nil {
					rows = append(rows, []string{id, "?", "?", "?"})
					continue
				}
				rows = append(rows, []string{
					track.TrackID,
					string(track.Source),
					track.CreatedAt.Format(time.RFC3339),
					strconv.Itoa(len(track.Stems)),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"Track ID", "Source", "Created", "Stems"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().Int64VarP(&limit, "limit", "n", 20, "Number of tracks to list")

	return cmd
}
