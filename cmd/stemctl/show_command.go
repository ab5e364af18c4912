package main

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/store"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trackId>",
		Short: "Display a stored track document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := ctx.ensureComponents(cmd.Context())
			if err != nil {
				return err
			}

			track, err := components.Tracks.Get(cmd.Context(), args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("track %s not found", args[0])
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, trackRows(track), nil))
			fmt.Fprintln(out, renderTable([]string{"Stem", "URL"}, stemRows(track.Stems), nil))
			return nil
		},
	}
}

func trackRows(track *model.Track) [][]string {
	rows := [][]string{
		{"Track ID", track.TrackID},
		{"Source", string(track.Source)},
		{"Created", track.CreatedAt.Format(time.RFC3339)},
		{"Original", track.OriginalTrackURL},
	}
	if track.Sonauto != nil {
		rows = append(rows,
			[]string{"Sonauto task", track.Sonauto.TaskID},
			[]string{"Prompt", track.Sonauto.Prompt},
		)
	}
	rows = append(rows,
		[]string{"Music.AI job", track.MusicAI.JobID},
		[]string{"Workflow", track.MusicAI.Workflow},
	)
	if d := track.MusicAI.Result.Duration; d != nil {
		rows = append(rows, []string{"Duration", strconv.FormatFloat(*d, 'f', 1, 64) + "s"})
	}
	return rows
}

func stemRows(stems map[string]string) [][]string {
	rows := make([][]string, 0, len(stems))
	for _, name := range sortedKeys(stems) {
		rows = append(rows, []string{name, stems[name]})
	}
	return rows
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
