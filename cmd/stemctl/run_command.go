package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stemline/api/internal/model"
	"github.com/stemline/api/internal/pipeline"
)

var audioContentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var file string
	var prompt string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the stored track",
		Long: "Separates --file into stems, or generates a track from --prompt when no file is given.\n" +
			"Every artifact is stored exactly as the API server would store it.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := loadInput(file, prompt)
			if err != nil {
				return err
			}

			components, err := ctx.ensureComponents(cmd.Context())
			if err != nil {
				return err
			}

			logger := ctx.logger()
			runCtx := logger.WithContext(cmd.Context())
			errOut := cmd.ErrOrStderr()

			resp, err := components.Pipeline.Run(runCtx, input, func(stage model.PipelineStage, percent int, detail string) {
				fmt.Fprintf(errOut, "%3d%%  %-18s %s\n", percent, stage, detail)
			})
			if err != nil {
				return fmt.Errorf("pipeline run failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderResponse(resp))
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Audio file to separate")
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt for track generation")

	return cmd
}

func loadInput(file, prompt string) (pipeline.Input, error) {
	input := pipeline.Input{Prompt: strings.TrimSpace(prompt)}
	if file == "" {
		return input, nil
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("read %s: %w", file, err)
	}
	if len(data) == 0 {
		return pipeline.Input{}, fmt.Errorf("%s is empty", file)
	}

	contentType, ok := audioContentTypes[strings.ToLower(filepath.Ext(file))]
	if !ok {
		contentType = "application/octet-stream"
	}

	input.Upload = &pipeline.Upload{
		Filename:    filepath.Base(file),
		ContentType: contentType,
		Data:        data,
	}
	return input, nil
}

func renderResponse(resp *model.GenerateTrackResponse) string {
	rows := [][]string{
		{"Track ID", resp.TrackID},
		{"Track URL", resp.TrackURL},
	}
	for _, name := range sortedKeys(resp.Stems) {
		rows = append(rows, []string{"Stem " + name, resp.Stems[name]})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}
