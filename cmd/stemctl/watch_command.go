package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stemline/api/internal/events"
	"github.com/stemline/api/internal/model"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print track created events as they are published",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Events.NatsURL == "" {
				return errors.New("NATS_URL is not configured")
			}

			client, err := events.Connect(cfg.Events.NatsURL)
			if err != nil {
				return fmt.Errorf("connect nats: %w", err)
			}
			defer client.Close()

			subject := cfg.Events.Subject
			if subject == "" {
				subject = events.DefaultTrackCreatedSubject
			}

			out := cmd.OutOrStdout()
			sub, err := client.SubscribeJSON(subject, func(_ context.Context, data []byte) {
				printEvent(out, data)
			})
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", subject, err)
			}
			defer func() { _ = sub.Unsubscribe() }()

			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s, press Ctrl+C to stop\n", subject)
			<-cmd.Context().Done()
			return nil
		},
	}
}

func printEvent(out io.Writer, data []byte) {
	var event model.TrackCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		fmt.Fprintf(out, "malformed event: %v\n", err)
		return
	}
	fmt.Fprintf(out, "%s  %s  %-9s  stems=%s\n",
		event.CreatedAt.Format(time.RFC3339),
		event.TrackID,
		event.Source,
		strings.Join(sortedKeys(event.Stems), ","),
	)
}
