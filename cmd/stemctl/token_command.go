package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/stemline/api/internal/auth"
)

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var email string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an HMAC bearer token for the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("ttl") {
				ttl = time.Duration(cfg.JWT.Expiration) * time.Hour
			}

			token, err := auth.IssueLegacyToken(cfg.JWT.Secret, userID, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&email, "email", "", "Email to embed in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (defaults to JWT_EXPIRATION hours)")

	return cmd
}
