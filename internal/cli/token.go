// ABOUTME: token command that mints API bearer tokens
// ABOUTME: Signs with auth.jwt_secret from the config file

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/coven-responder/internal/auth"
)

func newTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		chats   []string
		expires time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an HTTP API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}

			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}
			token, err := verifier.Generate(subject, chats, expires)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Token subject (required)")
	cmd.Flags().StringSliceVar(&chats, "chat", nil, "Restrict the token to these chats (repeatable; default all)")
	cmd.Flags().DurationVar(&expires, "expires", 30*24*time.Hour, "Token lifetime; 0 for no expiry")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
