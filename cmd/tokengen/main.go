package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/prompt-playground/internal/auth"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		secret  string
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "tokengen",
		Short: "Mint a bearer token for the playground API",
		Long: `Mint an HS256 bearer token accepted by the playground API when
AUTH_SECRET is set. The secret defaults to the AUTH_SECRET environment
variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("AUTH_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no secret: pass --secret or set AUTH_SECRET")
			}
			if ttl <= 0 {
				return fmt.Errorf("--ttl must be positive")
			}
			tok, err := auth.SignJWT(secret, subject, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (default $AUTH_SECRET)")
	cmd.Flags().StringVarP(&subject, "subject", "s", "playground", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
