package main

import (
	"fmt"
	"os"
	"time"

	"secure-withdrawal-gateway/config"
	"secure-withdrawal-gateway/internal/service"
	"secure-withdrawal-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	accountID  string
	ttl        time.Duration
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Issue a bearer token for a gateway account",
		Long: `Issues a bearer token signed with the gateway's JWT settings.

Intended for local development and smoke tests against a running gateway.
Reads the same configuration (file and SWG_ environment) as the API.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(accountID)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			log := logger.NewWithWriter(cfg.Log.Level, cmd.ErrOrStderr())

			expiry := cfg.JWT.Expiry
			if ttl > 0 {
				expiry = ttl
			}
			tokens := service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer)
			token, expiresAt, err := tokens.Generate(id)
			if err != nil {
				return fmt.Errorf("generate token: %w", err)
			}

			log.Debug().Str("account_id", id.String()).Time("expires_at", expiresAt).Msg("token issued")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default ./config.yaml)")
	cmd.Flags().StringVarP(&accountID, "account", "a", "", "account id the token is issued for")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default jwt.expiry)")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}
