package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/faucetdb/widgets/internal/config"
	"github.com/faucetdb/widgets/internal/service"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage admin tokens for the provisioning API",
	}

	cmd.AddCommand(newTokenIssueCmd())

	return cmd
}

func newTokenIssueCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Mint an admin JWT signed with auth.jwt_secret",
		Example: `  widgets token issue --subject ops@example.com --ttl 24h
  curl -H "Authorization: Bearer $(widgets token issue)" localhost:8080/api/v1/system/api-key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTokenIssue(subject, ttl)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "Subject recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default auth.jwt_expiry)")

	return cmd
}

func runTokenIssue(subject string, ttl time.Duration) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = cfg.JWTExpiry()
	}

	// Minting needs only the secret, so no store is opened.
	authSvc := service.NewAuthService(nil, cfg.Auth.JWTSecret, logger)
	token, err := authSvc.IssueJWT(context.Background(), subject, ttl)
	if errors.Is(err, service.ErrNoJWTSecret) {
		return fmt.Errorf("%w; set it in %s or WIDGETS_AUTH_JWT_SECRET", err, config.DefaultFile)
	}
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	return nil
}
