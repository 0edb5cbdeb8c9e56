package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"storefront-notifier/internal/core/ports"
	"storefront-notifier/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func tokenCmd(configPath *string) *cobra.Command {
	var tenant string
	cmd := &cobra.Command{
		Use:   "token [subject]",
		Short: "Issue an operator token for the HTTP API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth.secret is required to issue tokens")
			}
			tokens := service.NewJWTTokenService(cfg.Auth.Secret, cfg.Auth.Expiry, cfg.Auth.Issuer)
			return issueToken(cmd.OutOrStdout(), tokens, args[0], tenant)
		},
	}
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "pin the token to one tenant UUID")
	return cmd
}

func issueToken(w io.Writer, tokens ports.TokenService, subject, tenant string) error {
	var tenantID *uuid.UUID
	if tenant != "" {
		id, err := uuid.Parse(tenant)
		if err != nil {
			return fmt.Errorf("--tenant: %w", err)
		}
		tenantID = &id
	}

	token, expiresAt, err := tokens.Generate(subject, tenantID)
	if err != nil {
		return err
	}
	return writeJSON(w, map[string]string{
		"token":      token,
		"expires_at": expiresAt.UTC().Format(time.RFC3339),
	})
}
