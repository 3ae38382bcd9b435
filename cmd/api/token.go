package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Access token utilities",
}

var tokenIssueFlags struct {
	userID   int64
	role     string
	verified bool
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign an access token for an existing account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		principal := domain.Principal{
			UserID:     tokenIssueFlags.userID,
			Role:       domain.Role(tokenIssueFlags.role),
			IsVerified: tokenIssueFlags.verified,
		}
		if principal.UserID <= 0 {
			return errors.New("--user-id must be positive")
		}
		if !principal.Role.Valid() {
			return fmt.Errorf("unknown role %q", tokenIssueFlags.role)
		}
		token, expires, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes).GenerateToken(principal)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().Int64Var(&tokenIssueFlags.userID, "user-id", 0, "account id")
	tokenIssueCmd.Flags().StringVar(&tokenIssueFlags.role, "role", string(domain.RoleUser), "user, agent or admin")
	tokenIssueCmd.Flags().BoolVar(&tokenIssueFlags.verified, "verified", true, "mark the email as verified")
	_ = tokenIssueCmd.MarkFlagRequired("user-id")
	tokenCmd.AddCommand(tokenIssueCmd)
}
