package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/services"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for a user id using JWT_SECRET_KEY",
	RunE:  runToken,
}

var (
	tokenUserID string
	tokenTTL    time.Duration
)

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "User id (random when empty)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")

	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	userID := uuid.New()
	if tokenUserID != "" {
		parsed, err := uuid.Parse(tokenUserID)
		if err != nil {
			return fmt.Errorf("invalid --user: %w", err)
		}
		userID = parsed
	}
	auth, err := services.NewAuthService(logger.NewNop(), envutil.String("JWT_SECRET_KEY", ""))
	if err != nil {
		return err
	}
	token, err := auth.IssueToken(userID, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
