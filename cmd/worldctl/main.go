// Command worldctl drives the worlds API from a terminal.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/yungbote/learnworld-backend/internal/platform/envutil"
	"github.com/yungbote/learnworld-backend/internal/platform/logger"
	"github.com/yungbote/learnworld-backend/internal/realtime/feedclient"
)

var rootCmd = &cobra.Command{
	Use:           "worldctl",
	Short:         "Generate and watch learning worlds",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	apiBaseURL string
	apiToken   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api", "", "API base URL (default $WORLDCTL_API or http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", "", "Bearer token (default $WORLDCTL_TOKEN)")
}

func newClient() (*feedclient.Client, error) {
	base := apiBaseURL
	if base == "" {
		base = envutil.String("WORLDCTL_API", "http://localhost:8080")
	}
	token := apiToken
	if token == "" {
		token = envutil.String("WORLDCTL_TOKEN", "")
	}
	if token == "" {
		return nil, fmt.Errorf("token is required (set WORLDCTL_TOKEN or use --token)")
	}
	log, err := logger.New(envutil.String("LOG_MODE", "production"))
	if err != nil {
		return nil, err
	}
	return feedclient.New(base, token, log), nil
}

func main() {
	_ = godotenv.Load()

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
