package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yungbote/learnworld-backend/internal/platform/shutdown"
	"github.com/yungbote/learnworld-backend/internal/realtime/feedclient"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow live status changes of your worlds until interrupted",
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	client, err := newClient()
	if err != nil {
		return err
	}
	ctx, stop := shutdown.NotifyContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	err = client.Watch(ctx, func(u feedclient.Update) {
		if u.Event == nil {
			fmt.Fprintf(out, "loaded %d worlds\n", len(u.State.Rows))
			return
		}
		fmt.Fprintf(out, "%-6s %s %s\n", u.Event.Type, u.Event.Row.ID(), u.Event.Row.Status())
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
