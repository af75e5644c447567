package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stopID string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop and unregister an actor",
	RunE:  runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopID, "id", "", "ID of the actor to stop (required)")
	stopCmd.MarkFlagRequired("id")
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()

	rpcCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := client.StopActor(rpcCtx, stopID)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("stop failed: %s", resp.Error)
	}
	fmt.Printf("stopped %s\n", stopID)
	return nil
}
