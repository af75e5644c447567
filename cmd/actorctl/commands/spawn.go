package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	spawnKind string
	spawnID   string
)

var spawnCmd = &cobra.Command{
	Use:   "spawn",
	Short: "Spawn an actor from a registered template",
	RunE:  runSpawn,
}

func init() {
	spawnCmd.Flags().StringVar(&spawnKind, "kind", "",
		"Registered template name to spawn (required)")
	spawnCmd.Flags().StringVar(&spawnID, "id", "",
		"ID to assign the spawned actor (required)")
	spawnCmd.MarkFlagRequired("kind")
	spawnCmd.MarkFlagRequired("id")
}

func runSpawn(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()

	rpcCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := client.SpawnActor(rpcCtx, spawnKind, spawnID)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("spawn failed: %s", resp.Error)
	}
	fmt.Printf("spawned %s (%s)\n", spawnID, spawnKind)
	return nil
}
