package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var watchID string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lifecycle events for a remote actor until interrupted",
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchID, "id", "", "ID of the actor to watch (required)")
	watchCmd.MarkFlagRequired("id")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()

	events, err := client.WatchActor(ctx, watchID)
	if err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				fmt.Printf("watch stream for %s closed\n", watchID)
				return nil
			}
			if ev.Terminated {
				fmt.Printf("%s: terminated\n", ev.ID)
				return nil
			}
			fmt.Printf("%s: event\n", ev.ID)
		case <-sig:
			fmt.Println("actorctl: interrupted")
			return nil
		}
	}
}
