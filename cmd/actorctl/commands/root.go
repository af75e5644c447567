// Package commands implements the actorctl subcommand tree, modeled on
// the teacher's cmd/substrate/commands package: a cobra root command
// with persistent flags shared by every subcommand, and one file per
// subcommand.
package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvidlabs/actorkit/remote"
)

var (
	// target is the actord gRPC listen address to dial.
	target string

	// requestTimeout bounds each RPC made by a subcommand.
	requestTimeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "actorctl",
	Short: "Control and inspect a running actord node",
	Long: `actorctl drives a running actord process over its gRPC remote
transport: spawn and stop actors, send messages, and watch an actor's
lifecycle events.`,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&target, "target", "localhost:7070",
		"Address of the actord gRPC transport to dial",
	)
	rootCmd.PersistentFlags().DurationVar(
		&requestTimeout, "timeout", 5*time.Second,
		"Per-request timeout",
	)

	rootCmd.AddCommand(spawnCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
}

// dial opens a Client against the --target address, bounding the dial
// itself by --timeout.
func dial(ctx context.Context) (*remote.Client, error) {
	dialCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return remote.DialClient(dialCtx, target)
}
