// Command actorctl is a thin CLI client for a running actord node,
// talking to it over the same hand-written gRPC transport the node
// exposes to other nodes (remote.Client wraps the identical
// SpawnActor/StopActor/SendMessage/WatchActor surface).
package main

import (
	"fmt"
	"os"

	"github.com/corvidlabs/actorkit/cmd/actorctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
