package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/corvidlabs/actorkit/remote"
)

var (
	sendTargetID string
	sendMsgType  string
	sendPayload  string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a raw JSON message to a remote actor",
	Long: `Send delivers a single envelope to an actor exposed on the
target node. --payload is the already-JSON-encoded message body, since
actorctl has no way to know the Go type a remote node registered for
--type; pair it with the same MsgType string the node's codec was
taught via remote.JSONCodec.Register.`,
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTargetID, "id", "",
		"Target actor id on the remote node (required)")
	sendCmd.Flags().StringVar(&sendMsgType, "type", "",
		"Registered message type name (required)")
	sendCmd.Flags().StringVar(&sendPayload, "payload", "{}",
		"JSON-encoded message payload")
	sendCmd.MarkFlagRequired("id")
	sendCmd.MarkFlagRequired("type")
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client, err := dial(ctx)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer client.Close()

	rpcCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	env := remote.Envelope{
		TargetID: sendTargetID,
		MsgType:  sendMsgType,
		Payload:  []byte(sendPayload),
	}

	resp, err := client.SendMessage(rpcCtx, env)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("send failed: %s", resp.Error)
	}
	fmt.Printf("sent %s to %s\n", sendMsgType, sendTargetID)
	return nil
}
