// Package remote connects an actor.ActorSystem to its peers: serializing
// envelopes, delivering them over a wire transport, and driving
// remote-spawn and watch-stream requests. Two Transport implementations
// are provided, a point-to-point gRPC transport and a peer-to-peer
// watermill pub/sub transport; callers pick whichever fits their
// deployment topology and hand it to a Bridge.
package remote

import (
	"context"
	"errors"

	"github.com/corvidlabs/actorkit/actor"
)

// ErrTransportNotStarted indicates an operation was attempted before
// Start or after Stop.
var ErrTransportNotStarted = errors.New("transport not started")

// Envelope is the wire representation of a single message crossing a
// node boundary. MsgType identifies how Payload should be decoded on
// the receiving side; the Bridge owns a registry mapping MsgType names
// to concrete actor.Message constructors.
type Envelope struct {
	// TargetID is the destination actor's id on the receiving node.
	TargetID string

	// MsgType is the registered type name of the payload message.
	MsgType string

	// Payload is the JSON-encoded message body.
	Payload []byte

	// SenderNode and SenderID identify the originating actor, if any,
	// for reply routing. Both empty means "no reply expected".
	SenderNode string
	SenderID   string

	// Metadata carries trace context and other out-of-band fields,
	// flattened to string pairs so it survives any codec.
	Metadata map[string]string
}

// InboundHandler processes an Envelope delivered by a Transport. It is
// supplied by the Bridge and should not block for long; slow work
// should be hand off to an actor.
type InboundHandler func(ctx context.Context, env Envelope) error

// Transport is the provider-agnostic interface a Bridge drives. Both
// GRPCTransport (point-to-point) and PubSubTransport (peer-to-peer)
// satisfy it.
type Transport interface {
	// Start begins accepting inbound envelopes, invoking handler for
	// each one. Start must be called before Send.
	Start(ctx context.Context, handler InboundHandler) error

	// Stop gracefully shuts the transport down, releasing any sockets,
	// channels, or subscriptions it holds.
	Stop(ctx context.Context) error

	// Send delivers env to the node named by target. The target string
	// is transport-specific: a "host:port" dial address for
	// GRPCTransport, a topic/node-id for PubSubTransport.
	Send(ctx context.Context, target string, env Envelope) error

	// LocalAddress returns the address peers should use to reach this
	// transport (a listen address or a topic name).
	LocalAddress() string
}

// compile-time interface satisfaction checks, populated by the concrete
// transport files.
var (
	_ Transport = (*GRPCTransport)(nil)
	_ Transport = (*PubSubTransport)(nil)
)

// MessageCodec encodes and decodes actor.Message payloads for the wire.
// The default implementation is JSON; callers with a protobuf schema
// can supply their own.
type MessageCodec interface {
	Encode(msg actor.Message) ([]byte, error)
	Decode(msgType string, payload []byte) (actor.Message, error)
}
