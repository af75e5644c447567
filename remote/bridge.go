package remote

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/corvidlabs/actorkit/actor"
)

// PeerResolver maps a remote node name to the dial target (gRPC
// listen address, or watermill topic) a Transport needs for Send.
type PeerResolver interface {
	Resolve(node string) (target string, ok bool)
}

// StaticPeerResolver is the simplest PeerResolver: a fixed node->target
// table, updated as cluster membership changes.
type StaticPeerResolver struct {
	mu    sync.RWMutex
	peers map[string]string
}

// NewStaticPeerResolver constructs an empty StaticPeerResolver.
func NewStaticPeerResolver() *StaticPeerResolver {
	return &StaticPeerResolver{peers: make(map[string]string)}
}

// Set records or updates the dial target for a node.
func (r *StaticPeerResolver) Set(node, target string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.peers[node] = target
}

// Remove forgets a node, e.g. once cluster membership marks it Dead.
func (r *StaticPeerResolver) Remove(node string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.peers, node)
}

// Resolve implements PeerResolver.
func (r *StaticPeerResolver) Resolve(node string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	target, ok := r.peers[node]
	return target, ok
}

// Bridge wires an *actor.ActorSystem to a Transport: outbound sends to
// a PID on a remote node are serialized and handed to the transport;
// inbound envelopes are decoded and delivered to a locally exposed
// actor. It implements the serialize/deliver half of remote messaging;
// RemoteRef (remote_ref.go) implements the client-facing ActorRef half.
type Bridge struct {
	sys       *actor.ActorSystem
	transport Transport
	codec     MessageCodec
	resolver  PeerResolver
	localNode string

	mu      sync.RWMutex
	exposed map[string]actor.TellOnlyRef[actor.Message]

	ephemeralSeq atomic.Uint64
}

// NewBridge constructs a Bridge. localNode is this process's own node
// name, used to stamp SenderNode on outbound envelopes so replies know
// where to come back to.
func NewBridge(
	sys *actor.ActorSystem, transport Transport, codec MessageCodec,
	resolver PeerResolver, localNode string,
) *Bridge {
	return &Bridge{
		sys:       sys,
		transport: transport,
		codec:     codec,
		resolver:  resolver,
		localNode: localNode,
		exposed:   make(map[string]actor.TellOnlyRef[actor.Message]),
	}
}

// Start begins accepting inbound envelopes on the underlying transport.
func (b *Bridge) Start(ctx context.Context) error {
	return b.transport.Start(ctx, b.handleInbound)
}

// Stop shuts the underlying transport down.
func (b *Bridge) Stop(ctx context.Context) error {
	return b.transport.Stop(ctx)
}

// Expose makes a local actor reachable from remote nodes under id,
// decoding inbound envelopes with the Bridge's codec before delivering
// them as Tells.
func (b *Bridge) Expose(id string, ref actor.TellOnlyRef[actor.Message]) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.exposed[id] = ref
}

// Withdraw stops exposing a previously-Expose'd actor to remote peers.
func (b *Bridge) Withdraw(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.exposed, id)
}

func (b *Bridge) handleInbound(ctx context.Context, env Envelope) error {
	b.mu.RLock()
	ref, ok := b.exposed[env.TargetID]
	b.mu.RUnlock()

	if !ok {
		return fmt.Errorf("remote: %w: no exposed actor %q", actor.ErrActorNotFound, env.TargetID)
	}

	msg, err := b.codec.Decode(env.MsgType, env.Payload)
	if err != nil {
		return err
	}

	if env.SenderID != "" {
		ctx = contextWithSender(ctx, env.SenderNode, env.SenderID)
	}

	ref.Tell(ctx, msg)
	return nil
}

// senderContextKey is the unexported key under which a delivered
// envelope's sender address is stashed, so a receiving behavior can
// address a reply without the message payload needing its own reply-to
// field.
type senderContextKey struct{}

// sender is the (node, id) pair recovered from an inbound envelope's
// SenderNode/SenderID.
type sender struct {
	Node string
	ID   string
}

func contextWithSender(ctx context.Context, node, id string) context.Context {
	return context.WithValue(ctx, senderContextKey{}, sender{Node: node, ID: id})
}

// SenderFromContext recovers the (node, id) of whoever sent the
// message being processed, if the inbound envelope carried one (i.e.
// this message arrived via a RemoteRef.Ask or an explicit senderID
// passed to Bridge.SendTo).
func SenderFromContext(ctx context.Context) (node, id string, ok bool) {
	s, ok := ctx.Value(senderContextKey{}).(sender)
	if !ok {
		return "", "", false
	}
	return s.Node, s.ID, true
}

// SendTo serializes msg and hands it to the transport for delivery to
// targetID on node. senderID, when non-empty, is stamped into the
// envelope so the remote side can address a reply back to a local
// ephemeral actor (see RemoteRef.Ask).
func (b *Bridge) SendTo(ctx context.Context, node, targetID, senderID string, msg actor.Message) error {
	target, ok := b.resolver.Resolve(node)
	if !ok {
		return fmt.Errorf("remote: %w: unknown node %q", actor.ErrPeerUnreachable, node)
	}

	payload, err := b.codec.Encode(msg)
	if err != nil {
		return err
	}

	env := Envelope{
		TargetID:   targetID,
		MsgType:    msg.MessageType(),
		Payload:    payload,
		SenderNode: b.localNode,
		SenderID:   senderID,
	}

	return b.transport.Send(ctx, target, env)
}

// LocalNode returns this bridge's own node name.
func (b *Bridge) LocalNode() string { return b.localNode }
