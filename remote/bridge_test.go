package remote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

// inProcessTransport connects two Bridges without any real network or
// broker: Send on one side looks up the peer's registered handler by
// target address and calls it directly, synchronously. It exists only
// to exercise Bridge/RemoteRef wiring in isolation from GRPCTransport
// and PubSubTransport's real I/O.
type inProcessTransport struct {
	addr string
	reg  *inProcessRegistry

	mu      sync.Mutex
	handler InboundHandler
}

type inProcessRegistry struct {
	mu        sync.Mutex
	transports map[string]*inProcessTransport
}

func newInProcessRegistry() *inProcessRegistry {
	return &inProcessRegistry{transports: make(map[string]*inProcessTransport)}
}

func (r *inProcessRegistry) newTransport(addr string) *inProcessTransport {
	t := &inProcessTransport{addr: addr, reg: r}
	r.mu.Lock()
	r.transports[addr] = t
	r.mu.Unlock()
	return t
}

func (t *inProcessTransport) Start(_ context.Context, handler InboundHandler) error {
	t.mu.Lock()
	t.handler = handler
	t.mu.Unlock()
	return nil
}

func (t *inProcessTransport) Stop(context.Context) error { return nil }

func (t *inProcessTransport) LocalAddress() string { return t.addr }

func (t *inProcessTransport) Send(ctx context.Context, target string, env Envelope) error {
	t.reg.mu.Lock()
	peer, ok := t.reg.transports[target]
	t.reg.mu.Unlock()

	if !ok {
		return ErrTransportNotStarted
	}

	peer.mu.Lock()
	handler := peer.handler
	peer.mu.Unlock()

	return handler(ctx, env)
}

type pongMsg struct {
	actor.BaseMessage
	Text string
}

func (pongMsg) MessageType() string { return "remote.test.Pong" }

type echoRequest struct {
	actor.BaseMessage
	ReplyNode string
	ReplyID   string
	Text      string
}

func (echoRequest) MessageType() string { return "remote.test.EchoRequest" }

func newTestBridge(t *testing.T, reg *inProcessRegistry, node string) (*Bridge, *actor.ActorSystem) {
	t.Helper()

	sys := actor.NewActorSystem()
	transport := reg.newTransport(node)
	codec := NewJSONCodec()
	codec.Register("remote.test.Pong", func() actor.Message { return &pongMsg{} })
	codec.Register("remote.test.EchoRequest", func() actor.Message { return &echoRequest{} })

	resolver := NewStaticPeerResolver()
	bridge := NewBridge(sys, transport, codec, resolver, node)
	require.NoError(t, bridge.Start(context.Background()))
	t.Cleanup(func() {
		bridge.Stop(context.Background())
		sys.Shutdown(context.Background())
	})

	return bridge, sys
}

func TestBridgeDeliversTellToExposedActor(t *testing.T) {
	reg := newInProcessRegistry()

	alice, aliceSys := newTestBridge(t, reg, "alice")
	bob, _ := newTestBridge(t, reg, "bob")
	alice.resolver.(*StaticPeerResolver).Set("bob", "bob")
	bob.resolver.(*StaticPeerResolver).Set("alice", "alice")

	received := make(chan string, 1)
	ref := actor.Spawn[pongMsg, any](bob.sys, "echoer", func() actor.ActorBehavior[pongMsg, any] {
		return actor.NewFunctionBehavior(func(_ context.Context, msg pongMsg) fn.Result[any] {
			received <- msg.Text
			return fn.Ok[any](nil)
		})
	})
	bob.Expose("echoer", messageAdapter[pongMsg]{inner: ref})

	err := alice.SendTo(context.Background(), "bob", "echoer", "", pongMsg{Text: "hi"})
	require.NoError(t, err)

	select {
	case text := <-received:
		require.Equal(t, "hi", text)
	case <-time.After(time.Second):
		t.Fatal("bob never received the message")
	}

	_ = aliceSys
}

func TestBridgeSendToUnknownNodeFails(t *testing.T) {
	reg := newInProcessRegistry()
	alice, _ := newTestBridge(t, reg, "alice")

	err := alice.SendTo(context.Background(), "nowhere", "x", "", pongMsg{Text: "hi"})
	require.ErrorIs(t, err, actor.ErrPeerUnreachable)
}

func TestBridgeHandleInboundUnknownTargetFails(t *testing.T) {
	reg := newInProcessRegistry()
	alice, _ := newTestBridge(t, reg, "alice")

	err := alice.handleInbound(context.Background(), Envelope{TargetID: "ghost", MsgType: "remote.test.Pong"})
	require.ErrorIs(t, err, actor.ErrActorNotFound)
}

func TestRemoteRefAskRoundTripsThroughBridge(t *testing.T) {
	reg := newInProcessRegistry()

	alice, _ := newTestBridge(t, reg, "alice")
	bob, _ := newTestBridge(t, reg, "bob")
	alice.resolver.(*StaticPeerResolver).Set("bob", "bob")
	bob.resolver.(*StaticPeerResolver).Set("alice", "alice")

	responder := actor.Spawn[echoRequest, any](bob.sys, "responder", func() actor.ActorBehavior[echoRequest, any] {
		return actor.NewFunctionBehavior(func(ctx context.Context, req echoRequest) fn.Result[any] {
			node, id, ok := SenderFromContext(ctx)
			require.True(t, ok, "inbound request should carry sender addressing")

			err := bob.SendTo(ctx, node, id, "", pongMsg{Text: "echo:" + req.Text})
			if err != nil {
				return fn.Err[any](err)
			}
			return fn.Ok[any](nil)
		})
	})
	bob.Expose("responder", messageAdapter[echoRequest]{inner: responder})

	remote := NewRemoteRef[echoRequest, pongMsg](alice, "bob", "responder")

	future := remote.Ask(context.Background(), echoRequest{Text: "hi"})
	result := future.Await(context.Background())
	reply, err := result.Unpack()
	require.NoError(t, err)
	require.Equal(t, "echo:hi", reply.Text)
}
