package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// RemoteRef is an actor.ActorRef that addresses an actor on another
// node through a Bridge. M and R must both be actor.Message (unlike a
// local ActorRef's unconstrained R) because a reply has to travel back
// over the wire and be decoded into a concrete type.
type RemoteRef[M actor.Message, R actor.Message] struct {
	bridge   *Bridge
	node     string
	targetID string
}

// NewRemoteRef returns a ref that sends to targetID on node via bridge.
func NewRemoteRef[M actor.Message, R actor.Message](bridge *Bridge, node, targetID string) *RemoteRef[M, R] {
	return &RemoteRef[M, R]{bridge: bridge, node: node, targetID: targetID}
}

// ID implements actor.BaseActorRef.
func (r *RemoteRef[M, R]) ID() string { return r.node + "/" + r.targetID }

// Tell implements actor.TellOnlyRef.
func (r *RemoteRef[M, R]) Tell(ctx context.Context, msg M) {
	if err := r.bridge.SendTo(ctx, r.node, r.targetID, "", msg); err != nil {
		log.WarnS(ctx, "remote tell failed", err,
			"node", r.node, "target_id", r.targetID)
	}
}

// Ask implements actor.ActorRef: it spawns a short-lived local actor to
// receive exactly one reply envelope, addresses the outbound message's
// sender to it, and completes the returned Future once that reply
// arrives, or at once with ErrTransportError if the send fails. ctx
// bounds only the send: the Future is not completed when ctx expires,
// and the reply actor is withdrawn and stopped after the reply arrives
// or after five minutes.
func (r *RemoteRef[M, R]) Ask(ctx context.Context, msg M) actor.Future[R] {
	promise := actor.NewPromise[R]()

	seq := r.bridge.ephemeralSeq.Add(1)
	replyID := fmt.Sprintf("remote-ask-%d", seq)

	replyBehavior := &remoteAskReplyBehavior[R]{promise: promise}
	ref := actor.Spawn[R, any](r.bridge.sys, replyID, func() actor.ActorBehavior[R, any] {
		return replyBehavior
	})

	r.bridge.Expose(replyID, messageAdapter[R]{inner: ref})

	if err := r.bridge.SendTo(ctx, r.node, r.targetID, replyID, msg); err != nil {
		promise.Complete(fn.Err[R](fmt.Errorf("remote: %w: %v", actor.ErrTransportError, err)))
		r.bridge.Withdraw(replyID)
		return promise.Future()
	}

	cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), 5*time.Minute)
	promise.Future().OnComplete(cleanupCtx, func(fn.Result[R]) {
		cancelCleanup()
		r.bridge.Withdraw(replyID)
		r.bridge.sys.StopAndRemoveActor(replyID)
	})

	return promise.Future()
}

// remoteAskReplyBehavior completes its promise with the first reply it
// receives, mirroring actor.AskVia's ephemeral reply actor.
type remoteAskReplyBehavior[R actor.Message] struct {
	promise actor.Promise[R]
}

func (b *remoteAskReplyBehavior[R]) Receive(_ context.Context, msg R) fn.Result[any] {
	b.promise.Complete(fn.Ok(msg))
	return fn.Ok[any](nil)
}

// messageAdapter narrows an actor.TellOnlyRef[R] (R being some concrete
// message type) to actor.TellOnlyRef[actor.Message], so a typed local
// actor can be registered in Bridge.exposed, which is keyed by the
// type-erased interface. A *R is dereferenced and delivered as R;
// messages that are neither R nor *R are dropped rather than delivered,
// since R's behavior couldn't handle them anyway.
type messageAdapter[R actor.Message] struct {
	inner actor.TellOnlyRef[R]
}

func (a messageAdapter[R]) ID() string { return a.inner.ID() }

func (a messageAdapter[R]) Tell(ctx context.Context, msg actor.Message) {
	typed, ok := msg.(R)
	if !ok {
		// Codecs such as JSONCodec decode into a pointer to the
		// registered type, so *R is accepted as well.
		if p, isPtr := any(msg).(*R); isPtr && p != nil {
			typed, ok = *p, true
		}
	}
	if !ok {
		log.WarnS(ctx, "remote: dropped message with unexpected type for reply actor",
			nil, "want_type", fmt.Sprintf("%T", *new(R)), "actor_id", a.inner.ID())
		return
	}
	a.inner.Tell(ctx, typed)
}
