package actor

import (
	"context"
	"testing"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/stretchr/testify/require"
)

type recordingRef struct {
	id       string
	received *[]string
}

func (r recordingRef) ID() string { return r.id }

func (r recordingRef) Tell(_ context.Context, msg testMsg) {
	*r.received = append(*r.received, r.id+":"+msg.value)
}

func (r recordingRef) Ask(_ context.Context, msg testMsg) Future[string] {
	return AlreadyCompletedFuture[string](fn.Ok(r.id))
}

func newRecordingRefs(n int, received *[]string) []ActorRef[testMsg, string] {
	refs := make([]ActorRef[testMsg, string], n)
	for i := range refs {
		refs[i] = recordingRef{id: string(rune('a' + i)), received: received}
	}
	return refs
}

func TestRoundRobinStrategyCycles(t *testing.T) {
	t.Parallel()

	var received []string
	router := NewRouter(RouterConfig[testMsg, string]{
		ID:      "rr",
		Routees: newRecordingRefs(3, &received),
	})

	for i := 0; i < 6; i++ {
		router.Tell(context.Background(), newTestMsg("m"))
	}

	require.Len(t, received, 6)
	// Each of the 3 routees should have received exactly 2 messages.
	counts := map[string]int{}
	for _, r := range received {
		counts[r[:1]]++
	}
	require.Equal(t, 3, len(counts))
	for _, c := range counts {
		require.Equal(t, 2, c)
	}
}

func TestBroadcastStrategyDeliversToAll(t *testing.T) {
	t.Parallel()

	var received []string
	router := NewRouter(RouterConfig[testMsg, string]{
		Strategy: NewBroadcastStrategy[testMsg, string](),
		Routees:  newRecordingRefs(3, &received),
	})

	router.Tell(context.Background(), newTestMsg("ping"))
	require.Len(t, received, 3)
}

func TestRouterAddAndRemoveRoutee(t *testing.T) {
	t.Parallel()

	var received []string
	refs := newRecordingRefs(2, &received)
	router := NewRouter(RouterConfig[testMsg, string]{
		Strategy: NewBroadcastStrategy[testMsg, string](),
		Routees:  refs,
	})

	require.Len(t, router.GetRoutees(), 2)

	extra := recordingRef{id: "z", received: &received}
	router.AddRoutee(extra)
	require.Len(t, router.GetRoutees(), 3)

	router.RemoveRoutee(refs[0])
	routees := router.GetRoutees()
	require.Len(t, routees, 2)
	for _, r := range routees {
		require.NotEqual(t, refs[0].ID(), r.ID())
	}
}

func TestRouterAskWithNoRouteesFails(t *testing.T) {
	t.Parallel()

	router := NewRouter(RouterConfig[testMsg, string]{})
	future := router.Ask(context.Background(), newTestMsg("x"))
	_, err := future.Await(context.Background()).Unpack()
	require.ErrorIs(t, err, ErrActorNotFound)
}

func TestConsistentHashStrategyIsStableForSameKey(t *testing.T) {
	t.Parallel()

	strategy := NewConsistentHashStrategy[hashableMsg, string]()
	routees := make([]ActorRef[hashableMsg, string], 4)
	for i := range routees {
		routees[i] = hashRecordingRef{id: string(rune('a' + i))}
	}

	first := strategy.Select(routees, hashableMsg{key: "entity-42"})
	second := strategy.Select(routees, hashableMsg{key: "entity-42"})

	require.Len(t, first, 1)
	require.Equal(t, first[0].ID(), second[0].ID())
}

type hashableMsg struct {
	BaseMessage
	key string
}

func (hashableMsg) MessageType() string   { return "test.Hashable" }
func (m hashableMsg) RoutingKey() string  { return m.key }

type hashRecordingRef struct{ id string }

func (r hashRecordingRef) ID() string { return r.id }
func (r hashRecordingRef) Tell(context.Context, hashableMsg) {}
func (r hashRecordingRef) Ask(context.Context, hashableMsg) Future[string] {
	return AlreadyCompletedFuture[string](fn.Ok(r.id))
}
