package remote

import (
	"testing"

	"github.com/corvidlabs/actorkit/actor"
	"github.com/stretchr/testify/require"
)

type greetMsg struct {
	actor.BaseMessage
	Name string
}

func (greetMsg) MessageType() string { return "remote.test.Greet" }

func TestJSONCodecRoundTrips(t *testing.T) {
	codec := NewJSONCodec()
	codec.Register("remote.test.Greet", func() actor.Message { return &greetMsg{} })

	payload, err := codec.Encode(greetMsg{Name: "ada"})
	require.NoError(t, err)

	decoded, err := codec.Decode("remote.test.Greet", payload)
	require.NoError(t, err)

	got, ok := decoded.(*greetMsg)
	require.True(t, ok)
	require.Equal(t, "ada", got.Name)
}

func TestJSONCodecDecodeUnregisteredTypeFails(t *testing.T) {
	codec := NewJSONCodec()

	_, err := codec.Decode("remote.test.Unknown", []byte(`{}`))
	require.Error(t, err)
}
