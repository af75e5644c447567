package remote

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/corvidlabs/actorkit/actor"
)

// JSONCodec is the default MessageCodec: every registered message type
// is marshaled with encoding/json. Registration is required because
// Decode needs a concrete Go type to unmarshal into; actor.Message is a
// sealed interface with no reflection-friendly zero value.
type JSONCodec struct {
	mu        sync.RWMutex
	factories map[string]func() actor.Message
}

// NewJSONCodec returns an empty JSONCodec. Use Register to teach it
// about message types before it can Decode them.
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{
		factories: make(map[string]func() actor.Message),
	}
}

// Register associates a message type name with a zero-value factory,
// so Decode can allocate the right concrete type before unmarshaling
// into it. newZero must return a pointer to the message type (JSON
// unmarshaling requires an addressable target).
func (c *JSONCodec) Register(msgType string, newZero func() actor.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[msgType] = newZero
}

// Encode implements MessageCodec.
func (c *JSONCodec) Encode(msg actor.Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal %s: %w", msg.MessageType(), err)
	}
	return payload, nil
}

// Decode implements MessageCodec.
func (c *JSONCodec) Decode(msgType string, payload []byte) (actor.Message, error) {
	c.mu.RLock()
	newZero, ok := c.factories[msgType]
	c.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("remote: no codec registration for message type %q", msgType)
	}

	msg := newZero()
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("remote: unmarshal %s: %w", msgType, err)
	}
	return msg, nil
}
