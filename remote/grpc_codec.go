package remote

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with grpc's global encoding registry so
// every GRPCTransport connection negotiates "application/grpc+json"
// framing instead of protobuf. No protoc invocation is available in
// this environment; grpc.Codec is a first-class extension point and
// JSON-over-gRPC is a supported, if less common, wire format.
const jsonCodecName = "json"

func init() {
	encoding.RegisterCodec(grpcJSONCodec{})
}

// grpcJSONCodec implements google.golang.org/grpc/encoding.Codec.
type grpcJSONCodec struct{}

func (grpcJSONCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("remote: grpc json marshal: %w", err)
	}
	return b, nil
}

func (grpcJSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("remote: grpc json unmarshal: %w", err)
	}
	return nil
}

func (grpcJSONCodec) Name() string { return jsonCodecName }
