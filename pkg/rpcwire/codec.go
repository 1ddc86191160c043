package rpcwire

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// JSONCodecName is the gRPC content-subtype this codec registers under.
// Clients must request it explicitly (grpc.CallContentSubtype), since it
// is not the package-level default codec; servers pick it up from the
// registration in init by the request's content-subtype.
const JSONCodecName = "json"

// jsonCodec marshals gRPC messages with encoding/json instead of
// protobuf wire format. See DESIGN.md "Protobuf without protoc" for why:
// this environment cannot invoke protoc, so the wire messages are plain
// Go structs rather than protoc-gen-go output, and need a matching codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return JSONCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
