/*
Package rpcwire defines ridgeline's two gRPC services — the worker-
facing service (Register, SendStatusUpdates) and the controller-facing
service (ScheduleInstance, GetStatusUpdates) — by hand, in the shape
protoc-gen-go-grpc would otherwise generate from a .proto file.

There is no .proto file here and no protobuf wire format: messages are
plain Go structs (messages.go) encoded with a small JSON
encoding.Codec (codec.go) registered under the "json" content-subtype.
convert.go translates between these wire structs and the internal types
pkg/statemanager and pkg/events operate on. See DESIGN.md for why.

Servers register with grpc.Server via RegisterWorkerServiceServer /
RegisterControllerServiceServer; clients are constructed with
NewWorkerServiceClient / NewControllerServiceClient over any
grpc.ClientConnInterface dialed with grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.JSONCodecName)).
*/
package rpcwire
