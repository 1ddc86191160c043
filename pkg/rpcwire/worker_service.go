package rpcwire

import (
	"context"

	"google.golang.org/grpc"
)

// WorkerServiceServer is the server API for the worker-facing gRPC
// service (spec.md §4.4 "Worker service"). A worker calls Register once
// at startup and receives a stream of InstanceSchedulingMessage for as
// long as the connection lives; it calls SendStatusUpdates to stream
// WorkerMetric/InstanceMetric reports back.
type WorkerServiceServer interface {
	Register(*WorkerRegistrationMessage, WorkerService_RegisterServer) error
	SendStatusUpdates(WorkerService_SendStatusUpdatesServer) error
}

// WorkerService_RegisterServer is the server-side stream handed to
// WorkerServiceServer.Register; the scheduler holds its producer side
// open for the life of the worker's connection.
type WorkerService_RegisterServer interface {
	Send(*InstanceSchedulingMessage) error
	grpc.ServerStream
}

type workerServiceRegisterServer struct {
	grpc.ServerStream
}

func (s *workerServiceRegisterServer) Send(m *InstanceSchedulingMessage) error {
	return s.ServerStream.SendMsg(m)
}

// WorkerService_SendStatusUpdatesServer is the server-side stream for
// SendStatusUpdates: the worker is the client-stream producer, the
// scheduler drains it until end-of-stream and replies once with Empty.
type WorkerService_SendStatusUpdatesServer interface {
	Recv() (*WorkerStatusMessage, error)
	SendAndClose(*Empty) error
	grpc.ServerStream
}

type workerServiceSendStatusUpdatesServer struct {
	grpc.ServerStream
}

func (s *workerServiceSendStatusUpdatesServer) Recv() (*WorkerStatusMessage, error) {
	m := new(WorkerStatusMessage)
	if err := s.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *workerServiceSendStatusUpdatesServer) SendAndClose(m *Empty) error {
	return s.ServerStream.SendMsg(m)
}

func registerHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(WorkerRegistrationMessage)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(WorkerServiceServer).Register(m, &workerServiceRegisterServer{stream})
}

func sendStatusUpdatesHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(WorkerServiceServer).SendStatusUpdates(&workerServiceSendStatusUpdatesServer{stream})
}

// WorkerServiceServiceDesc is the hand-written equivalent of what
// protoc-gen-go-grpc would emit for the worker service. It is
// registered against a *grpc.Server via grpc.RegisterService (or a
// generated-style RegisterWorkerServiceServer wrapper, below).
var WorkerServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "ridgeline.rpcwire.WorkerService",
	HandlerType: (*WorkerServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Register",
			Handler:       registerHandler,
			ServerStreams: true,
		},
		{
			StreamName:    "SendStatusUpdates",
			Handler:       sendStatusUpdatesHandler,
			ClientStreams: true,
		},
	},
	Metadata: "ridgeline/worker_service.proto",
}

// RegisterWorkerServiceServer registers srv on s, mirroring the
// generated-code call site the teacher's pkg/api/server.go uses for its
// own (protoc-generated, not retrieved) service descriptor.
func RegisterWorkerServiceServer(s *grpc.Server, srv WorkerServiceServer) {
	s.RegisterService(&WorkerServiceServiceDesc, srv)
}

// WorkerServiceClient is the client API, used by the node agent.
type WorkerServiceClient interface {
	Register(ctx context.Context, in *WorkerRegistrationMessage, opts ...grpc.CallOption) (WorkerService_RegisterClient, error)
	SendStatusUpdates(ctx context.Context, opts ...grpc.CallOption) (WorkerService_SendStatusUpdatesClient, error)
}

type WorkerService_RegisterClient interface {
	Recv() (*InstanceSchedulingMessage, error)
	grpc.ClientStream
}

type WorkerService_SendStatusUpdatesClient interface {
	Send(*WorkerStatusMessage) error
	CloseAndRecv() (*Empty, error)
	grpc.ClientStream
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerServiceClient creates a client for the worker-facing service.
func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc}
}

func (c *workerServiceClient) Register(ctx context.Context, in *WorkerRegistrationMessage, opts ...grpc.CallOption) (WorkerService_RegisterClient, error) {
	stream, err := c.cc.NewStream(ctx, &WorkerServiceServiceDesc.Streams[0], "/ridgeline.rpcwire.WorkerService/Register", opts...)
	if err != nil {
		return nil, err
	}
	cs := &workerServiceRegisterClient{stream}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}

type workerServiceRegisterClient struct {
	grpc.ClientStream
}

func (c *workerServiceRegisterClient) Recv() (*InstanceSchedulingMessage, error) {
	m := new(InstanceSchedulingMessage)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *workerServiceClient) SendStatusUpdates(ctx context.Context, opts ...grpc.CallOption) (WorkerService_SendStatusUpdatesClient, error) {
	stream, err := c.cc.NewStream(ctx, &WorkerServiceServiceDesc.Streams[1], "/ridgeline.rpcwire.WorkerService/SendStatusUpdates", opts...)
	if err != nil {
		return nil, err
	}
	return &workerServiceSendStatusUpdatesClient{stream}, nil
}

type workerServiceSendStatusUpdatesClient struct {
	grpc.ClientStream
}

func (c *workerServiceSendStatusUpdatesClient) Send(m *WorkerStatusMessage) error {
	return c.ClientStream.SendMsg(m)
}

func (c *workerServiceSendStatusUpdatesClient) CloseAndRecv() (*Empty, error) {
	if err := c.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	m := new(Empty)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
