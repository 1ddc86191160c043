package rpcwire

import (
	"context"

	"google.golang.org/grpc"
)

// ControllerServiceServer is the server API for the controller-facing
// gRPC service (spec.md §4.4 "Controller service"). ScheduleInstance is
// a plain unary call; GetStatusUpdates opens a long-lived server stream
// the scheduler uses to relay every InstanceMetric it observes.
type ControllerServiceServer interface {
	ScheduleInstance(context.Context, *WorkloadMessage) (*Empty, error)
	GetStatusUpdates(*SubscribeRequest, ControllerService_GetStatusUpdatesServer) error
}

type ControllerService_GetStatusUpdatesServer interface {
	Send(*WorkerStatusMessage) error
	grpc.ServerStream
}

type controllerServiceGetStatusUpdatesServer struct {
	grpc.ServerStream
}

func (s *controllerServiceGetStatusUpdatesServer) Send(m *WorkerStatusMessage) error {
	return s.ServerStream.SendMsg(m)
}

func scheduleInstanceHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(WorkloadMessage)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControllerServiceServer).ScheduleInstance(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/ridgeline.rpcwire.ControllerService/ScheduleInstance"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControllerServiceServer).ScheduleInstance(ctx, req.(*WorkloadMessage))
	}
	return interceptor(ctx, in, info, handler)
}

func getStatusUpdatesHandler(srv interface{}, stream grpc.ServerStream) error {
	m := new(SubscribeRequest)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControllerServiceServer).GetStatusUpdates(m, &controllerServiceGetStatusUpdatesServer{stream})
}

// ControllerServiceServiceDesc is the hand-written equivalent of what
// protoc-gen-go-grpc would emit for the controller service.
var ControllerServiceServiceDesc = grpc.ServiceDesc{
	ServiceName: "ridgeline.rpcwire.ControllerService",
	HandlerType: (*ControllerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ScheduleInstance",
			Handler:    scheduleInstanceHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetStatusUpdates",
			Handler:       getStatusUpdatesHandler,
			ServerStreams: true,
		},
	},
	Metadata: "ridgeline/controller_service.proto",
}

// RegisterControllerServiceServer registers srv on s.
func RegisterControllerServiceServer(s *grpc.Server, srv ControllerServiceServer) {
	s.RegisterService(&ControllerServiceServiceDesc, srv)
}

// ControllerServiceClient is the client API, used by pkg/controller.
type ControllerServiceClient interface {
	ScheduleInstance(ctx context.Context, in *WorkloadMessage, opts ...grpc.CallOption) (*Empty, error)
	GetStatusUpdates(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (ControllerService_GetStatusUpdatesClient, error)
}

type ControllerService_GetStatusUpdatesClient interface {
	Recv() (*WorkerStatusMessage, error)
	grpc.ClientStream
}

type controllerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewControllerServiceClient creates a client for the controller-facing service.
func NewControllerServiceClient(cc grpc.ClientConnInterface) ControllerServiceClient {
	return &controllerServiceClient{cc}
}

func (c *controllerServiceClient) ScheduleInstance(ctx context.Context, in *WorkloadMessage, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.cc.Invoke(ctx, "/ridgeline.rpcwire.ControllerService/ScheduleInstance", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controllerServiceClient) GetStatusUpdates(ctx context.Context, in *SubscribeRequest, opts ...grpc.CallOption) (ControllerService_GetStatusUpdatesClient, error) {
	stream, err := c.cc.NewStream(ctx, &ControllerServiceServiceDesc.Streams[0], "/ridgeline.rpcwire.ControllerService/GetStatusUpdates", opts...)
	if err != nil {
		return nil, err
	}
	cs := &controllerServiceGetStatusUpdatesClient{stream}
	if err := cs.SendMsg(in); err != nil {
		return nil, err
	}
	if err := cs.CloseSend(); err != nil {
		return nil, err
	}
	return cs, nil
}

type controllerServiceGetStatusUpdatesClient struct {
	grpc.ClientStream
}

func (c *controllerServiceGetStatusUpdatesClient) Recv() (*WorkerStatusMessage, error) {
	m := new(WorkerStatusMessage)
	if err := c.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
