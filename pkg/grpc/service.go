package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service speaks only well-known protobuf types, so the descriptor below is
// written by hand instead of generated from a .proto file.

const ServiceName = "crib.v1.SensorService"

const (
	SensorService_PostReading_FullMethodName      = "/" + ServiceName + "/PostReading"
	SensorService_GetLatest_FullMethodName        = "/" + ServiceName + "/GetLatest"
	SensorService_GetThresholds_FullMethodName    = "/" + ServiceName + "/GetThresholds"
	SensorService_UpdateThresholds_FullMethodName = "/" + ServiceName + "/UpdateThresholds"
	SensorService_SetLimiter_FullMethodName       = "/" + ServiceName + "/SetLimiter"
	SensorService_Subscribe_FullMethodName        = "/" + ServiceName + "/Subscribe"
)

type SensorServiceServer interface {
	PostReading(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetLatest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetThresholds(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	UpdateThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetLimiter(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Subscribe(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error
}

type UnimplementedSensorServiceServer struct{}

func (UnimplementedSensorServiceServer) PostReading(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method PostReading not implemented")
}
func (UnimplementedSensorServiceServer) GetLatest(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetLatest not implemented")
}
func (UnimplementedSensorServiceServer) GetThresholds(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetThresholds not implemented")
}
func (UnimplementedSensorServiceServer) UpdateThresholds(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method UpdateThresholds not implemented")
}
func (UnimplementedSensorServiceServer) SetLimiter(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SetLimiter not implemented")
}
func (UnimplementedSensorServiceServer) Subscribe(*wrapperspb.StringValue, grpc.ServerStreamingServer[structpb.Struct]) error {
	return status.Errorf(codes.Unimplemented, "method Subscribe not implemented")
}

func RegisterSensorServiceServer(s grpc.ServiceRegistrar, srv SensorServiceServer) {
	s.RegisterService(&SensorService_ServiceDesc, srv)
}

func unaryHandler[Req any](
	newReq func() *Req,
	call func(SensorServiceServer, context.Context, *Req) (*structpb.Struct, error),
	fullMethod string,
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newReq()
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SensorServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SensorServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func newStruct() *structpb.Struct           { return new(structpb.Struct) }
func newStringValue() *wrapperspb.StringValue { return new(wrapperspb.StringValue) }

func _SensorService_Subscribe_Handler(srv any, stream grpc.ServerStream) error {
	m := new(wrapperspb.StringValue)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(SensorServiceServer).Subscribe(m, &grpc.GenericServerStream[wrapperspb.StringValue, structpb.Struct]{ServerStream: stream})
}

var SensorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SensorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "PostReading",
			Handler: unaryHandler(newStruct, SensorServiceServer.PostReading,
				SensorService_PostReading_FullMethodName),
		},
		{
			MethodName: "GetLatest",
			Handler: unaryHandler(newStringValue, SensorServiceServer.GetLatest,
				SensorService_GetLatest_FullMethodName),
		},
		{
			MethodName: "GetThresholds",
			Handler: unaryHandler(newStringValue, SensorServiceServer.GetThresholds,
				SensorService_GetThresholds_FullMethodName),
		},
		{
			MethodName: "UpdateThresholds",
			Handler: unaryHandler(newStruct, SensorServiceServer.UpdateThresholds,
				SensorService_UpdateThresholds_FullMethodName),
		},
		{
			MethodName: "SetLimiter",
			Handler: unaryHandler(newStruct, SensorServiceServer.SetLimiter,
				SensorService_SetLimiter_FullMethodName),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Subscribe",
			Handler:       _SensorService_Subscribe_Handler,
			ServerStreams: true,
		},
	},
	Metadata: "crib/v1/sensor_service.proto",
}

type SensorServiceClient interface {
	PostReading(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetLatest(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetThresholds(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	UpdateThresholds(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	SetLimiter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Subscribe(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error)
}

type sensorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSensorServiceClient(cc grpc.ClientConnInterface) SensorServiceClient {
	return &sensorServiceClient{cc}
}

func (c *sensorServiceClient) invoke(ctx context.Context, method string, in any, opts []grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *sensorServiceClient) PostReading(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SensorService_PostReading_FullMethodName, in, opts)
}

func (c *sensorServiceClient) GetLatest(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SensorService_GetLatest_FullMethodName, in, opts)
}

func (c *sensorServiceClient) GetThresholds(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SensorService_GetThresholds_FullMethodName, in, opts)
}

func (c *sensorServiceClient) UpdateThresholds(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SensorService_UpdateThresholds_FullMethodName, in, opts)
}

func (c *sensorServiceClient) SetLimiter(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, SensorService_SetLimiter_FullMethodName, in, opts)
}

func (c *sensorServiceClient) Subscribe(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &SensorService_ServiceDesc.Streams[0], SensorService_Subscribe_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[wrapperspb.StringValue, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
