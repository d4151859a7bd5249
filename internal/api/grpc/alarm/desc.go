package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "escapealarm.v1.AlarmEngine"

// Full method names.
const (
	MethodTrigger       = "/" + ServiceName + "/Trigger"
	MethodDismissVisual = "/" + ServiceName + "/DismissVisual"
	MethodResolve       = "/" + ServiceName + "/Resolve"
	MethodStopAll       = "/" + ServiceName + "/StopAll"
	MethodGetSnapshot   = "/" + ServiceName + "/GetSnapshot"
	MethodWatch         = "/" + ServiceName + "/Watch"
)

// AlarmEngineServer is the server API of the AlarmEngine service.
type AlarmEngineServer interface {
	// Trigger raises an alarm from a payload and returns the stored record.
	Trigger(ctx context.Context, payload *structpb.Struct) (*structpb.Struct, error)
	// DismissVisual hides the visible alarm and returns the snapshot.
	DismissVisual(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Resolve removes the alarm named by alert_id and reports whether it was active.
	Resolve(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	// StopAll clears every alarm and returns how many were removed.
	StopAll(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// GetSnapshot returns the current snapshot.
	GetSnapshot(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
	// Watch streams snapshots until the client goes away.
	Watch(req *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error
}

// ServiceDesc describes the AlarmEngine service for grpc.Server registration.
//
//nolint:gochecknoglobals // Service descriptors are package-level by convention.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AlarmEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Trigger",
			Handler:    unaryHandler(MethodTrigger, newStruct, AlarmEngineServer.Trigger),
		},
		{
			MethodName: "DismissVisual",
			Handler:    unaryHandler(MethodDismissVisual, newEmpty, AlarmEngineServer.DismissVisual),
		},
		{
			MethodName: "Resolve",
			Handler:    unaryHandler(MethodResolve, newStruct, AlarmEngineServer.Resolve),
		},
		{
			MethodName: "StopAll",
			Handler:    unaryHandler(MethodStopAll, newEmpty, AlarmEngineServer.StopAll),
		},
		{
			MethodName: "GetSnapshot",
			Handler:    unaryHandler(MethodGetSnapshot, newEmpty, AlarmEngineServer.GetSnapshot),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			Handler:       watchHandler,
			ServerStreams: true,
		},
	},
	Metadata: "escapealarm/v1/alarm_engine.proto",
}

// RegisterAlarmEngineServer registers the implementation on the registrar.
func RegisterAlarmEngineServer(registrar grpc.ServiceRegistrar, srv AlarmEngineServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }

func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

// unaryHandler adapts a typed server method to grpc.MethodHandler, honouring
// the configured interceptor.
func unaryHandler[Req proto.Message](
	fullMethod string,
	newRequest func() Req,
	call func(AlarmEngineServer, context.Context, Req) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := newRequest()
		if err := dec(in); err != nil {
			return nil, err
		}

		server, _ := srv.(AlarmEngineServer)

		if interceptor == nil {
			return call(server, ctx, in)
		}

		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}

		handler := func(ctx context.Context, req any) (any, error) {
			typed, _ := req.(Req)

			return call(server, ctx, typed)
		}

		return interceptor(ctx, in, info, handler)
	}
}

// watchHandler decodes the Watch request and hands a typed stream to the server.
func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}

	server, _ := srv.(AlarmEngineServer)

	return server.Watch(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
