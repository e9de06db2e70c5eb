package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "anonmatch.v1.Matchmaker"

// Full method names.
const (
	MethodRequestMatch  = "/" + ServiceName + "/RequestMatch"
	MethodRequestNext   = "/" + ServiceName + "/RequestNext"
	MethodCancelSearch  = "/" + ServiceName + "/CancelSearch"
	MethodEndChat       = "/" + ServiceName + "/EndChat"
	MethodSetSecretMode = "/" + ServiceName + "/SetSecretMode"
	MethodGetPartner    = "/" + ServiceName + "/GetPartner"
	MethodStats         = "/" + ServiceName + "/Stats"
	MethodEvents        = "/" + ServiceName + "/Events"
)

// MatchmakerServer is the server API of the Matchmaker service. Messages are
// well-known protobuf types so no generated code is needed on either side.
type MatchmakerServer interface {
	RequestMatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequestNext(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelSearch(context.Context, *emptypb.Empty) (*wrapperspb.BoolValue, error)
	EndChat(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	SetSecretMode(context.Context, *wrapperspb.BoolValue) (*emptypb.Empty, error)
	GetPartner(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Stats(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Events(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

// RegisterMatchmakerServer registers srv on s.
func RegisterMatchmakerServer(s grpc.ServiceRegistrar, srv MatchmakerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ServiceDesc describes the Matchmaker service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*MatchmakerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestMatch", Handler: unaryHandler(MethodRequestMatch,
			func(s MatchmakerServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.RequestMatch(ctx, in)
			})},
		{MethodName: "RequestNext", Handler: unaryHandler(MethodRequestNext,
			func(s MatchmakerServer, ctx context.Context, in *structpb.Struct) (any, error) {
				return s.RequestNext(ctx, in)
			})},
		{MethodName: "CancelSearch", Handler: unaryHandler(MethodCancelSearch,
			func(s MatchmakerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.CancelSearch(ctx, in)
			})},
		{MethodName: "EndChat", Handler: unaryHandler(MethodEndChat,
			func(s MatchmakerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.EndChat(ctx, in)
			})},
		{MethodName: "SetSecretMode", Handler: unaryHandler(MethodSetSecretMode,
			func(s MatchmakerServer, ctx context.Context, in *wrapperspb.BoolValue) (any, error) {
				return s.SetSecretMode(ctx, in)
			})},
		{MethodName: "GetPartner", Handler: unaryHandler(MethodGetPartner,
			func(s MatchmakerServer, ctx context.Context, in *emptypb.Empty) (any, error) {
				return s.GetPartner(ctx, in)
			})},
		{MethodName: "Stats", Handler: unaryHandler(MethodStats,
			func(s MatchmakerServer, ctx context.Context, in *emptypb.Empty) (any, error) { return s.Stats(ctx, in) })},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Events", Handler: eventsHandler, ServerStreams: true},
	},
}

func unaryHandler[Req any](method string, call func(MatchmakerServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		h := func(ctx context.Context, req any) (any, error) {
			return call(srv.(MatchmakerServer), ctx, req.(*Req))
		}
		if interceptor == nil {
			return h(ctx, in)
		}
		return interceptor(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: method}, h)
	}
}

func eventsHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(MatchmakerServer).Events(in, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}
