package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Client is a thin Matchmaker client over any grpc connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) RequestMatch(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodRequestMatch, in, out, opts...)
}

func (c *Client) RequestNext(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodRequestNext, in, out, opts...)
}

func (c *Client) CancelSearch(ctx context.Context, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	return out, c.cc.Invoke(ctx, MethodCancelSearch, &emptypb.Empty{}, out, opts...)
}

func (c *Client) EndChat(ctx context.Context, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	return out, c.cc.Invoke(ctx, MethodEndChat, &emptypb.Empty{}, out, opts...)
}

func (c *Client) SetSecretMode(ctx context.Context, on bool, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, MethodSetSecretMode, wrapperspb.Bool(on), &emptypb.Empty{}, opts...)
}

func (c *Client) GetPartner(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodGetPartner, &emptypb.Empty{}, out, opts...)
}

func (c *Client) Stats(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	return out, c.cc.Invoke(ctx, MethodStats, &emptypb.Empty{}, out, opts...)
}

// Events opens the participant's event stream.
func (c *Client) Events(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], MethodEvents, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
