package grpcserver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type fakeAddr struct{}

func (fakeAddr) Network() string { return "tcp" }
func (fakeAddr) String() string  { return "127.0.0.1:12345" }

type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestLoggingUnary_Passthrough(t *testing.T) {
	t.Parallel()

	ic := LoggingUnary(zaptest.NewLogger(t))
	ctx := peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})
	info := &grpc.UnaryServerInfo{FullMethod: MethodStats}

	resp, err := ic(ctx, "req", info, func(context.Context, any) (any, error) { return "ok", nil })
	require.NoError(t, err)
	require.Equal(t, "ok", resp)

	wantErr := errors.New("boom")
	_, err = ic(ctx, "req", info, func(context.Context, any) (any, error) { return nil, wantErr })
	require.ErrorIs(t, err, wantErr)
}

func TestLoggingUnary_DurationReflectsHandler(t *testing.T) {
	t.Parallel()

	ic := LoggingUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: MethodRequestMatch}
	h := func(context.Context, any) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return "done", nil
	}

	start := time.Now()
	resp, err := ic(context.Background(), "req", info, h)
	require.NoError(t, err)
	require.Equal(t, "done", resp)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}

func TestRecoverUnary(t *testing.T) {
	t.Parallel()

	ic := RecoverUnary(zaptest.NewLogger(t))
	info := &grpc.UnaryServerInfo{FullMethod: MethodEndChat}

	_, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { panic("oh no") })
	require.Equal(t, codes.Internal, status.Code(err))

	resp, err := ic(context.Background(), "req", info, func(context.Context, any) (any, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, resp)
}

func TestStreamInterceptors(t *testing.T) {
	t.Parallel()

	log := zaptest.NewLogger(t)
	ss := &fakeStream{ctx: peer.NewContext(context.Background(), &peer.Peer{Addr: fakeAddr{}})}
	info := &grpc.StreamServerInfo{FullMethod: MethodEvents, IsServerStream: true}

	err := RecoverStream(log)(nil, ss, info, func(any, grpc.ServerStream) error { panic("stream") })
	require.Equal(t, codes.Internal, status.Code(err))

	wantErr := status.Error(codes.Aborted, "gone")
	err = LoggingStream(log)(nil, ss, info, func(any, grpc.ServerStream) error { return wantErr })
	require.Equal(t, codes.Aborted, status.Code(err))
}

func TestAuthUnary(t *testing.T) {
	t.Parallel()

	ic := AuthUnary(testKey)
	var seen int64
	h := func(ctx context.Context, _ any) (any, error) {
		seen, _ = ParticipantFromCtx(ctx)
		return nil, nil
	}

	_, err := ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: MethodStats}, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = ic(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}, h)
	require.NoError(t, err, "foreign services are not authenticated")

	tok, err := NewToken(testKey, 31, time.Minute, time.Now())
	require.NoError(t, err)
	_, err = ic(ctxWithAuth(tok), nil, &grpc.UnaryServerInfo{FullMethod: MethodStats}, h)
	require.NoError(t, err)
	require.Equal(t, int64(31), seen)
}

func TestAuthStream(t *testing.T) {
	t.Parallel()

	ic := AuthStream(testKey)
	info := &grpc.StreamServerInfo{FullMethod: MethodEvents, IsServerStream: true}
	var seen int64
	h := func(_ any, ss grpc.ServerStream) error {
		seen, _ = ParticipantFromCtx(ss.Context())
		return nil
	}

	err := ic(nil, &fakeStream{ctx: context.Background()}, info, h)
	require.Equal(t, codes.Unauthenticated, status.Code(err))

	tok, err := NewToken(testKey, 8, time.Minute, time.Now())
	require.NoError(t, err)
	require.NoError(t, ic(nil, &fakeStream{ctx: ctxWithAuth(tok)}, info, h))
	require.Equal(t, int64(8), seen)
}
