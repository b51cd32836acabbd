package idem

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	idemtrace "github.com/ceyewan/idemkit/trace"
	"github.com/ceyewan/idemkit/xerrors"
)

const (
	echoService      = "idem.test.Echo"
	echoMethod       = "/idem.test.Echo/Echo"
	echoFailMethod   = "/idem.test.Echo/Fail"
	echoPublicMethod = "/idem.test.Echo/Public"
)

type echoServer interface {
	Echo(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

type countingEchoServer struct {
	calls atomic.Int32
}

func (s *countingEchoServer) Echo(_ context.Context, in *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	n := s.calls.Add(1)
	if in.GetValue() == "fail" {
		return nil, status.Error(codes.NotFound, "no such thing")
	}
	return wrapperspb.String(in.GetValue() + "#" + string(rune('0'+n))), nil
}

func echoHandler(fullMethod string) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return srv.(echoServer).Echo(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return srv.(echoServer).Echo(ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var echoServiceDesc = grpc.ServiceDesc{
	ServiceName: echoService,
	HandlerType: (*echoServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Echo", Handler: echoHandler(echoMethod)},
		{MethodName: "Fail", Handler: echoHandler(echoFailMethod)},
		{MethodName: "Public", Handler: echoHandler(echoPublicMethod)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "idem_test",
}

func newTestGRPCClient(t *testing.T, table PolicyTable) (*grpc.ClientConn, *countingEchoServer) {
	t.Helper()
	coord, _ := newTestCoordinator(t, nil)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.StatsHandler(idemtrace.GRPCServerStatsHandler()),
		grpc.UnaryInterceptor(coord.UnaryServerInterceptor(table)),
	)
	impl := &countingEchoServer{}
	srv.RegisterService(&echoServiceDesc, impl)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(idemtrace.GRPCClientStatsHandler()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn, impl
}

func invokeEcho(ctx context.Context, conn *grpc.ClientConn, method, key, value string) (*wrapperspb.StringValue, error) {
	if key != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, DefaultMetadataKey, key)
	}
	out := new(wrapperspb.StringValue)
	err := conn.Invoke(ctx, method, wrapperspb.String(value), out)
	return out, err
}

func TestUnaryServerInterceptor(t *testing.T) {
	conn, impl := newTestGRPCClient(t, PolicyTable{
		echoMethod:     {UsePayloadValidation: true},
		echoFailMethod: {},
	})
	ctx := context.Background()

	t.Run("replay returns the cached response", func(t *testing.T) {
		first, err := invokeEcho(ctx, conn, echoMethod, "k1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello#1", first.GetValue())

		second, err := invokeEcho(ctx, conn, echoMethod, "k1", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello#1", second.GetValue())
		assert.Equal(t, int32(1), impl.calls.Load())
	})

	t.Run("missing key passes through", func(t *testing.T) {
		before := impl.calls.Load()
		_, err := invokeEcho(ctx, conn, echoMethod, "", "hello")
		require.NoError(t, err)
		_, err = invokeEcho(ctx, conn, echoMethod, "", "hello")
		require.NoError(t, err)
		assert.Equal(t, before+2, impl.calls.Load())
	})

	t.Run("methods outside the table pass through", func(t *testing.T) {
		before := impl.calls.Load()
		_, err := invokeEcho(ctx, conn, echoPublicMethod, "k2", "hello")
		require.NoError(t, err)
		_, err = invokeEcho(ctx, conn, echoPublicMethod, "k2", "hello")
		require.NoError(t, err)
		assert.Equal(t, before+2, impl.calls.Load())
	})

	t.Run("handler errors keep their status", func(t *testing.T) {
		before := impl.calls.Load()
		for i := 0; i < 2; i++ {
			_, err := invokeEcho(ctx, conn, echoFailMethod, "k3", "fail")
			require.Error(t, err)
			assert.Equal(t, codes.NotFound, status.Code(err))
		}
		assert.Equal(t, before+2, impl.calls.Load(), "failed calls are retried, not cached")
	})

	t.Run("invalid key", func(t *testing.T) {
		before := impl.calls.Load()
		_, err := invokeEcho(ctx, conn, echoMethod, strings.Repeat("k", 33), "hello")
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
		assert.Equal(t, before, impl.calls.Load())
	})
}

func TestUnaryServerInterceptorEmptyKey(t *testing.T) {
	coord, _ := newTestCoordinator(t, nil)
	interceptor := coord.UnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: echoMethod}

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return wrapperspb.String("ok"), nil
	}

	for _, raw := range []string{"", "  "} {
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultMetadataKey, raw))
		_, err := interceptor(ctx, wrapperspb.String("hello"), info, handler)
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestUnaryServerInterceptorNonProtoResponse(t *testing.T) {
	coord, _ := newTestCoordinator(t, nil)
	interceptor := coord.UnaryServerInterceptor(nil)
	info := &grpc.UnaryServerInfo{FullMethod: echoMethod}

	var calls atomic.Int32
	handler := func(ctx context.Context, req any) (any, error) {
		calls.Add(1)
		return "plain", nil
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(DefaultMetadataKey, "non-proto"))

	resp, err := interceptor(ctx, wrapperspb.String("hello"), info, handler)
	require.NoError(t, err)
	assert.Equal(t, "plain", resp)

	_, err = interceptor(ctx, wrapperspb.String("hello"), info, handler)
	require.Error(t, err)
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGRPCCode(t *testing.T) {
	assert.Equal(t, codes.OK, GRPCCode(nil))
	assert.Equal(t, codes.InvalidArgument, GRPCCode(ErrInvalidFormat))
	assert.Equal(t, codes.Aborted, GRPCCode(ErrConflict))
	assert.Equal(t, codes.FailedPrecondition, GRPCCode(ErrPayloadMismatch))
	assert.Equal(t, codes.Unavailable, GRPCCode(ErrBackendUnavailable))
	assert.Equal(t, codes.Internal, GRPCCode(assert.AnError))
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeConflict, ErrorCode(xerrors.Wrap(ErrConflict, "k")))
	assert.Equal(t, "BACKEND_UNAVAILABLE", ErrorCode(ErrBackendUnavailable))
	assert.Equal(t, "INTERNAL_ERROR", ErrorCode(assert.AnError))
	assert.Equal(t, http.StatusServiceUnavailable, StatusCode(ErrBackendUnavailable))
}
