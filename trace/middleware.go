package trace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	oteltrace "go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/stats"
)

// MiddlewareOption 配置 HTTP 中间件与 gRPC stats handler
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	provider oteltrace.TracerProvider
	skip     map[string]struct{}
}

// WithProvider 指定 TracerProvider，默认使用全局的
func WithProvider(tp oteltrace.TracerProvider) MiddlewareOption {
	return func(o *middlewareOptions) {
		o.provider = tp
	}
}

// WithSkip 不为这些端点创建 span
//
// HTTP 按请求路径匹配（如 "/metrics"），gRPC 按完整方法名匹配
// （如 "/grpc.health.v1.Health/Check"）。
func WithSkip(endpoints ...string) MiddlewareOption {
	return func(o *middlewareOptions) {
		for _, e := range endpoints {
			o.skip[e] = struct{}{}
		}
	}
}

func buildOptions(opts []MiddlewareOption) middlewareOptions {
	o := middlewareOptions{skip: make(map[string]struct{})}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o middlewareOptions) traced(endpoint string) bool {
	_, skipped := o.skip[endpoint]
	return !skipped
}

// GinMiddleware 为每个 HTTP 请求创建服务端 span，幂等中间件和业务 handler 的 span 都挂在它下面
func GinMiddleware(serviceName string, opts ...MiddlewareOption) gin.HandlerFunc {
	o := buildOptions(opts)
	ginOpts := []otelgin.Option{
		otelgin.WithFilter(func(r *http.Request) bool { return o.traced(r.URL.Path) }),
	}
	if o.provider != nil {
		ginOpts = append(ginOpts, otelgin.WithTracerProvider(o.provider))
	}
	return otelgin.Middleware(serviceName, ginOpts...)
}

// GRPCServerStatsHandler gRPC 服务端 stats handler
func GRPCServerStatsHandler(opts ...MiddlewareOption) stats.Handler {
	return otelgrpc.NewServerHandler(grpcOptions(buildOptions(opts))...)
}

// GRPCClientStatsHandler gRPC 客户端 stats handler，负责把 trace 上下文注入 metadata
func GRPCClientStatsHandler(opts ...MiddlewareOption) stats.Handler {
	return otelgrpc.NewClientHandler(grpcOptions(buildOptions(opts))...)
}

func grpcOptions(o middlewareOptions) []otelgrpc.Option {
	grpcOpts := []otelgrpc.Option{
		otelgrpc.WithFilter(func(info *stats.RPCTagInfo) bool { return o.traced(info.FullMethodName) }),
	}
	if o.provider != nil {
		grpcOpts = append(grpcOpts, otelgrpc.WithTracerProvider(o.provider))
	}
	return grpcOpts
}
