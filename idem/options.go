package idem

import (
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/connector"
	"github.com/ceyewan/idemkit/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// ExecuteOption 单次执行的选项函数
type ExecuteOption func(*executeOptions)

// MiddlewareOption Gin 中间件选项函数
type MiddlewareOption func(*middlewareOptions)

// InterceptorOption gRPC 拦截器选项函数
type InterceptorOption func(*interceptorOptions)

// options 组件初始化选项配置（内部使用，小写）
type options struct {
	logger         clog.Logger
	meter          metrics.Meter
	tracerProvider oteltrace.TracerProvider
	redisConn      connector.RedisConnector
	etcdConn       connector.EtcdConnector
	backend        Backend
}

// executeOptions 单次执行选项（内部使用，小写）
type executeOptions struct {
	validatePayload bool
	resultTTL       time.Duration
}

// middlewareOptions Gin 中间件选项配置（内部使用，小写）
type middlewareOptions struct {
	headerKey string // 幂等键的 HTTP 头名称，默认 "Idempotency-Key"
}

// interceptorOptions gRPC 拦截器选项配置（内部使用，小写）
type interceptorOptions struct {
	metadataKey string // 幂等键的 gRPC metadata 键名，默认 "idempotency-key"
}

// WithLogger 设置 Logger
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMeter 设置指标收集器
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTracerProvider 设置 TracerProvider，默认使用全局的 otel.GetTracerProvider()
func WithTracerProvider(tp oteltrace.TracerProvider) Option {
	return func(o *options) {
		o.tracerProvider = tp
	}
}

// WithRedisConnector 注入 Redis 连接器
func WithRedisConnector(conn connector.RedisConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.redisConn = conn
		}
	}
}

// WithEtcdConnector 注入 Etcd 连接器
func WithEtcdConnector(conn connector.EtcdConnector) Option {
	return func(o *options) {
		if conn != nil {
			o.etcdConn = conn
		}
	}
}

// WithBackend 直接注入存储实现，优先于 Driver 配置
func WithBackend(backend Backend) Option {
	return func(o *options) {
		if backend != nil {
			o.backend = backend
		}
	}
}

// WithPayloadValidation 开启请求体校验，指纹取自 Key.Fingerprint()
func WithPayloadValidation() ExecuteOption {
	return func(o *executeOptions) {
		o.validatePayload = true
	}
}

// WithResultTTL 覆盖本次执行的结果缓存有效期
func WithResultTTL(ttl time.Duration) ExecuteOption {
	return func(o *executeOptions) {
		if ttl > 0 {
			o.resultTTL = ttl
		}
	}
}

// WithHeaderKey 设置 Gin 中间件的幂等键 HTTP 头名称
// 默认为 "Idempotency-Key"
func WithHeaderKey(headerKey string) MiddlewareOption {
	return func(o *middlewareOptions) {
		if headerKey != "" {
			o.headerKey = headerKey
		}
	}
}

// WithMetadataKey 设置 gRPC 拦截器的幂等键 metadata 键名
// 默认为 "idempotency-key"
func WithMetadataKey(metadataKey string) InterceptorOption {
	return func(o *interceptorOptions) {
		if metadataKey != "" {
			o.metadataKey = metadataKey
		}
	}
}
