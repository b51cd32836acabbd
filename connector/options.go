package connector

import (
	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/metrics"
)

type options struct {
	logger        clog.Logger
	meter         metrics.Meter
	enableTracing bool
}

// Option 配置连接器的选项
type Option func(*options)

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithMeter 设置指标收集器，用于记录连接尝试次数
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithTracing 为客户端挂载 OpenTelemetry 追踪（目前仅 Redis 支持）
func WithTracing() Option {
	return func(o *options) {
		o.enableTracing = true
	}
}

func applyOptions(opts ...Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
	return o
}

// connectAttempts 创建连接尝试计数器，名称形如 connector_redis_connect_total
func connectAttempts(meter metrics.Meter, kind string) metrics.Counter {
	counter, err := meter.Counter(
		"connector_"+kind+"_connect_total",
		"Total number of connection attempts, labelled by result",
	)
	if err != nil {
		counter, _ = metrics.Discard().Counter("noop", "")
	}
	return counter
}
