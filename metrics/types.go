// Package metrics 为 idemkit 提供指标收集能力。
//
// 指标通过 OpenTelemetry SDK 记录，由 Prometheus exporter 暴露。可以按 Config.Port
// 启动独立的 HTTP 服务器，也可以用 Handler() 挂到业务路由上。
//
//	meter, err := metrics.New(&metrics.Config{
//	    Enabled:     true,
//	    ServiceName: "postapi",
//	    Path:        "/metrics",
//	})
//	if err != nil {
//	    return err
//	}
//	defer meter.Shutdown(ctx)
//
//	executions, _ := meter.Counter("idem_executions_total", "idempotent executions by outcome")
//	executions.Inc(ctx, metrics.L(metrics.LabelOutcome, "replayed"))
//
// 组件在未注入 Meter 时使用 Discard()，所有记录都是空操作。
package metrics

import "context"

// Counter 单调递增的累计值，例如执行次数、冲突次数
type Counter interface {
	// Inc 加 1
	Inc(ctx context.Context, labels ...Label)
	// Add 加上 val，负数会被大多数后端拒绝
	Add(ctx context.Context, val float64, labels ...Label)
}

// Gauge 可增可减的瞬时值，例如连接池中的活跃连接数
//
//	inflight, _ := meter.Gauge("idem_inflight", "requests holding a marker")
//	inflight.Inc(ctx)
//	defer inflight.Dec(ctx)
type Gauge interface {
	Set(ctx context.Context, val float64, labels ...Label)
	Inc(ctx context.Context, labels ...Label)
	Dec(ctx context.Context, labels ...Label)
}

// Histogram 记录值的分布，例如一次幂等执行的耗时
//
//	duration, _ := meter.Histogram("idem_execution_duration_seconds", "execution latency",
//	    metrics.WithUnit("s"))
//	duration.Record(ctx, elapsed.Seconds(), metrics.L(metrics.LabelOutcome, "executed"))
type Histogram interface {
	Record(ctx context.Context, val float64, labels ...Label)
}

// Meter 指标工厂，一个服务通常只持有一个
//
// 创建出的指标可以在多个 goroutine 中并发使用。名称应符合 Prometheus 规范，
// 同名指标重复创建时返回同一个底层 instrument。
type Meter interface {
	Counter(name string, desc string, opts ...MetricOption) (Counter, error)
	Gauge(name string, desc string, opts ...MetricOption) (Gauge, error)
	Histogram(name string, desc string, opts ...MetricOption) (Histogram, error)

	// Shutdown 刷新并关闭 Meter，之后的记录被丢弃
	Shutdown(ctx context.Context) error
}

// MetricOption 创建指标时的可选配置
type MetricOption func(*MetricOptions)

// MetricOptions 指标选项
type MetricOptions struct {
	// Unit UCUM 单位代码，如 "s"、"By"
	Unit string

	// Buckets 直方图的显式桶边界，为空时使用 SDK 默认值
	Buckets []float64
}

// WithUnit 设置指标单位
func WithUnit(unit string) MetricOption {
	return func(o *MetricOptions) {
		o.Unit = unit
	}
}

// WithBuckets 设置直方图的桶边界，对 Counter 和 Gauge 无效
func WithBuckets(buckets []float64) MetricOption {
	return func(o *MetricOptions) {
		o.Buckets = append([]float64(nil), buckets...)
	}
}
