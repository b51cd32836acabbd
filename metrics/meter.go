package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/ceyewan/idemkit/clog"
)

// New 创建 Meter；cfg.Enabled 为 false 时返回 Discard()
//
// 每个 Meter 持有独立的 Prometheus Registry，用 Handler(meter) 取得 /metrics 处理器。
func New(cfg *Config, opts ...Option) (Meter, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if !cfg.Enabled {
		return Discard(), nil
	}
	if cfg.Path != "" && !strings.HasPrefix(cfg.Path, "/") {
		return nil, fmt.Errorf("metrics path must start with '/', got %q", cfg.Path)
	}

	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(provider)

	if cfg.EnableRuntime {
		if err := otelruntime.Start(otelruntime.WithMeterProvider(provider)); err != nil {
			return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
		}
	}

	m := &meterImpl{
		meter:    provider.Meter("idemkit"),
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}),
		logger:   o.logger,
	}
	if cfg.Port > 0 && cfg.Path != "" {
		m.serve(cfg.Port, cfg.Path)
	}
	return m, nil
}

// Must 出错时 panic，仅用于初始化阶段
func Must(cfg *Config, opts ...Option) Meter {
	m, err := New(cfg, opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create metrics: %v", err))
	}
	return m
}

// Handler 返回 m 的 Prometheus 处理器；Discard() 返回 404
func Handler(m Meter) http.Handler {
	if impl, ok := m.(*meterImpl); ok {
		return impl.handler
	}
	return http.NotFoundHandler()
}

type meterImpl struct {
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
	handler  http.Handler
	logger   clog.Logger
	server   *http.Server

	// 按 kind:name 缓存，重复创建返回同一实例
	mu          sync.Mutex
	instruments map[string]any
}

func (m *meterImpl) serve(port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, m.handler)
	m.server = &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		m.logger.Info("starting prometheus metrics server",
			clog.String("addr", m.server.Addr), clog.String("path", path))
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("prometheus server error", clog.Error(err))
		}
	}()
}

// instrument 返回缓存的实例，不存在时用 create 创建
func (m *meterImpl) instrument(kind, name string, create func() (any, error)) (any, error) {
	key := kind + ":" + name

	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instruments[key]; ok {
		return inst, nil
	}
	inst, err := create()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s: %w", kind, name, err)
	}
	if m.instruments == nil {
		m.instruments = make(map[string]any)
	}
	m.instruments[key] = inst
	return inst, nil
}

func (m *meterImpl) Counter(name, desc string, opts ...MetricOption) (Counter, error) {
	o := applyMetricOptions(opts)
	inst, err := m.instrument("counter", name, func() (any, error) {
		c, err := m.meter.Float64Counter(name, metric.WithDescription(desc), metric.WithUnit(o.Unit))
		if err != nil {
			return nil, err
		}
		return &counterImpl{c: c}, nil
	})
	if err != nil {
		return nil, err
	}
	return inst.(Counter), nil
}

func (m *meterImpl) Gauge(name, desc string, opts ...MetricOption) (Gauge, error) {
	o := applyMetricOptions(opts)
	inst, err := m.instrument("gauge", name, func() (any, error) {
		g, err := m.meter.Float64Gauge(name, metric.WithDescription(desc), metric.WithUnit(o.Unit))
		if err != nil {
			return nil, err
		}
		return &gaugeImpl{g: g, values: make(map[string]float64)}, nil
	})
	if err != nil {
		return nil, err
	}
	return inst.(Gauge), nil
}

func (m *meterImpl) Histogram(name, desc string, opts ...MetricOption) (Histogram, error) {
	o := applyMetricOptions(opts)
	inst, err := m.instrument("histogram", name, func() (any, error) {
		hopts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit(o.Unit)}
		if len(o.Buckets) > 0 {
			hopts = append(hopts, metric.WithExplicitBucketBoundaries(o.Buckets...))
		}
		h, err := m.meter.Float64Histogram(name, hopts...)
		if err != nil {
			return nil, err
		}
		return &histogramImpl{h: h}, nil
	})
	if err != nil {
		return nil, err
	}
	return inst.(Histogram), nil
}

// Shutdown 停止独立 HTTP 服务器，然后刷新并关闭 MeterProvider
func (m *meterImpl) Shutdown(ctx context.Context) error {
	var errs []error
	if m.server != nil {
		errs = append(errs, m.server.Shutdown(ctx))
	}
	errs = append(errs, m.provider.Shutdown(ctx))
	return errors.Join(errs...)
}

func applyMetricOptions(opts []MetricOption) *MetricOptions {
	o := &MetricOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
