package metrics

import (
	"context"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type counterImpl struct {
	c metric.Float64Counter
}

func (c *counterImpl) Inc(ctx context.Context, labels ...Label) {
	c.Add(ctx, 1, labels...)
}

func (c *counterImpl) Add(ctx context.Context, val float64, labels ...Label) {
	c.c.Add(ctx, val, withLabels(labels))
}

// gaugeImpl OTel 的同步 Gauge 只有 Record，Inc/Dec 依赖本地保存的当前值
type gaugeImpl struct {
	g metric.Float64Gauge

	mu     sync.Mutex
	values map[string]float64
}

func (g *gaugeImpl) Set(ctx context.Context, val float64, labels ...Label) {
	g.mu.Lock()
	g.values[labelKey(labels)] = val
	g.mu.Unlock()
	g.g.Record(ctx, val, withLabels(labels))
}

func (g *gaugeImpl) Inc(ctx context.Context, labels ...Label) { g.add(ctx, 1, labels) }

func (g *gaugeImpl) Dec(ctx context.Context, labels ...Label) { g.add(ctx, -1, labels) }

func (g *gaugeImpl) add(ctx context.Context, delta float64, labels []Label) {
	key := labelKey(labels)
	g.mu.Lock()
	g.values[key] += delta
	val := g.values[key]
	g.mu.Unlock()
	g.g.Record(ctx, val, withLabels(labels))
}

type histogramImpl struct {
	h metric.Float64Histogram
}

func (h *histogramImpl) Record(ctx context.Context, val float64, labels ...Label) {
	h.h.Record(ctx, val, withLabels(labels))
}

func withLabels(labels []Label) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, len(labels))
	for i, l := range labels {
		attrs[i] = attribute.String(l.Key, l.Value)
	}
	return metric.WithAttributes(attrs...)
}

// labelKey 与标签顺序无关
func labelKey(labels []Label) string {
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = l.Key + "=" + l.Value
	}
	slices.Sort(parts)
	return strings.Join(parts, "|")
}
