package idem

import (
	"context"
	"time"

	"github.com/ceyewan/idemkit/metrics"
)

// 执行结果，用作指标标签和 Span 属性
const (
	OutcomeReplayed        = "replayed"
	OutcomeExecuted        = "executed"
	OutcomeConflict        = "conflict"
	OutcomePayloadMismatch = "payload_mismatch"
	OutcomeInvalidFormat   = "invalid_format"
	OutcomeFailed          = "failed"
	OutcomeStoreError      = "store_error"
	OutcomeBackendError    = "backend_error"
)

const (
	MetricExecutions        = "idem_executions_total"
	MetricExecutionDuration = "idem_execution_duration_seconds"
)

type coordinatorMetrics struct {
	executions metrics.Counter
	duration   metrics.Histogram
}

func newCoordinatorMetrics(meter metrics.Meter) (*coordinatorMetrics, error) {
	executions, err := meter.Counter(MetricExecutions, "Total number of idempotent executions by outcome")
	if err != nil {
		return nil, err
	}
	duration, err := meter.Histogram(
		MetricExecutionDuration,
		"Duration of idempotent executions in seconds",
		metrics.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &coordinatorMetrics{executions: executions, duration: duration}, nil
}

func (m *coordinatorMetrics) observe(ctx context.Context, outcome string, elapsed time.Duration) {
	label := metrics.L(metrics.LabelOutcome, outcome)
	m.executions.Inc(ctx, label)
	m.duration.Record(ctx, elapsed.Seconds(), label)
}
