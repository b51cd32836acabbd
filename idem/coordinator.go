package idem

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/ceyewan/idemkit/clog"
	idemtrace "github.com/ceyewan/idemkit/trace"
	"github.com/ceyewan/idemkit/xerrors"
)

// Operation 需要保证至多执行一次的操作
type Operation func(ctx context.Context) (Value, error)

// Coordinator 幂等执行协调器
//
// 协调器本身无状态，可在多个 goroutine 中并发复用；
// 同一幂等键的互斥完全由存储的原子 SetNX 保证。
type Coordinator struct {
	cfg       *Config
	backend   Backend
	tracker   *RequestTracker
	results   *ResultCache
	validator *PayloadValidator
	logger    clog.Logger
	tracer    oteltrace.Tracer
	metrics   *coordinatorMetrics
	closers   []func() error
}

// Execute 以幂等方式执行 op
//
// 工作流程：
//  1. 校验幂等键格式，失败返回 ErrInvalidFormat
//  2. 结果已缓存 → 直接返回缓存结果，op 不会被调用
//  3. 开启请求体校验时，指纹与执行中标记记录的不一致 → ErrPayloadMismatch
//  4. 创建执行中标记失败（已有相同请求在执行）→ ErrConflict，不释放标记
//  5. 执行 op：成功则写入结果再释放标记；失败则释放标记并原样返回 op 的错误
//
// op 成功后结果序列化或写入失败只记录日志，仍返回 op 的值，避免调用方重试造成重复执行。
//
// 步骤 1-4 的任何失败都不会释放标记，因为本次调用并不持有它。
func (c *Coordinator) Execute(ctx context.Context, key Key, op Operation, opts ...ExecuteOption) (res *Result, err error) {
	eo := executeOptions{resultTTL: c.cfg.ResultTTL}
	for _, opt := range opts {
		opt(&eo)
	}

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "idem.Execute",
		oteltrace.WithSpanKind(oteltrace.SpanKindInternal),
		oteltrace.WithAttributes(
			idemtrace.AttrIdemScope.String(key.Scope()),
			idemtrace.AttrIdemDriver.String(string(c.cfg.Driver)),
		))

	outcome := OutcomeFailed
	defer func() {
		span.SetAttributes(
			idemtrace.AttrIdemOutcome.String(outcome),
			idemtrace.AttrIdemReplayed.Bool(res != nil && res.Replayed()),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
		span.End()
		c.metrics.observe(ctx, outcome, time.Since(start))
	}()

	if err := key.Validate(c.cfg.MaxKeyLength); err != nil {
		outcome = OutcomeInvalidFormat
		return nil, err
	}

	if eo.validatePayload {
		if key.Fingerprint() == "" {
			key = key.WithFingerprint(Fingerprint(nil))
		}
	} else {
		key = key.WithFingerprint("")
	}

	cached, found, err := c.results.Lookup(ctx, key)
	if err != nil {
		outcome = OutcomeBackendError
		return nil, err
	}
	if found {
		outcome = OutcomeReplayed
		c.logger.DebugContext(ctx, "idem cache hit", clog.String("key", key.Identity()))
		return cached, nil
	}

	if eo.validatePayload {
		if err := c.validator.Validate(ctx, key, key.Fingerprint()); err != nil {
			outcome = OutcomeBackendError
			if xerrors.Is(err, ErrPayloadMismatch) {
				outcome = OutcomePayloadMismatch
			}
			return nil, err
		}
	}

	acquired, err := c.tracker.TryAcquire(ctx, key)
	if err != nil {
		outcome = OutcomeBackendError
		return nil, err
	}
	if !acquired {
		outcome = OutcomeConflict
		return nil, xerrors.Wrapf(ErrConflict, "key %s", key.Identity())
	}

	return c.run(ctx, key, op, eo, &outcome)
}

// run 在持有执行中标记的前提下执行 op，任何路径（包括 panic）都会释放标记
func (c *Coordinator) run(ctx context.Context, key Key, op Operation, eo executeOptions, outcome *string) (*Result, error) {
	// op 已经执行后，调用方取消不应导致结果丢失或标记泄漏
	bg := context.WithoutCancel(ctx)
	defer func() {
		if err := c.tracker.Release(bg, key); err != nil {
			c.logger.ErrorContext(ctx, "failed to release request marker",
				clog.Error(err), clog.String("key", key.Identity()))
		}
	}()

	v, err := op(ctx)
	if err != nil {
		*outcome = OutcomeFailed
		return nil, err
	}

	result, err := c.results.Encode(v)
	if err != nil {
		// 与写入失败一致：op 已经执行，直接返回未序列化的值，本次结果不缓存
		*outcome = OutcomeStoreError
		c.logger.ErrorContext(ctx, "failed to encode idem result",
			clog.Error(err), clog.String("key", key.Identity()))
		return unencodedResult(v), nil
	}

	stored, err := c.results.Store(bg, key, result, eo.resultTTL)
	if err != nil {
		// op 已经执行，返回错误只会诱发重复执行，这里记录后返回 op 的结果
		*outcome = OutcomeStoreError
		c.logger.ErrorContext(ctx, "failed to cache idem result",
			clog.Error(err), clog.String("key", key.Identity()))
		return result, nil
	}

	*outcome = OutcomeExecuted
	if !stored {
		// 其他调用方先写入了结果，以缓存中的值为准
		authoritative, found, err := c.results.Lookup(bg, key)
		if err == nil && found {
			return authoritative, nil
		}
		c.logger.WarnContext(ctx, "result already present but not readable",
			clog.Error(err), clog.String("key", key.Identity()))
	}
	return result, nil
}

// Tracker 返回执行中标记管理器
func (c *Coordinator) Tracker() *RequestTracker { return c.tracker }

// Results 返回结果缓存
func (c *Coordinator) Results() *ResultCache { return c.results }

// Close 释放协调器自行创建的资源（如内存后端），注入的连接器由调用方关闭
func (c *Coordinator) Close() error {
	var errs []error
	for _, closeFn := range c.closers {
		errs = append(errs, closeFn())
	}
	return xerrors.Combine(errs...)
}
