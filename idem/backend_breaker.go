package idem

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// breakerBackend 为任意 Backend 加上熔断保护
//
// 熔断打开时直接返回 ErrBackendUnavailable，不再访问后端。
// ErrNotFound 和调用方取消不计为失败。
type breakerBackend struct {
	next   Backend
	cb     *gobreaker.CircuitBreaker[any]
	logger clog.Logger
}

// NewBreakerBackend 用熔断器包装 Backend
func NewBreakerBackend(next Backend, cfg BreakerConfig, logger clog.Logger) Backend {
	cfg.setDefaults()
	if logger == nil {
		logger = clog.Discard()
	}

	b := &breakerBackend{next: next, logger: logger}
	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "idem-backend",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinimumRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				xerrors.Is(err, ErrNotFound) ||
				xerrors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Warn("backend circuit breaker state changed",
				clog.String("name", name),
				clog.String("from", from.String()),
				clog.String("to", to.String()))
		},
	})
	return b
}

func (b *breakerBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	return protect(b, func() (bool, error) {
		return b.next.SetNX(ctx, key, value, ttl)
	})
}

func (b *breakerBackend) Get(ctx context.Context, key string) ([]byte, error) {
	return protect(b, func() ([]byte, error) {
		return b.next.Get(ctx, key)
	})
}

func (b *breakerBackend) Del(ctx context.Context, key string) error {
	_, err := protect(b, func() (struct{}, error) {
		return struct{}{}, b.next.Del(ctx, key)
	})
	return err
}

// Close 关闭被包装的后端（如果它实现了 Close）
func (b *breakerBackend) Close() error {
	if closer, ok := b.next.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

func protect[T any](b *breakerBackend, fn func() (T, error)) (T, error) {
	var zero T
	v, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if xerrors.Is(err, gobreaker.ErrOpenState) || xerrors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, xerrors.Wrap(ErrBackendUnavailable, err.Error())
		}
		return zero, err
	}
	out, _ := v.(T)
	return out, nil
}
