package idem

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// countingBackend 记录调用次数，并允许注入错误
type countingBackend struct {
	next Backend

	setNX atomic.Int32
	get   atomic.Int32
	del   atomic.Int32

	mu       sync.Mutex
	failFunc func(op, key string) error
}

func newCountingBackend(t *testing.T) *countingBackend {
	t.Helper()
	mem, err := NewMemoryBackend(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mem.(interface{ Close() error }).Close() })
	return &countingBackend{next: mem}
}

func (b *countingBackend) failWith(fn func(op, key string) error) {
	b.mu.Lock()
	b.failFunc = fn
	b.mu.Unlock()
}

func (b *countingBackend) injected(op, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failFunc == nil {
		return nil
	}
	return b.failFunc(op, key)
}

func (b *countingBackend) calls() int32 {
	return b.setNX.Load() + b.get.Load() + b.del.Load()
}

func (b *countingBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	b.setNX.Add(1)
	if err := b.injected("setnx", key); err != nil {
		return false, err
	}
	return b.next.SetNX(ctx, key, value, ttl)
}

func (b *countingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	b.get.Add(1)
	if err := b.injected("get", key); err != nil {
		return nil, err
	}
	return b.next.Get(ctx, key)
}

func (b *countingBackend) Del(ctx context.Context, key string) error {
	b.del.Add(1)
	if err := b.injected("del", key); err != nil {
		return err
	}
	return b.next.Del(ctx, key)
}

// backendContract 所有 Backend 实现都必须满足的行为
func backendContract(t *testing.T, backend Backend, prefix string) {
	ctx := context.Background()

	t.Run("setnx is first writer wins", func(t *testing.T) {
		key := prefix + "setnx"
		ok, err := backend.SetNX(ctx, key, []byte("v1"), 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = backend.SetNX(ctx, key, []byte("v2"), 5*time.Second)
		require.NoError(t, err)
		assert.False(t, ok)

		val, err := backend.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []byte("v1"), val)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := backend.Get(ctx, prefix+"missing")
		assert.True(t, xerrors.Is(err, ErrNotFound))
	})

	t.Run("del is idempotent", func(t *testing.T) {
		key := prefix + "del"
		_, err := backend.SetNX(ctx, key, []byte("v"), 5*time.Second)
		require.NoError(t, err)

		require.NoError(t, backend.Del(ctx, key))
		require.NoError(t, backend.Del(ctx, key))

		_, err = backend.Get(ctx, key)
		assert.True(t, xerrors.Is(err, ErrNotFound))

		ok, err := backend.SetNX(ctx, key, []byte("again"), 5*time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("concurrent setnx has one winner", func(t *testing.T) {
		key := prefix + "race"
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := backend.SetNX(ctx, key, []byte("x"), 5*time.Second)
				if err == nil && ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryBackend(t *testing.T) {
	backend, err := NewMemoryBackend(100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.(interface{ Close() error }).Close() })

	backendContract(t, backend, "mem:")

	t.Run("entries expire", func(t *testing.T) {
		ctx := context.Background()
		ok, err := backend.SetNX(ctx, "mem:ttl", []byte("v"), 50*time.Millisecond)
		require.NoError(t, err)
		require.True(t, ok)

		time.Sleep(100 * time.Millisecond)

		_, err = backend.Get(ctx, "mem:ttl")
		assert.True(t, xerrors.Is(err, ErrNotFound))

		ok, err = backend.SetNX(ctx, "mem:ttl", []byte("v2"), time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := backend.SetNX(ctx, "mem:canceled", []byte("v"), time.Second)
		assert.True(t, xerrors.Is(err, context.Canceled))
	})
}

func TestLeaseSeconds(t *testing.T) {
	assert.Equal(t, int64(1), leaseSeconds(0))
	assert.Equal(t, int64(1), leaseSeconds(10*time.Millisecond))
	assert.Equal(t, int64(1), leaseSeconds(time.Second))
	assert.Equal(t, int64(2), leaseSeconds(1500*time.Millisecond))
	assert.Equal(t, int64(10), leaseSeconds(10*time.Second))
}

func TestBreakerBackend(t *testing.T) {
	inner := newCountingBackend(t)
	boom := errors.New("connection refused")

	backend := NewBreakerBackend(inner, BreakerConfig{
		Enabled:         true,
		MinimumRequests: 3,
		FailureRatio:    0.5,
		Timeout:         time.Minute,
	}, clog.Discard())
	ctx := context.Background()

	t.Run("not found does not trip", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			_, err := backend.Get(ctx, "absent")
			require.True(t, xerrors.Is(err, ErrNotFound))
		}
		ok, err := backend.SetNX(ctx, "present", []byte("v"), time.Second)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("failures open the breaker", func(t *testing.T) {
		inner.failWith(func(string, string) error { return boom })
		for i := 0; i < 20; i++ {
			_, _ = backend.Get(ctx, "k")
		}

		callsBefore := inner.calls()
		_, err := backend.Get(ctx, "k")
		require.Error(t, err)
		assert.True(t, xerrors.Is(err, ErrBackendUnavailable))
		assert.Equal(t, callsBefore, inner.calls(), "open breaker must not reach the backend")

		err = backend.Del(ctx, "k")
		assert.True(t, xerrors.Is(err, ErrBackendUnavailable))
		assert.Equal(t, 503, StatusCode(err))
	})
}
