package idem

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/ceyewan/idemkit/xerrors"
)

// DefaultMemoryCapacity 内存存储默认容量
const DefaultMemoryCapacity = 10000

// memoryEntry 记录值及其过期时间
// otter 的过期清理是惰性的，读取时仍以 expiresAt 为准
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !now.Before(e.expiresAt)
}

// memoryBackend 基于 otter 的单机内存存储，只适合测试和本地开发
//
// 容量满后 otter 按频率淘汰条目，执行中标记也可能被淘汰，此时相同键的重复请求
// 会再次执行。活跃键数量（标记加结果）应明显小于 MemoryCapacity。
type memoryBackend struct {
	cache *otter.Cache[string, memoryEntry]
}

// NewMemoryBackend 创建内存存储，capacity <= 0 时使用 DefaultMemoryCapacity。
// 返回值实现了 io.Closer，用完后应当关闭
func NewMemoryBackend(capacity int) (Backend, error) {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}

	// 写入过期：过期时间从写入开始计算，读取不会续期，与 Redis TTL 语义一致。
	// 每个键实际的 TTL 在写入后通过 SetExpiresAfter 覆盖
	cache, err := otter.New(&otter.Options[string, memoryEntry]{
		MaximumSize:      capacity,
		ExpiryCalculator: otter.ExpiryWriting[string, memoryEntry](time.Hour),
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "failed to build otter cache")
	}
	return &memoryBackend{cache: cache}, nil
}

func (b *memoryBackend) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = time.Second
	}

	now := time.Now()
	entry := memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: now.Add(ttl),
	}

	inserted := false
	b.cache.Compute(key, func(old memoryEntry, found bool) (memoryEntry, otter.ComputeOp) {
		if found && !old.expired(now) {
			return old, otter.CancelOp
		}
		inserted = true
		return entry, otter.WriteOp
	})
	if inserted {
		b.cache.SetExpiresAfter(key, ttl)
	}
	return inserted, nil
}

func (b *memoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := b.cache.GetIfPresent(key)
	if !ok || entry.expired(time.Now()) {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (b *memoryBackend) Del(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.cache.Invalidate(key)
	return nil
}

// Close 停止 otter 的后台协程
func (b *memoryBackend) Close() error {
	b.cache.StopAllGoroutines()
	return nil
}
