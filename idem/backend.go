package idem

import (
	"context"
	"time"
)

// Backend 幂等组件依赖的键值存储
//
// 实现必须保证 SetNX 在单个键上是原子的（不能先读后写），
// 跨进程的互斥完全依赖这一点。
type Backend interface {
	// SetNX 键不存在时写入并设置 TTL，返回是否由本次调用写入
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// Get 读取键，不影响 TTL；键不存在时返回 ErrNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Del 删除键，键不存在不是错误
	Del(ctx context.Context, key string) error
}
