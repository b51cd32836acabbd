package idem

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/idemkit/xerrors"
)

const (
	// markerEmpty 未记录指纹的执行中标记
	markerEmpty = "-"
	// markerFingerprintPrefix 记录了指纹的标记前缀
	markerFingerprintPrefix = "fp:"
)

// Marker 执行中标记
type Marker struct {
	// Fingerprint 获取标记时记录的请求体指纹，未开启校验时为空
	Fingerprint string
}

func (m Marker) encode() []byte {
	if m.Fingerprint == "" {
		return []byte(markerEmpty)
	}
	return []byte(markerFingerprintPrefix + m.Fingerprint)
}

func decodeMarker(b []byte) Marker {
	s := string(b)
	if fp, ok := strings.CutPrefix(s, markerFingerprintPrefix); ok {
		return Marker{Fingerprint: fp}
	}
	return Marker{}
}

// RequestTracker 管理每个幂等键的执行中标记，是跨进程互斥的唯一手段
type RequestTracker struct {
	backend   Backend
	namespace string
	ttl       time.Duration
}

// NewRequestTracker 创建执行中标记管理器
// namespace 为完整的命名空间（已包含全局前缀）
func NewRequestTracker(backend Backend, namespace string, ttl time.Duration) *RequestTracker {
	if ttl <= 0 {
		ttl = DefaultRequestTTL
	}
	return &RequestTracker{backend: backend, namespace: namespace, ttl: ttl}
}

// StoreKey 返回标记在存储中的键
func (t *RequestTracker) StoreKey(key Key) string {
	return t.namespace + identitySeparator + key.Identity()
}

// TryAcquire 原子地创建执行中标记，返回是否由本次调用创建。
// 键附带指纹时，指纹作为标记的值写入，供后续的请求体校验读取。
func (t *RequestTracker) TryAcquire(ctx context.Context, key Key) (bool, error) {
	marker := Marker{Fingerprint: key.Fingerprint()}
	ok, err := t.backend.SetNX(ctx, t.StoreKey(key), marker.encode(), t.ttl)
	if err != nil {
		return false, xerrors.Wrap(err, "idem: acquire request marker")
	}
	return ok, nil
}

// Release 删除执行中标记，标记不存在时不报错
func (t *RequestTracker) Release(ctx context.Context, key Key) error {
	if err := t.backend.Del(ctx, t.StoreKey(key)); err != nil {
		return xerrors.Wrap(err, "idem: release request marker")
	}
	return nil
}

// Peek 只读地获取执行中标记，不影响 TTL
func (t *RequestTracker) Peek(ctx context.Context, key Key) (Marker, bool, error) {
	b, err := t.backend.Get(ctx, t.StoreKey(key))
	if err != nil {
		if xerrors.Is(err, ErrNotFound) {
			return Marker{}, false, nil
		}
		return Marker{}, false, xerrors.Wrap(err, "idem: peek request marker")
	}
	return decodeMarker(b), true, nil
}
