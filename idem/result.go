package idem

import (
	"context"
	"reflect"
	"time"

	"github.com/ceyewan/idemkit/xerrors"
)

const (
	kindSome = "some"
	kindNone = "none"
)

// Value 操作的返回值：Some(v) 或 None()
//
// None 表示操作没有返回值，缓存后重放仍为 None，
// 与"从未执行"（缓存不存在）以及 Some("") 都能区分。
type Value struct {
	some bool
	v    any
}

// Some 包装一个返回值
func Some(v any) Value {
	return Value{some: true, v: v}
}

// None 表示没有返回值
func None() Value {
	return Value{}
}

// IsNone 是否为 None
func (v Value) IsNone() bool { return !v.some }

// Get 返回包装的值，None 时为 nil
func (v Value) Get() any { return v.v }

// envelope 结果在存储中的表示
type envelope struct {
	Kind string `json:"kind" msgpack:"kind"`
	Data []byte `json:"data,omitempty" msgpack:"data,omitempty"`
}

// Result 一次执行（或重放）的结果
type Result struct {
	none     bool
	data     []byte
	blob     []byte
	codec    Codec
	replayed bool

	// 序列化失败时直接持有 op 的返回值，此时 data 为空
	unencoded bool
	value     any
}

// unencodedResult 包装无法序列化的返回值，只用于本次调用
func unencodedResult(v Value) *Result {
	return &Result{none: v.IsNone(), value: v.Get(), unencoded: true}
}

// IsNone 操作是否没有返回值
func (r *Result) IsNone() bool { return r.none }

// Replayed 结果是否来自缓存
func (r *Result) Replayed() bool { return r.replayed }

// Raw 返回值经序列化后的字节，None 或序列化失败时为 nil
func (r *Result) Raw() []byte { return r.data }

// Decode 将结果反序列化到 dest，None 时返回 ErrNoValue
func (r *Result) Decode(dest any) error {
	if r.none {
		return ErrNoValue
	}
	if r.unencoded {
		return assignValue(r.value, dest)
	}
	if err := r.codec.Unmarshal(r.data, dest); err != nil {
		return xerrors.Wrapf(err, "idem: decode result with %s", r.codec.Name())
	}
	return nil
}

func assignValue(v any, dest any) error {
	target := reflect.ValueOf(dest)
	if target.Kind() != reflect.Pointer || target.IsNil() {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: decode destination %T is not a non-nil pointer", dest)
	}
	elem := target.Elem()
	src := reflect.ValueOf(v)
	if !src.IsValid() {
		elem.SetZero()
		return nil
	}
	if !src.Type().AssignableTo(elem.Type()) {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: cannot assign %T to %s", v, elem.Type())
	}
	elem.Set(src)
	return nil
}

// ResultCache 管理每个幂等键的结果缓存，写入采用先到先得
type ResultCache struct {
	backend   Backend
	namespace string
	codec     Codec
}

// NewResultCache 创建结果缓存
// namespace 为完整的命名空间（已包含全局前缀），codec 为空时使用 JSON
func NewResultCache(backend Backend, namespace string, codec Codec) *ResultCache {
	if codec == nil {
		codec = jsonCodec{}
	}
	return &ResultCache{backend: backend, namespace: namespace, codec: codec}
}

// StoreKey 返回结果在存储中的键
func (c *ResultCache) StoreKey(key Key) string {
	return c.namespace + identitySeparator + key.Identity()
}

// Encode 序列化返回值，得到可写入缓存的结果
func (c *ResultCache) Encode(v Value) (*Result, error) {
	env := envelope{Kind: kindNone}
	if !v.IsNone() {
		data, err := c.codec.Marshal(v.Get())
		if err != nil {
			return nil, xerrors.Wrapf(err, "idem: encode result with %s", c.codec.Name())
		}
		env = envelope{Kind: kindSome, Data: data}
	}
	blob, err := c.codec.Marshal(env)
	if err != nil {
		return nil, xerrors.Wrap(err, "idem: encode result envelope")
	}
	return &Result{
		none:  env.Kind == kindNone,
		data:  env.Data,
		blob:  blob,
		codec: c.codec,
	}, nil
}

// Lookup 只读地获取缓存结果，不影响 TTL
func (c *ResultCache) Lookup(ctx context.Context, key Key) (*Result, bool, error) {
	blob, err := c.backend.Get(ctx, c.StoreKey(key))
	if err != nil {
		if xerrors.Is(err, ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, xerrors.Wrap(err, "idem: lookup result")
	}

	var env envelope
	if err := c.codec.Unmarshal(blob, &env); err != nil {
		return nil, false, xerrors.Wrap(err, "idem: decode result envelope")
	}
	switch env.Kind {
	case kindSome, kindNone:
	default:
		return nil, false, xerrors.Wrapf(xerrors.ErrInvalidInput, "idem: unknown result kind %q", env.Kind)
	}
	return &Result{
		none:     env.Kind == kindNone,
		data:     env.Data,
		blob:     blob,
		codec:    c.codec,
		replayed: true,
	}, true, nil
}

// Store 以"不存在才写入"的方式缓存结果，返回是否由本次调用写入。
// 已有结果时本次写入不生效，需要权威值的调用方应再次 Lookup。
func (c *ResultCache) Store(ctx context.Context, key Key, result *Result, ttl time.Duration) (bool, error) {
	ok, err := c.backend.SetNX(ctx, c.StoreKey(key), result.blob, ttl)
	if err != nil {
		return false, xerrors.Wrap(err, "idem: store result")
	}
	return ok, nil
}
