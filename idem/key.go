package idem

import (
	"strings"
	"unicode/utf8"

	"github.com/ceyewan/idemkit/xerrors"
)

// DefaultMaxKeyLength 幂等键的默认最大长度（按字符计）
const DefaultMaxKeyLength = 32

// identitySeparator 连接作用域与原始键，也连接命名空间与身份
const identitySeparator = "::"

// Key 幂等键
//
// 由调用方提供的原始键 raw 和作用域 scope 组成，scope 用于区分不同操作
// （如 "POST /posts"），避免不同接口上相同的 raw 相互冲突。
// fingerprint 是请求体指纹，只在开启请求体校验时使用，不参与身份比较。
//
// Key 是值类型，构造后不可变；WithFingerprint 返回一个新值。
type Key struct {
	scope       string
	raw         string
	fingerprint string
}

// NewKey 创建幂等键
func NewKey(scope, raw string) Key {
	return Key{scope: scope, raw: raw}
}

// WithFingerprint 返回附加了请求体指纹的副本
func (k Key) WithFingerprint(fp string) Key {
	k.fingerprint = fp
	return k
}

// Scope 返回作用域
func (k Key) Scope() string { return k.scope }

// Raw 返回客户端提供的原始键
func (k Key) Raw() string { return k.raw }

// Fingerprint 返回请求体指纹，未附加时为空
func (k Key) Fingerprint() string { return k.fingerprint }

// Identity 返回用于所有存储操作的规范身份 "scope::raw"，scope 为空时即 raw
func (k Key) Identity() string {
	if k.scope == "" {
		return k.raw
	}
	return k.scope + identitySeparator + k.raw
}

// String 实现 fmt.Stringer
func (k Key) String() string {
	return k.Identity()
}

// Validate 校验原始键格式：不能为空白，长度不能超过 maxLen 个字符。
// maxLen <= 0 时使用 DefaultMaxKeyLength。
//
// scope 中不能出现 "::"；scope 为空时 raw 中也不能出现，
// 否则 ("a::b", "c") 与 ("a", "b::c") 会得到相同的 Identity。
func (k Key) Validate(maxLen int) error {
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLength
	}
	if strings.TrimSpace(k.raw) == "" {
		return xerrors.Wrap(ErrInvalidFormat, "key is blank")
	}
	if strings.Contains(k.scope, identitySeparator) {
		return xerrors.Wrapf(ErrInvalidFormat, "scope %q contains %q", k.scope, identitySeparator)
	}
	if k.scope == "" && strings.Contains(k.raw, identitySeparator) {
		return xerrors.Wrapf(ErrInvalidFormat, "unscoped key contains %q", identitySeparator)
	}
	if n := utf8.RuneCountInString(k.raw); n > maxLen {
		return xerrors.Wrapf(ErrInvalidFormat, "key length %d exceeds %d", n, maxLen)
	}
	return nil
}

// Equal 比较两个键的身份，忽略指纹
func (k Key) Equal(other Key) bool {
	return k.scope == other.scope && k.raw == other.raw
}
