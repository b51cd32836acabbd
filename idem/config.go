package idem

import (
	"time"

	"github.com/ceyewan/idemkit/xerrors"
)

// DriverType 幂等组件驱动类型
type DriverType string

const (
	// DriverRedis 使用 Redis 作为后端
	DriverRedis DriverType = "redis"
	// DriverEtcd 使用 etcd 作为后端
	DriverEtcd DriverType = "etcd"
	// DriverMemory 使用内存作为后端（仅单机）
	DriverMemory DriverType = "memory"
)

// 默认值
const (
	DefaultRequestNamespace = "idempotency.request"
	DefaultResultNamespace  = "idempotency.response"
	DefaultRequestTTL       = 10 * time.Second
	DefaultResultTTL        = time.Minute
)

// Config 幂等性组件配置
type Config struct {
	// Driver 后端类型: "redis" | "etcd" | "memory" (默认 "redis")
	Driver DriverType `json:"driver" yaml:"driver" mapstructure:"driver"`

	// Prefix 全局键前缀，同时加在请求命名空间和结果命名空间之前，默认为空
	// 例如 "tenant-a:" 将使用 "tenant-a:idempotency.request::{identity}"
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// RequestNamespace 执行中标记的命名空间，默认 "idempotency.request"
	RequestNamespace string `json:"request_namespace" yaml:"request_namespace" mapstructure:"request_namespace"`

	// ResultNamespace 结果缓存的命名空间，默认 "idempotency.response"
	ResultNamespace string `json:"result_namespace" yaml:"result_namespace" mapstructure:"result_namespace"`

	// RequestTTL 执行中标记的有效期，默认 10s
	// 应覆盖操作的最大耗时，只用于进程崩溃后标记的自愈
	RequestTTL time.Duration `json:"request_ttl" yaml:"request_ttl" mapstructure:"request_ttl"`

	// ResultTTL 结果缓存的有效期，即客户端可见的幂等窗口，默认 1m
	ResultTTL time.Duration `json:"result_ttl" yaml:"result_ttl" mapstructure:"result_ttl"`

	// MaxKeyLength 原始键的最大字符数，默认 32
	MaxKeyLength int `json:"max_key_length" yaml:"max_key_length" mapstructure:"max_key_length"`

	// Serializer 结果序列化格式: "json" | "msgpack" (默认 "json")
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// MemoryCapacity 内存后端容量，仅 Driver 为 memory 时生效
	// 超出后条目（包括执行中标记）会被淘汰，失去互斥保证
	MemoryCapacity int `json:"memory_capacity" yaml:"memory_capacity" mapstructure:"memory_capacity"`

	// Breaker 存储后端熔断配置
	Breaker BreakerConfig `json:"breaker" yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig 存储后端熔断配置
type BreakerConfig struct {
	// Enabled 是否启用熔断，默认关闭
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`

	// MaxRequests 半开状态下允许通过的最大请求数，默认 1
	MaxRequests uint32 `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`

	// Interval 闭合状态下统计周期，0 表示不清空计数
	Interval time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`

	// Timeout 打开状态持续时间，之后进入半开状态，默认 30s
	Timeout time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`

	// FailureRatio 触发熔断的失败率阈值，默认 0.6
	FailureRatio float64 `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio"`

	// MinimumRequests 触发熔断的最小请求数，默认 10
	MinimumRequests uint32 `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`
}

func (c *Config) setDefaults() {
	if c == nil {
		return
	}
	if c.Driver == "" {
		c.Driver = DriverRedis
	}
	if c.RequestNamespace == "" {
		c.RequestNamespace = DefaultRequestNamespace
	}
	if c.ResultNamespace == "" {
		c.ResultNamespace = DefaultResultNamespace
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = DefaultRequestTTL
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
	if c.MaxKeyLength <= 0 {
		c.MaxKeyLength = DefaultMaxKeyLength
	}
	if c.Serializer == "" {
		c.Serializer = SerializerJSON
	}
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = DefaultMemoryCapacity
	}
	c.Breaker.setDefaults()
}

func (c *Config) validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Driver {
	case DriverRedis, DriverEtcd, DriverMemory:
	default:
		return xerrors.New("idem: unsupported driver: " + string(c.Driver))
	}
	if c.RequestNamespace == c.ResultNamespace {
		return xerrors.New("idem: request and result namespaces must differ")
	}
	switch c.Serializer {
	case SerializerJSON, SerializerMsgpack:
	default:
		return xerrors.Wrapf(ErrUnsupportedSerializer, "idem: %s", c.Serializer)
	}
	if c.Breaker.Enabled && (c.Breaker.FailureRatio <= 0 || c.Breaker.FailureRatio > 1) {
		return xerrors.New("idem: breaker failure_ratio must be in (0, 1]")
	}
	return nil
}

func (c *BreakerConfig) setDefaults() {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
}
