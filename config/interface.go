// Package config 为 idemkit 提供基于 Viper 的配置加载能力。
//
// 配置优先级（从高到低）：环境变量 > .env 文件 > 环境特定配置 (config.<env>.yaml) > 基础配置。
// 环境由 <PREFIX>_ENV 指定，例如 IDEMKIT_ENV=dev 会合并 config.dev.yaml。
//
// 基本使用：
//
//	loader := config.MustLoad(&config.Config{
//		Name:      "config",
//		Paths:     []string{"./config"},
//		EnvPrefix: "IDEMKIT",
//	})
//
//	var idemCfg idem.Config
//	if err := loader.UnmarshalKey("idem", &idemCfg); err != nil {
//		return err
//	}
//
//	// 监听配置变化
//	ch, _ := loader.Watch(ctx, "clog.level")
//	for event := range ch {
//		logger.Info("config changed", clog.String("key", event.Key), clog.Any("value", event.Value))
//	}
package config

import (
	"context"
	"time"
)

// Loader 定义配置加载器的核心行为
type Loader interface {
	// Load 从所有来源加载配置，并开始监听配置文件变化
	Load(ctx context.Context) error

	// Get 获取原始配置值
	Get(key string) any

	// Unmarshal 将整个配置反序列化到结构体（使用 mapstructure 标签）
	Unmarshal(v any) error

	// UnmarshalKey 将指定 Key 的配置反序列化到结构体
	UnmarshalKey(key string, v any) error

	// Watch 监听配置变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	// Validate 验证当前配置的有效性
	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}
