package config

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

const watchBuffer = 10

type loader struct {
	v      *viper.Viper
	opts   *Config
	logger clog.Logger

	mu        sync.Mutex
	watches   map[string][]chan Event
	lastValue map[string]any
}

func newLoader(cfg *Config, logger clog.Logger) *loader {
	return &loader{
		v:         viper.New(),
		opts:      cfg,
		logger:    logger,
		watches:   make(map[string][]chan Event),
		lastValue: make(map[string]any),
	}
}

// Load 依次叠加 .env、基础配置文件、环境配置文件，然后开始监听文件变化
//
// 环境变量通过 AutomaticEnv 在读取时生效，优先级最高。
func (l *loader) Load(ctx context.Context) error {
	l.v.SetConfigName(l.opts.Name)
	l.v.SetConfigType(l.opts.FileType)
	for _, path := range l.opts.Paths {
		l.v.AddConfigPath(path)
	}
	l.v.SetEnvPrefix(l.opts.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if !l.loadDotEnv() {
		l.logger.Debug("no .env file loaded")
	}

	if err := l.v.ReadInConfig(); err != nil {
		if !isFileNotFound(err) {
			return xerrors.Wrapf(err, "failed to read config file %s", l.opts.Name)
		}
		l.logger.Warn("no configuration file found",
			clog.String("name", l.opts.Name), clog.Any("paths", l.opts.Paths))
	}
	if err := l.mergeEnvironmentConfig(); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	for key := range l.watches {
		l.lastValue[key] = l.v.Get(key)
	}
	l.mu.Unlock()

	l.v.OnConfigChange(l.onFileChange)
	l.v.WatchConfig()
	return nil
}

// loadDotEnv 加载工作目录及各搜索路径下的 .env，已存在的环境变量不会被覆盖
func (l *loader) loadDotEnv() bool {
	candidates := []string{".env"}
	for _, path := range l.opts.Paths {
		candidates = append(candidates, filepath.Join(path, ".env"))
	}

	loaded := false
	for _, file := range candidates {
		if godotenv.Load(file) == nil {
			loaded = true
		}
	}
	return loaded
}

// mergeEnvironmentConfig 合并 <name>.<env>.<type>，env 取自 <PREFIX>_ENV
func (l *loader) mergeEnvironmentConfig() error {
	env := os.Getenv(l.opts.EnvPrefix + "_ENV")
	if env == "" {
		return nil
	}

	name := l.opts.Name + "." + env
	l.v.SetConfigName(name)
	defer l.v.SetConfigName(l.opts.Name)

	if err := l.v.MergeInConfig(); err != nil {
		if !isFileNotFound(err) {
			return xerrors.Wrapf(err, "failed to merge environment config %s", name)
		}
		l.logger.Info("no environment configuration file found", clog.String("env", env))
		return nil
	}
	l.logger.Info("loaded environment configuration", clog.String("env", env))
	return nil
}

func isFileNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return xerrors.As(err, &notFound)
}

func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

func (l *loader) Unmarshal(v any) error {
	return l.v.Unmarshal(v)
}

func (l *loader) UnmarshalKey(key string, v any) error {
	return l.v.UnmarshalKey(key, v)
}

// Watch 订阅 key 的变更，ctx 取消后通道关闭
//
// 通道有缓冲，消费过慢时新事件会被丢弃并记录告警。
func (l *loader) Watch(ctx context.Context, key string) (<-chan Event, error) {
	ch := make(chan Event, watchBuffer)

	l.mu.Lock()
	l.watches[key] = append(l.watches[key], ch)
	l.lastValue[key] = l.v.Get(key)
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.unwatch(key, ch)
	}()
	return ch, nil
}

func (l *loader) unwatch(key string, ch chan Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	chans := l.watches[key]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(l.watches, key)
		delete(l.lastValue, key)
	} else {
		l.watches[key] = chans
	}
	close(ch)
}

// Validate 当前只要求配置非空
func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrapf(ErrValidationFailed, "configuration is empty")
	}
	return nil
}

func (l *loader) onFileChange(e fsnotify.Event) {
	if err := l.mergeEnvironmentConfig(); err != nil {
		l.logger.Error("failed to reload environment config", clog.Error(err))
	}
	l.logger.Info("config file changed", clog.String("file", e.Name), clog.String("op", e.Op.String()))

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	for key, chans := range l.watches {
		value := l.v.Get(key)
		old := l.lastValue[key]
		if reflect.DeepEqual(old, value) {
			continue
		}
		l.lastValue[key] = value

		event := Event{Key: key, Value: value, OldValue: old, Source: "file", Timestamp: now}
		for _, ch := range chans {
			select {
			case ch <- event:
			default:
				l.logger.Warn("watch channel is full, event dropped", clog.String("key", key))
			}
		}
	}
}
