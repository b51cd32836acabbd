package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type idemSection struct {
	Driver     string        `mapstructure:"driver"`
	Prefix     string        `mapstructure:"prefix"`
	RequestTTL time.Duration `mapstructure:"request_ttl"`
	ResultTTL  time.Duration `mapstructure:"result_ttl"`
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestLoaderLoad 测试基础配置、环境配置、.env 与环境变量的叠加顺序
func TestLoaderLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", `
app:
  name: "postapi"
  debug: false
idem:
  driver: "redis"
  prefix: "postapi:"
  request_ttl: "10s"
  result_ttl: "1m"
redis:
  addr: "localhost:6379"
  db: 0
`)
	writeFile(t, dir, "config.dev.yaml", `
app:
  debug: true
idem:
  driver: "memory"
`)
	writeFile(t, dir, ".env", "IDEMKIT_REDIS_DB=3\n")

	t.Setenv("IDEMKIT_ENV", "dev")
	t.Setenv("IDEMKIT_APP_NAME", "from-env")
	t.Setenv("IDEMKIT_IDEM_RESULT_TTL", "2m")
	t.Cleanup(func() { _ = os.Unsetenv("IDEMKIT_REDIS_DB") })

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	assert.Equal(t, "from-env", loader.Get("app.name"))
	assert.Equal(t, true, loader.Get("app.debug"))
	assert.Equal(t, "3", loader.Get("redis.db"))

	var idemCfg idemSection
	require.NoError(t, loader.UnmarshalKey("idem", &idemCfg))
	assert.Equal(t, "memory", idemCfg.Driver)
	assert.Equal(t, "postapi:", idemCfg.Prefix)
	assert.Equal(t, 10*time.Second, idemCfg.RequestTTL)
	assert.Equal(t, time.Minute, idemCfg.ResultTTL)
	// 环境变量只覆盖按完整 key 读取的值
	assert.Equal(t, "2m", loader.Get("idem.result_ttl"))
}

func TestLoaderEmptyConfig(t *testing.T) {
	loader, err := New(&Config{Paths: []string{t.TempDir()}, EnvPrefix: "IDEMKIT_EMPTY_TEST"})
	require.NoError(t, err)

	err = loader.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsValidationFailed(err))
}

func TestLoaderInvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", "idem: [unclosed")

	loader, err := New(&Config{Paths: []string{dir}})
	require.NoError(t, err)
	require.Error(t, loader.Load(context.Background()))
}

func TestLoaderWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "clog:\n  level: info\n")

	loader, err := New(&Config{Paths: []string{dir}, EnvPrefix: "IDEMKIT_WATCH_TEST"})
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := loader.Watch(ctx, "clog.level")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("clog:\n  level: debug\n"), 0o644))

	select {
	case event := <-ch:
		assert.Equal(t, "clog.level", event.Key)
		assert.Equal(t, "debug", event.Value)
		assert.Equal(t, "info", event.OldValue)
	case <-time.After(5 * time.Second):
		t.Fatal("未收到配置变更事件")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestNewDefaults(t *testing.T) {
	cfg := &Config{EnvPrefix: "idemkit"}
	_, err := New(cfg)
	require.NoError(t, err)
	assert.Equal(t, "config", cfg.Name)
	assert.Equal(t, "yaml", cfg.FileType)
	assert.Equal(t, "IDEMKIT", cfg.EnvPrefix)
	assert.Equal(t, []string{".", "./config"}, cfg.Paths)
}
