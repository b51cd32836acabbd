package trace

// Batcher 取值
const (
	BatcherBatch  = "batch"
	BatcherSimple = "simple"
)

// Config 链路追踪配置
//
//	trace:
//	  service_name: postapi
//	  endpoint: localhost:4317
//	  sampler: 1.0
//	  batcher: batch
//	  insecure: true
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	// Endpoint OTLP gRPC 接收端地址，如 Tempo 或 Jaeger
	Endpoint string `mapstructure:"endpoint"`
	// Sampler 根 span 的采样比例 [0, 1]，子 span 跟随父 span
	Sampler float64 `mapstructure:"sampler"`
	// Batcher batch 异步批量导出，simple 同步导出（仅调试）
	Batcher  string `mapstructure:"batcher"`
	Insecure bool   `mapstructure:"insecure"`
}

// DefaultConfig 返回连接本地 collector 的全量采样配置
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Endpoint:    "localhost:4317",
		Sampler:     1.0,
		Batcher:     BatcherBatch,
		Insecure:    true,
	}
}
