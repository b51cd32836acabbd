package idem

import "time"

// Policy 单个接口的幂等策略
type Policy struct {
	// UsePayloadValidation 是否校验请求体指纹
	UsePayloadValidation bool `json:"use_payload_validation" yaml:"use_payload_validation" mapstructure:"use_payload_validation"`

	// ResultTTL 覆盖全局的结果缓存有效期，0 表示使用 Config.ResultTTL
	ResultTTL time.Duration `json:"result_ttl" yaml:"result_ttl" mapstructure:"result_ttl"`
}

// PolicyTable 以操作标识为键的策略表
//
// HTTP 的操作标识为 "METHOD route"（如 "POST /posts/:id"），gRPC 为完整方法名。
// 表中没有的接口不参与幂等；nil 表示所有接口都使用默认策略参与幂等，
// 适合直接挂在单个路由上的场景。
type PolicyTable map[string]Policy

// Lookup 查找操作对应的策略
func (t PolicyTable) Lookup(operation string) (Policy, bool) {
	if t == nil {
		return Policy{}, true
	}
	p, ok := t[operation]
	return p, ok
}

// HTTPOperation 返回 HTTP 接口的操作标识
func HTTPOperation(method, route string) string {
	return method + " " + route
}

func (p Policy) executeOptions() []ExecuteOption {
	var opts []ExecuteOption
	if p.UsePayloadValidation {
		opts = append(opts, WithPayloadValidation())
	}
	if p.ResultTTL > 0 {
		opts = append(opts, WithResultTTL(p.ResultTTL))
	}
	return opts
}
