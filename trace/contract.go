package trace

import "go.opentelemetry.io/otel/attribute"

// 幂等执行相关的 Span 属性键
const (
	AttrIdemScope    = attribute.Key("idem.scope")
	AttrIdemOutcome  = attribute.Key("idem.outcome")
	AttrIdemReplayed = attribute.Key("idem.replayed")
	AttrIdemDriver   = attribute.Key("idem.driver")
)

// InstrumentationName 是 idemkit 各组件创建 Tracer 时使用的名称
const InstrumentationName = "github.com/ceyewan/idemkit"
