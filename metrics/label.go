package metrics

// Label 指标的一个维度
//
// 标签值应当是有限集合，例如 outcome、method、route 模板。
// 幂等键、用户 ID、请求 ID 这类高基数值不要放进标签。
type Label struct {
	Key   string
	Value string
}

// L 构造一个 Label
//
//	counter.Inc(ctx, metrics.L(metrics.LabelOutcome, "conflict"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
