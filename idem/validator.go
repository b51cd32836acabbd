package idem

import (
	"context"

	"github.com/ceyewan/idemkit/xerrors"
)

// PayloadValidator 校验同一幂等键的重试是否携带了相同的请求体
//
// 指纹记录在执行中标记里（由 TryAcquire 原子写入），因此结果写入之前即可校验。
// 首次出现时没有可比较的指纹，校验通过，随后的 TryAcquire 记录本次指纹。
type PayloadValidator struct {
	tracker *RequestTracker
}

// NewPayloadValidator 创建请求体校验器
func NewPayloadValidator(tracker *RequestTracker) *PayloadValidator {
	return &PayloadValidator{tracker: tracker}
}

// Validate 比较记录的指纹与当前指纹，不一致时返回 ErrPayloadMismatch
func (v *PayloadValidator) Validate(ctx context.Context, key Key, fingerprint string) error {
	marker, found, err := v.tracker.Peek(ctx, key)
	if err != nil {
		return err
	}
	if !found || marker.Fingerprint == "" {
		return nil
	}
	if marker.Fingerprint != fingerprint {
		return xerrors.Wrapf(ErrPayloadMismatch, "key %s", key.Identity())
	}
	return nil
}
