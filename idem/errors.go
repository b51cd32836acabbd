package idem

import (
	"context"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

// 错误码，传输层据此映射状态码
const (
	CodeInvalidFormat   = "INVALID_FORMAT"
	CodeConflict        = "CONFLICT_REQUEST"
	CodePayloadMismatch = "PAYLOAD_MISMATCH"
)

// 错误定义
var (
	// ErrInvalidFormat 幂等键为空白或超过最大长度，在访问存储之前返回
	ErrInvalidFormat = xerrors.NewCoded(CodeInvalidFormat, "idem: invalid idempotency key format")

	// ErrConflict 相同幂等键的请求正在执行，调用方稍后重试即可
	ErrConflict = xerrors.NewCoded(CodeConflict, "idem: request with the same key is in progress")

	// ErrPayloadMismatch 相同幂等键携带了不同的请求体
	ErrPayloadMismatch = xerrors.NewCoded(CodePayloadMismatch, "idem: payload does not match the first request")

	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("idem: config is nil")

	// ErrNotFound 存储中不存在该键，Backend.Get 在键缺失时返回
	ErrNotFound = xerrors.New("idem: key not found")

	// ErrBackendUnavailable 存储后端不可用（熔断打开或连接器尚未连接）
	ErrBackendUnavailable = xerrors.Wrap(xerrors.ErrUnavailable, "idem: backend")

	// ErrNoValue 结果为 None 时调用 Decode
	ErrNoValue = xerrors.New("idem: result holds no value")
)

// StatusCode 将错误映射为 HTTP 状态码
//
//	ErrInvalidFormat      -> 400
//	ErrConflict           -> 409
//	ErrPayloadMismatch    -> 422
//	ErrBackendUnavailable -> 503
//	其他                  -> 500
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, ErrInvalidFormat):
		return http.StatusBadRequest
	case xerrors.Is(err, ErrConflict):
		return http.StatusConflict
	case xerrors.Is(err, ErrPayloadMismatch):
		return http.StatusUnprocessableEntity
	case xerrors.Is(err, ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorCode 返回错误响应体中的 code 字段
func ErrorCode(err error) string {
	if code := xerrors.GetCode(err); code != "" {
		return code
	}
	if xerrors.Is(err, ErrBackendUnavailable) {
		return "BACKEND_UNAVAILABLE"
	}
	return "INTERNAL_ERROR"
}

// GRPCCode 将错误映射为 gRPC 状态码
func GRPCCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case xerrors.Is(err, ErrInvalidFormat):
		return codes.InvalidArgument
	case xerrors.Is(err, ErrConflict):
		return codes.Aborted
	case xerrors.Is(err, ErrPayloadMismatch):
		return codes.FailedPrecondition
	case xerrors.Is(err, ErrBackendUnavailable):
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// isTaxonomyError 判断是否为协调器自身产生的错误（非业务错误、非存储错误）
func isTaxonomyError(err error) bool {
	return xerrors.Is(err, ErrInvalidFormat) ||
		xerrors.Is(err, ErrConflict) ||
		xerrors.Is(err, ErrPayloadMismatch)
}

// logRejected 记录适配器拒绝的请求：键格式、冲突、指纹不一致是客户端行为，记 Warn；
// 存储故障记 Error
func (c *Coordinator) logRejected(ctx context.Context, msg string, err error, key Key) {
	fields := []clog.Field{clog.ErrorWithCode(err, ErrorCode(err)), clog.String("key", key.Identity())}
	if isTaxonomyError(err) {
		c.logger.WarnContext(ctx, msg, fields...)
		return
	}
	c.logger.ErrorContext(ctx, msg, fields...)
}
