package idem

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/textproto"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/idemkit/clog"
	"github.com/ceyewan/idemkit/xerrors"
)

const (
	// DefaultHeaderKey 幂等键的默认 HTTP 头
	DefaultHeaderKey = "Idempotency-Key"
	// ReplayedHeader 重放的响应会带上该头
	ReplayedHeader = "Idempotent-Replayed"
)

// GinMiddleware 创建 Gin 幂等性中间件
//
// 作用域为 "METHOD route"，指纹为请求体的 SHA-256。
// handler 链即被保护的操作：2xx 响应（状态码、响应头、响应体）会被缓存，
// 非 2xx 视为失败，不缓存且释放执行中标记。
// 没有幂等键头或不在策略表中的请求直接放行，键头存在但为空白时返回 400。
//
// 使用示例:
//
//	r := gin.Default()
//	r.POST("/orders", coord.GinMiddleware(nil), func(c *gin.Context) {
//	    c.JSON(200, gin.H{"order_id": "123"})
//	})
func (c *Coordinator) GinMiddleware(table PolicyTable, opts ...MiddlewareOption) gin.HandlerFunc {
	opt := middlewareOptions{
		headerKey: DefaultHeaderKey,
	}
	for _, o := range opts {
		o(&opt)
	}

	return func(ginCtx *gin.Context) {
		operation := HTTPOperation(ginCtx.Request.Method, ginCtx.FullPath())
		policy, ok := table.Lookup(operation)
		if !ok {
			ginCtx.Next()
			return
		}

		// 只有缺少幂等键头时才放行；头存在但值为空交给 Validate 拒绝
		vals, present := ginCtx.Request.Header[textproto.CanonicalMIMEHeaderKey(opt.headerKey)]
		if !present {
			ginCtx.Next()
			return
		}
		raw := ""
		if len(vals) > 0 {
			raw = vals[0]
		}

		body, err := readBody(ginCtx.Request)
		if err != nil {
			abortWithError(ginCtx, xerrors.Wrap(ErrInvalidFormat, "read request body"))
			return
		}
		key := NewKey(operation, raw).WithFingerprint(Fingerprint(body))

		executed := false
		res, err := c.Execute(ginCtx.Request.Context(), key, func(ctx context.Context) (Value, error) {
			executed = true

			// 使用 ResponseWriter 包装器捕获响应
			writer := &responseWriter{
				ResponseWriter: ginCtx.Writer,
				body:           bytes.NewBuffer(nil),
			}
			ginCtx.Writer = writer
			ginCtx.Next()

			status := writer.Status()
			if status < http.StatusOK || status >= http.StatusMultipleChoices {
				return None(), &handlerStatusError{status: status}
			}
			resp := cachedHTTPResponse{
				Status: status,
				Header: cloneHeader(writer.Header()),
				Body:   bytes.Clone(writer.body.Bytes()),
			}
			resp.Header.Del("Content-Length")
			return Some(resp), nil
		}, policy.executeOptions()...)

		if executed {
			// 响应已经由 handler 写出
			return
		}
		if err != nil {
			c.logRejected(ginCtx.Request.Context(), "idem rejected HTTP request", err, key)
			abortWithError(ginCtx, err)
			return
		}

		c.logger.DebugContext(ginCtx.Request.Context(), "idem cache hit for HTTP request",
			clog.String("key", key.Identity()))
		if ok := writeCachedHTTPResponse(ginCtx, res, c.logger, key); !ok {
			ginCtx.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		ginCtx.Abort()
	}
}

// handlerStatusError 表示 handler 返回了非 2xx 响应
type handlerStatusError struct {
	status int
}

func (e *handlerStatusError) Error() string {
	return "idem: handler responded with status " + strconv.Itoa(e.status)
}

type cachedHTTPResponse struct {
	Status int         `json:"status" msgpack:"status"`
	Header http.Header `json:"header" msgpack:"header"`
	Body   []byte      `json:"body" msgpack:"body"`
}

func writeCachedHTTPResponse(ginCtx *gin.Context, res *Result, logger clog.Logger, key Key) bool {
	var resp cachedHTTPResponse
	if err := res.Decode(&resp); err != nil {
		logger.Error("failed to decode cached HTTP response", clog.Error(err), clog.String("key", key.Identity()))
		return false
	}
	for name, values := range resp.Header {
		for _, v := range values {
			ginCtx.Writer.Header().Add(name, v)
		}
	}
	ginCtx.Writer.Header().Set(ReplayedHeader, "true")
	ginCtx.Status(resp.Status)
	_, _ = ginCtx.Writer.Write(resp.Body)
	return true
}

// abortWithError 以 {code, message} 的 JSON 响应终止请求
func abortWithError(ginCtx *gin.Context, err error) {
	ginCtx.AbortWithStatusJSON(StatusCode(err), gin.H{
		"code":    ErrorCode(err),
		"message": err.Error(),
	})
}

// readBody 读取请求体并回填，供后续 handler 再次读取
func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

func cloneHeader(header http.Header) http.Header {
	dup := make(http.Header, len(header))
	for k, v := range header {
		dup[k] = append([]string(nil), v...)
	}
	return dup
}

// responseWriter 响应写入器包装器，用于捕获响应体
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

// Write 写入响应体
func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// WriteString 写入字符串响应体
func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Hijack 劫持连接
func (w *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return w.ResponseWriter.Hijack()
}
