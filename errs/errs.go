// Package errs 定义边缘代理统一的错误分类。
package errs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Code 错误类别
type Code string

const (
	// CodeValidation 请求参数缺失或非法，不重试
	CodeValidation Code = "VALIDATION"
	// CodeRateLimited 超出限流窗口
	CodeRateLimited Code = "RATE_LIMITED"
	// CodeUpstreamTimeout 单个 Provider 超时
	CodeUpstreamTimeout Code = "UPSTREAM_TIMEOUT"
	// CodeUpstreamFailure 单个 Provider 调用失败
	CodeUpstreamFailure Code = "UPSTREAM_FAILURE"
	// CodeBreakerOpen 熔断器打开，调用在本地被拒绝
	CodeBreakerOpen Code = "BREAKER_OPEN"
	// CodeNotFound 曲目或播放地址不存在
	CodeNotFound Code = "NOT_FOUND"
	// CodeRelayFailure 上游字节流传输失败
	CodeRelayFailure Code = "RELAY_FAILURE"
	// CodeMethodNotAllowed 不支持的 HTTP 方法
	CodeMethodNotAllowed Code = "METHOD_NOT_ALLOWED"
	// CodeInternal 未分类错误
	CodeInternal Code = "INTERNAL"
)

// E 结构化错误
type E struct {
	Provider   string
	Code       Code
	HTTP       int
	Message    string
	RetryAfter int // 秒，仅 CodeRateLimited 使用

	cause error
}

// Option 配置错误字段
type Option func(*E)

// New 创建错误
func New(code Code, opts ...Option) *E {
	e := &E{Code: code}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithProvider 记录出错的 Provider
func WithProvider(provider string) Option {
	return func(e *E) {
		e.Provider = strings.TrimSpace(provider)
	}
}

// WithMessage 附加可读信息
func WithMessage(message string) Option {
	return func(e *E) {
		e.Message = strings.TrimSpace(message)
	}
}

// WithHTTP 覆盖默认 HTTP 状态码
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRetryAfter 记录重试等待秒数
func WithRetryAfter(seconds int) Option {
	return func(e *E) {
		e.RetryAfter = seconds
	}
}

// WithCause 包装底层错误
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := []string{"code=" + string(e.Code)}
	if e.Provider != "" {
		parts = append(parts, "provider="+e.Provider)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Status 返回该错误对应的 HTTP 状态码
func (e *E) Status() int {
	if e.HTTP > 0 {
		return e.HTTP
	}
	return defaultStatus(e.Code)
}

// CodeOf 提取错误类别。未包装的超时映射为 CodeUpstreamTimeout。
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeUpstreamTimeout
	}
	return CodeInternal
}

// Is 判断错误链中是否含有指定类别
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus 返回错误对应的 HTTP 状态码
func HTTPStatus(err error) int {
	var e *E
	if errors.As(err, &e) {
		return e.Status()
	}
	return defaultStatus(CodeOf(err))
}

// MessageOf 返回面向调用方的错误信息
func MessageOf(err error) string {
	var e *E
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return http.StatusText(HTTPStatus(err))
}

func defaultStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeUpstreamTimeout, CodeUpstreamFailure, CodeBreakerOpen, CodeRelayFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
