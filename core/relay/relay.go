// Package relay 把已解析的上游播放地址以字节流形式透传给调用方。
// 不检查、不转码音频内容，只转发 Range 与一组安全的响应头。
package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"FMEdge/errs"
	"FMEdge/logger"
	"FMEdge/model"
)

// DefaultCacheControl 上游没有给出 Cache-Control 时使用
const DefaultCacheControl = "public, max-age=3600"

// 允许透传的上游响应头，其余一律丢弃
var passthroughHeaders = []string{
	"Content-Type",
	"Cache-Control",
	"Accept-Ranges",
	"Content-Length",
	"Content-Range",
	"Etag",
	"Last-Modified",
	"Expires",
}

// Relay 流转发器
type Relay struct {
	client    *http.Client
	userAgent string
}

// DefaultHeaderTimeout 等待上游响应头的默认上限
const DefaultHeaderTimeout = 10 * time.Second

// NewClient 返回只限制响应头等待时间的客户端。
// 响应体的读取不设上限，流的生命周期由请求 context 控制。
func NewClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = DefaultHeaderTimeout
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}
}

// New 创建转发器，client 为 nil 时使用 NewClient(DefaultHeaderTimeout)
func New(client *http.Client) *Relay {
	if client == nil {
		client = NewClient(DefaultHeaderTimeout)
	}
	return &Relay{
		client:    client,
		userAgent: "FMEdge/1.0",
	}
}

// Upstream 上游响应，调用方负责关闭 Body
type Upstream struct {
	Status int
	Header http.Header
	Body   io.ReadCloser
}

// Close 关闭上游响应体
func (u *Upstream) Close() error {
	if u == nil || u.Body == nil {
		return nil
	}
	return u.Body.Close()
}

// Open 向上游发起请求。method 只能是 GET 或 HEAD，rangeHeader 非空时原样转发。
func (r *Relay) Open(ctx context.Context, method string, loc *model.StreamLocation, rangeHeader string) (*Upstream, error) {
	if loc == nil || loc.URL == "" {
		return nil, errs.New(errs.CodeNotFound, errs.WithMessage("stream location is empty"))
	}
	if method != http.MethodHead {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, loc.URL, nil)
	if err != nil {
		return nil, errs.New(errs.CodeRelayFailure,
			errs.WithProvider(string(loc.Provider)),
			errs.WithMessage("invalid upstream stream url"),
			errs.WithCause(err))
	}
	req.Header.Set("User-Agent", r.userAgent)
	for k, v := range loc.Headers {
		req.Header.Set(k, v)
	}
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errs.New(errs.CodeRelayFailure,
			errs.WithProvider(string(loc.Provider)),
			errs.WithMessage("upstream stream unavailable"),
			errs.WithCause(err))
	}
	return &Upstream{
		Status: resp.StatusCode,
		Header: FilterHeaders(resp.Header),
		Body:   resp.Body,
	}, nil
}

// FilterHeaders 只保留允许透传的响应头，并补齐默认 Cache-Control
func FilterHeaders(src http.Header) http.Header {
	dst := make(http.Header, len(passthroughHeaders))
	for _, name := range passthroughHeaders {
		if vs := src.Values(name); len(vs) > 0 {
			dst[http.CanonicalHeaderKey(name)] = append([]string(nil), vs...)
		}
	}
	if strings.TrimSpace(dst.Get("Cache-Control")) == "" {
		dst.Set("Cache-Control", DefaultCacheControl)
	}
	return dst
}

// Serve 把上游响应写给调用方。HEAD 请求只写头。
// 响应头写出之后的传输错误只能记录，无法再改变状态码。
func (r *Relay) Serve(w http.ResponseWriter, req *http.Request, loc *model.StreamLocation) error {
	up, err := r.Open(req.Context(), req.Method, loc, req.Header.Get("Range"))
	if err != nil {
		return err
	}
	defer up.Close()

	if up.Status >= http.StatusInternalServerError {
		return errs.New(errs.CodeRelayFailure,
			errs.WithProvider(string(loc.Provider)),
			errs.WithMessage("upstream stream returned "+http.StatusText(up.Status)))
	}
	if up.Status == http.StatusNotFound || up.Status == http.StatusGone {
		return errs.New(errs.CodeNotFound,
			errs.WithProvider(string(loc.Provider)),
			errs.WithMessage("upstream stream not found"))
	}

	h := w.Header()
	for k, vs := range up.Header {
		h[k] = vs
	}
	w.WriteHeader(up.Status)
	if req.Method == http.MethodHead {
		return nil
	}

	n, err := io.Copy(w, up.Body)
	if err != nil && !errors.Is(err, context.Canceled) && req.Context().Err() == nil {
		logger.Warn("流转发中断",
			logger.String("provider", string(loc.Provider)),
			logger.Int64("bytes", n),
			logger.ErrorField(err))
	}
	return nil
}
