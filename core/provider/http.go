package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"FMEdge/errs"
	"FMEdge/logger"
	"FMEdge/model"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"
)

// maxBodySize 单个上游 JSON 响应的最大字节数
const maxBodySize = 8 << 20

// retryableStatus 值得重试的上游状态码
var retryableStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// httpClient 适配器共用的出站 HTTP 辅助：限速、有限次数的指数退避重试、JSON 解码
type httpClient struct {
	provider model.ProviderID
	client   *http.Client
	limiter  *rate.Limiter
	maxTries uint
	interval time.Duration
	headers  map[string]string
	cookies  []*http.Cookie
}

func newHTTPClient(provider model.ProviderID, opts Options) *httpClient {
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &httpClient{
		provider: provider,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), opts.Burst),
		maxTries: opts.MaxTries,
		interval: opts.RetryInterval,
		headers:  map[string]string{"Accept": "application/json"},
	}
}

func (c *httpClient) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.interval
	b.Multiplier = 2
	b.MaxInterval = 4 * c.interval
	return b
}

// getJSON 发起 GET 请求并把响应解码到 out。404 返回 CodeNotFound，不重试。
func (c *httpClient) getJSON(ctx context.Context, rawURL string, out any) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.once(ctx, rawURL, out)
	},
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.maxTries),
	)
	if err == nil {
		return nil
	}
	return c.classify(ctx, err)
}

func (c *httpClient) once(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("创建请求失败: %w", err))
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		logger.Debug("上游请求失败，准备重试",
			logger.String("provider", string(c.provider)),
			logger.ErrorField(err))
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return backoff.Permanent(errs.New(errs.CodeNotFound,
			errs.WithProvider(string(c.provider)),
			errs.WithMessage("upstream returned 404")))
	case retryableStatus[resp.StatusCode]:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("上游返回状态码 %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return backoff.Permanent(fmt.Errorf("上游返回状态码 %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("读取响应失败: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("解析响应失败: %w", err))
	}
	return nil
}

// classify 把重试后的错误归入错误分类
func (c *httpClient) classify(ctx context.Context, err error) error {
	var e *errs.E
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errs.New(errs.CodeUpstreamTimeout, errs.WithProvider(string(c.provider)), errs.WithCause(err))
	}
	return errs.New(errs.CodeUpstreamFailure, errs.WithProvider(string(c.provider)), errs.WithCause(err))
}

// notFound 构造 NOT_FOUND 错误
func notFound(provider model.ProviderID, format string, args ...any) error {
	return errs.New(errs.CodeNotFound,
		errs.WithProvider(string(provider)),
		errs.WithMessage(fmt.Sprintf(format, args...)))
}
