// Package provider 定义上游曲库适配器接口及各曲库的实现。
package provider

import (
	"context"
	"net/http"
	"time"

	"FMEdge/model"
)

// Adapter 上游曲库适配器。实现必须是并发安全的。
//
// 找不到曲目时返回 errs.CodeNotFound，上游故障返回 errs.CodeUpstreamFailure，
// 超时返回 errs.CodeUpstreamTimeout。
type Adapter interface {
	// ID 返回 Provider 标识
	ID() model.ProviderID
	// Timeout 单次调用的超时时间，由编排器施加
	Timeout() time.Duration
	// Search 搜索曲目，page 从 1 开始
	Search(ctx context.Context, query string, page, pageSize int) ([]model.Track, error)
	// FetchByID 按 Provider 内 ID 获取曲目
	FetchByID(ctx context.Context, id string) (*model.Track, error)
	// ResolveStream 解析可播放地址，quality 是码率提示，例如 "320"
	ResolveStream(ctx context.Context, id, quality string) (*model.StreamLocation, error)
}

// Options 适配器公共配置，零值字段使用各适配器的默认值
type Options struct {
	BaseURL       string
	HTTPClient    *http.Client
	Timeout       time.Duration
	MaxTries      uint          // 包含第一次请求
	RetryInterval time.Duration // 第一次重试前的等待
	RatePerSecond float64       // 出站限速，0 表示使用默认值
	Burst         int
}

func (o Options) withDefaults(baseURL string, timeout time.Duration) Options {
	if o.BaseURL == "" {
		o.BaseURL = baseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = timeout
	}
	if o.MaxTries == 0 {
		o.MaxTries = 2
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 300 * time.Millisecond
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 20
	}
	if o.Burst <= 0 {
		o.Burst = 10
	}
	return o
}
