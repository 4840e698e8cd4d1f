// Package cache 实现两级响应缓存：进程内边缘层按完整请求索引，
// 共享层按逻辑身份索引。两层都使用抖动 TTL，写入都是尽力而为的。
package cache

import (
	"context"
	"sync"
	"time"

	"FMEdge/logger"
	"FMEdge/storage"
	"FMEdge/telemetry"
)

// Tier 命中的缓存层
type Tier int

const (
	TierNone Tier = iota
	TierEdge
	TierShared
)

func (t Tier) String() string {
	switch t {
	case TierEdge:
		return "edge"
	case TierShared:
		return "shared"
	default:
		return "none"
	}
}

// Renderer 把共享层负载渲染成完整响应，ttl 为本次回写边缘层使用的 TTL
type Renderer func(payload []byte, ttl time.Duration) (*Response, error)

// Option 配置 Tiered
type Option func(*Tiered)

// WithMetrics 注入指标
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Tiered) { c.metrics = m }
}

// WithWriteTimeout 设置共享层异步写入的超时
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Tiered) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// Tiered 两级缓存
type Tiered struct {
	edge         *Edge
	shared       *Shared
	policy       TTLPolicy
	metrics      *telemetry.Metrics
	writeTimeout time.Duration

	mu      sync.Mutex
	closing bool
	pending sync.WaitGroup
}

// New 创建两级缓存
func New(edge *Edge, store storage.Store, policy TTLPolicy, opts ...Option) *Tiered {
	c := &Tiered{
		edge:         edge,
		policy:       policy,
		writeTimeout: 3 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.shared = NewShared(store, c.metrics)
	return c
}

// TTL 为类别取一个抖动后的 TTL
func (c *Tiered) TTL(class Class) time.Duration {
	return c.policy.Pick(class)
}

// Lookup 先查边缘层，命中直接返回，不访问共享层。
// 共享层命中时渲染响应并回写边缘层后返回。
func (c *Tiered) Lookup(ctx context.Context, key Key, class Class, render Renderer) (*Response, Tier) {
	if resp, ok := c.edge.Match(key.Edge); ok {
		c.metrics.CacheLookup(TierEdge.String(), "hit")
		return resp, TierEdge
	}
	c.metrics.CacheLookup(TierEdge.String(), "miss")

	if key.Shared == "" {
		return nil, TierNone
	}
	payload, ok := c.shared.Get(ctx, key.Shared)
	if !ok {
		return nil, TierNone
	}

	ttl := c.TTL(class)
	resp, err := render(payload, ttl)
	if err != nil {
		logger.Warn("共享缓存负载无法解析，按未命中处理",
			logger.String("key", key.Shared),
			logger.ErrorField(err))
		return nil, TierNone
	}
	c.edge.Put(key.Edge, resp, ttl)
	return resp, TierShared
}

// Store 写入两层缓存。边缘层同步写入，共享层在后台写入，
// 失败只记录日志和指标，不影响调用方。
func (c *Tiered) Store(key Key, payload []byte, resp *Response, ttl time.Duration) {
	c.edge.Put(key.Edge, resp, ttl)

	if key.Shared == "" || payload == nil {
		return
	}
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		logger.Debug("缓存已关闭，跳过共享层写入", logger.String("key", key.Shared))
		return
	}
	c.pending.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.pending.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.writeTimeout)
		defer cancel()

		if err := c.shared.Put(ctx, key.Shared, payload, ttl); err != nil {
			c.metrics.CacheWriteFailure(TierShared.String())
			logger.Warn("共享缓存写入失败",
				logger.String("key", key.Shared),
				logger.Duration("ttl", ttl),
				logger.ErrorField(err))
		}
	}()
}

// Close 停止接受新的共享层写入并等待已有写入完成，ctx 结束时提前返回 ctx.Err()。
// 边缘层不受影响。
func (c *Tiered) Close(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
