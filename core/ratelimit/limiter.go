// Package ratelimit 实现基于共享键值存储的滑动窗口限流。
//
// 每个 (bucket, 客户端) 对应一条记录，保存窗口内的请求时间戳。读改写不加锁，
// 并发请求可能少量多计或少计，这是可接受的近似限流。存储不可用时放行。
package ratelimit

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	"FMEdge/logger"
	"FMEdge/storage"
	"FMEdge/telemetry"

	json "github.com/goccy/go-json"
)

// UnknownClient 无法识别来源地址的客户端共用的身份
const UnknownClient = "unknown"

// Decision 一次限流判定的结果
type Decision struct {
	Allowed    bool
	RetryAfter int // 秒，仅在拒绝时有意义
	Remaining  int
}

// window 存储中的记录
type window struct {
	Points []int64 `json:"points"` // 毫秒时间戳，升序
}

// Option 配置 Limiter
type Option func(*Limiter)

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithMetrics 注入指标
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// Limiter 滑动窗口限流器
type Limiter struct {
	store   storage.Store
	now     func() time.Time
	metrics *telemetry.Metrics
}

// New 创建限流器
func New(store storage.Store, opts ...Option) *Limiter {
	l := &Limiter{store: store, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Key 返回存储键
func Key(bucket, identity string) string {
	return "ratelimit:" + bucket + ":" + identity
}

// Admit 判断 identity 在 bucket 上是否还有额度
func (l *Limiter) Admit(ctx context.Context, identity, bucket string, limit int, win time.Duration) Decision {
	if limit <= 0 || win <= 0 {
		return Decision{Allowed: true}
	}
	if identity == "" {
		identity = UnknownClient
	}
	key := Key(bucket, identity)
	now := l.now()
	nowMs := now.UnixMilli()
	cutoff := nowMs - win.Milliseconds()

	raw, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.metrics.RateStoreError(bucket)
		logger.Warn("限流存储读取失败，放行请求",
			logger.String("bucket", bucket),
			logger.String("client", identity),
			logger.ErrorField(err))
		return Decision{Allowed: true, Remaining: limit - 1}
	}

	var state window
	if ok {
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			logger.Warn("限流记录损坏，重置窗口", logger.String("key", key), logger.ErrorField(err))
			state.Points = nil
		}
	}

	points := prune(state.Points, cutoff)
	if len(points) >= limit {
		d := Decision{Allowed: false, RetryAfter: retryAfter(points[0], win, nowMs)}
		l.metrics.RateDecision(bucket, false)
		return d
	}

	points = append(points, nowMs)
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	data, err := json.Marshal(window{Points: points})
	if err == nil {
		err = l.store.Put(ctx, key, string(data), win)
	}
	if err != nil {
		l.metrics.RateStoreError(bucket)
		logger.Warn("限流存储写入失败",
			logger.String("bucket", bucket),
			logger.String("client", identity),
			logger.ErrorField(err))
	}

	l.metrics.RateDecision(bucket, true)
	return Decision{Allowed: true, Remaining: limit - len(points)}
}

// prune 丢弃 cutoff 及之前的时间戳，返回新切片
func prune(points []int64, cutoff int64) []int64 {
	out := make([]int64, 0, len(points)+1)
	for _, p := range points {
		if p > cutoff {
			out = append(out, p)
		}
	}
	return out
}

// retryAfter 最早的时间戳滑出窗口前还需等待的秒数，至少 1 秒
func retryAfter(earliest int64, win time.Duration, nowMs int64) int {
	waitMs := earliest + win.Milliseconds() - nowMs
	secs := int(math.Ceil(float64(waitMs) / 1000))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// ClientIdentity 从转发头中取客户端地址，依次为 CF-Connecting-IP、
// X-Forwarded-For 的第一个地址和 X-Real-IP。都没有时返回 UnknownClient，
// 所有无法识别的客户端共享同一个额度。
func ClientIdentity(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}
