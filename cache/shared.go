package cache

import (
	"context"
	"time"

	"FMEdge/logger"
	"FMEdge/storage"
	"FMEdge/telemetry"
)

// Shared 共享层，按逻辑身份保存 JSON 负载。读失败按未命中处理。
type Shared struct {
	store   storage.Store
	metrics *telemetry.Metrics
}

// NewShared 包装共享存储
func NewShared(store storage.Store, metrics *telemetry.Metrics) *Shared {
	return &Shared{store: store, metrics: metrics}
}

// Get 读取负载，存储错误记录日志后返回未命中
func (s *Shared) Get(ctx context.Context, key string) ([]byte, bool) {
	val, ok, err := s.store.Get(ctx, key)
	if err != nil {
		s.metrics.CacheLookup(TierShared.String(), "error")
		logger.Warn("共享缓存读取失败",
			logger.String("key", key),
			logger.ErrorField(err))
		return nil, false
	}
	if !ok || val == "" {
		s.metrics.CacheLookup(TierShared.String(), "miss")
		return nil, false
	}
	s.metrics.CacheLookup(TierShared.String(), "hit")
	return []byte(val), true
}

// Put 写入负载
func (s *Shared) Put(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	return s.store.Put(ctx, key, string(payload), ttl)
}
