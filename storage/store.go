// Package storage 提供共享键值存储，作为二级缓存和限流窗口的后端。
// 所有实现都是尽力而为的：不保证跨请求的原子性。
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FMEdge/config"
	"FMEdge/db"
	"FMEdge/logger"
)

// ErrClosed 存储已关闭
var ErrClosed = errors.New("storage: closed")

// Store 共享键值存储。Get 在键不存在或已过期时返回 ok=false 且 err=nil。
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Backend 共享存储后端名称
const (
	BackendRedis  = "redis"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

// Open 按 cfg.KVBackend 打开共享存储
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.KVBackend {
	case BackendRedis, "":
		client, err := db.ConnectRedis(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("共享存储使用 Redis",
			logger.String("addr", client.Options().Addr),
			logger.Int("db", cfg.RedisDB))
		return NewRedisStore(client), nil
	case BackendMinio:
		client, err := NewMinioClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		logger.Info("共享存储使用 MinIO",
			logger.String("endpoint", cfg.MinioEndpoint),
			logger.String("bucket", cfg.MinioBucket))
		return NewMinioStore(client, cfg.MinioBucket), nil
	case BackendMemory:
		logger.Warn("共享存储使用进程内内存，多实例之间不共享")
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown KV backend %q", cfg.KVBackend)
	}
}
