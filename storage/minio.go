package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"FMEdge/config"
	"FMEdge/logger"

	json "github.com/goccy/go-json"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// kvPrefix 共享缓存对象在存储桶中的前缀
const kvPrefix = "kv/"

// envelope 对象内容，过期时间随值一起保存
type envelope struct {
	ExpiresAt int64  `json:"expiresAt,omitempty"` // 毫秒时间戳，0 表示不过期
	Value     string `json:"value"`
}

func (e envelope) expired(now time.Time) bool {
	return e.ExpiresAt > 0 && now.UnixMilli() >= e.ExpiresAt
}

// NewMinioClient 创建 MinIO 客户端并确保存储桶存在
func NewMinioClient(ctx context.Context, cfg *config.Config) (*minio.Client, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{Region: cfg.MinioRegion}); err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}
	return client, nil
}

// MinioStore 把每个键存成一个对象。MinIO 没有按对象的 TTL，
// 过期时间写在对象内容里，读取时判断，残留对象由 PurgeExpired 清理。
type MinioStore struct {
	client *minio.Client
	bucket string
	now    func() time.Time
}

// NewMinioStore 创建基于 MinIO 的共享存储
func NewMinioStore(client *minio.Client, bucket string) *MinioStore {
	return &MinioStore{client: client, bucket: bucket, now: time.Now}
}

// ObjectName 把缓存键转换成对象名
func ObjectName(key string) string {
	return kvPrefix + url.PathEscape(key)
}

// KeyFromObject 从对象名还原缓存键
func KeyFromObject(name string) (string, bool) {
	if !strings.HasPrefix(name, kvPrefix) {
		return "", false
	}
	key, err := url.PathUnescape(strings.TrimPrefix(name, kvPrefix))
	if err != nil {
		return "", false
	}
	return key, true
}

func encodeEnvelope(value string, ttl time.Duration, now time.Time) ([]byte, error) {
	e := envelope{Value: value}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl).UnixMilli()
	}
	return json.Marshal(e)
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (s *MinioStore) read(ctx context.Context, name string) (envelope, bool, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return envelope{}, false, nil
		}
		return envelope{}, false, err
	}
	e, err := decodeEnvelope(data)
	if err != nil {
		return envelope{}, false, fmt.Errorf("解析对象 %s 失败: %w", name, err)
	}
	return e, true, nil
}

// Get 读取键值，已过期的对象视为不存在
func (s *MinioStore) Get(ctx context.Context, key string) (string, bool, error) {
	e, ok, err := s.read(ctx, ObjectName(key))
	if err != nil || !ok {
		return "", false, err
	}
	if e.expired(s.now()) {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Put 写入键值
func (s *MinioStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	data, err := encodeEnvelope(value, ttl, s.now())
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, s.bucket, ObjectName(key), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

// Ping 检查存储桶可访问
func (s *MinioStore) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("存储桶 %s 不存在", s.bucket)
	}
	return nil
}

// Close MinIO 客户端无需关闭
func (s *MinioStore) Close() error { return nil }

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	Expired      int64
	LastModified time.Time
}

// Stats 统计共享缓存对象，prefix 为缓存键前缀，例如 "search:"
func (s *MinioStore) Stats(ctx context.Context, prefix string) (*BucketStats, error) {
	stats := &BucketStats{}
	now := s.now()
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    ObjectName(prefix),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		stats.TotalObjects++
		stats.TotalSize += object.Size
		if object.LastModified.After(stats.LastModified) {
			stats.LastModified = object.LastModified
		}
		e, ok, err := s.read(ctx, object.Key)
		if err == nil && ok && e.expired(now) {
			stats.Expired++
		}
	}
	return stats, nil
}

// PurgeExpired 删除已过期或无法解析的对象，返回删除数量
func (s *MinioStore) PurgeExpired(ctx context.Context, prefix string) (int, error) {
	removed := 0
	now := s.now()
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    ObjectName(prefix),
		Recursive: true,
	}) {
		if object.Err != nil {
			return removed, fmt.Errorf("列出对象时出错: %w", object.Err)
		}
		e, ok, err := s.read(ctx, object.Key)
		if !ok && err == nil {
			continue
		}
		if err == nil && !e.expired(now) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			logger.Warn("删除过期对象失败", logger.String("object", object.Key), logger.ErrorField(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// FormatSize 格式化文件大小
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
