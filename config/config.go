package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// RateRule 单个端点的限流规则
type RateRule struct {
	Limit  int
	Window time.Duration
}

// Config stores the application configuration.
type Config struct {
	HTTPAddr string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// 共享缓存后端: redis, minio, memory
	KVBackend string

	// MinIO配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	MinioRegion    string

	// 缓存 TTL 抖动范围 [min, max)
	SearchTTLMin   time.Duration
	SearchTTLMax   time.Duration
	TrackTTLMin    time.Duration
	TrackTTLMax    time.Duration
	EdgeMaxEntries int

	// 限流
	SearchRate RateRule
	TrackRate  RateRule
	StreamRate RateRule

	// 熔断
	BreakerThreshold int
	BreakerCooldown  time.Duration

	DefaultPageSize int
	MaxPageSize     int
	FanoutWorkers   int

	// 流转发等待上游响应头的上限，响应体不设上限
	StreamHeaderTimeout time.Duration

	// 评分表 YAML 文件，可选
	WeightsFile string

	// Provider 配置
	JamendoClientID string
	AudiusAppName   string
	NeteaseAPIURL   string // 为空时不启用 netease
	GDAPIURL        string

	// CORS，为空时只回显同源 Origin
	AllowedOrigin string

	OTLPEndpoint string
	ServiceName  string

	LogLevel string
	LogFile  string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvSeconds 读取以秒为单位的整数，也接受 time.ParseDuration 格式
func getEnvSeconds(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}

// getEnvRate 解析 "limit/windowSeconds" 形式的限流规则，例如 "60/60"
func getEnvRate(key string, fallback RateRule) RateRule {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	limitPart, windowPart, found := strings.Cut(strings.TrimSpace(value), "/")
	limit, err := strconv.Atoi(strings.TrimSpace(limitPart))
	if err != nil || limit <= 0 {
		return fallback
	}
	rule := RateRule{Limit: limit, Window: fallback.Window}
	if found {
		if secs, err := strconv.Atoi(strings.TrimSpace(windowPart)); err == nil && secs > 0 {
			rule.Window = time.Duration(secs) * time.Second
		}
	}
	return rule
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}
	return FromEnv()
}

// FromEnv 只读取当前进程环境变量，不加载 .env
func FromEnv() *Config {
	cfg := &Config{
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KVBackend: strings.ToLower(getEnv("KV_BACKEND", "redis")),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "fmedge-cache"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),

		SearchTTLMin:   getEnvSeconds("SEARCH_TTL_MIN", 5*time.Minute),
		SearchTTLMax:   getEnvSeconds("SEARCH_TTL_MAX", 15*time.Minute),
		TrackTTLMin:    getEnvSeconds("TRACK_TTL_MIN", time.Hour),
		TrackTTLMax:    getEnvSeconds("TRACK_TTL_MAX", 6*time.Hour),
		EdgeMaxEntries: getEnvInt("EDGE_MAX_ENTRIES", 4096),

		SearchRate: getEnvRate("RL_SEARCH", RateRule{Limit: 60, Window: time.Minute}),
		TrackRate:  getEnvRate("RL_TRACK", RateRule{Limit: 120, Window: time.Minute}),
		StreamRate: getEnvRate("RL_STREAM", RateRule{Limit: 240, Window: time.Minute}),

		BreakerThreshold: getEnvInt("BREAKER_THRESHOLD", 4),
		BreakerCooldown:  getEnvSeconds("BREAKER_COOLDOWN", 30*time.Second),

		DefaultPageSize: getEnvInt("DEFAULT_PAGE_SIZE", 10),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 25),
		FanoutWorkers:   getEnvInt("FANOUT_WORKERS", 8),

		StreamHeaderTimeout: getEnvSeconds("STREAM_HEADER_TIMEOUT", 10*time.Second),

		WeightsFile: getEnv("WEIGHTS_FILE", ""),

		JamendoClientID: getEnv("JAMENDO_CLIENT_ID", ""),
		AudiusAppName:   getEnv("AUDIUS_APP_NAME", "fmedge"),
		NeteaseAPIURL:   getEnv("NETEASE_API_URL", ""),
		GDAPIURL:        getEnv("GD_API_URL", "https://music-api.gdstudio.xyz/api.php"),

		AllowedOrigin: getEnv("CORS_ALLOWED_ORIGIN", ""),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:  getEnv("OTEL_SERVICE_NAME", "fmedge"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
	cfg.normalize()
	return cfg
}

// normalize 修正互相矛盾或越界的取值
func (c *Config) normalize() {
	if c.SearchTTLMax <= c.SearchTTLMin {
		c.SearchTTLMax = c.SearchTTLMin + time.Second
	}
	if c.TrackTTLMax <= c.TrackTTLMin {
		c.TrackTTLMax = c.TrackTTLMin + time.Second
	}
	if c.MaxPageSize < 1 {
		c.MaxPageSize = 25
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > c.MaxPageSize {
		c.DefaultPageSize = c.MaxPageSize
	}
	if c.BreakerThreshold < 1 {
		c.BreakerThreshold = 4
	}
	if c.FanoutWorkers < 1 {
		c.FanoutWorkers = 1
	}
	if c.EdgeMaxEntries < 1 {
		c.EdgeMaxEntries = 1
	}
	if c.StreamHeaderTimeout <= 0 {
		c.StreamHeaderTimeout = 10 * time.Second
	}
}
