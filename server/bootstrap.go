package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"FMEdge/cache"
	"FMEdge/config"
	"FMEdge/core/aggregator"
	"FMEdge/core/breaker"
	"FMEdge/core/dedupe"
	"FMEdge/core/provider"
	"FMEdge/core/ratelimit"
	"FMEdge/core/relay"
	"FMEdge/logger"
	"FMEdge/storage"
	"FMEdge/telemetry"
)

// Stack 按配置构造出的全部组件，Close 负责按顺序释放
type Stack struct {
	Deps
	Metrics *telemetry.Metrics

	shutdownTelemetry telemetry.ShutdownFunc
}

// Build 按配置构造组件。共享存储不可用时退化为进程内存储，服务仍可启动。
func Build(ctx context.Context, cfg *config.Config) (*Stack, error) {
	mp, shutdownTel, err := telemetry.Init(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("初始化指标导出失败: %w", err)
	}
	metrics := telemetry.NewMetrics(mp)

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Warn("共享存储不可用，退化为进程内存储",
			logger.String("backend", cfg.KVBackend),
			logger.ErrorField(err))
		store = storage.NewMemoryStore()
	}

	table, err := config.LoadWeights(cfg.WeightsFile)
	if err != nil {
		logger.Warn("评分表加载失败，使用默认表",
			logger.String("path", cfg.WeightsFile),
			logger.ErrorField(err))
		table = nil
	}
	merger := dedupe.NewEngine(table)
	if err := config.WatchWeights(ctx, cfg.WeightsFile, merger.SetTable); err != nil {
		logger.Warn("评分表热更新未启用", logger.ErrorField(err))
	}

	breakers := breaker.NewRegistry(cfg.BreakerThreshold, cfg.BreakerCooldown,
		breaker.WithTransition(aggregator.TransitionHook(metrics)))
	registry := provider.Default(cfg)
	logger.Info("已注册 Provider", logger.String("providers", registry.String()))

	policy := cache.TTLPolicy{
		Search: cache.TTLRange{Min: cfg.SearchTTLMin, Max: cfg.SearchTTLMax},
		Track:  cache.TTLRange{Min: cfg.TrackTTLMin, Max: cfg.TrackTTLMax},
	}

	return &Stack{
		Deps: Deps{
			Orchestrator: aggregator.New(registry, breakers,
				aggregator.WithMaxWorkers(cfg.FanoutWorkers),
				aggregator.WithMetrics(metrics)),
			Merger:  merger,
			Cache:   cache.New(cache.NewEdge(cfg.EdgeMaxEntries), store, policy, cache.WithMetrics(metrics)),
			Limiter: ratelimit.New(store, ratelimit.WithMetrics(metrics)),
			Relay:   relay.New(relay.NewClient(cfg.StreamHeaderTimeout)),
			Store:   store,
		},
		Metrics:           metrics,
		shutdownTelemetry: shutdownTel,
	}, nil
}

// Close 等待后台缓存写入，关闭存储并刷新指标
func (st *Stack) Close(ctx context.Context) {
	if err := st.Cache.Close(ctx); err != nil {
		logger.Warn("等待缓存写入超时", logger.ErrorField(err))
	}
	if err := st.Store.Close(); err != nil {
		logger.Warn("关闭共享存储失败", logger.ErrorField(err))
	}
	if st.shutdownTelemetry != nil {
		if err := st.shutdownTelemetry(ctx); err != nil {
			logger.Warn("关闭指标导出失败", logger.ErrorField(err))
		}
	}
}

// Start 启动 HTTP 服务并阻塞，收到 SIGINT/SIGTERM 后优雅退出
func Start(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := Build(ctx, cfg)
	if err != nil {
		return err
	}
	srv := New(cfg, stack.Deps)

	// 流转发可能持续很久，不设置 WriteTimeout
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("服务启动", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			stack.Close(context.Background())
			return fmt.Errorf("HTTP 服务异常退出: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("服务强制关闭", logger.ErrorField(err))
	}

	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelDrain()
	stack.Close(drainCtx)

	logger.Info("服务已停止")
	return nil
}
