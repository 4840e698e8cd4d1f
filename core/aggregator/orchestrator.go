// Package aggregator 把一次搜索并发分发到多个适配器，容忍部分失败。
package aggregator

import (
	"context"
	"errors"
	"time"

	"FMEdge/core/breaker"
	"FMEdge/core/provider"
	"FMEdge/errs"
	"FMEdge/logger"
	"FMEdge/model"
	"FMEdge/telemetry"

	"github.com/sourcegraph/conc/pool"
)

// Outcome 单个适配器在一次分发中的结果
type Outcome struct {
	Provider model.ProviderID
	Count    int
	Err      error // 失败原因，成功时为 nil
	Skipped  bool  // 熔断器打开，未发起调用
	Elapsed  time.Duration
}

// Result 一次分发的汇总结果
type Result struct {
	Tracks   []model.Track // 按选择顺序拼接，单个适配器内部保持返回顺序
	Outcomes []Outcome     // 与选择顺序一一对应
}

// Failed 所有被选中的适配器都失败或被跳过
func (r Result) Failed() bool {
	if len(r.Outcomes) == 0 {
		return false
	}
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

// Option 配置 Orchestrator
type Option func(*Orchestrator)

// WithMaxWorkers 限制单次分发的并发数
func WithMaxWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxWorkers = n
		}
	}
}

// WithMetrics 注入指标
func WithMetrics(m *telemetry.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator 分发编排器。每个适配器调用都有独立超时，并受各自熔断器保护。
type Orchestrator struct {
	registry   *provider.Registry
	breakers   *breaker.Registry
	maxWorkers int
	metrics    *telemetry.Metrics
}

// New 创建编排器
func New(registry *provider.Registry, breakers *breaker.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:   registry,
		breakers:   breakers,
		maxWorkers: 8,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry 返回适配器注册表
func (o *Orchestrator) Registry() *provider.Registry { return o.registry }

// Breakers 返回熔断器注册表
func (o *Orchestrator) Breakers() *breaker.Registry { return o.breakers }

// Search 并发调用 ids 中每个适配器的 Search。失败、超时或被熔断的适配器
// 贡献空结果，不影响其他适配器和整体结果。
func (o *Orchestrator) Search(ctx context.Context, query string, page, pageSize int, ids []model.ProviderID) Result {
	lists := make([][]model.Track, len(ids))
	outcomes := make([]Outcome, len(ids))

	p := pool.New().WithMaxGoroutines(o.maxWorkers)
	for i, id := range ids {
		p.Go(func() {
			start := time.Now()
			tracks, err := call(ctx, o, id, func(ctx context.Context, a provider.Adapter) ([]model.Track, error) {
				return a.Search(ctx, query, page, pageSize)
			})
			lists[i] = tracks
			outcomes[i] = Outcome{
				Provider: id,
				Count:    len(tracks),
				Err:      err,
				Skipped:  errs.Is(err, errs.CodeBreakerOpen),
				Elapsed:  time.Since(start),
			}
		})
	}
	p.Wait()

	total := 0
	for _, l := range lists {
		total += len(l)
	}
	tracks := make([]model.Track, 0, total)
	for _, l := range lists {
		tracks = append(tracks, l...)
	}
	return Result{Tracks: tracks, Outcomes: outcomes}
}

// Fetch 通过熔断器和超时保护调用 FetchByID
func (o *Orchestrator) Fetch(ctx context.Context, id model.ProviderID, trackID string) (*model.Track, error) {
	return call(ctx, o, id, func(ctx context.Context, a provider.Adapter) (*model.Track, error) {
		return a.FetchByID(ctx, trackID)
	})
}

// Resolve 通过熔断器和超时保护调用 ResolveStream
func (o *Orchestrator) Resolve(ctx context.Context, id model.ProviderID, trackID, quality string) (*model.StreamLocation, error) {
	return call(ctx, o, id, func(ctx context.Context, a provider.Adapter) (*model.StreamLocation, error) {
		return a.ResolveStream(ctx, trackID, quality)
	})
}

// call 执行一次受保护的适配器调用并把结果回报给熔断器
func call[T any](ctx context.Context, o *Orchestrator, id model.ProviderID, fn func(context.Context, provider.Adapter) (T, error)) (T, error) {
	var zero T
	a, ok := o.registry.Get(id)
	if !ok {
		return zero, errs.New(errs.CodeValidation,
			errs.WithProvider(string(id)),
			errs.WithMessage("unknown provider "+string(id)))
	}

	br := o.breakers.For(id)
	if !br.Allow() {
		o.metrics.AdapterCall(string(id), "skipped")
		logger.Debug("熔断器打开，跳过调用", logger.String("provider", string(id)))
		return zero, errs.New(errs.CodeBreakerOpen,
			errs.WithProvider(string(id)),
			errs.WithMessage("circuit breaker open for "+string(id)))
	}

	cctx, cancel := context.WithTimeout(ctx, a.Timeout())
	defer cancel()

	start := time.Now()
	v, err := fn(cctx, a)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		br.Success()
		o.metrics.AdapterCall(string(id), "ok")
		return v, nil
	case errs.Is(err, errs.CodeNotFound):
		// 上游正常应答，只是没有这首歌
		br.Success()
		o.metrics.AdapterCall(string(id), "not_found")
		return zero, err
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// 调用方已离开，不计入熔断
		o.metrics.AdapterCall(string(id), "canceled")
		return zero, err
	}

	br.Failure()
	var e *errs.E
	if !errors.As(err, &e) {
		code := errs.CodeUpstreamFailure
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			code = errs.CodeUpstreamTimeout
		}
		err = errs.New(code, errs.WithProvider(string(id)), errs.WithCause(err))
	}

	outcome := "error"
	if errs.Is(err, errs.CodeUpstreamTimeout) {
		outcome = "timeout"
	}
	o.metrics.AdapterCall(string(id), outcome)
	logger.Warn("适配器调用失败",
		logger.String("provider", string(id)),
		logger.String("code", string(errs.CodeOf(err))),
		logger.Duration("elapsed", elapsed),
		logger.ErrorField(err))
	return zero, err
}

// TransitionHook 返回记录熔断器状态变化的回调
func TransitionHook(m *telemetry.Metrics) breaker.TransitionFunc {
	return func(name string, from, to breaker.State) {
		m.BreakerTransition(name, to.String())
		logger.Warn("熔断器状态变化",
			logger.String("provider", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	}
}
