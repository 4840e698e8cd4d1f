package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	apimetric "go.opentelemetry.io/otel/metric"
)

// Metrics 进程内使用的计数器集合。nil *Metrics 上的所有方法都是空操作。
type Metrics struct {
	cacheLookups       apimetric.Int64Counter
	cacheWriteFailures apimetric.Int64Counter
	rateDecisions      apimetric.Int64Counter
	rateStoreErrors    apimetric.Int64Counter
	adapterCalls       apimetric.Int64Counter
	breakerTransitions apimetric.Int64Counter
}

// NewMetrics 在给定 MeterProvider 上注册计数器，注册失败的计数器被跳过
func NewMetrics(mp apimetric.MeterProvider) *Metrics {
	if mp == nil {
		return nil
	}
	meter := mp.Meter("fmedge")
	m := &Metrics{}
	m.cacheLookups = counter(meter, "edgeproxy.cache.lookups", "Cache lookups by tier and outcome")
	m.cacheWriteFailures = counter(meter, "edgeproxy.cache.write_failures", "Failed best-effort cache writes by tier")
	m.rateDecisions = counter(meter, "edgeproxy.ratelimit.decisions", "Rate limiter decisions by bucket")
	m.rateStoreErrors = counter(meter, "edgeproxy.ratelimit.store_errors", "Rate limiter store failures, admitted open")
	m.adapterCalls = counter(meter, "edgeproxy.adapter.calls", "Upstream adapter calls by provider and outcome")
	m.breakerTransitions = counter(meter, "edgeproxy.breaker.transitions", "Circuit breaker state changes")
	return m
}

func counter(meter apimetric.Meter, name, desc string) apimetric.Int64Counter {
	c, err := meter.Int64Counter(name, apimetric.WithDescription(desc), apimetric.WithUnit("{event}"))
	if err != nil {
		return nil
	}
	return c
}

func add(c apimetric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(context.Background(), 1, apimetric.WithAttributes(attrs...))
}

// CacheLookup 记录一次缓存查询，outcome 为 hit/miss/error
func (m *Metrics) CacheLookup(tier, outcome string) {
	if m == nil {
		return
	}
	add(m.cacheLookups, attribute.String("tier", tier), attribute.String("outcome", outcome))
}

// CacheWriteFailure 记录一次缓存写入失败
func (m *Metrics) CacheWriteFailure(tier string) {
	if m == nil {
		return
	}
	add(m.cacheWriteFailures, attribute.String("tier", tier))
}

// RateDecision 记录一次限流判定
func (m *Metrics) RateDecision(bucket string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	add(m.rateDecisions, attribute.String("bucket", bucket), attribute.String("outcome", outcome))
}

// RateStoreError 记录限流存储不可用
func (m *Metrics) RateStoreError(bucket string) {
	if m == nil {
		return
	}
	add(m.rateStoreErrors, attribute.String("bucket", bucket))
}

// AdapterCall 记录一次上游调用，outcome 为 ok/error/timeout/skipped
func (m *Metrics) AdapterCall(provider, outcome string) {
	if m == nil {
		return
	}
	add(m.adapterCalls, attribute.String("provider", provider), attribute.String("outcome", outcome))
}

// BreakerTransition 记录熔断器状态变化
func (m *Metrics) BreakerTransition(provider, state string) {
	if m == nil {
		return
	}
	add(m.breakerTransitions, attribute.String("provider", provider), attribute.String("state", state))
}
