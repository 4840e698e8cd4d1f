package breaker

import (
	"sync"
	"time"

	"FMEdge/model"
)

// Registry 按 Provider 惰性创建熔断器，显式构造并注入，不使用全局变量
type Registry struct {
	threshold int
	cooldown  time.Duration
	opts      []Option

	mu       sync.Mutex
	breakers map[model.ProviderID]*Breaker
}

// NewRegistry 创建熔断器注册表，opts 应用到每个熔断器
func NewRegistry(threshold int, cooldown time.Duration, opts ...Option) *Registry {
	return &Registry{
		threshold: threshold,
		cooldown:  cooldown,
		opts:      opts,
		breakers:  make(map[model.ProviderID]*Breaker),
	}
}

// For 返回指定 Provider 的熔断器
func (r *Registry) For(id model.ProviderID) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[id]
	if !ok {
		b = New(string(id), r.threshold, r.cooldown, r.opts...)
		r.breakers[id] = b
	}
	return b
}

// Snapshot 返回已创建熔断器的当前状态
func (r *Registry) Snapshot() map[model.ProviderID]State {
	r.mu.Lock()
	breakers := make(map[model.ProviderID]*Breaker, len(r.breakers))
	for id, b := range r.breakers {
		breakers[id] = b
	}
	r.mu.Unlock()

	out := make(map[model.ProviderID]State, len(breakers))
	for id, b := range breakers {
		out[id] = b.State()
	}
	return out
}
