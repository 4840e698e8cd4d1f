// Package breaker 为每个 Provider 提供进程内熔断器。
// 状态不持久化，进程重启后全部复位；跨进程不做协调。
package breaker

import (
	"sync"
	"time"
)

// State 熔断器状态
type State int

const (
	// Closed 正常放行，累计失败次数
	Closed State = iota
	// Open 本地拒绝调用，直到冷却期结束
	Open
	// HalfOpen 冷却期已过，只放行一次试探调用
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// TransitionFunc 状态变化回调
type TransitionFunc func(name string, from, to State)

// Option 配置熔断器
type Option func(*Breaker)

// WithClock 替换时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithTransition 注册状态变化回调，回调在锁外执行
func WithTransition(fn TransitionFunc) Option {
	return func(b *Breaker) {
		b.onTransition = fn
	}
}

// Breaker 连续失败达到阈值后打开，冷却期后进入半开状态放行一次试探。
// 试探成功则关闭，失败则重新打开。
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialAt  time.Time // 半开状态下试探调用的发出时间，零值表示尚未发出

	now          func() time.Time
	onTransition TransitionFunc
}

// New 创建熔断器
func New(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	b := &Breaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name 返回熔断器名称
func (b *Breaker) Name() string { return b.name }

// Allow 判断是否放行本次调用。放行后调用方必须回报 Success 或 Failure。
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	now := b.now()
	from := b.state
	allowed := false

	switch b.state {
	case Closed:
		allowed = true
	case Open:
		if now.Sub(b.openedAt) > b.cooldown {
			b.state = HalfOpen
			b.trialAt = now
			allowed = true
		}
	case HalfOpen:
		// 试探调用迟迟没有回报时，再放行一次，避免卡死在半开状态
		if b.trialAt.IsZero() || now.Sub(b.trialAt) > b.cooldown {
			b.trialAt = now
			allowed = true
		}
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
	return allowed
}

// Success 回报成功，计数清零并关闭
func (b *Breaker) Success() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failures = 0
	b.openedAt = time.Time{}
	b.trialAt = time.Time{}
	b.mu.Unlock()

	b.notify(from, Closed)
}

// Failure 回报失败。关闭状态下累计到阈值时打开；半开状态下直接重新打开。
func (b *Breaker) Failure() {
	b.mu.Lock()
	from := b.state
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	case HalfOpen:
		b.trip()
	case Open:
		// 打开期间的迟到回报不延长冷却期
	}
	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// trip 切换到打开状态，调用方持有锁
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.trialAt = time.Time{}
}

// State 返回当前状态，不触发冷却期检查
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures 返回当前累计失败次数
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}
