package cache

import (
	"math/rand/v2"
	"time"
)

// Class 响应类别，不同类别使用不同的 TTL 范围
type Class string

const (
	ClassSearch Class = "search"
	ClassTrack  Class = "track"
)

// TTLRange TTL 抖动范围 [Min, Max)
type TTLRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick 在 [Min, Max) 内随机取一个 TTL。Max<=Min 时返回 Min。
func (r TTLRange) Pick() time.Duration {
	span := r.Max - r.Min
	if span <= 0 {
		return r.Min
	}
	return r.Min + rand.N(span)
}

// TTLPolicy 按类别选择 TTL
type TTLPolicy struct {
	Search TTLRange
	Track  TTLRange
}

// DefaultTTLPolicy 搜索 5-15 分钟，单曲 1-6 小时
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		Search: TTLRange{Min: 5 * time.Minute, Max: 15 * time.Minute},
		Track:  TTLRange{Min: time.Hour, Max: 6 * time.Hour},
	}
}

// Range 返回类别对应的范围，未知类别按搜索处理
func (p TTLPolicy) Range(class Class) TTLRange {
	if class == ClassTrack {
		return p.Track
	}
	return p.Search
}

// Pick 为类别取一个抖动后的 TTL
func (p TTLPolicy) Pick(class Class) time.Duration {
	return p.Range(class).Pick()
}
