package cache

import (
	"net/http"
	"sync"
	"time"
)

// Response 边缘层缓存的完整响应
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Clone 深拷贝响应
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   append([]byte(nil), r.Body...),
	}
}

type edgeItem struct {
	resp       *Response
	expiration time.Time
}

// Edge 进程内响应缓存，按完整请求身份索引。超过容量时先清理过期条目，
// 仍然超出则淘汰最早过期的条目。
type Edge struct {
	mu         sync.RWMutex
	data       map[string]edgeItem
	maxEntries int
	now        func() time.Time
}

// NewEdge 创建边缘缓存
func NewEdge(maxEntries int) *Edge {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &Edge{
		data:       make(map[string]edgeItem),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Match 返回未过期的缓存响应副本
func (e *Edge) Match(key string) (*Response, bool) {
	e.mu.RLock()
	item, ok := e.data[key]
	e.mu.RUnlock()

	if !ok || !e.now().Before(item.expiration) {
		return nil, false
	}
	return item.resp.Clone(), true
}

// Put 保存响应副本，ttl<=0 时不缓存
func (e *Edge) Put(key string, resp *Response, ttl time.Duration) {
	if resp == nil || ttl <= 0 {
		return
	}
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.data[key]; !exists && len(e.data) >= e.maxEntries {
		e.evictLocked(now)
	}
	e.data[key] = edgeItem{resp: resp.Clone(), expiration: now.Add(ttl)}
}

func (e *Edge) evictLocked(now time.Time) {
	for k, item := range e.data {
		if !now.Before(item.expiration) {
			delete(e.data, k)
		}
	}
	for len(e.data) >= e.maxEntries {
		var oldestKey string
		var oldest time.Time
		for k, item := range e.data {
			if oldestKey == "" || item.expiration.Before(oldest) {
				oldestKey, oldest = k, item.expiration
			}
		}
		delete(e.data, oldestKey)
	}
}

// Delete 删除条目
func (e *Edge) Delete(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.data, key)
}

// Len 当前条目数
func (e *Edge) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.data)
}
