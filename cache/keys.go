package cache

import (
	"net/http"
	"strconv"
	"strings"

	"FMEdge/model"
)

// Key 一次请求在两层缓存中的键
type Key struct {
	Edge   string // 完整请求：方法 + URL（含查询串）
	Shared string // 逻辑身份
}

// EdgeKey 由请求方法和完整 URL 组成，查询参数顺序不同视为不同请求
func EdgeKey(r *http.Request) string {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	return r.Method + " " + host + r.URL.RequestURI()
}

// SearchKey 搜索结果的共享键：search:<providers>:<page>:<pageSize>:<小写查询>
func SearchKey(providers []model.ProviderID, page, pageSize int, query string) string {
	var b strings.Builder
	b.WriteString("search:")
	b.WriteString(model.JoinProviders(providers))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(page))
	b.WriteByte(':')
	b.WriteString(strconv.Itoa(pageSize))
	b.WriteByte(':')
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	return b.String()
}

// TrackKey 单曲元数据的共享键：track:<provider>:<id>
func TrackKey(provider model.ProviderID, id string) string {
	return "track:" + string(provider) + ":" + id
}
