package provider

import (
	"fmt"
	"net/http"
	"time"

	"FMEdge/config"
	"FMEdge/model"
)

// Registry 按 ProviderID 分发适配器，顺序为注册顺序
type Registry struct {
	adapters map[model.ProviderID]Adapter
	order    []model.ProviderID
}

// NewRegistry 创建注册表，重复 ID 以后注册的为准
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.ProviderID]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register 注册适配器
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	id := a.ID()
	if _, exists := r.adapters[id]; !exists {
		r.order = append(r.order, id)
	}
	r.adapters[id] = a
}

// Get 返回指定适配器
func (r *Registry) Get(id model.ProviderID) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs 返回已注册的 ProviderID
func (r *Registry) IDs() []model.ProviderID {
	return append([]model.ProviderID(nil), r.order...)
}

// Select 解析逗号分隔的 Provider 列表，未知或未注册的被丢弃，
// 结果为空时选择全部已注册的 Provider
func (r *Registry) Select(raw string) []model.ProviderID {
	return model.FilterProviders(raw, r.order)
}

// Default 按配置构建默认注册表。
// jamendo 和 netease 需要凭据或自建服务，未配置时不注册。
func Default(cfg *config.Config) *Registry {
	client := &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 16,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	base := Options{HTTPClient: client}

	gdOpts := base
	gdOpts.BaseURL = cfg.GDAPIURL

	adapters := []Adapter{
		NewGD(gdOpts),
		NewKuwo(gdOpts),
	}
	if cfg.JamendoClientID != "" {
		adapters = append(adapters, NewJamendo(base, cfg.JamendoClientID))
	}
	adapters = append(adapters,
		NewArchive(base),
		NewAudius(base, cfg.AudiusAppName),
	)
	if cfg.NeteaseAPIURL != "" {
		neOpts := base
		neOpts.BaseURL = cfg.NeteaseAPIURL
		adapters = append(adapters, NewNetease(neOpts))
	}
	return NewRegistry(adapters...)
}

// String 便于日志输出
func (r *Registry) String() string {
	return fmt.Sprintf("%v", r.order)
}
