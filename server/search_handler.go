package server

import (
	"net/http"
	"time"

	"FMEdge/cache"
	"FMEdge/core/dedupe"
	"FMEdge/errs"
	"FMEdge/logger"
	"FMEdge/model"

	json "github.com/goccy/go-json"
)

// 所有 Provider 都失败时的短缓存时间，只设置响应头，不写入缓存
const degradedTTL = time.Minute

// searchPayload /search 的响应体，也是共享层中存放的负载
type searchPayload struct {
	Query     string             `json:"query"`
	Page      int                `json:"page"`
	PageSize  int                `json:"pageSize"`
	Providers []model.ProviderID `json:"providers"`
	Count     int                `json:"count"`
	Items     []model.Track      `json:"items"`
	Cached    bool               `json:"cached,omitempty"`
}

// renderSearch 把共享层负载渲染为带 cached 标记的响应
func renderSearch(payload []byte, ttl time.Duration) (*cache.Response, error) {
	var p searchPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	p.Cached = true
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return jsonResponse(http.StatusOK, body, ttl), nil
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, bucketSearch, s.cfg.SearchRate) {
		return
	}

	q := r.URL.Query()
	query := firstParam(q, "q", "query", "keyword")
	if query == "" {
		writeError(w, errs.New(errs.CodeValidation, errs.WithMessage("Missing query parameter 'q' or 'query'")))
		return
	}
	page := clampInt(q.Get("page"), 1, 1, maxPage)
	pageSize := clampInt(q.Get("pageSize"), s.cfg.DefaultPageSize, 1, s.cfg.MaxPageSize)
	providers := s.Orchestrator.Registry().Select(firstParam(q, "providers", "source"))

	key := cache.Key{
		Edge:   cache.EdgeKey(r),
		Shared: cache.SearchKey(providers, page, pageSize, query),
	}
	if resp, tier := s.Cache.Lookup(r.Context(), key, cache.ClassSearch, renderSearch); resp != nil {
		writeResponse(w, r, resp, tier)
		return
	}

	result := s.Orchestrator.Search(r.Context(), query, page, pageSize, providers)
	items := s.Merger.Merge(result.Tracks)
	if len(items) > 0 {
		logger.Debug("搜索合并完成",
			logger.String("query", query),
			logger.Int("raw", len(result.Tracks)),
			logger.Int("merged", len(items)),
			logger.Float64("topScore", dedupe.Score(items[0], s.Merger.Table())))
	}

	body, err := json.Marshal(searchPayload{
		Query:     query,
		Page:      page,
		PageSize:  pageSize,
		Providers: providers,
		Count:     len(items),
		Items:     items,
	})
	if err != nil {
		writeError(w, errs.New(errs.CodeInternal, errs.WithCause(err)))
		return
	}

	if result.Failed() {
		// 上游全部不可用，返回空结果但不写缓存，避免把故障缓存十几分钟
		logger.Warn("所有 Provider 搜索失败",
			logger.String("query", query),
			logger.Strings("providers", model.ProviderNames(providers)))
		writeResponse(w, r, jsonResponse(http.StatusOK, body, degradedTTL), cache.TierNone)
		return
	}

	ttl := s.Cache.TTL(cache.ClassSearch)
	resp := jsonResponse(http.StatusOK, body, ttl)
	s.Cache.Store(key, body, resp, ttl)
	writeResponse(w, r, resp, cache.TierNone)
}
