package server

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"FMEdge/logger"
	"FMEdge/model"

	json "github.com/goccy/go-json"
)

// 自检依次尝试的 Provider，都不需要凭据
var selftestProviders = []model.ProviderID{model.ProviderIA, model.ProviderJamendo}

const selftestQuery = "love"

type stepError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status,omitempty"`
}

type searchStep struct {
	OK       bool       `json:"ok"`
	Provider string     `json:"provider,omitempty"`
	Query    string     `json:"query,omitempty"`
	Count    int        `json:"count,omitempty"`
	SampleID string     `json:"sampleId,omitempty"`
	Error    *stepError `json:"error,omitempty"`
}

type trackStep struct {
	OK       bool       `json:"ok"`
	Provider string     `json:"provider,omitempty"`
	ID       string     `json:"id,omitempty"`
	Title    string     `json:"title,omitempty"`
	Error    *stepError `json:"error,omitempty"`
}

type streamStep struct {
	OK       bool       `json:"ok"`
	Provider string     `json:"provider,omitempty"`
	ID       string     `json:"id,omitempty"`
	Status   int        `json:"status,omitempty"`
	Error    *stepError `json:"error,omitempty"`
}

type selftestReport struct {
	OK      bool       `json:"ok"`
	Elapsed int64      `json:"elapsed"` // 毫秒
	Search  searchStep `json:"search"`
	Track   trackStep  `json:"track"`
	Stream  streamStep `json:"stream"`
}

// captureWriter 收集进程内调用的响应
type captureWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newCaptureWriter() *captureWriter {
	return &captureWriter{header: make(http.Header)}
}

func (c *captureWriter) Header() http.Header { return c.header }

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	return c.body.Write(b)
}

// call 通过路由在进程内发起一次请求，不经过网络也不计入限流
func (s *Server) call(ctx context.Context, method, path string, params url.Values) *captureWriter {
	u := &url.URL{Path: path, RawQuery: params.Encode()}
	req, err := http.NewRequestWithContext(withInternal(ctx), method, u.String(), nil)
	cw := newCaptureWriter()
	if err != nil {
		cw.status = http.StatusInternalServerError
		return cw
	}
	req.Host = "selftest.local"
	s.router.ServeHTTP(cw, req)
	if cw.status == 0 {
		cw.status = http.StatusOK
	}
	return cw
}

func failed(code, message string, status int) *stepError {
	return &stepError{Code: code, Message: message, Status: status}
}

// runSelftest 依次执行 search、track、HEAD stream，第一个走到 stream 的 Provider 即结束
func (s *Server) runSelftest(ctx context.Context) selftestReport {
	started := time.Now()
	var report selftestReport

	for _, pid := range selftestProviders {
		if _, ok := s.Orchestrator.Registry().Get(pid); !ok {
			continue
		}
		p := string(pid)

		res := s.call(ctx, http.MethodGet, "/search", url.Values{
			"q": {selftestQuery}, "providers": {p}, "page": {"1"}, "pageSize": {"5"},
		})
		var sp searchPayload
		if res.status != http.StatusOK || json.Unmarshal(res.body.Bytes(), &sp) != nil {
			report.Search = searchStep{Provider: p, Query: selftestQuery,
				Error: failed("SEARCH_FAILED", "Search failed with status "+http.StatusText(res.status), res.status)}
			continue
		}
		if len(sp.Items) == 0 {
			report.Search = searchStep{Provider: p, Query: selftestQuery,
				Error: failed("NO_RESULTS", "No search results", 0)}
			continue
		}
		id := sp.Items[0].ID
		report.Search = searchStep{OK: true, Provider: p, Query: selftestQuery, Count: len(sp.Items), SampleID: id}

		res = s.call(ctx, http.MethodGet, "/track", url.Values{"provider": {p}, "id": {id}})
		var tp trackPayload
		if res.status != http.StatusOK || json.Unmarshal(res.body.Bytes(), &tp) != nil || tp.Track == nil {
			report.Track = trackStep{Provider: p, ID: id,
				Error: failed("TRACK_FAILED", "Track failed with status "+http.StatusText(res.status), res.status)}
			continue
		}
		report.Track = trackStep{OK: true, Provider: p, ID: id, Title: tp.Track.Title}

		res = s.call(ctx, http.MethodHead, "/stream", url.Values{"provider": {p}, "id": {id}})
		if res.status == http.StatusOK || res.status == http.StatusPartialContent {
			report.Stream = streamStep{OK: true, Provider: p, ID: id, Status: res.status}
		} else {
			report.Stream = streamStep{Provider: p, ID: id, Status: res.status,
				Error: failed("STREAM_FAILED", "Stream returned "+http.StatusText(res.status), res.status)}
		}
		break
	}

	report.OK = report.Search.OK && report.Track.OK && report.Stream.OK
	report.Elapsed = time.Since(started).Milliseconds()
	return report
}

func (s *Server) handleSelftest(w http.ResponseWriter, r *http.Request) {
	report := s.runSelftest(r.Context())
	if !report.OK {
		logger.Warn("自检未通过",
			logger.Bool("search", report.Search.OK),
			logger.Bool("track", report.Track.OK),
			logger.Bool("stream", report.Stream.OK))
	}
	writeJSON(w, http.StatusOK, report)
}

type healthReport struct {
	Status   string            `json:"status"`
	KV       string            `json:"kv"`
	Breakers map[string]string `json:"breakers,omitempty"`
}

// handleHealth 存储不可用时仍返回 200，只把 kv 标记为 degraded
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{Status: "ok", KV: "ok"}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if s.Store == nil {
		report.KV = "degraded"
	} else if err := s.Store.Ping(ctx); err != nil {
		logger.Warn("共享存储健康检查失败", logger.ErrorField(err))
		report.KV = "degraded"
	}

	snapshot := s.Orchestrator.Breakers().Snapshot()
	if len(snapshot) > 0 {
		report.Breakers = make(map[string]string, len(snapshot))
		for id, st := range snapshot {
			report.Breakers[string(id)] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, report)
}
