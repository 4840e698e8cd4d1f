package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"FMEdge/cache"
	"FMEdge/errs"
	"FMEdge/logger"

	json "github.com/goccy/go-json"
)

const contentTypeJSON = "application/json; charset=utf-8"

// errorBody 错误响应体
type errorBody struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// publicCache 成功响应的 Cache-Control
func publicCache(ttl time.Duration) string {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return "public, max-age=" + strconv.Itoa(secs)
}

// jsonResponse 构造可以放进边缘缓存的 JSON 响应
func jsonResponse(status int, body []byte, ttl time.Duration) *cache.Response {
	h := make(http.Header, 2)
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Cache-Control", publicCache(ttl))
	return &cache.Response{Status: status, Header: h, Body: body}
}

// writeResponse 写出响应，tier 非 TierNone 时附带 X-Cache
func writeResponse(w http.ResponseWriter, r *http.Request, resp *cache.Response, tier cache.Tier) {
	h := w.Header()
	for k, vs := range resp.Header {
		h[k] = append([]string(nil), vs...)
	}
	if tier != cache.TierNone {
		h.Set("X-Cache", "HIT-"+tier.String())
	} else {
		h.Set("X-Cache", "MISS")
	}
	h.Set("Content-Length", strconv.Itoa(len(resp.Body)))
	w.WriteHeader(resp.Status)
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		logger.Debug("写出响应失败", logger.ErrorField(err))
	}
}

// writeJSON 写出不缓存的 JSON 响应
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("序列化响应失败", logger.ErrorField(err))
		status = http.StatusInternalServerError
		body = []byte(`{"code":"INTERNAL","message":"internal error"}`)
	}
	h := w.Header()
	h.Set("Content-Type", contentTypeJSON)
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError 按错误分类写出 {code, message}
func writeError(w http.ResponseWriter, err error) {
	code := errs.CodeOf(err)
	status := errs.HTTPStatus(err)

	var e *errs.E
	if errors.As(err, &e) && e.Code == errs.CodeRateLimited && e.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(e.RetryAfter))
	}
	if status >= http.StatusInternalServerError {
		logger.Warn("请求失败",
			logger.String("code", string(code)),
			logger.Int("status", status),
			logger.ErrorField(err))
	}
	writeJSON(w, status, errorBody{Code: code, Message: errs.MessageOf(err)})
}
