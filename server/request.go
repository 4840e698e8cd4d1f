package server

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"FMEdge/config"
	"FMEdge/core/ratelimit"
	"FMEdge/errs"
	"FMEdge/model"
)

const (
	bucketSearch = "search"
	bucketTrack  = "track"
	bucketStream = "stream"

	maxPage = 1000
)

type internalKey struct{}

// withInternal 标记进程内自检发起的请求，这类请求不经过限流
func withInternal(ctx context.Context) context.Context {
	return context.WithValue(ctx, internalKey{}, true)
}

func isInternal(ctx context.Context) bool {
	v, _ := ctx.Value(internalKey{}).(bool)
	return v
}

// admit 执行限流检查，被拒绝时直接写出 429 并返回 false
func (s *Server) admit(w http.ResponseWriter, r *http.Request, bucket string, rule config.RateRule) bool {
	if s.Limiter == nil || isInternal(r.Context()) {
		return true
	}
	d := s.Limiter.Admit(r.Context(), ratelimit.ClientIdentity(r), bucket, rule.Limit, rule.Window)
	if d.Allowed {
		return true
	}
	writeError(w, errs.New(errs.CodeRateLimited,
		errs.WithMessage("Too many requests"),
		errs.WithRetryAfter(d.RetryAfter)))
	return false
}

// firstParam 按顺序取第一个非空参数
func firstParam(q url.Values, names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// clampInt 解析整数并限制在 [lo, hi]，无法解析时返回 fallback
func clampInt(raw string, fallback, lo, hi int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n == 0 {
		n = fallback
	}
	if n < lo {
		n = lo
	}
	if n > hi {
		n = hi
	}
	return n
}

// trackRef 一首曲目的引用：Provider + Provider 内的 ID
type trackRef struct {
	Provider model.ProviderID
	ID       string
}

// parseTrackRef 解析 provider 与 id（别名 tid）。provider 缺省时
// 接受 "provider:id" 形式的组合 id。Provider 必须已注册。
func (s *Server) parseTrackRef(q url.Values) (trackRef, error) {
	rawProvider := firstParam(q, "provider", "source")
	id := firstParam(q, "id", "tid")

	if rawProvider == "" {
		if p, rest, ok := strings.Cut(id, ":"); ok {
			rawProvider, id = p, rest
		}
	}
	if rawProvider == "" {
		return trackRef{}, errs.New(errs.CodeValidation, errs.WithMessage("Missing parameter 'provider'"))
	}
	if id == "" {
		return trackRef{}, errs.New(errs.CodeValidation, errs.WithMessage("Missing parameter 'id'"))
	}

	pid, ok := model.ParseProviderID(rawProvider)
	if ok {
		_, ok = s.Orchestrator.Registry().Get(pid)
	}
	if !ok {
		return trackRef{}, errs.New(errs.CodeValidation,
			errs.WithMessage("Unknown provider '"+rawProvider+"'"))
	}
	return trackRef{Provider: pid, ID: id}, nil
}
