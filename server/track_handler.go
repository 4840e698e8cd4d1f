package server

import (
	"net/http"
	"time"

	"FMEdge/cache"
	"FMEdge/errs"
	"FMEdge/model"

	json "github.com/goccy/go-json"
)

type trackPayload struct {
	Track *model.Track `json:"track"`
}

// renderTrack 共享层存放的就是响应体本身
func renderTrack(payload []byte, ttl time.Duration) (*cache.Response, error) {
	var p trackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, err
	}
	if p.Track == nil {
		return nil, errs.New(errs.CodeInternal, errs.WithMessage("cached track payload is empty"))
	}
	return jsonResponse(http.StatusOK, payload, ttl), nil
}

func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, bucketTrack, s.cfg.TrackRate) {
		return
	}

	ref, err := s.parseTrackRef(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	key := cache.Key{
		Edge:   cache.EdgeKey(r),
		Shared: cache.TrackKey(ref.Provider, ref.ID),
	}
	if resp, tier := s.Cache.Lookup(r.Context(), key, cache.ClassTrack, renderTrack); resp != nil {
		writeResponse(w, r, resp, tier)
		return
	}

	track, err := s.Orchestrator.Fetch(r.Context(), ref.Provider, ref.ID)
	if err != nil {
		switch errs.CodeOf(err) {
		case errs.CodeNotFound, errs.CodeValidation:
		default:
			// 超时、熔断与其他上游错误统一按 502 返回
			err = errs.New(errs.CodeUpstreamFailure,
				errs.WithProvider(string(ref.Provider)),
				errs.WithMessage("Upstream error while fetching track"),
				errs.WithCause(err))
		}
		writeError(w, err)
		return
	}

	body, err := json.Marshal(trackPayload{Track: track})
	if err != nil {
		writeError(w, errs.New(errs.CodeInternal, errs.WithCause(err)))
		return
	}
	ttl := s.Cache.TTL(cache.ClassTrack)
	resp := jsonResponse(http.StatusOK, body, ttl)
	s.Cache.Store(key, body, resp, ttl)
	writeResponse(w, r, resp, cache.TierNone)
}
