package server

import (
	"net/http"

	"FMEdge/errs"
	"FMEdge/logger"
)

// DefaultQuality 未指定 quality 时请求的码率
const DefaultQuality = "320"

// handleStream 解析播放地址后把字节流透传给调用方，不经过缓存
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if !s.admit(w, r, bucketStream, s.cfg.StreamRate) {
		return
	}

	q := r.URL.Query()
	ref, err := s.parseTrackRef(q)
	if err != nil {
		writeError(w, err)
		return
	}
	quality := firstParam(q, "quality", "br")
	if quality == "" {
		quality = DefaultQuality
	}

	loc, err := s.Orchestrator.Resolve(r.Context(), ref.Provider, ref.ID, quality)
	if err != nil {
		if !errs.Is(err, errs.CodeNotFound) {
			logger.Warn("解析播放地址失败",
				logger.String("provider", string(ref.Provider)),
				logger.String("id", ref.ID),
				logger.ErrorField(err))
		}
		writeError(w, errs.New(errs.CodeNotFound,
			errs.WithProvider(string(ref.Provider)),
			errs.WithMessage("Stream could not be resolved"),
			errs.WithCause(err)))
		return
	}

	if err := s.Relay.Serve(w, r, loc); err != nil {
		writeError(w, err)
	}
}
