package server

import (
	"net/http"

	"FMEdge/cache"
	"FMEdge/config"
	"FMEdge/core/aggregator"
	"FMEdge/core/dedupe"
	"FMEdge/core/ratelimit"
	"FMEdge/core/relay"
	"FMEdge/errs"
	"FMEdge/storage"

	"github.com/gorilla/mux"
)

// Deps HTTP 层依赖的组件，全部显式构造后注入
type Deps struct {
	Orchestrator *aggregator.Orchestrator
	Merger       *dedupe.Engine
	Cache        *cache.Tiered
	Limiter      *ratelimit.Limiter
	Relay        *relay.Relay
	Store        storage.Store
}

// Server 边缘代理的 HTTP 入口
type Server struct {
	cfg *config.Config
	Deps

	router *mux.Router
}

// New 创建 Server 并注册路由
func New(cfg *config.Config, deps Deps) *Server {
	s := &Server{cfg: cfg, Deps: deps}
	s.router = s.routes()
	return s
}

// Router 返回根 Handler
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()

	router.Use(recoverer, requestID, accessLog, s.cors)

	// 同时挂在根路径和 /api 下，兼容旧前端
	for _, prefix := range []string{"", "/api"} {
		router.HandleFunc(prefix+"/search", s.handleSearch).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/track", s.handleTrack).Methods(http.MethodGet)
		router.HandleFunc(prefix+"/stream", s.handleStream).Methods(http.MethodGet, http.MethodHead)
		router.HandleFunc(prefix+"/selftest", s.handleSelftest).Methods(http.MethodGet, http.MethodHead)
	}
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet, http.MethodHead)

	// 任意路径的 OPTIONS 预检
	router.Methods(http.MethodOptions).HandlerFunc(s.handlePreflight)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errs.New(errs.CodeNotFound, errs.WithMessage("no such endpoint")))
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errs.New(errs.CodeMethodNotAllowed, errs.WithMessage("method not allowed")))
	})
	return router
}
