// Package web is the HTTP/JSON surface over the control plane. It carries
// no business logic; every handler validates input, calls one component,
// and writes the result. The core components run fine without it.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/prismfeed/prism/internal/config"
	"github.com/prismfeed/prism/internal/discovery"
	"github.com/prismfeed/prism/internal/governor"
	"github.com/prismfeed/prism/internal/observability"
	"github.com/prismfeed/prism/internal/orchestrator"
	"github.com/prismfeed/prism/internal/scheduler"
	"github.com/prismfeed/prism/internal/store"
)

// Server wires handlers to the components they surface.
type Server struct {
	store     *store.Store
	scheduler *scheduler.Scheduler
	governor  *governor.Governor
	orch      *orchestrator.Orchestrator
	discovery *discovery.Provider
	logger    *slog.Logger
	cfg       config.ServerConfig

	httpServer *http.Server
}

// New builds a server over the given components.
func New(st *store.Store, sched *scheduler.Scheduler, gov *governor.Governor, orch *orchestrator.Orchestrator, disc *discovery.Provider, logger *slog.Logger, cfg config.ServerConfig) *Server {
	return &Server{
		store:     st,
		scheduler: sched,
		governor:  gov,
		orch:      orch,
		discovery: disc,
		logger:    observability.Component(logger, "web"),
		cfg:       cfg,
	}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.Handle("GET /metrics/prometheus", promhttp.Handler())

	mux.HandleFunc("GET /feeds", s.handleListFeeds)
	mux.HandleFunc("POST /feeds", s.handleCreateFeed)
	mux.HandleFunc("GET /feeds/{id}", s.handleGetFeed)
	mux.HandleFunc("PUT /feeds/{id}", s.handleUpdateFeed)
	mux.HandleFunc("DELETE /feeds/{id}", s.handleDeleteFeed)
	mux.HandleFunc("POST /feeds/{id}/fetch", s.handleFetchFeed)
	mux.HandleFunc("POST /feeds/{id}/pause", s.handlePauseFeed)
	mux.HandleFunc("POST /feeds/{id}/resume", s.handleResumeFeed)
	mux.HandleFunc("GET /feeds/{id}/health", s.handleFeedHealth)
	mux.HandleFunc("GET /feeds/{id}/fetch-log", s.handleFeedFetchLog)
	mux.HandleFunc("GET /feeds/{id}/limits", s.handleGetFeedLimits)
	mux.HandleFunc("PUT /feeds/{id}/limits", s.handlePutFeedLimits)

	mux.HandleFunc("GET /items", s.handleListItems)
	mux.HandleFunc("GET /items/{id}", s.handleGetItem)
	mux.HandleFunc("GET /items/{id}/analysis", s.handleGetItemAnalysis)

	mux.HandleFunc("POST /analysis/preview", s.handlePreview)
	mux.HandleFunc("POST /analysis/start", s.handleStartRun)
	mux.HandleFunc("GET /analysis/runs", s.handleListRuns)
	mux.HandleFunc("GET /analysis/runs/{id}", s.handleGetRun)
	mux.HandleFunc("POST /analysis/runs/{id}/cancel", s.handleCancelRun)
	mux.HandleFunc("POST /analysis/manager/emergency-stop", s.handleEmergencyStop)
	mux.HandleFunc("POST /analysis/manager/resume", s.handleManagerResume)
	mux.HandleFunc("GET /analysis/manager/status", s.handleManagerStatus)

	mux.HandleFunc("GET /scheduler/heartbeat", s.handleHeartbeat)
	mux.HandleFunc("POST /scheduler/pause", s.handleSchedulerPause)
	mux.HandleFunc("POST /scheduler/resume", s.handleSchedulerResume)
	mux.HandleFunc("POST /scheduler/interval", s.handleSchedulerInterval)

	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("POST /templates", s.handleCreateTemplate)
	mux.HandleFunc("GET /templates/{id}", s.handleGetTemplate)
	mux.HandleFunc("PUT /templates/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("GET /discovery/schemas", s.handleDiscoverySchemas)
	mux.HandleFunc("GET /discovery/schemas/{name}", s.handleDiscoverySchema)
	mux.HandleFunc("GET /discovery/examples/{type}", s.handleDiscoveryExample)
	mux.HandleFunc("GET /discovery/usage-guide", s.handleDiscoveryGuide)
	mux.HandleFunc("GET /discovery/features", s.handleDiscoveryFeatures)

	return withLogging(s.logger, mux)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Routes(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Info("http server listening", "addr", s.cfg.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
