// Package server exposes the gateway over HTTP: agent chat as server-sent
// events or a blocking call, plus the project, session and repository
// endpoints the web client needs.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zhubert/plural-gateway/claude"
	"github.com/zhubert/plural-gateway/git"
	"github.com/zhubert/plural-gateway/logger"
	"github.com/zhubert/plural-gateway/metrics"
	"github.com/zhubert/plural-gateway/store"
)

// Deps are the collaborators a Server routes to. Metrics and Gatherer may be
// nil; the /metrics route then serves the default gatherer.
type Deps struct {
	Gateway  *claude.Gateway
	Store    store.Store
	Repos    *git.RepoService
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

// Options tune the HTTP surface.
type Options struct {
	CORSOrigins []string
	Debug       bool
}

// Server is the gateway's HTTP front end.
type Server struct {
	engine  *gin.Engine
	gateway *claude.Gateway
	store   store.Store
	repos   *git.RepoService
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New builds the router. It does not start listening.
func New(deps Deps, opts Options) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:  gin.New(),
		gateway: deps.Gateway,
		store:   deps.Store,
		repos:   deps.Repos,
		metrics: deps.Metrics,
		log:     logger.WithComponent("http"),
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(s.requestLogger())
	if len(opts.CORSOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		if slices.Contains(opts.CORSOrigins, "*") {
			corsConfig.AllowAllOrigins = true
		} else {
			corsConfig.AllowOrigins = opts.CORSOrigins
		}
		corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", UserIDHeader}
		s.engine.Use(cors.New(corsConfig))
	}

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.setupRoutes(gatherer)
	return s
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.Use(identify())

	chat := api.Group("/chat")
	{
		chat.POST("", s.handleChatStream)
		chat.POST("/sync", s.handleChatSync)
	}

	authed := api.Group("")
	authed.Use(requireUser())

	projects := authed.Group("/projects")
	{
		projects.GET("", s.handleListProjects)
		projects.POST("", s.handleCreateProject)
		projects.PUT("", s.handleUpdateProject)
		projects.DELETE("", s.handleDeleteProject)
	}

	sessions := authed.Group("/sessions")
	{
		sessions.GET("", s.handleGetSessions)
		sessions.POST("", s.handleSaveSession)
		sessions.PUT("", s.handleUpdateSession)
		sessions.DELETE("", s.handleDeleteSessions)
	}

	repo := authed.Group("/repo")
	{
		repo.POST("/clone", s.handleRepoClone)
		repo.POST("/pull", s.handleRepoPull)
		repo.GET("/status", s.handleRepoStatus)
	}
}

// Handler returns the router for use with an http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully,
// giving in-flight requests up to shutdownTimeout to finish. Open chat
// streams are cut when the timeout expires; their agent processes are
// killed through the request context.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down", "timeout", shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		// Streams still open; force them closed.
		closeErr := srv.Close()
		s.log.Warn("graceful shutdown failed, connections closed", "error", err, "closeError", closeErr)
		return errors.Join(fmt.Errorf("shutdown: %w", err), closeErr)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// errorBody is the JSON body of every non-2xx API response except the
// repository routes, which answer in their result shape.
type errorBody struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg})
}

// respondInternal logs the cause and answers 500 with a fixed message.
func (s *Server) respondInternal(c *gin.Context, msg string, err error) {
	s.log.Error(msg, "error", err, "route", c.FullPath(), "userID", userID(c))
	respondError(c, http.StatusInternalServerError, msg)
}
