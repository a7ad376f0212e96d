// Package server exposes the scoring pipeline over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/xayone/riskd/audit"
	"github.com/xayone/riskd/cache"
	"github.com/xayone/riskd/config"
	"github.com/xayone/riskd/detector"
	"github.com/xayone/riskd/logger"
	"github.com/xayone/riskd/pipeline"
	"github.com/xayone/riskd/session"
)

// Server owns the HTTP engine and the collaborators the handlers consult.
type Server struct {
	engine    *gin.Engine
	pipeline  *pipeline.Pipeline
	detectors *detector.Set
	store     cache.Store
	sink      audit.Sink
	cfg       *config.Config
	version   string
	log       zerolog.Logger
}

// New assembles the engine with all routes and middleware attached.
func New(cfg *config.Config, p *pipeline.Pipeline, detectors *detector.Set, store cache.Store, sink audit.Sink, version string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		engine:    gin.New(),
		pipeline:  p,
		detectors: detectors,
		store:     store,
		sink:      sink,
		cfg:       cfg,
		version:   version,
		log:       logger.GetLogger().With().Str("component", "server").Logger(),
	}

	s.engine.Use(gin.Recovery(), s.requestLogger())

	s.engine.GET("/", s.handleRoot)
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/v1", s.requireAPIKey())
	v1.POST("/analyze", s.handleAnalyze)
	v1.POST("/feedback", s.handleFeedback)

	return s
}

// Handler exposes the engine for tests and custom http.Server wiring.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails or the process exits.
func (s *Server) Run() error {
	s.log.Info().Str("address", s.cfg.Server.ListenAddress).Msg("listening")
	return s.engine.Run(s.cfg.Server.ListenAddress)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(started)).
			Msg("request")
	}
}

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "login risk scoring",
		"version": s.version,
		"endpoints": []string{
			"POST /v1/analyze",
			"POST /v1/feedback",
			"GET /health",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	modelsLoaded := !s.detectors.Network.RulesOnly() &&
		!s.detectors.Temporal.RulesOnly() &&
		!s.detectors.Agent.RulesOnly() &&
		!s.detectors.Geographic.RulesOnly()
	cacheConnected := s.store.Healthy(ctx)
	auditConnected := s.sink.Healthy(ctx)

	status := "healthy"
	if !modelsLoaded || !cacheConnected || !auditConnected {
		status = "degraded"
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          status,
		"timestamp":       time.Now().UnixMilli(),
		"version":         s.version,
		"models_loaded":   modelsLoaded,
		"cache_connected": cacheConnected,
		"audit_connected": auditConnected,
	})
}

func (s *Server) handleAnalyze(c *gin.Context) {
	var req session.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}

	principal := c.GetString(apiKeyContextKey) + "|" + c.ClientIP()
	result, err := s.pipeline.Analyze(c.Request.Context(), &req, principal)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleFeedback(c *gin.Context) {
	var fb audit.Feedback
	if err := c.ShouldBindJSON(&fb); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed request body"})
		return
	}
	if err := s.pipeline.Feedback(&fb); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// writeError maps the pipeline taxonomy onto status codes. Internal and
// timeout failures never leak detail.
func (s *Server) writeError(c *gin.Context, err error) {
	switch pipeline.KindOf(err) {
	case pipeline.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case pipeline.KindRateLimited:
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
	default:
		s.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
