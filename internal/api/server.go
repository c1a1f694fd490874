// Package api exposes the news service over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/newspulse/internal/metrics"
	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/news"
)

const requestIDHeader = "X-Request-ID"

type NewsService interface {
	GetNewsAbout(ctx context.Context, q news.Query) ([]models.ArticleRecord, error)
	Analyze(ctx context.Context, entity string, articles []models.ArticleRecord) (*news.Analysis, error)
	Recommend(ctx context.Context, interests []string, maxArticles int) ([]models.ArticleRecord, error)
}

// Status reports process health and counters. metrics.Global satisfies it.
type Status interface {
	Healthy() bool
	GetStats() map[string]interface{}
}

// StatsSource adds a named section to /stats.
type StatsSource interface {
	GetStats() map[string]interface{}
}

type Server struct {
	news   NewsService
	status Status
	extra  map[string]StatsSource
	log    *slog.Logger
}

type Option func(*Server)

func WithStatus(s Status) Option       { return func(srv *Server) { srv.status = s } }
func WithLogger(l *slog.Logger) Option { return func(srv *Server) { srv.log = l } }
func WithStats(name string, s StatsSource) Option {
	return func(srv *Server) { srv.extra[name] = s }
}

func NewServer(svc NewsService, opts ...Option) *Server {
	s := &Server{
		news:   svc,
		status: metrics.Global,
		extra:  map[string]StatsSource{},
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID(), s.accessLog())

	r.GET("/health", s.handleHealth)
	r.GET("/stats", s.handleStats)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.POST("/search", s.handleSearch)
	api.GET("/recommendations", s.handleRecommendations)
	return r
}

func (s *Server) requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"request_id", c.GetString("request_id"))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.status.GetStats()
	if !s.status.Healthy() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "error",
			"last_error": stats["last_error"],
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"last_run": stats["last_run_time"],
	})
}

func (s *Server) handleStats(c *gin.Context) {
	out := gin.H{}
	for k, v := range s.status.GetStats() {
		out[k] = v
	}
	for name, src := range s.extra {
		out[name] = src.GetStats()
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) fail(c *gin.Context, status int, msg string, err error) {
	body := gin.H{"error": msg, "request_id": c.GetString("request_id")}
	if err != nil && status >= http.StatusInternalServerError {
		s.log.Error(msg, "err", err, "request_id", c.GetString("request_id"))
	} else if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(status, body)
}
