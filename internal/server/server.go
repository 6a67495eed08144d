// Package server exposes the harvest service over HTTP.
package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"image-harvester/internal/domain"
	"image-harvester/internal/logging"
)

//go:embed templates/index.html
var templateFS embed.FS

// Service is the job API the HTTP layer depends on.
type Service interface {
	Submit(targetURL, label string) (string, error)
	Status(id string) (domain.Job, bool)
	Events(id string, since int64) ([]domain.LogEntry, bool)
	WaitEvents(ctx context.Context, id string, since int64) ([]domain.LogEntry, domain.Job, error)
	Archive(id string) (*os.File, error)
	Cancel(id string) error
	List() []domain.Job
}

// Options configures the HTTP layer.
type Options struct {
	Logger *zap.Logger
	// Diagnostics returns the current health report for /healthz.
	Diagnostics func() domain.DiagnosticReport
	// LongPoll bounds how long an events request with wait=1 blocks.
	LongPoll time.Duration
}

// Server holds the routes and their dependencies.
type Server struct {
	svc         Service
	logger      *zap.Logger
	diagnostics func() domain.DiagnosticReport
	longPoll    time.Duration
	upgrader    websocket.Upgrader
	engine      *gin.Engine
}

// New builds the router around svc.
func New(svc Service, opts Options) *Server {
	s := &Server{
		svc:         svc,
		logger:      logging.OrNop(opts.Logger),
		diagnostics: opts.Diagnostics,
		longPoll:    opts.LongPoll,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	if s.longPoll <= 0 {
		s.longPoll = 25 * time.Second
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog())
	engine.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/index.html")))

	engine.GET("/", s.index)
	engine.GET("/healthz", s.health)
	engine.POST("/start", s.start)
	engine.GET("/status/:id", s.status)
	engine.GET("/download/:id", s.download)
	engine.GET("/jobs", s.list)
	engine.POST("/jobs/:id/cancel", s.cancel)
	engine.GET("/jobs/:id/events", s.events)
	engine.GET("/jobs/:id/ws", s.stream)

	s.engine = engine
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// accessLog writes one zap line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
			return
		}
		s.logger.Debug("request", fields...)
	}
}
