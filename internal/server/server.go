package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kapu/pitch-coach-go/internal/adapter"
	"github.com/kapu/pitch-coach-go/internal/domain"
	"github.com/kapu/pitch-coach-go/internal/feedback"
	"github.com/kapu/pitch-coach-go/internal/orchestrator"
	"github.com/kapu/pitch-coach-go/internal/service/llm"
)

// HistoryLister is the read side of the pitch history store.
type HistoryLister interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.PitchRecord, error)
}

// HealthReporter exposes completion chain health.
type HealthReporter interface {
	Status() llm.ManagerStatus
}

type Config struct {
	Addr           string
	GinMode        string
	AllowedOrigins []string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// Deps are the services behind the routes. History, Health and Gatherer
// are optional.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Feedback     *feedback.Service
	Completer    llm.Completer
	History      HistoryLister
	Health       HealthReporter
	Gatherer     prometheus.Gatherer
}

type Server struct {
	deps       Deps
	engine     *gin.Engine
	httpServer *http.Server
	upgrader   websocket.Upgrader
	formatter  *adapter.ExportFormatter
	startTime  time.Time
	logger     *zap.Logger
}

func New(cfg Config, deps Deps, logger *zap.Logger) *Server {
	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	engine := gin.New()
	engine.Use(requestLogger(logger))
	engine.Use(recovery(logger))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s := &Server{
		deps:      deps,
		engine:    engine,
		formatter: adapter.NewExportFormatter(),
		startTime: time.Now(),
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	gatherer := s.deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	api.Use(userID())
	{
		api.GET("/personas", s.handlePersonas)
		api.GET("/coach-tones", s.handleTones)
		api.POST("/analyze", s.handleAnalyze)
		api.POST("/feedback", s.handleFeedback)
		api.POST("/feedback/export", s.handleFeedbackExport)
		api.POST("/chat", s.handleChat)
		api.GET("/history", s.handleHistory)
	}

	sessions := api.Group("/roleplay/sessions")
	{
		sessions.POST("", s.handleStartSession)
		sessions.GET("/:id", s.handleGetSession)
		sessions.POST("/:id/turns", s.handleTurn)
		sessions.POST("/:id/reset", s.handleResetSession)
		sessions.DELETE("/:id", s.handleDeleteSession)
		sessions.GET("/:id/report", s.handleReport)
		sessions.GET("/:id/export", s.handleExport)
	}

	s.engine.GET("/ws/roleplay/:id", s.handleWebSocket)
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"uptime": time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Health != nil {
		status := s.deps.Health.Status()
		body["completion"] = status
	}
	c.JSON(http.StatusOK, body)
}
