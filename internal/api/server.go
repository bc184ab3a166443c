// Package api exposes the triage pipeline, the decision log and the demand
// forecaster over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/orion-triage-server/internal/decisionlog"
	"github.com/orion-triage-server/internal/domain"
	"github.com/orion-triage-server/internal/forecast"
	"github.com/orion-triage-server/internal/middleware"
	"github.com/orion-triage-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Services are the components the HTTP layer drives. Broadcaster may be nil,
// in which case the live stream endpoint is not registered.
type Services struct {
	Orchestrator *service.Orchestrator
	Forecaster   *forecast.Forecaster
	Decisions    decisionlog.Store
	Broadcaster  *decisionlog.Broadcaster
}

// Server represents the HTTP server
type Server struct {
	config   domain.ServerConfig
	services Services
	router   *gin.Engine
	server   *http.Server
	upgrader websocket.Upgrader
	logger   *logrus.Logger
	now      func() time.Time
}

// NewServer creates a new HTTP server instance. The gin mode is left to the caller.
func NewServer(config domain.ServerConfig, services Services, logger *logrus.Logger) (*Server, error) {
	if services.Orchestrator == nil || services.Forecaster == nil || services.Decisions == nil {
		return nil, fmt.Errorf("api server requires orchestrator, forecaster and decision log")
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.AuditLogger(logger))

	var limiter *middleware.IPRateLimiter
	if config.RateLimit > 0 {
		limiter = middleware.NewIPRateLimiter(config.RateLimit, config.RateBurst)
	}

	s := &Server{
		config:   config,
		services: services,
		router:   router,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
		now:    time.Now,
	}

	s.setupRoutes(middleware.RateLimit(limiter))
	return s, nil
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.services.Broadcaster != nil {
		s.services.Broadcaster.Close()
	}
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes(rateLimit gin.HandlerFunc) {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	v1.Use(rateLimit)
	{
		v1.GET("/symptoms", s.handleListSymptoms)
		v1.GET("/symptoms/:symptom/questions", s.handleSymptomQuestions)
		v1.POST("/triage", s.handleTriage)

		v1.GET("/decisions", s.handleListDecisions)
		v1.GET("/decisions/export", s.handleExportDecisions)
		if s.services.Broadcaster != nil {
			v1.GET("/decisions/stream", s.handleDecisionStream)
		}

		v1.GET("/reports/monthly", s.handleMonthlyReport)

		fc := v1.Group("/forecast")
		fc.POST("/train", s.handleTrain)
		fc.POST("/predict", s.handlePredict)
		fc.POST("/actual", s.handleRecordActual)
		fc.GET("/drift", s.handleDrift)
		fc.GET("/performance", s.handlePerformance)
	}
}
