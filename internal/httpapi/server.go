// Package httpapi provides the HTTP API for dealsense.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/dealsense/internal/extraction"
	"github.com/fyrsmithlabs/dealsense/internal/llm"
	"github.com/fyrsmithlabs/dealsense/internal/patterns"
)

// maxExtractMessages caps one extraction request; larger batches should be
// split by the caller.
const maxExtractMessages = 500

// Server provides HTTP endpoints for dealsense.
type Server struct {
	echo       *echo.Echo
	extractor  *extraction.Extractor
	selector   *extraction.Selector
	aggregator *extraction.Aggregator
	logger     *zap.Logger
	config     *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(extractor *extraction.Extractor, selector *extraction.Selector, aggregator *extraction.Aggregator, logger *zap.Logger, cfg *Config) (*Server, error) {
	if extractor == nil {
		return nil, fmt.Errorf("extractor cannot be nil")
	}
	if selector == nil {
		return nil, fmt.Errorf("selector cannot be nil")
	}
	if aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "localhost",
			Port: 9450,
		}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(NewHTTPMetrics(logger).MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		extractor:  extractor,
		selector:   selector,
		aggregator: aggregator,
		logger:     logger,
		config:     cfg,
	}

	// Register routes
	s.registerRoutes()

	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	// Health check
	s.echo.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.echo.Group("/api/v1")
	v1.POST("/extract", s.handleExtract)
	v1.POST("/strategy", s.handleStrategy)
	v1.POST("/confidence", s.handleConfidence)
}

// ExtractRequest is the request body for POST /api/v1/extract.
type ExtractRequest struct {
	Messages             []patterns.Message           `json:"messages"`
	ExistingTransactions []llm.ExistingTransactionRef `json:"existing_transactions,omitempty"`
	KnownContacts        []llm.Contact                `json:"known_contacts,omitempty"`
	Options              *extraction.Options          `json:"options,omitempty"`
}

// StrategyRequest is the request body for POST /api/v1/strategy.
type StrategyRequest struct {
	UserID         string            `json:"user_id"`
	MessageCount   int               `json:"message_count"`
	PreviousMethod extraction.Method `json:"previous_method,omitempty"`
}

// ConfidenceRequest is the request body for POST /api/v1/confidence.
type ConfidenceRequest struct {
	PatternConfidence *int     `json:"pattern_confidence,omitempty"` // 0-100
	LLMConfidence     *float64 `json:"llm_confidence,omitempty"`     // 0-1
	MethodsAgree      bool     `json:"methods_agree"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleExtract runs the hybrid extraction pipeline over a message batch.
func (s *Server) handleExtract(c echo.Context) error {
	var req ExtractRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid extract request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if len(req.Messages) > maxExtractMessages {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many messages: %d (max %d)", len(req.Messages), maxExtractMessages))
	}

	opts := extraction.DefaultOptions()
	if req.Options != nil {
		opts = *req.Options
	}

	result := s.extractor.Extract(c.Request().Context(), req.Messages, req.ExistingTransactions, req.KnownContacts, opts)

	s.logger.Debug("extraction complete",
		zap.Int("messages", len(req.Messages)),
		zap.Int("transactions", len(result.DetectedTransactions)),
		zap.Bool("llm_used", result.LLMUsed),
		zap.Int64("latency_ms", result.LatencyMS),
	)

	// Pipeline-level failures are a client problem (bad options), not a
	// server fault; degraded LLM runs still return 200 with Success true.
	if !result.Success {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// handleStrategy resolves the extraction strategy for a user without
// running the pipeline.
func (s *Server) handleStrategy(c echo.Context) error {
	var req StrategyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid strategy request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id field is required")
	}

	strategy := s.selector.SelectStrategy(c.Request().Context(), req.UserID, &extraction.StrategyContext{
		MessageCount:   req.MessageCount,
		PreviousMethod: req.PreviousMethod,
	})

	return c.JSON(http.StatusOK, strategy)
}

// handleConfidence fuses pattern and LLM confidence signals.
func (s *Server) handleConfidence(c echo.Context) error {
	var req ConfidenceRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid confidence request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	confidence := s.aggregator.Aggregate(req.PatternConfidence, req.LLMConfidence, req.MethodsAgree)
	return c.JSON(http.StatusOK, confidence)
}

// Echo returns the underlying echo instance for extra route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
