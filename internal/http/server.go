// Package http exposes the feastd API over HTTP: the chat endpoint, the
// session listing, the admin purge, and the health check.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/unifeast/feastd/internal/chat"
	"github.com/unifeast/feastd/internal/logging"
	"github.com/unifeast/feastd/internal/memory"
	"github.com/unifeast/feastd/internal/profile"
)

// ChatService handles one conversational turn.
type ChatService interface {
	Chat(ctx context.Context, req chat.Request) (chat.Result, error)
}

// SessionStore is the slice of the memory store the API exposes.
type SessionStore interface {
	Sessions(ctx context.Context, userID string) ([]memory.Session, error)
	PurgeExpired(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the feastd HTTP API.
type Server struct {
	echo     *echo.Echo
	chat     ChatService
	sessions SessionStore
	metrics  *Metrics
	logger   *logging.Logger
	config   Config
}

// NewServer creates the HTTP server with all routes registered.
func NewServer(chatSvc ChatService, sessions SessionStore, logger *logging.Logger, cfg Config) (*Server, error) {
	if chatSvc == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:     e,
		chat:     chatSvc,
		sessions: sessions,
		metrics:  metrics,
		logger:   logger.Named("http"),
		config:   cfg,
	}
	s.registerRoutes()

	return s, nil
}

// requestLogger logs every request and threads the request id into the
// context so downstream log lines carry it.
func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			requestID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), requestID)
			c.SetRequest(c.Request().WithContext(ctx))

			start := time.Now()
			err := next(c)

			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/chat", s.handleChat)
	v1.GET("/sessions", s.handleSessions)
	v1.POST("/admin/purge", s.handlePurge)
}

// handleHealth reports overall and per-component status. A degraded memory
// store does not fail the check: chat still answers without continuity.
func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{
		Status:     "ok",
		Components: map[string]string{"memory": "ok"},
	}
	if err := s.sessions.Ping(c.Request().Context()); err != nil {
		resp.Status = "degraded"
		resp.Components["memory"] = "unavailable"
	}
	return c.JSON(http.StatusOK, resp)
}

// handleChat runs one conversational turn. Profile decoding is tolerant:
// malformed fields become warnings, never a rejected request.
func (s *Server) handleChat(c echo.Context) error {
	ctx := c.Request().Context()

	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn(ctx, "invalid chat request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Message == "" && req.Criteria.Empty() {
		return echo.NewHTTPError(http.StatusBadRequest, "message or criteria is required")
	}

	userProfile, fieldErrors := profile.Decode(req.UserProfile)
	warnings := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		warnings = append(warnings, fmt.Sprintf("profile field %s: %s", fe.Field, fe.Reason))
	}
	if len(fieldErrors) > 0 {
		s.logger.Warn(ctx, "tolerated malformed profile fields",
			zap.Int("count", len(fieldErrors)),
		)
	}

	result, err := s.chat.Chat(ctx, chat.Request{
		Message:             req.Message,
		UserID:              req.UserID,
		SessionID:           req.SessionID,
		Profile:             userProfile,
		Criteria:            req.Criteria,
		OverridePreferences: req.OverridePreferences,
	})
	if err != nil {
		s.logger.Error(ctx, "chat turn failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to process message")
	}

	s.metrics.RecordTurn(c, result.Provider, result.Response.SearchMetadata.ZeroMatches)

	return c.JSON(http.StatusOK, ChatResponse{
		TextBubble:     result.Response.TextBubble,
		UICards:        result.Response.UICards,
		SearchMetadata: result.Response.SearchMetadata,
		UserID:         result.UserID,
		SessionID:      result.SessionID,
		Timestamp:      result.Timestamp,
		Warnings:       warnings,
	})
}

// handleSessions lists a user's sessions, newest first.
func (s *Server) handleSessions(c echo.Context) error {
	userID := c.QueryParam("user_id")
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id query parameter is required")
	}

	sessions, err := s.sessions.Sessions(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error(c.Request().Context(), "failed to list sessions", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list sessions")
	}

	summaries := make([]SessionSummary, len(sessions))
	for i, sess := range sessions {
		summaries[i] = SessionSummary{
			ID:          sess.ID,
			CreatedAt:   sess.CreatedAt,
			LastUpdated: sess.LastUpdated,
		}
	}
	return c.JSON(http.StatusOK, SessionsResponse{UserID: userID, Sessions: summaries})
}

// handlePurge triggers an immediate retention sweep.
func (s *Server) handlePurge(c echo.Context) error {
	purged, err := s.sessions.PurgeExpired(c.Request().Context())
	if err != nil {
		s.logger.Error(c.Request().Context(), "manual purge failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "purge failed")
	}
	return c.JSON(http.StatusOK, PurgeResponse{PurgedSessions: purged})
}

// Start starts the HTTP server and blocks until shutdown or failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(nil, "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
