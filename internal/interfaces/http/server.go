package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/PhillHH/chat-agent/internal/application/usecase"
	"github.com/PhillHH/chat-agent/internal/domain/repository"
	"github.com/PhillHH/chat-agent/internal/interfaces/http/handlers"
	"github.com/PhillHH/chat-agent/internal/interfaces/websocket"
)

// Server serves the customer chat endpoints, the operator webhook and the
// admin backend on one listener.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config carries the listener settings.
type Config struct {
	Host string
	Port int
	Mode string // debug, release
}

// NewServer wires the gin router. operatorWebhook may be nil when no Bot
// Framework credentials are configured.
func NewServer(
	cfg Config,
	chat *usecase.HandleChatUseCase,
	audit repository.AuditRepository,
	adminEnabled bool,
	hub *websocket.Hub,
	operatorWebhook http.HandlerFunc,
	logger *zap.Logger,
) *Server {
	if cfg.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logger))

	chatHandler := handlers.NewChatHandler(chat, logger)
	adminHandler := handlers.NewAdminHandler(audit, adminEnabled, logger)

	setupRoutes(router, chatHandler, adminHandler, hub, operatorWebhook)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start begins listening. Returns immediately; errors land in the log.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func setupRoutes(
	router *gin.Engine,
	chatHandler *handlers.ChatHandler,
	adminHandler *handlers.AdminHandler,
	hub *websocket.Hub,
	operatorWebhook http.HandlerFunc,
) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	chat := router.Group("/chat")
	{
		chat.POST("/message", chatHandler.SendMessage)
		if hub != nil {
			chat.GET("/ws/:session_id", func(c *gin.Context) {
				hub.ServeWS(c.Writer, c.Request, c.Param("session_id"))
			})
		}
	}

	admin := router.Group("/admin")
	{
		admin.GET("/sessions", adminHandler.ListSessions)
		admin.GET("/sessions/:session_id", adminHandler.GetSession)
		admin.POST("/sessions/:session_id/note", adminHandler.UpdateNote)
		admin.GET("/export", adminHandler.Export)
	}

	// Bot Framework delivers operator activities here.
	if operatorWebhook != nil {
		router.POST("/api/messages", gin.WrapF(operatorWebhook))
	}
}

// ginLogger logs one line per request. Bodies are never logged; they carry
// customer text.
func ginLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		statusCode := c.Writer.Status()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
