// Package http provides the HTTP adapter for the purchase workflow.
// Handlers translate requests into engine and service calls and map the error taxonomy to status codes.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/purchase-workflow/internal/application/service"
	"github.com/garyjia/purchase-workflow/internal/application/workflow"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SubscriptionServer upgrades a request to a real-time subscription for one purchase request
type SubscriptionServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, requestID int64, userID string) error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		MaxUploadBytes: service.DefaultMaxUploadBytes,
	}
}

// Services bundles the application layer the handlers call into
type Services struct {
	Engine      workflow.WorkflowEngine
	Query       service.QueryService
	Attachments service.AttachmentService
	Comments    service.CommentService
	Export      service.ExportService
	Realtime    SubscriptionServer
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	if config.MaxUploadBytes > 0 {
		router.MaxMultipartMemory = config.MaxUploadBytes
	}

	server := &Server{
		config:   config,
		router:   router,
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		kv := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		}
		if actor, ok := actorFrom(c); ok {
			kv = append(kv, "actor_id", actor.ID)
		}
		s.logger.Info("HTTP request", kv...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api", actorMiddleware())
	{
		api.GET("/requests", h.ListRequests)
		api.POST("/requests", h.CreateRequest)

		req := api.Group("/requests/:id")
		req.GET("", h.GetRequest)
		req.PUT("", h.EditRequest)
		req.DELETE("", h.DeleteRequest)

		req.POST("/submit", h.Submit)
		req.POST("/approve-first", h.ApproveFirst)
		req.POST("/approve-second", h.ApproveSecond)
		req.POST("/purchase", h.MarkPurchased)
		req.POST("/deliver", h.MarkDelivered)
		req.POST("/reject", h.Reject)
		req.POST("/resubmit", h.Resubmit)
		req.POST("/duplicate", h.Duplicate)

		req.GET("/history", h.GetHistory)
		req.GET("/history/export", h.ExportHistory)

		req.GET("/attachments", h.ListAttachments)
		req.POST("/attachments", h.UploadAttachment)
		req.GET("/attachments/:attachmentId/download", h.DownloadAttachment)
		req.DELETE("/attachments/:attachmentId", h.RemoveAttachment)

		req.GET("/comments", h.ListComments)
		req.POST("/comments", h.AddComment)
		req.DELETE("/comments/:commentId", h.RemoveComment)

		req.GET("/ws", h.Subscribe)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
