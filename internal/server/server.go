package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"flock-messaging/config"
	"flock-messaging/internal/handler"
	"flock-messaging/internal/middleware"
	"flock-messaging/internal/redis"
	"flock-messaging/internal/services"
	"flock-messaging/internal/transport/httpdto"
	"flock-messaging/pkg/database"
	"flock-messaging/pkg/logger"
)

type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     *config.Config
	logger     *logger.Logger
}

var (
	ReleaseMode = "release"
	DebugMode   = "debug"
	TestMode    = "test"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	Chat      *handler.ChatHandler
	Message   *handler.MessageHandler
	Ledger    *handler.LedgerHandler
	WebSocket *WebSocketHandler
}

func New(cfg *config.Config, l *logger.Logger) *Server {
	if cfg.AppMode == ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	} else if cfg.AppMode == TestMode {
		gin.SetMode(gin.TestMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	return &Server{
		httpServer: &http.Server{
			Addr:    fmt.Sprintf(":%s", cfg.AppPort),
			Handler: engine,
		},
		engine: engine,
		config: cfg,
		logger: l,
	}
}

func (s *Server) SetupRoutes(handlers *Handlers, authService *services.AuthService, limiter *redis.RateLimiter) {
	s.engine.Use(middleware.RequestIDMiddleware())
	s.engine.Use(middleware.CORSMiddleware())
	s.engine.Use(middleware.LoggingMiddleware(s.logger))
	s.engine.Use(middleware.ErrorHandler(s.logger))
	if limiter != nil {
		s.engine.Use(middleware.RateLimitMiddleware(limiter))
	}

	s.engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"message": "pong"}))
	})

	s.engine.GET("/health", func(c *gin.Context) {
		if err := database.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, httpdto.NewErrorResponse(err.Error(), "UNHEALTHY"))
			return
		}
		c.JSON(http.StatusOK, httpdto.NewSuccessResponse(gin.H{"status": "healthy"}))
	})

	auth := s.engine.Group("/v1/auth")
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)
	}

	authed := s.engine.Group("/v1", middleware.AuthMiddleware(authService))

	chats := authed.Group("/chats")
	{
		chats.GET("", handlers.Chat.List)
		chats.POST("", handlers.Chat.Open)
		chats.POST("/:id/pin", handlers.Chat.Pin)
	}

	conversations := authed.Group("/conversations")
	{
		conversations.GET("/:id/messages", handlers.Message.List)
		if limiter != nil {
			conversations.POST("/:id/messages", middleware.MessageRateLimitMiddleware(limiter), handlers.Message.Send)
		} else {
			conversations.POST("/:id/messages", handlers.Message.Send)
		}
		conversations.POST("/:id/read", handlers.Chat.MarkRead)
		conversations.GET("/:id/unread", handlers.Chat.Unread)
	}

	messages := authed.Group("/messages")
	{
		messages.DELETE("/:id", handlers.Message.Delete)
		messages.GET("/:id/reactions", handlers.Ledger.GetReactions)
		messages.POST("/:id/reactions", handlers.Ledger.SetReaction)
		messages.DELETE("/:id/reactions", handlers.Ledger.ClearReaction)
		messages.GET("/:id/likes", handlers.Ledger.GetLikes)
		messages.POST("/:id/likes", handlers.Ledger.Like)
		messages.DELETE("/:id/likes", handlers.Ledger.Unlike)
		messages.GET("/:id/comments", handlers.Ledger.ListComments)
		messages.POST("/:id/comments", handlers.Ledger.AddComment)
	}

	if handlers.WebSocket != nil {
		s.engine.GET("/v1/ws", handlers.WebSocket.Handle)
	}
}

func (s *Server) Start() error {
	go func() {
		if s.logger != nil {
			s.logger.Infof("Starting the server on port %s...", s.config.AppPort)
		}
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.logger != nil {
				s.logger.Errorf("Error in starting the server: %s", err)
			}
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	if s.logger != nil {
		s.logger.Infof("Server is running on :%s", s.config.AppPort)
	}

	<-quit

	if s.logger != nil {
		s.logger.Infof("Quitting signal received.. Shutting down after 5 seconds")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		if s.logger != nil {
			s.logger.Infof("Error in the graceful shutdown of the server: %s", err)
		}
		return err
	}

	if s.logger != nil {
		s.logger.Infof("Server stopped gracefully")
	}

	return nil
}
