package server

import (
  "strings"

  "github.com/gin-contrib/cors"
  "github.com/gin-gonic/gin"
  "go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

  "github.com/yungbote/chatdesk-backend/internal/handlers"
  "github.com/yungbote/chatdesk-backend/internal/middleware"
  "github.com/yungbote/chatdesk-backend/internal/utils"
)

type RouterConfig struct {
  AuthHandler        *handlers.AuthHandler
  AuthMiddleware     *middleware.AuthMiddleware
  UserHandler        *handlers.UserHandler
  ThreadHandler      *handlers.ThreadHandler
  MessageHandler     *handlers.MessageHandler
  UsageHandler       *handlers.UsageHandler
  MaintenanceHandler *handlers.MaintenanceHandler
  AssistantHandler   *handlers.AssistantHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
  router := gin.Default()
  router.Use(otelgin.Middleware("chatdesk"))

  origins := strings.Split(utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173", nil), ",")
  router.Use(cors.New(cors.Config{
    AllowOrigins:     origins,
    AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
    AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
    AllowCredentials: true,
  }))

// ===============
// || Public    ||
// ===============
  router.GET("/healthcheck", handlers.HealthCheck)
  api := router.Group("/api")
  {
    api.POST("/register", cfg.AuthHandler.Register)
    api.POST("/login", cfg.AuthHandler.Login)
  }

// ===============
// || Protected ||
// ===============
  protected := router.Group("/api")
  protected.Use(cfg.AuthMiddleware.RequireAuth())
  // Auth
  protected.POST("/refresh", cfg.AuthHandler.Refresh)
  protected.POST("/logout", cfg.AuthHandler.Logout)
  // User
  protected.GET("/user", cfg.UserHandler.GetMe)
  // Threads
  protected.POST("/chat/threads", cfg.ThreadHandler.Create)
  protected.GET("/chat/threads", cfg.ThreadHandler.List)
  protected.GET("/chat/threads/stats", cfg.ThreadHandler.Stats)
  protected.GET("/chat/threads/categories", cfg.ThreadHandler.Categories)
  protected.GET("/chat/threads/:id", cfg.ThreadHandler.Get)
  protected.PUT("/chat/threads/:id", cfg.ThreadHandler.Update)
  protected.DELETE("/chat/threads/:id", cfg.ThreadHandler.Delete)
  protected.GET("/chat/threads/:id/messages", cfg.MessageHandler.List)
  // Messages
  protected.POST("/chat/message", cfg.MessageHandler.Send)
  protected.GET("/chat/search", cfg.MessageHandler.Search)
  // Assistant
  protected.GET("/assistant/info", cfg.AssistantHandler.Info)
  // Usage
  protected.GET("/usage", cfg.UsageHandler.Get)
  // Maintenance
  protected.POST("/chat/maintenance", cfg.MaintenanceHandler.Run)
  protected.GET("/chat/maintenance", cfg.MaintenanceHandler.Report)

  return router
}
