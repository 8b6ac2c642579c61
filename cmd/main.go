package main

import (
  "context"
  "errors"
  "fmt"
  "net/http"
  "os"
  "os/signal"
  "syscall"
  "time"

  "golang.org/x/sync/errgroup"

  "github.com/yungbote/chatdesk-backend/internal/db"
  "github.com/yungbote/chatdesk-backend/internal/handlers"
  "github.com/yungbote/chatdesk-backend/internal/logger"
  "github.com/yungbote/chatdesk-backend/internal/middleware"
  "github.com/yungbote/chatdesk-backend/internal/observability"
  "github.com/yungbote/chatdesk-backend/internal/repos"
  "github.com/yungbote/chatdesk-backend/internal/server"
  "github.com/yungbote/chatdesk-backend/internal/services"
  "github.com/yungbote/chatdesk-backend/internal/utils"
)

func main() {
  // Logger
  logMode := os.Getenv("LOG_MODE")
  if logMode == "" {
    logMode = "development"
  }
  log, err := logger.New(logMode)
  if err != nil {
    fmt.Printf("Failed to init logger: %v\n", err)
    os.Exit(1)
  }
  defer log.Sync()

  ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
  defer stop()

  // Tracing
  otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
    ServiceName: utils.GetEnv("OTEL_SERVICE_NAME", "chatdesk", nil),
    Environment: utils.GetEnv("APP_ENV", "development", nil),
    Version:     utils.GetEnv("APP_VERSION", "dev", nil),
  })
  if otelShutdown != nil {
    defer func() {
      shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
      defer cancel()
      _ = otelShutdown(shutdownCtx)
    }()
  }

  // Env
  log.Info("Loading environment variables from main...")
  jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)
  accessTokenTTL := utils.GetEnvAsInt("ACCESS_TOKEN_TTL", 3600, log)
  refreshTokenTTL := utils.GetEnvAsInt("REFRESH_TOKEN_TTL", 86400, log)
  monthlyLimitUSD := utils.GetEnvAsFloat("MONTHLY_COST_LIMIT_USD", 50.0, log)
  pricingPath := utils.GetEnv("PRICING_CONFIG_PATH", "", log)
  autoArchiveDays := utils.GetEnvAsInt("AUTO_ARCHIVE_DAYS", 30, log)
  autoArchiveMinutes := utils.GetEnvAsInt("AUTO_ARCHIVE_INTERVAL_MINUTES", 0, log)

  // Postgres
  postgresService, err := db.NewPostgresService(log)
  if err != nil {
    log.Error("Postgres init failed", "error", err)
    os.Exit(1)
  }
  if err = postgresService.AutoMigrateAll(); err != nil {
    log.Warn("Postgres auto migration failed", "error", err)
  }
  thePG := postgresService.DB()

  // Repos
  log.Info("Setting up Repos from main...")
  userRepo := repos.NewUserRepo(thePG, log)
  userTokenRepo := repos.NewUserTokenRepo(thePG, log)
  threadRepo := repos.NewThreadRepo(thePG, log)
  messageRepo := repos.NewMessageRepo(thePG, log)
  usageRecordRepo := repos.NewUsageRecordRepo(thePG, log)

  // Pricing
  pricing := services.DefaultPricingTable()
  if pricingPath != "" {
    pricing, err = services.LoadPricingTable(pricingPath, log)
    if err != nil {
      log.Error("Could not load pricing config", "path", pricingPath, "error", err)
      os.Exit(1)
    }
  }

  // Services
  log.Info("Setting up Services from main...")
  assistantClient := services.NewOpenAIAssistantClient(log)
  authService := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecretKey, time.Duration(accessTokenTTL)*time.Second, time.Duration(refreshTokenTTL)*time.Second)
  threadService := services.NewThreadService(thePG, log, threadRepo, messageRepo)
  conversationService := services.NewConversationService(log, assistantClient)
  usageService := services.NewUsageService(thePG, log, usageRecordRepo, pricing, monthlyLimitUSD)
  chatService := services.NewChatService(thePG, log, threadService, conversationService, usageService, messageRepo, pricing.DefaultModel)
  maintenanceService := services.NewMaintenanceService(thePG, log, threadService, threadRepo)

  // Handlers
  log.Info("Setting up handlers from main...")
  authHandler := handlers.NewAuthHandler(authService)
  userHandler := handlers.NewUserHandler(userRepo)
  threadHandler := handlers.NewThreadHandler(threadService)
  messageHandler := handlers.NewMessageHandler(chatService)
  usageHandler := handlers.NewUsageHandler(usageService)
  maintenanceHandler := handlers.NewMaintenanceHandler(maintenanceService)
  assistantHandler := handlers.NewAssistantHandler(assistantClient)

  // Middleware
  authMiddleware := middleware.NewAuthMiddleware(log, authService)

  // Router
  log.Info("Setting up router from main...")
  router := server.NewRouter(server.RouterConfig{
    AuthHandler:        authHandler,
    AuthMiddleware:     authMiddleware,
    UserHandler:        userHandler,
    ThreadHandler:      threadHandler,
    MessageHandler:     messageHandler,
    UsageHandler:       usageHandler,
    MaintenanceHandler: maintenanceHandler,
    AssistantHandler:   assistantHandler,
  })

  port := utils.GetEnv("PORT", "8080", log)
  httpServer := &http.Server{
    Addr:    ":" + port,
    Handler: router,
  }

  group, groupCtx := errgroup.WithContext(ctx)
  group.Go(func() error {
    log.Info("Server listening", "port", port)
    if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
      return err
    }
    return nil
  })
  if autoArchiveMinutes > 0 {
    group.Go(func() error {
      maintenanceService.RunLoop(groupCtx, time.Duration(autoArchiveMinutes)*time.Minute, autoArchiveDays)
      return nil
    })
  }
  group.Go(func() error {
    <-groupCtx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    return httpServer.Shutdown(shutdownCtx)
  })

  if err := group.Wait(); err != nil {
    log.Error("Server exited with error", "error", err)
    os.Exit(1)
  }
}
