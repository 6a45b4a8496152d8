package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/pulseboard/backend/internal/analytics"
	"github.com/pulseboard/backend/internal/api"
	"github.com/pulseboard/backend/internal/assistant"
	"github.com/pulseboard/backend/internal/cache/redis"
	"github.com/pulseboard/backend/internal/datasource"
	"github.com/pulseboard/backend/internal/ingestion"
	"github.com/pulseboard/backend/internal/insights"
	"github.com/pulseboard/backend/internal/llm"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/reports"
	"github.com/pulseboard/backend/internal/storage/sqlite"
	"github.com/pulseboard/backend/pkg/config"
	appLogger "github.com/pulseboard/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Pulseboard API Server")

	metrics.Init()

	if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
		appLogger.Fatal("Failed to create data directory", zap.Error(err))
	}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	var cache analytics.Cache
	if cfg.Redis.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		redisClient, err := redis.NewClient(ctx, cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			appLogger.Warn("Redis unavailable, serving analytics without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			cache = redisClient
		}
	}

	completer, err := llm.NewCompleter(llm.Config{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})
	if err != nil {
		appLogger.Fatal("Failed to create LLM client", zap.Error(err))
	}
	if cfg.LLM.APIKey == "" {
		appLogger.Warn("LLM API key is not set, grounded chat requests will fail")
	}

	analyticsService := analytics.NewService(sqliteClient, analytics.Config{
		Cache:    cache,
		CacheTTL: time.Duration(cfg.Redis.SummaryTTLSec) * time.Second,
	})
	registry := datasource.NewRegistry(sqliteClient, datasource.Config{
		SyncDelay:   time.Duration(cfg.Sync.DelayMs) * time.Millisecond,
		Invalidator: analyticsService,
	})
	processor := ingestion.NewProcessor(sqliteClient, sqliteClient, analyticsService)
	engine := assistant.NewEngine(sqliteClient, completer, assistant.Config{
		Temperature:      cfg.LLM.Temperature,
		MaxTokens:        cfg.LLM.MaxTokens,
		MaxMessageLength: cfg.Chat.MaxMessageLength,
		StrictGrounding:  cfg.Chat.StrictGrounding,
	})

	app := api.NewApp(api.Config{
		AllowOrigins:      cfg.CORS.AllowOrigins,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		MaxMessageLength:  cfg.Chat.MaxMessageLength,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:         cfg.Server.BodyLimit,
		IsDevelopment:     cfg.Logging.Level == "debug",
		AccessLog:         true,
	}, api.Deps{
		DB:        sqliteClient,
		Registry:  registry,
		Analytics: analyticsService,
		Insights:  insights.NewService(sqliteClient, nil),
		Reports:   reports.NewManager(sqliteClient, nil),
		Processor: processor,
		Engine:    engine,
		Local:     assistant.NewLocalResponder(cfg.Chat.LocalSeed),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.Shutdown(); err != nil {
		appLogger.Error("Server shutdown failed", zap.Error(err))
	}
	registry.Close()
	appLogger.Info("Server stopped")
}
