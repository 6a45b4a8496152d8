// Package api assembles the fiber application serving the dashboard.
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/pulseboard/backend/internal/analytics"
	"github.com/pulseboard/backend/internal/api/handlers"
	"github.com/pulseboard/backend/internal/assistant"
	"github.com/pulseboard/backend/internal/datasource"
	"github.com/pulseboard/backend/internal/ingestion"
	"github.com/pulseboard/backend/internal/insights"
	"github.com/pulseboard/backend/internal/metrics"
	"github.com/pulseboard/backend/internal/middleware/ratelimit"
	"github.com/pulseboard/backend/internal/middleware/security"
	"github.com/pulseboard/backend/internal/middleware/validation"
	"github.com/pulseboard/backend/internal/reports"
)

const allowHeaders = "Authorization, X-Client-Info, Apikey, Content-Type, X-User-ID"

// Pinger reports whether the row store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Config struct {
	AllowOrigins      string
	RequestsPerMinute int
	MaxMessageLength  int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	BodyLimit         int
	IsDevelopment     bool
	// AccessLog enables the per-request fiber access log.
	AccessLog bool
}

type Deps struct {
	DB        Pinger
	Registry  *datasource.Registry
	Analytics *analytics.Service
	Insights  *insights.Service
	Reports   *reports.Manager
	Processor *ingestion.Processor
	Engine    *assistant.Engine
	Local     *assistant.LocalResponder
}

// App is the configured fiber application plus the resources it owns.
type App struct {
	*fiber.App
	limiter *ratelimit.RateLimiter
}

func NewApp(cfg Config, deps Deps) *App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		BodyLimit:    cfg.BodyLimit,
	})

	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}

	app.Use(recover.New())
	if cfg.AccessLog {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: allowHeaders,
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		ConnectOrigins: []string{cfg.AllowOrigins},
		IsDevelopment:  cfg.IsDevelopment,
	}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RequestsPerMinute,
		Message:              assistant.FallbackMessage,
		KeyFunc:              ratelimit.KeyByIP,
	})

	dataSourceHandler := handlers.NewDataSourceHandler(deps.Registry)
	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics)
	insightsHandler := handlers.NewInsightsHandler(deps.Insights)
	reportsHandler := handlers.NewReportsHandler(deps.Reports)
	ingestHandler := handlers.NewIngestHandler(deps.Processor)
	chatHandler := handlers.NewChatHandler(deps.Engine, deps.Local)
	wsHandler := handlers.NewWebSocketHandler(deps.Engine)

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{
		MaxMessageLength: cfg.MaxMessageLength,
		Fallback:         assistant.FallbackMessage,
	}))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := deps.DB.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	api.Get("/metrics", metrics.MetricsHandler())

	requireUser := handlers.RequireUser()

	chat := api.Group("/chat", limiter.Middleware())
	chat.Post("/", chatHandler.HandleChat)
	chat.Post("/local", chatHandler.HandleLocalChat)
	chat.Get("/history", requireUser, chatHandler.History)
	chat.Get("/export", requireUser, chatHandler.Export)
	chat.Get("/ws", wsHandler.Upgrade, websocket.New(wsHandler.HandleConnection))

	sources := api.Group("/datasources", requireUser)
	sources.Get("/available", dataSourceHandler.ListAvailable)
	sources.Get("/stats", dataSourceHandler.Stats)
	sources.Get("/", dataSourceHandler.ListConnected)
	sources.Post("/:type/toggle", dataSourceHandler.Toggle)
	sources.Post("/:id/refresh", dataSourceHandler.Refresh)

	analyticsGroup := api.Group("/analytics", requireUser)
	analyticsGroup.Get("/summary", analyticsHandler.Summary)
	analyticsGroup.Post("/seed", analyticsHandler.Seed)

	insightsGroup := api.Group("/insights", requireUser)
	insightsGroup.Get("/", insightsHandler.List)
	insightsGroup.Delete("/:id", insightsHandler.Dismiss)

	reportsGroup := api.Group("/reports", requireUser)
	reportsGroup.Get("/templates", reportsHandler.Templates)
	reportsGroup.Get("/stats", reportsHandler.Stats)
	reportsGroup.Get("/", reportsHandler.List)
	reportsGroup.Post("/", reportsHandler.Create)
	reportsGroup.Post("/:id/generate", reportsHandler.Generate)
	reportsGroup.Post("/:id/toggle", reportsHandler.Toggle)
	reportsGroup.Delete("/:id", reportsHandler.Delete)

	ingest := api.Group("/ingest", requireUser)
	ingest.Post("/insights", ingestHandler.Insights)
	ingest.Post("/metrics", ingestHandler.Metrics)

	return &App{App: app, limiter: limiter}
}

// Shutdown stops the server and the limiter's janitor.
func (a *App) Shutdown() error {
	a.limiter.Stop()
	return a.App.Shutdown()
}
