package bootstrap

import (
	"strings"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"tracker_server/adapter/in/http"
	"tracker_server/config"
	"tracker_server/infra/middleware"
	"tracker_server/pkg/logger"
)

// NewAPI builds the Fiber application with all routes mounted.
func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	logLevel := logger.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = logger.LevelDebug
	}
	logger.Init(logger.Config{
		Level:     logLevel,
		Component: "tracker-api",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		ReadBufferSize:        16384,
		WriteBufferSize:       16384,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             5 * 1024 * 1024,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// No auth on health or on the OAuth callback (the provider
	// redirects there without our token)
	healthHandler := http.NewHealthHandler(deps.DB, deps.Redis)
	healthHandler.Register(app)

	authHandler := http.NewAuthHandler(deps.OAuthService)
	app.Get("/api/auth/google/callback", authHandler.Callback)

	api := app.Group("/api", middleware.JWTAuth(cfg.JWTSecret))
	authHandler.Register(api)

	messageHandler := http.NewMessageHandler(http.MessageHandlerConfig{
		Ingest:            deps.IngestService,
		Messages:          deps.MessageRepo,
		Links:             deps.LinkRepo,
		Queue:             deps.LabelQueue,
		DefaultDaysBack:   cfg.IngestDaysBack,
		DefaultMaxResults: cfg.IngestMaxResults,
		Keywords:          cfg.IngestQueryKeywords,
		LabelName:         cfg.ProcessedLabelName,
	})
	messageHandler.Register(api)

	filterHandler := http.NewFilterHandler(deps.FilterRepo)
	filterHandler.Register(api)

	return app, cleanup, nil
}
