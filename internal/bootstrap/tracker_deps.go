// Package bootstrap wires configuration, infrastructure and services
// for the api and worker processes.
package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"tracker_server/adapter/out/mongodb"
	"tracker_server/adapter/out/persistence"
	"tracker_server/adapter/out/provider"
	"tracker_server/config"
	"tracker_server/core/port/out"
	"tracker_server/core/service/auth"
	"tracker_server/core/service/ingest"
	"tracker_server/core/service/links"
	"tracker_server/infra/database"
	"tracker_server/internal/stream"
	"tracker_server/pkg/crypto"
	"tracker_server/pkg/logger"
)

// Dependencies holds every shared component of the application.
type Dependencies struct {
	Config  *config.Config
	DB      *pgxpool.Pool
	SQLDB   *sqlx.DB
	Redis   *redis.Client
	MongoDB *mongo.Client

	// Repositories
	CredentialRepo out.CredentialRepository
	MessageRepo    out.MessageRepository
	LinkRepo       out.LinkRepository
	ContentRepo    out.LinkContentRepository
	FilterRepo     out.DomainFilterRepository
	StateStore     out.StateStore

	// Provider
	GmailProvider *provider.GmailAdapter

	// Queue
	LabelQueue *stream.LabelQueue

	// Services
	TokenService     *auth.TokenService
	OAuthService     *auth.OAuthService
	IngestService    *ingest.Service
	LabelSyncService *ingest.LabelSyncService
	LinkFetcher      *links.Fetcher
}

// NewDependencies builds the dependency graph. The returned cleanup
// closes connections in reverse creation order.
func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()

	if cfg.EncryptionKey != "" {
		if err := crypto.Init(cfg.EncryptionKey); err != nil {
			return nil, nil, err
		}
	} else {
		logger.Warn("ENCRYPTION_KEY not set, tokens will be stored in plaintext")
	}

	// Postgres (pgxpool for health checks, sqlx for adapters)
	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, func() { db.Close() })

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })

	// Redis
	redisClient, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		sqlDB.Close()
		db.Close()
		return nil, nil, err
	}
	deps.Redis = redisClient
	cleanups = append(cleanups, func() { redisClient.Close() })

	// MongoDB (optional: crawled page payloads)
	if cfg.MongoDBURL != "" {
		mongoClient, err := mongodb.NewClient(cfg.MongoDBURL, cfg.MongoDBName)
		if err != nil {
			logger.Warn("MongoDB connection failed: %v", err)
		} else {
			deps.MongoDB = mongoClient
			cleanups = append(cleanups, func() {
				_ = mongoClient.Disconnect(context.Background())
			})

			contentAdapter := mongodb.NewLinkContentAdapter(mongoClient.Database(cfg.MongoDBName))
			if err := contentAdapter.EnsureIndexes(context.Background()); err != nil {
				logger.Warn("failed to ensure Mongo indexes: %v", err)
			}
			deps.ContentRepo = contentAdapter
		}
	}

	// Repositories
	deps.CredentialRepo = persistence.NewCredentialAdapter(sqlDB)
	deps.MessageRepo = persistence.NewMessageAdapter(sqlDB)
	deps.LinkRepo = persistence.NewLinkAdapter(sqlDB)
	deps.FilterRepo = persistence.NewDomainFilterAdapter(sqlDB)
	deps.StateStore = persistence.NewRedisStateStore(redisClient, cfg.OAuthStateTTL)

	// Gmail provider
	deps.GmailProvider = provider.NewGmailAdapter(&provider.GmailConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		FetchWorkers: cfg.IngestFetchWorkers,
	})

	// Label sync queue (Redis Stream)
	redisStream := stream.NewRedisStream(redisClient, cfg.LabelSyncGroup)
	deps.LabelQueue = stream.NewLabelQueue(redisStream)

	// Services
	deps.TokenService = auth.NewTokenService(deps.CredentialRepo, deps.GmailProvider).
		WithRefreshTimeout(cfg.TokenRefreshTimeout)
	deps.OAuthService = auth.NewOAuthService(deps.GmailProvider, deps.CredentialRepo, deps.StateStore)
	deps.IngestService = ingest.NewService(ingest.Config{
		Tokens:    deps.TokenService,
		Provider:  deps.GmailProvider,
		Messages:  deps.MessageRepo,
		Links:     deps.LinkRepo,
		Filters:   deps.FilterRepo,
		Queue:     deps.LabelQueue,
		LabelName: cfg.ProcessedLabelName,
	})
	deps.LabelSyncService = ingest.NewLabelSyncService(deps.TokenService, deps.GmailProvider)
	if deps.ContentRepo != nil {
		deps.LinkFetcher = links.NewFetcher(deps.LinkRepo, deps.ContentRepo)
	} else {
		logger.Warn("link crawler disabled: no MongoDB configured")
	}

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	return deps, cleanup, nil
}

// HealthCheck pings the hard dependencies.
func (d *Dependencies) HealthCheck(ctx context.Context) error {
	if err := d.DB.Ping(ctx); err != nil {
		return err
	}
	if d.Redis != nil {
		if err := d.Redis.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	return nil
}
