package di

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"firestore-dao/internal/accounts"
	"firestore-dao/internal/dao"
	relay "firestore-dao/internal/dao/adapter/broadcast/redis"
	daohttp "firestore-dao/internal/dao/adapter/http"
	"firestore-dao/internal/dao/adapter/persistence/memory"
	"firestore-dao/internal/dao/adapter/persistence/mongodb"
	"firestore-dao/internal/dao/adapter/security"
	"firestore-dao/internal/dao/config"
	"firestore-dao/internal/dao/domain/repository"
	"firestore-dao/internal/shared/logger"
)

// Container owns the store, the cache relay and the DAOs of the server, and
// releases them in reverse order on Close.
type Container struct {
	mu sync.RWMutex

	Config  *config.Config
	Logger  logger.Logger
	Manager *dao.CacheManager

	Store       repository.DocumentStore
	MongoClient *mongo.Client
	RedisClient *redis.Client
	Relay       *relay.Relay
	Tokens      *security.TokenService

	Orgs  *dao.Dao[*accounts.Org]
	Users *dao.Dao[*accounts.User]
}

// NewContainer creates an empty container. A nil logger uses the default one.
func NewContainer(cfg *config.Config, log logger.Logger) *Container {
	if log == nil {
		log = logger.Default()
	}
	return &Container{
		Config:  cfg,
		Logger:  log,
		Manager: dao.NewCacheManager(log.WithComponent("cache-manager")),
	}
}

// Initialize builds every component in dependency order.
func (c *Container) Initialize(ctx context.Context) error {
	if err := c.InitializeStore(ctx); err != nil {
		return err
	}
	if err := c.InitializeRelay(ctx); err != nil {
		return err
	}
	if err := c.InitializeAuth(); err != nil {
		return err
	}
	return c.InitializeAccounts()
}

// InitializeStore opens the configured document store.
func (c *Container) InitializeStore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.Config.Store {
	case config.StoreMongoDB:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.Config.MongoDBURI))
		if err != nil {
			return fmt.Errorf("failed to connect to MongoDB: %w", err)
		}
		if err := client.Ping(ctx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("failed to ping MongoDB: %w", err)
		}
		opts := []mongodb.Option{mongodb.WithLogger(c.Logger)}
		if !c.Config.ChangeStreams {
			opts = append(opts, mongodb.WithoutChangeStreams())
		}
		store := mongodb.NewStore(client.Database(c.Config.DatabaseName), c.Config.DocumentsCollection, opts...)
		if err := store.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return err
		}
		c.MongoClient = client
		c.Store = store
		c.Logger.Infof("using MongoDB store %s.%s", c.Config.DatabaseName, c.Config.DocumentsCollection)
	default:
		c.Store = memory.NewStore(memory.WithLogger(c.Logger))
		c.Logger.Info("using in-memory store")
	}
	return nil
}

// InitializeRelay starts the Redis cache relay when enabled.
func (c *Container) InitializeRelay(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Config.Redis.Enabled {
		return nil
	}
	client := config.NewRedisClient(&c.Config.Redis)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	r := relay.NewRelay(client, c.Config.Redis.Channel, c.Manager, c.Logger)
	if err := r.Start(context.Background()); err != nil {
		_ = client.Close()
		return err
	}
	c.RedisClient = client
	c.Relay = r
	return nil
}

// InitializeAuth creates the token service when a secret is configured.
func (c *Container) InitializeAuth() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.Config.AuthEnabled() {
		c.Logger.Warn("JWT_SECRET_KEY not set, API is not authenticated")
		return nil
	}
	tokens, err := security.NewTokenService(c.Config.Auth.JWTSecretKey, c.Config.Auth.JWTIssuer, c.Config.Auth.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}
	c.Tokens = tokens
	return nil
}

// InitializeAccounts creates the DAOs of the accounts collections.
func (c *Container) InitializeAccounts() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Store == nil {
		return fmt.Errorf("store must be initialized before the accounts DAOs")
	}
	opts := []dao.Option{dao.WithCacheManager(c.Manager), dao.WithLogger(c.Logger)}
	c.Orgs = accounts.NewOrgDao(c.Store, opts...)
	c.Users = accounts.NewUserDao(c.Store, opts...)
	return nil
}

// Clearer clears caches across processes when the relay runs, locally otherwise.
func (c *Container) Clearer() daohttp.CacheClearer {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Relay != nil {
		return c.Relay
	}
	return daohttp.LocalClearer{Manager: c.Manager}
}

// RegisterRoutes mounts the REST API under /api/v1 and the live lists under the
// configured websocket path.
func (c *Container) RegisterRoutes(app *fiber.App) {
	app.Use(daohttp.RequestID(), daohttp.RequestContext())

	var protect []fiber.Handler
	if c.Tokens != nil {
		protect = append(protect, daohttp.NewAuthMiddleware(c.Tokens).Protect())
	}

	api := app.Group("/api/v1", protect...)
	daohttp.NewSessionHandler(c.Clearer(), c.Logger).RegisterRoutes(api)
	daohttp.NewDocumentHandler(c.Orgs, c.Logger, accounts.OrgRequired...).RegisterRoutes(api)
	daohttp.NewDocumentHandler(c.Users, c.Logger, accounts.UserRequired...).RegisterRoutes(api)

	ws := app.Group(c.Config.Server.WebSocketPath, protect...)
	daohttp.NewWebSocketHandler(c.Orgs, c.Logger).RegisterRoutes(ws, "")
	daohttp.NewWebSocketHandler(c.Users, c.Logger).RegisterRoutes(ws, "")
}

// HealthCheck pings the external services in use.
func (c *Container) HealthCheck(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.MongoClient != nil {
		if err := c.MongoClient.Ping(ctx, nil); err != nil {
			return fmt.Errorf("MongoDB health check failed: %w", err)
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("Redis health check failed: %w", err)
		}
	}
	return nil
}

// Cleanup releases every component in reverse order of initialization.
func (c *Container) Cleanup(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if c.Users != nil {
		c.Users.Close()
		c.Users = nil
	}
	if c.Orgs != nil {
		c.Orgs.Close()
		c.Orgs = nil
	}
	if c.Relay != nil {
		c.Relay.Stop()
		c.Relay = nil
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
		c.RedisClient = nil
	}
	if c.MongoClient != nil {
		if err := c.MongoClient.Disconnect(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to disconnect MongoDB: %w", err))
		}
		c.MongoClient = nil
	}
	c.Store = nil

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}

// Close gracefully shuts down all services in the container with timeout
func (c *Container) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return c.Cleanup(ctx)
}
