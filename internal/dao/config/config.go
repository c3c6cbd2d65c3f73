// Package config loads the settings of the DAO demo server from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

// Store backends.
const (
	StoreMemory  = "memory"
	StoreMongoDB = "mongodb"
)

// RedisConfig configures the connection used to relay cache clears between processes.
type RedisConfig struct {
	Enabled         bool   `env:"REDIS_ENABLED" envDefault:"false"`
	Host            string `env:"REDIS_HOST" envDefault:"localhost"`
	Port            string `env:"REDIS_PORT" envDefault:"6379"`
	Password        string `env:"REDIS_PASSWORD"`
	Database        int    `env:"REDIS_DB" envDefault:"0"`
	MaxRetries      int    `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	PoolSize        int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns    int    `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	EnableTLS       bool   `env:"REDIS_ENABLE_TLS" envDefault:"false"`
	ConnMaxIdleTime string `env:"REDIS_CONN_MAX_IDLE_TIME" envDefault:"30m"`
	ConnMaxLifetime string `env:"REDIS_CONN_MAX_LIFETIME" envDefault:"1h"`
	// Channel carries cache clear notifications.
	Channel string `env:"REDIS_CACHE_CHANNEL" envDefault:"dao:cache:clear"`
}

// GetAddr returns host:port.
func (c *RedisConfig) GetAddr() string {
	return c.Host + ":" + c.Port
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host          string `env:"SERVER_HOST" envDefault:"localhost"`
	Port          string `env:"SERVER_PORT" envDefault:"3000"`
	WebSocketPath string `env:"WEBSOCKET_PATH" envDefault:"/ws/v1/listen"`
}

// Addr returns host:port.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecretKey   string        `env:"JWT_SECRET_KEY"`
	JWTIssuer      string        `env:"JWT_ISSUER" envDefault:"firestore-dao"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
}

// Config holds all configuration for the server.
type Config struct {
	Store               string `env:"DAO_STORE" envDefault:"memory"`
	MongoDBURI          string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName        string `env:"DATABASE_NAME" envDefault:"firestore_dao"`
	DocumentsCollection string `env:"DOCUMENTS_COLLECTION" envDefault:"documents"`
	ChangeStreams       bool   `env:"MONGODB_CHANGE_STREAMS" envDefault:"true"`

	Redis  RedisConfig
	Server ServerConfig
	Auth   AuthConfig
}

// LoadConfig loads configuration from environment variables and applies defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load configuration from environment: " + err.Error())
	}
	for name, nested := range map[string]interface{}{"redis": &cfg.Redis, "server": &cfg.Server, "auth": &cfg.Auth} {
		if err := env.Parse(nested); err != nil {
			return nil, fmt.Errorf("failed to load %s configuration from environment: %w", name, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that env tags cannot express.
func (c *Config) Validate() error {
	c.Store = strings.ToLower(strings.TrimSpace(c.Store))
	switch c.Store {
	case StoreMemory:
	case StoreMongoDB:
		if c.MongoDBURI == "" {
			return errors.New("mongodb_uri is required for the mongodb store")
		}
		if c.DatabaseName == "" {
			return errors.New("database_name is required for the mongodb store")
		}
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.Store, StoreMemory, StoreMongoDB)
	}
	if c.Redis.Enabled && c.Redis.Channel == "" {
		return errors.New("redis cache channel must not be empty")
	}
	if c.Auth.JWTSecretKey != "" && len(c.Auth.JWTSecretKey) < 16 {
		return errors.New("jwt_secret_key must be at least 16 characters long")
	}
	return nil
}

// AuthEnabled reports whether requests must carry a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecretKey != ""
}
