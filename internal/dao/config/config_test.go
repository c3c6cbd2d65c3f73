package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "documents", cfg.DocumentsCollection)
	assert.Equal(t, "localhost:3000", cfg.Server.Addr())
	assert.Equal(t, "localhost:6379", cfg.Redis.GetAddr())
	assert.Equal(t, "dao:cache:clear", cfg.Redis.Channel)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenTTL)
	assert.False(t, cfg.AuthEnabled())
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	t.Setenv("DAO_STORE", " MongoDB ")
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("DATABASE_NAME", "accounts")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("JWT_SECRET_KEY", "a-secret-of-sufficient-length")
	t.Setenv("SERVER_PORT", "8080")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreMongoDB, cfg.Store)
	assert.Equal(t, "mongodb://db:27017", cfg.MongoDBURI)
	assert.Equal(t, "accounts", cfg.DatabaseName)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6379", cfg.Redis.GetAddr())
	assert.Equal(t, "localhost:8080", cfg.Server.Addr())
	assert.True(t, cfg.AuthEnabled())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "memory", mutate: func(c *Config) {}},
		{name: "unknown store", mutate: func(c *Config) { c.Store = "sqlite" }, wantErr: true},
		{name: "mongodb without uri", mutate: func(c *Config) { c.Store = StoreMongoDB; c.MongoDBURI = "" }, wantErr: true},
		{name: "redis without channel", mutate: func(c *Config) { c.Redis.Enabled = true; c.Redis.Channel = "" }, wantErr: true},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecretKey = "short" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{
				Store:        StoreMemory,
				MongoDBURI:   "mongodb://localhost:27017",
				DatabaseName: "db",
				Redis:        RedisConfig{Channel: "c"},
			}
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := &RedisConfig{Host: "cache", Port: "6380", Database: 2, PoolSize: 5, EnableTLS: true}
	opts := redisOptions(cfg, time.Minute, time.Hour)

	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 5, opts.PoolSize)
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "cache", opts.TLSConfig.ServerName)
	assert.Equal(t, time.Minute, opts.ConnMaxIdleTime)

	client := NewRedisClient(&RedisConfig{Host: "localhost", Port: "6379", ConnMaxIdleTime: "bogus"})
	defer client.Close()
	assert.Equal(t, 30*time.Minute, client.Options().ConnMaxIdleTime)
}
