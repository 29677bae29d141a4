// Package bootstrap wires runtime dependencies from configuration for the
// binaries under cmd/.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/insight-tool/internal/compliance"
	appconfig "github.com/wolfman30/insight-tool/internal/config"
	"github.com/wolfman30/insight-tool/internal/research"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

// Store is the session repository plus its lifecycle hooks. Auditor is nil
// for the in-memory backend.
type Store struct {
	Repo    research.Repository
	Auditor *compliance.AuditService
	Health  func(ctx context.Context) error
	Close   func()
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available; pii cache disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildStore selects the session store named by STORE_BACKEND.
func BuildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.StoreBackend {
	case "", "memory":
		logger.Warn("using in-memory session store; data is lost on restart")
		return &Store{
			Repo:   research.NewInMemoryRepository(),
			Health: func(context.Context) error { return nil },
			Close:  func() {},
		}, nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		logger.Info("using postgres session store with audit trail")
		return &Store{
			Repo:    research.NewPostgresRepository(pool),
			Auditor: compliance.NewAuditService(sqlDB),
			Health:  pool.Ping,
			Close: func() {
				_ = sqlDB.Close()
				pool.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
