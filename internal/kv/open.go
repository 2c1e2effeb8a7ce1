package kv

import (
	"context"
	"fmt"

	"detailcrm/internal/config"
	"detailcrm/internal/infra/kv/memory"
	"detailcrm/internal/infra/kv/postgres"
	"detailcrm/internal/infra/kv/redis"
	"detailcrm/internal/infra/kv/sqlite"
	"detailcrm/pkg/domain"
)

// OpenDriver constructs the durable driver selected by cfg.StorageDriver.
func OpenDriver(ctx context.Context, cfg config.Config) (domain.KVStore, error) {
	switch domain.KVDriver(cfg.StorageDriver) {
	case domain.KVMemory:
		return memory.NewStore(), nil
	case domain.KVSQLite, "":
		return sqlite.NewStore(cfg.SQLitePath)
	case domain.KVPostgres:
		return postgres.NewStore(ctx, cfg.PostgresDSN)
	case domain.KVRedis:
		return redis.NewStore(ctx, redis.Options{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Namespace: cfg.RedisNamespace,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.StorageDriver)
	}
}

// Open constructs the selected driver and wraps it in a Store.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Store, error) {
	driver, err := OpenDriver(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StorageDriver, err)
	}
	return New(driver, opts...), nil
}
