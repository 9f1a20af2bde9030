package storage

import (
	"context"
	"fmt"

	"github.com/aidqr/aidqr/internal/config"
	"github.com/aidqr/aidqr/internal/database"
	"github.com/aidqr/aidqr/internal/quota"
	iredis "github.com/aidqr/aidqr/internal/redis"
)

// Backend is an opened gateway together with its connection cleanup.
type Backend struct {
	quota.Gateway
	Driver string
	close  func()
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	if b.close != nil {
		b.close()
	}
}

// Ping checks the backend when the gateway supports it.
func (b *Backend) Ping(ctx context.Context) error {
	if p, ok := b.Gateway.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Open connects the gateway selected by cfg.Storage.Driver. For postgres it
// also applies pending migrations.
func Open(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		return &Backend{Gateway: NewFileGateway(cfg.Storage.FilePath), Driver: config.DriverFile}, nil

	case config.DriverRedis:
		client, err := iredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		return &Backend{
			Gateway: NewRedisGateway(client, cfg.Redis.Key),
			Driver:  config.DriverRedis,
			close:   func() { client.Close() },
		}, nil

	case config.DriverPostgres:
		if err := database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath); err != nil {
			return nil, fmt.Errorf("migrating postgres: %w", err)
		}
		pool, err := database.NewPostgresPool(ctx, cfg.DB)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return &Backend{
			Gateway: NewPostgresGateway(pool),
			Driver:  config.DriverPostgres,
			close:   pool.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
