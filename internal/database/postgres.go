package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidqr/aidqr/internal/config"
)

// ApplicationName is reported to Postgres so ledger sessions show up in
// pg_stat_activity.
const ApplicationName = "aidqr-ledger"

// NewPostgresPool opens the pool that backs the postgres ledger gateway and
// keeps one connection open between saves.
func NewPostgresPool(ctx context.Context, cfg config.DBConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing postgres config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.RuntimeParams["application_name"] = ApplicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres for ledger: %w", err)
	}

	slog.Info("ledger store connected", "driver", "postgres", "host", cfg.Host, "port", cfg.Port, "db", cfg.Name)
	return pool, nil
}
