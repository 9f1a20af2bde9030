package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/aidqr/aidqr/internal/config"
)

// ClientName is set on every connection so CLIENT LIST shows ledger clients.
const ClientName = "aidqr-ledger"

// NewClient connects to the Redis instance holding the ledger hash and
// verifies the connection with a PING.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:       cfg.Addr(),
		Password:   cfg.Password,
		DB:         cfg.DB,
		ClientName: ClientName,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis for ledger %q: %w", cfg.Key, err)
	}

	slog.Info("ledger store connected", "driver", "redis", "addr", cfg.Addr(), "db", cfg.DB, "key", cfg.Key)
	return client, nil
}
