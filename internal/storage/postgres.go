package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aidqr/aidqr/internal/quota"
)

// PostgresGateway stores one quota_records row per user with the record as
// JSONB.
type PostgresGateway struct {
	pool *pgxpool.Pool
}

// NewPostgresGateway creates a gateway on pool. The quota_records table must
// exist; see migrations/.
func NewPostgresGateway(pool *pgxpool.Pool) *PostgresGateway {
	return &PostgresGateway{pool: pool}
}

func (g *PostgresGateway) Load(ctx context.Context) (quota.Table, error) {
	rows, err := g.pool.Query(ctx, `SELECT id, record FROM quota_records`)
	if err != nil {
		return nil, fmt.Errorf("querying quota records: %w", err)
	}
	defer rows.Close()

	table := quota.Table{}
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scanning quota record: %w", err)
		}
		rec, err := decodeRecord(id, raw)
		if err != nil {
			return nil, err
		}
		table[id] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating quota records: %w", err)
	}
	return table, nil
}

// Save upserts every record and removes rows absent from table, in one
// transaction.
func (g *PostgresGateway) Save(ctx context.Context, table quota.Table) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(table))
	batch := &pgx.Batch{}
	for id, rec := range table {
		data, err := encodeRecord(rec)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		batch.Queue(
			`INSERT INTO quota_records (id, record, updated_at) VALUES ($1, $2, NOW())
			 ON CONFLICT (id) DO UPDATE SET record = EXCLUDED.record, updated_at = NOW()
			 WHERE quota_records.record IS DISTINCT FROM EXCLUDED.record`,
			id, string(data))
	}
	batch.Queue(`DELETE FROM quota_records WHERE NOT (id = ANY($1))`, ids)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upserting quota records: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing quota records: %w", err)
	}
	return nil
}

func (g *PostgresGateway) Ping(ctx context.Context) error {
	return g.pool.Ping(ctx)
}
