// Package storage holds the persistence gateways the quota ledger saves its
// table through. Gateways move whole tables and hold no business logic.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aidqr/aidqr/internal/quota"
)

// Pinger is implemented by gateways whose backend can be health checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

func encodeRecord(rec quota.Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encoding record %s: %w", rec.ID, err)
	}
	return data, nil
}

func decodeRecord(id string, data []byte) (quota.Record, error) {
	var rec quota.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return quota.Record{}, fmt.Errorf("decoding record %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}
