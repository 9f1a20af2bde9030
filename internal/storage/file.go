package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/aidqr/aidqr/internal/quota"
)

// FileGateway keeps the table as one indented JSON document on disk.
type FileGateway struct {
	path string
	mu   sync.Mutex
}

// NewFileGateway creates a gateway for the JSON file at path.
func NewFileGateway(path string) *FileGateway {
	return &FileGateway{path: path}
}

// Load reads the table. A missing or empty file is an empty table.
func (g *FileGateway) Load(_ context.Context) (quota.Table, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	data, err := os.ReadFile(g.path)
	if errors.Is(err, fs.ErrNotExist) {
		return quota.Table{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", g.path, err)
	}
	if len(data) == 0 {
		return quota.Table{}, nil
	}

	table := quota.Table{}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", g.path, err)
	}
	for id, rec := range table {
		if rec.ID == "" {
			rec.ID = id
			table[id] = rec
		}
	}
	return table, nil
}

// Save writes the table to a temporary file and renames it over the old one,
// so readers never see a partial document.
func (g *FileGateway) Save(_ context.Context, table quota.Table) error {
	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding table: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	dir := filepath.Dir(g.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(g.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, g.path); err != nil {
		return fmt.Errorf("replacing %s: %w", g.path, err)
	}
	return nil
}

// Ping checks that the directory holding the file exists.
func (g *FileGateway) Ping(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(g.path))
	if err != nil {
		return fmt.Errorf("checking data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(g.path))
	}
	return nil
}
