package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jmcleod/quill/config"
	"github.com/jmcleod/quill/storage"
	bboltstorage "github.com/jmcleod/quill/storage/bbolt"
	"github.com/jmcleod/quill/storage/memory"
	"github.com/jmcleod/quill/storage/postgres"
	"github.com/jmcleod/quill/storage/sqlite"
)

const (
	bboltFile  = "quill.db"
	sqliteFile = "quill.sqlite"
)

// openRepository opens the backend selected by cfg.Storage. The returned
// close function releases it.
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, func() error, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return memory.NewRepository(), func() error { return nil }, nil
	case config.StoragePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres storage: %w", err)
		}
		return repo, repo.Close, nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if cfg.Storage == config.StorageSQLite {
		repo, err := sqlite.Open(ctx, filepath.Join(cfg.DataDir, sqliteFile))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return repo, repo.Close, nil
	}
	// bbolt holds an exclusive file lock; fail fast when a server already has it.
	repo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(cfg.DataDir, bboltFile), &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open bbolt storage: %w", err)
	}
	return repo, repo.Close, nil
}
