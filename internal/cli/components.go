package cli

import (
	"fmt"
	"log/slog"
	"os"

	"ragpipe/config"
	"ragpipe/internal/adapter/memstore"
	"ragpipe/internal/adapter/splitter"
	"ragpipe/internal/adapter/sqlstore"
	"ragpipe/internal/adapter/store"
	"ragpipe/internal/port"
)

// chunkStore is what every store driver provides.
type chunkStore interface {
	port.ChunkStore
	port.SchemaStore
}

// openStore opens the configured store. With mustExist set, a missing store
// file is reported instead of silently created.
func openStore(cfg *config.Config, dir string, mustExist bool) (chunkStore, string, error) {
	if cfg.Store.Driver == "memory" {
		return memstore.NewMemoryStore(), ":memory:", nil
	}

	path := cfg.StorePath(dir)
	if mustExist {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, path, fmt.Errorf("no store found at %s. Run 'ragpipe ingest' first", path)
		}
	} else if cfg.Store.Path == "" {
		if err := config.EnsureDataDir(dir); err != nil {
			return nil, path, fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
		}
	}

	switch cfg.Store.Driver {
	case "sqlite":
		st, err := sqlstore.Open(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		return st, path, nil
	default:
		st, err := store.NewBoltChunkStore(path)
		if err != nil {
			return nil, path, fmt.Errorf("failed to open bolt store: %w", err)
		}
		return st, path, nil
	}
}

func newSplitter(cfg config.SplitterConfig, logger *slog.Logger) (*splitter.Recursive, error) {
	scfg, err := splitter.NewConfigFromPreset(cfg.ChunkSize, cfg.ChunkOverlap, cfg.Preset, cfg.Separators)
	if err != nil {
		return nil, err
	}
	return splitter.NewRecursive(scfg, logger)
}
