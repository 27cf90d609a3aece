package cli

import (
	"context"
	"fmt"
	"log/slog"

	"ragpipe/config"
	"ragpipe/internal/adapter/store"
	"ragpipe/internal/port"
)

// prepareStore makes sure the store's vectors were produced by the running
// splitter and embedding configuration. A mismatch is an error unless
// rebuild is set, in which case every chunk is dropped first.
func prepareStore(ctx context.Context, s port.SchemaStore, cfg *config.Config, dimension int, rebuild bool, logger *slog.Logger) error {
	if rebuild {
		logger.Info("rebuilding store")
		return store.Rebuild(ctx, s, cfg, dimension)
	}

	result, err := store.CheckMigration(ctx, s, cfg, dimension)
	if err != nil {
		return err
	}
	if result.NeedsRebuild {
		return fmt.Errorf("store needs a rebuild (%s); re-run with --rebuild", result.Reason)
	}
	if result.NeedsMigration {
		logger.Info("initializing store schema", "version", result.NewVersion)
		return store.Migrate(ctx, s, cfg, dimension)
	}
	return nil
}
