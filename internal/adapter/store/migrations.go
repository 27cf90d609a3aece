package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"ragpipe/config"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// GetSchemaInfo retrieves the current schema info from the database.
// A fresh database reports the zero SchemaInfo.
func (s *BoltChunkStore) GetSchemaInfo(ctx context.Context) (domain.SchemaInfo, error) {
	var info domain.SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get(keySchema)
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &info)
	})
	if err != nil {
		return domain.SchemaInfo{}, domain.AsStoreError("get schema info", err)
	}
	return info, nil
}

// SetSchemaInfo stores the schema info in the database.
func (s *BoltChunkStore) SetSchemaInfo(ctx context.Context, info domain.SchemaInfo) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(info)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put(keySchema, data)
	})
	return domain.AsStoreError("set schema info", err)
}

// Clear removes every owner's chunks and forgets the stored dimension (for
// rebuild). Schema info is kept until the caller overwrites it.
func (s *BoltChunkStore) Clear(ctx context.Context) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketOwners); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketOwners); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete(keyDimension)
	})
	return domain.AsStoreError("clear", err)
}

// ComputeConfigHash computes a hash of index-relevant configuration.
// Changes to this hash indicate the store should be rebuilt.
func ComputeConfigHash(cfg *config.Config) string {
	relevant := struct {
		ChunkSize    int      `json:"chunk_size"`
		ChunkOverlap int      `json:"chunk_overlap"`
		Preset       string   `json:"preset"`
		Separators   []string `json:"separators"`
		EmbProvider  string   `json:"emb_provider"`
		EmbModel     string   `json:"emb_model"`
		EmbDimension int      `json:"emb_dimension"`
	}{
		ChunkSize:    cfg.Splitter.ChunkSize,
		ChunkOverlap: cfg.Splitter.ChunkOverlap,
		Preset:       cfg.Splitter.Preset,
		Separators:   cfg.Splitter.Separators,
		EmbProvider:  cfg.Embedding.Provider,
		EmbModel:     cfg.Embedding.Model,
		EmbDimension: cfg.Embedding.Dimension,
	}

	data, _ := json.Marshal(relevant)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

// MigrationResult describes the result of a migration check.
type MigrationResult struct {
	NeedsMigration bool
	NeedsRebuild   bool
	OldVersion     int
	NewVersion     int
	Reason         string
}

// CheckMigration compares the persisted schema info with the running
// configuration and embedder dimension.
func CheckMigration(ctx context.Context, s port.SchemaStore, cfg *config.Config, dimension int) (*MigrationResult, error) {
	info, err := s.GetSchemaInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	result := &MigrationResult{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		result.NeedsMigration = true
		result.Reason = "initializing schema version"
		return result, nil
	case info.Version > CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("store created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return result, nil
	case info.Version < CurrentSchemaVersion:
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("schema upgrade from v%d to v%d requires rebuild", info.Version, CurrentSchemaVersion)
		return result, nil
	}

	if info.ConfigHash != "" && info.ConfigHash != ComputeConfigHash(cfg) {
		result.NeedsRebuild = true
		result.Reason = "splitter or embedding configuration changed"
		return result, nil
	}
	if info.Dimension != 0 && dimension != 0 && info.Dimension != dimension {
		result.NeedsRebuild = true
		result.Reason = fmt.Sprintf("embedding dimension changed (%d -> %d)", info.Dimension, dimension)
	}

	return result, nil
}

// Migrate records the current schema info.
func Migrate(ctx context.Context, s port.SchemaStore, cfg *config.Config, dimension int) error {
	return s.SetSchemaInfo(ctx, domain.SchemaInfo{
		Version:    CurrentSchemaVersion,
		ConfigHash: ComputeConfigHash(cfg),
		Dimension:  dimension,
	})
}

// Rebuild clears every chunk and records the current schema info.
func Rebuild(ctx context.Context, s port.SchemaStore, cfg *config.Config, dimension int) error {
	if err := s.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return Migrate(ctx, s, cfg, dimension)
}
