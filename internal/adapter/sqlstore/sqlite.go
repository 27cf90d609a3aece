// Package sqlstore persists embedded chunks in SQLite (pure Go driver) and
// ranks them inside the query using a registered vec_similarity function.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"

	sqlite "modernc.org/sqlite"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id  TEXT    NOT NULL,
	source_id TEXT    NOT NULL,
	idx       INTEGER NOT NULL,
	content   TEXT    NOT NULL,
	embedding BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS chunks_owner_source ON chunks(owner_id, source_id);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

const searchQuery = `
SELECT source_id, idx, content, sim FROM (
	SELECT source_id, idx, content, vec_similarity(embedding, ?) AS sim
	FROM chunks WHERE owner_id = ?
) WHERE sim > ?
ORDER BY sim DESC, source_id, idx
LIMIT ?`

const (
	metaSchema    = "schema"
	metaDimension = "dimension"
)

var registerOnce sync.Once

// registerFunctions makes vec_similarity available to connections opened
// after the call.
func registerFunctions() {
	registerOnce.Do(func() {
		_ = sqlite.RegisterDeterministicScalarFunction("vec_similarity", 2, similarityImpl)
	})
}

func similarityImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("vec_similarity: expected 2 arguments, got %d", len(args))
	}
	a, err := asEmbedding(args[0])
	if err != nil {
		return nil, err
	}
	b, err := asEmbedding(args[1])
	if err != nil {
		return nil, err
	}
	if a == nil || b == nil {
		return nil, nil
	}
	return vector.Similarity(a, b)
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case []byte:
		return vector.DecodeEmbedding(v)
	default:
		return nil, fmt.Errorf("vec_similarity: unsupported argument type %T; want BLOB", arg)
	}
}

type SQLiteChunkStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn. ":memory:" gives a private
// in-memory database.
func Open(dsn string) (*SQLiteChunkStore, error) {
	registerFunctions()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteChunkStore{db: db}, nil
}

func (s *SQLiteChunkStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteChunkStore) Insert(ctx context.Context, ownerID string, chunk domain.EmbeddedChunk) error {
	err := s.withTx(ctx, ownerID, func(tx *sql.Tx) error {
		if err := acceptDimension(ctx, tx, chunk.Embedding); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chunks(owner_id, source_id, idx, content, embedding) VALUES(?, ?, ?, ?, ?)`,
			ownerID, chunk.SourceID, chunk.Index, chunk.Content, vector.EncodeEmbedding(chunk.Embedding))
		return err
	})
	return domain.AsStoreError("insert", err)
}

func (s *SQLiteChunkStore) ReplaceSource(ctx context.Context, ownerID, sourceID string, chunks []domain.EmbeddedChunk) error {
	err := s.withTx(ctx, ownerID, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE owner_id = ? AND source_id = ?`, ownerID, sourceID); err != nil {
			return fmt.Errorf("failed to delete source %s: %w", sourceID, err)
		}
		if len(chunks) == 0 {
			return nil
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks(owner_id, source_id, idx, content, embedding) VALUES(?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range chunks {
			if err := acceptDimension(ctx, tx, c.Embedding); err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, ownerID, sourceID, c.Index, c.Content, vector.EncodeEmbedding(c.Embedding)); err != nil {
				return fmt.Errorf("failed to insert chunk %d: %w", c.Index, err)
			}
		}
		return nil
	})
	return domain.AsStoreError("replace source", err)
}

func (s *SQLiteChunkStore) SimilaritySearch(ctx context.Context, ownerID string, query []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}

	// A query of the wrong length fails inside SQLite with an opaque message.
	dim, err := readDimension(ctx, s.db)
	if err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}
	if dim != 0 && dim != len(query) {
		return nil, domain.AsStoreError("similarity search",
			fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(query)))
	}

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, searchQuery, vector.EncodeEmbedding(query), ownerID, minSimilarity, limit)
	if err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}
	defer rows.Close()

	var results []domain.ScoredChunk
	for rows.Next() {
		var r domain.ScoredChunk
		if err := rows.Scan(&r.SourceID, &r.Index, &r.Content, &r.Similarity); err != nil {
			return nil, domain.AsStoreError("similarity search", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}
	return results, nil
}

func (s *SQLiteChunkStore) Count(ctx context.Context, ownerID string) (int, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return 0, domain.AsStoreError("count", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, domain.AsStoreError("count", err)
	}
	return n, nil
}

func (s *SQLiteChunkStore) Owners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM chunks ORDER BY owner_id`)
	if err != nil {
		return nil, domain.AsStoreError("list owners", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, domain.AsStoreError("list owners", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.AsStoreError("list owners", err)
	}
	return owners, nil
}

func (s *SQLiteChunkStore) GetSchemaInfo(ctx context.Context) (domain.SchemaInfo, error) {
	var info domain.SchemaInfo
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaSchema).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return info, nil
	}
	if err != nil {
		return info, domain.AsStoreError("get schema info", err)
	}
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return domain.SchemaInfo{}, domain.AsStoreError("get schema info", err)
	}
	return info, nil
}

func (s *SQLiteChunkStore) SetSchemaInfo(ctx context.Context, info domain.SchemaInfo) error {
	data, err := json.Marshal(info)
	if err != nil {
		return domain.AsStoreError("set schema info", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		metaSchema, string(data))
	return domain.AsStoreError("set schema info", err)
}

func (s *SQLiteChunkStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.AsStoreError("clear", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return domain.AsStoreError("clear", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM meta WHERE key = ?`, metaDimension); err != nil {
		return domain.AsStoreError("clear", err)
	}
	return domain.AsStoreError("clear", tx.Commit())
}

func (s *SQLiteChunkStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteChunkStore) withTx(ctx context.Context, ownerID string, fn func(tx *sql.Tx) error) error {
	if err := checkScope(ctx, ownerID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readDimension(ctx context.Context, q queryer) (int, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaDimension).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(raw)
}

// acceptDimension records the dimension of the first stored embedding and
// rejects any later embedding of a different length.
func acceptDimension(ctx context.Context, tx *sql.Tx, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrDimensionMismatch)
	}

	dim, err := readDimension(ctx, tx)
	if err != nil {
		return err
	}
	if dim == 0 {
		_, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, metaDimension, strconv.Itoa(len(embedding)))
		return err
	}
	if dim != len(embedding) {
		return fmt.Errorf("%w: expected %d, got %d", domain.ErrDimensionMismatch, dim, len(embedding))
	}
	return nil
}

func checkScope(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if ownerID == "" {
		return domain.ErrOwnerRequired
	}
	return nil
}
