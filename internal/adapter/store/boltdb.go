package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"ragpipe/internal/adapter/vector"
	"ragpipe/internal/domain"
)

// Layout:
//
//	owners/<owner id>/<source id>/<seq> -> storedChunk (JSON)
//	meta/schema                          -> domain.SchemaInfo (JSON)
//	meta/dimension                       -> uint64 big endian
var (
	bucketOwners = []byte("owners")
	bucketMeta   = []byte("meta")
	keySchema    = []byte("schema")
	keyDimension = []byte("dimension")
)

type BoltChunkStore struct {
	db *bbolt.DB
}

type storedChunk struct {
	Index     int       `json:"i"`
	Content   string    `json:"c"`
	Embedding []float32 `json:"v"`
}

func NewBoltChunkStore(path string) (*BoltChunkStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketOwners, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltChunkStore{db: db}, nil
}

func (s *BoltChunkStore) DB() *bbolt.DB {
	return s.db
}

func (s *BoltChunkStore) Insert(ctx context.Context, ownerID string, chunk domain.EmbeddedChunk) error {
	if err := checkScope(ctx, ownerID); err != nil {
		return domain.AsStoreError("insert", err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if err := acceptDimension(tx, chunk.Embedding); err != nil {
			return err
		}
		src, err := sourceBucket(tx, ownerID, chunk.SourceID)
		if err != nil {
			return err
		}
		return putChunk(src, chunk)
	})
	return domain.AsStoreError("insert", err)
}

func (s *BoltChunkStore) ReplaceSource(ctx context.Context, ownerID, sourceID string, chunks []domain.EmbeddedChunk) error {
	if err := checkScope(ctx, ownerID); err != nil {
		return domain.AsStoreError("replace source", err)
	}

	// The whole swap runs in one transaction; any error rolls it back.
	err := s.db.Update(func(tx *bbolt.Tx) error {
		owner, err := tx.Bucket(bucketOwners).CreateBucketIfNotExists([]byte(ownerID))
		if err != nil {
			return fmt.Errorf("failed to create owner bucket: %w", err)
		}
		if owner.Bucket([]byte(sourceID)) != nil {
			if err := owner.DeleteBucket([]byte(sourceID)); err != nil {
				return fmt.Errorf("failed to drop source %s: %w", sourceID, err)
			}
		}
		if len(chunks) == 0 {
			if empty(owner) {
				return tx.Bucket(bucketOwners).DeleteBucket([]byte(ownerID))
			}
			return nil
		}

		src, err := owner.CreateBucket([]byte(sourceID))
		if err != nil {
			return fmt.Errorf("failed to create source bucket: %w", err)
		}
		for _, c := range chunks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := acceptDimension(tx, c.Embedding); err != nil {
				return err
			}
			if err := putChunk(src, c); err != nil {
				return err
			}
		}
		return nil
	})
	return domain.AsStoreError("replace source", err)
}

func (s *BoltChunkStore) SimilaritySearch(ctx context.Context, ownerID string, query []float32, minSimilarity float64, limit int) ([]domain.ScoredChunk, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}

	var scored []domain.ScoredChunk
	err := s.db.View(func(tx *bbolt.Tx) error {
		owner := tx.Bucket(bucketOwners).Bucket([]byte(ownerID))
		if owner == nil {
			return nil
		}
		return forEachChunk(owner, func(sourceID string, c storedChunk) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sim, err := vector.Similarity(c.Embedding, query)
			if err != nil {
				return err
			}
			if sim > minSimilarity {
				scored = append(scored, domain.ScoredChunk{
					SourceID:   sourceID,
					Index:      c.Index,
					Content:    c.Content,
					Similarity: sim,
				})
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.AsStoreError("similarity search", err)
	}

	return vector.Rank(scored, minSimilarity, limit), nil
}

func (s *BoltChunkStore) Count(ctx context.Context, ownerID string) (int, error) {
	if err := checkScope(ctx, ownerID); err != nil {
		return 0, domain.AsStoreError("count", err)
	}

	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		owner := tx.Bucket(bucketOwners).Bucket([]byte(ownerID))
		if owner == nil {
			return nil
		}
		return owner.ForEach(func(k, v []byte) error {
			if v != nil {
				return nil
			}
			n += owner.Bucket(k).Stats().KeyN
			return nil
		})
	})
	if err != nil {
		return 0, domain.AsStoreError("count", err)
	}
	return n, nil
}

// Owners lists every owner that has at least one source.
func (s *BoltChunkStore) Owners(ctx context.Context) ([]string, error) {
	var owners []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketOwners).ForEach(func(k, v []byte) error {
			if v == nil && !empty(tx.Bucket(bucketOwners).Bucket(k)) {
				owners = append(owners, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return nil, domain.AsStoreError("list owners", err)
	}
	return owners, nil
}

func empty(b *bbolt.Bucket) bool {
	k, _ := b.Cursor().First()
	return k == nil
}

func (s *BoltChunkStore) Close() error {
	return s.db.Close()
}

func sourceBucket(tx *bbolt.Tx, ownerID, sourceID string) (*bbolt.Bucket, error) {
	owner, err := tx.Bucket(bucketOwners).CreateBucketIfNotExists([]byte(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to create owner bucket: %w", err)
	}
	src, err := owner.CreateBucketIfNotExists([]byte(sourceID))
	if err != nil {
		return nil, fmt.Errorf("failed to create source bucket: %w", err)
	}
	return src, nil
}

func putChunk(src *bbolt.Bucket, c domain.EmbeddedChunk) error {
	seq, err := src.NextSequence()
	if err != nil {
		return err
	}
	data, err := json.Marshal(storedChunk{
		Index:     c.Index,
		Content:   c.Content,
		Embedding: c.Embedding,
	})
	if err != nil {
		return err
	}
	return src.Put(itob(seq), data)
}

func forEachChunk(owner *bbolt.Bucket, fn func(sourceID string, c storedChunk) error) error {
	return owner.ForEach(func(k, v []byte) error {
		if v != nil {
			return nil
		}
		sourceID := string(k)
		return owner.Bucket(k).ForEach(func(_, data []byte) error {
			var c storedChunk
			if err := json.Unmarshal(data, &c); err != nil {
				return fmt.Errorf("failed to decode chunk in source %s: %w", sourceID, err)
			}
			return fn(sourceID, c)
		})
	})
}

// acceptDimension records the dimension of the first stored embedding and
// rejects any later embedding of a different length.
func acceptDimension(tx *bbolt.Tx, embedding []float32) error {
	if len(embedding) == 0 {
		return fmt.Errorf("%w: empty embedding", domain.ErrDimensionMismatch)
	}

	meta := tx.Bucket(bucketMeta)
	stored := meta.Get(keyDimension)
	if stored == nil {
		return meta.Put(keyDimension, itob(uint64(len(embedding))))
	}
	if dim := int(binary.BigEndian.Uint64(stored)); dim != len(embedding) {
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

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
