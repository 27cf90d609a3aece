package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

// Invalidator is notified after an owner's chunks change.
type Invalidator interface {
	Invalidate(ownerID string)
}

// IngestUseCase splits documents, embeds their chunks in one batch per
// document and swaps them into the store.
type IngestUseCase struct {
	splitter     port.Splitter
	embedder     port.Embedder
	store        port.ChunkStore
	logger       *slog.Logger
	invalidators []Invalidator
	workers      int
}

type IngestOption func(*IngestUseCase)

// WithInvalidator registers a cache to flush after each successful write.
func WithInvalidator(inv Invalidator) IngestOption {
	return func(u *IngestUseCase) {
		u.invalidators = append(u.invalidators, inv)
	}
}

// WithWorkers bounds how many documents are ingested concurrently.
func WithWorkers(n int) IngestOption {
	return func(u *IngestUseCase) {
		if n > 0 {
			u.workers = n
		}
	}
}

// NewIngestUseCase creates a new ingest use case.
func NewIngestUseCase(
	splitter port.Splitter,
	embedder port.Embedder,
	store port.ChunkStore,
	logger *slog.Logger,
	opts ...IngestOption,
) *IngestUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	u := &IngestUseCase{
		splitter: splitter,
		embedder: embedder,
		store:    store,
		logger:   logger,
		workers:  1,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// IngestResult contains the results of ingesting one document.
type IngestResult struct {
	OwnerID     string
	SourceID    string
	Path        string
	Chunks      int
	Diagnostics []domain.Diagnostic
}

// Ingest replaces the document's chunks in the store. On any failure nothing
// is written, so a retry with the same source id is safe.
func (u *IngestUseCase) Ingest(ctx context.Context, doc domain.Document) (*IngestResult, error) {
	if doc.OwnerID == "" {
		return nil, domain.ErrOwnerRequired
	}
	if doc.SourceID == "" {
		doc.SourceID = uuid.NewString()
	}

	chunks, diags := u.splitter.SplitWithDiagnostics(doc.Text)
	result := &IngestResult{
		OwnerID:     doc.OwnerID,
		SourceID:    doc.SourceID,
		Path:        doc.Path,
		Chunks:      len(chunks),
		Diagnostics: diags,
	}

	var embedded []domain.EmbeddedChunk
	if len(chunks) > 0 {
		embeddings, err := u.embedder.EmbedBatch(ctx, chunks)
		if err != nil {
			return nil, domain.AsEmbeddingError("batch", err)
		}
		if len(embeddings) != len(chunks) {
			return nil, &domain.EmbeddingError{
				Op:  "batch",
				Err: fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(embeddings)),
			}
		}

		embedded = make([]domain.EmbeddedChunk, len(chunks))
		for i, content := range chunks {
			embedded[i] = domain.EmbeddedChunk{
				SourceID:  doc.SourceID,
				Index:     i,
				Content:   content,
				Embedding: embeddings[i],
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := u.store.ReplaceSource(ctx, doc.OwnerID, doc.SourceID, embedded); err != nil {
		return nil, domain.AsStoreError("replace source", err)
	}

	for _, inv := range u.invalidators {
		inv.Invalidate(doc.OwnerID)
	}

	u.logger.Info("ingested document",
		"owner", doc.OwnerID,
		"source", doc.SourceID,
		"path", doc.Path,
		"chunks", len(chunks),
		"oversized", len(diags),
	)
	return result, nil
}

// FileOutcome is the result of ingesting one file. Err is set when that
// file failed; other files are unaffected.
type FileOutcome struct {
	Path   string
	Result *IngestResult
	Err    error
}

// IngestFiles reads and ingests files concurrently. Per-file failures are
// reported in the outcomes; only cancellation aborts the whole run. progress,
// if set, is called once per file from a worker goroutine.
func (u *IngestUseCase) IngestFiles(
	ctx context.Context,
	ownerID string,
	files []port.FileInfo,
	reader port.FileReader,
	progress func(FileOutcome),
) ([]FileOutcome, error) {
	if ownerID == "" {
		return nil, domain.ErrOwnerRequired
	}

	outcomes := make([]FileOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(u.workers)

	for i, file := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			outcome := u.ingestFile(ctx, ownerID, file.Path, reader)
			outcomes[i] = outcome
			if progress != nil {
				progress(outcome)
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (u *IngestUseCase) ingestFile(ctx context.Context, ownerID, path string, reader port.FileReader) FileOutcome {
	outcome := FileOutcome{Path: path}
	if err := ctx.Err(); err != nil {
		outcome.Err = err
		return outcome
	}

	text, err := reader.ReadFile(path)
	if err != nil {
		outcome.Err = fmt.Errorf("failed to read %s: %w", path, err)
		return outcome
	}

	result, err := u.Ingest(ctx, domain.Document{
		OwnerID:  ownerID,
		SourceID: SourceIDForPath(path),
		Path:     path,
		Text:     text,
	})
	if err != nil {
		u.logger.Warn("failed to ingest file", "path", path, "error", err)
		outcome.Err = fmt.Errorf("failed to ingest %s: %w", path, err)
		return outcome
	}
	outcome.Result = result
	return outcome
}

// SourceIDForPath derives a stable source id from a file path, so that
// re-ingesting a file replaces its previous chunks.
func SourceIDForPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	hash := sha256.Sum256([]byte(filepath.ToSlash(path)))
	return hex.EncodeToString(hash[:8])
}
