package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestAsEmbeddingErrorWrapsOnce(t *testing.T) {
	cause := errors.New("connection refused")

	err := AsEmbeddingError("embed one", cause)
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected EmbeddingError, got %T", err)
	}
	if embErr.Op != "embed one" {
		t.Errorf("expected op 'embed one', got '%s'", embErr.Op)
	}
	if !errors.Is(err, cause) {
		t.Error("expected wrapped error to unwrap to the cause")
	}

	again := AsEmbeddingError("embed batch", fmt.Errorf("retrieve: %w", err))
	if !errors.As(again, &embErr) || embErr.Op != "embed one" {
		t.Errorf("expected existing EmbeddingError to be kept, got %v", again)
	}
}

func TestAsStoreErrorPreservesCancellation(t *testing.T) {
	err := AsStoreError("similarity search", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled to survive wrapping")
	}
	if AsStoreError("insert", nil) != nil {
		t.Error("expected nil error to stay nil")
	}
}

func TestConfigurationErrorMessage(t *testing.T) {
	err := &ConfigurationError{Field: "chunk_overlap", Reason: "must be smaller than chunk_size"}
	want := "invalid configuration: chunk_overlap: must be smaller than chunk_size"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
