package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrOwnerRequired is returned when an operation is attempted without an
	// owner scope. Unscoped reads would leak chunks across tenants.
	ErrOwnerRequired = errors.New("owner id is required")

	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// ConfigurationError reports an invalid configuration value. It is only
// produced at construction time.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// EmbeddingError wraps a failed call to an embedding backend.
type EmbeddingError struct {
	Op  string
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding %s failed: %v", e.Op, e.Err)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Err
}

// StoreError wraps a failed read or write against a chunk store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("chunk store %s failed: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// AsEmbeddingError wraps err in an EmbeddingError unless it already is one.
func AsEmbeddingError(op string, err error) error {
	if err == nil {
		return nil
	}
	var embErr *EmbeddingError
	if errors.As(err, &embErr) {
		return err
	}
	return &EmbeddingError{Op: op, Err: err}
}

// AsStoreError wraps err in a StoreError unless it already is one.
func AsStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
