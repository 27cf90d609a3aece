package splitter

import (
	"fmt"

	"ragpipe/internal/domain"
)

// Config is an immutable, validated splitter configuration. Build it with
// NewConfig; the zero value is not usable.
type Config struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewConfig validates and builds a Config. An empty separator list selects
// the default preset.
//
// Separators are tried most specific first. A list ending in "" can always
// split down to single characters. A list without "" is accepted: fragments
// the last separator cannot shrink are emitted whole and reported as
// diagnostics. "" anywhere but last is rejected, since the separators after
// it could never be used.
func NewConfig(chunkSize, chunkOverlap int, separators []string) (Config, error) {
	if chunkSize <= 0 {
		return Config{}, &domain.ConfigurationError{
			Field:  "chunk_size",
			Reason: fmt.Sprintf("must be positive, got %d", chunkSize),
		}
	}
	if chunkOverlap < 0 {
		return Config{}, &domain.ConfigurationError{
			Field:  "chunk_overlap",
			Reason: fmt.Sprintf("must not be negative, got %d", chunkOverlap),
		}
	}
	if chunkOverlap >= chunkSize {
		return Config{}, &domain.ConfigurationError{
			Field:  "chunk_overlap",
			Reason: fmt.Sprintf("must be smaller than chunk_size (%d >= %d)", chunkOverlap, chunkSize),
		}
	}
	if len(separators) == 0 {
		separators = DefaultSeparators()
	}
	for i, sep := range separators[:len(separators)-1] {
		if sep == "" {
			return Config{}, &domain.ConfigurationError{
				Field:  "separators",
				Reason: fmt.Sprintf("empty separator at position %d must be last", i),
			}
		}
	}

	seps := make([]string, len(separators))
	copy(seps, separators)

	return Config{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   seps,
	}, nil
}

// NewConfigFromPreset builds a Config using explicit separators when given,
// otherwise the named preset.
func NewConfigFromPreset(chunkSize, chunkOverlap int, preset string, separators []string) (Config, error) {
	if len(separators) == 0 {
		var err error
		separators, err = Preset(preset)
		if err != nil {
			return Config{}, err
		}
	}
	return NewConfig(chunkSize, chunkOverlap, separators)
}

func (c Config) ChunkSize() int {
	return c.chunkSize
}

func (c Config) ChunkOverlap() int {
	return c.chunkOverlap
}

func (c Config) Separators() []string {
	seps := make([]string, len(c.separators))
	copy(seps, c.separators)
	return seps
}

func (c Config) valid() bool {
	return c.chunkSize > 0 && c.chunkOverlap >= 0 && c.chunkOverlap < c.chunkSize
}
