package splitter

import (
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"ragpipe/internal/domain"
)

const previewRunes = 40

// Recursive splits text by descending through an ordered separator list,
// merging small fragments back together up to the configured chunk size.
type Recursive struct {
	cfg    Config
	logger *slog.Logger
}

func NewRecursive(cfg Config, logger *slog.Logger) (*Recursive, error) {
	if !cfg.valid() {
		return nil, errors.New("splitter config must be built with NewConfig")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recursive{cfg: cfg, logger: logger}, nil
}

func (r *Recursive) Config() Config {
	return r.cfg
}

// Split returns the chunks of text. Oversized chunks are logged.
func (r *Recursive) Split(text string) []string {
	chunks, _ := r.SplitWithDiagnostics(text)
	return chunks
}

func (r *Recursive) SplitWithDiagnostics(text string) ([]string, []domain.Diagnostic) {
	chunks, diags := Split(text, r.cfg)
	for _, d := range diags {
		r.logger.Warn("created chunk larger than configured size",
			"size", d.Size,
			"limit", d.Limit,
			"preview", d.Preview,
		)
	}
	return chunks, diags
}

// Split partitions text into chunks according to cfg. It is a pure function:
// the same input always yields the same output, and it never fails on data.
func Split(text string, cfg Config) ([]string, []domain.Diagnostic) {
	if text == "" {
		return nil, nil
	}
	return splitText(text, cfg.separators, cfg)
}

func splitText(text string, separators []string, cfg Config) ([]string, []domain.Diagnostic) {
	separator, next := chooseSeparator(text, separators)
	fragments := splitOn(text, separator)

	var (
		chunks []string
		diags  []domain.Diagnostic
		good   []string
	)

	for _, fragment := range fragments {
		if length(fragment) < cfg.chunkSize {
			good = append(good, fragment)
			continue
		}

		if len(good) > 0 {
			merged, mergeDiags := merge(good, separator, cfg.chunkSize, cfg.chunkOverlap)
			chunks = append(chunks, merged...)
			diags = append(diags, mergeDiags...)
			good = nil
		}

		if len(next) == 0 {
			chunks = append(chunks, fragment)
			if n := length(fragment); n > cfg.chunkSize {
				diags = append(diags, newDiagnostic(fragment, n, cfg.chunkSize))
			}
			continue
		}

		sub, subDiags := splitText(fragment, next, cfg)
		chunks = append(chunks, sub...)
		diags = append(diags, subDiags...)
	}

	if len(good) > 0 {
		merged, mergeDiags := merge(good, separator, cfg.chunkSize, cfg.chunkOverlap)
		chunks = append(chunks, merged...)
		diags = append(diags, mergeDiags...)
	}

	return chunks, diags
}

// chooseSeparator picks the first separator that is empty or present in text
// and returns it with the separators that follow it. Choosing the empty
// separator ends the descent. When nothing matches, the last separator is
// used with nothing after it.
func chooseSeparator(text string, separators []string) (string, []string) {
	for i, sep := range separators {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, separators[i+1:]
		}
	}
	if len(separators) == 0 {
		return "", nil
	}
	return separators[len(separators)-1], nil
}

// splitOn splits literally on separator, or into characters when it is
// empty, and drops empty fragments.
func splitOn(text, separator string) []string {
	var parts []string
	if separator == "" {
		parts = make([]string, 0, utf8.RuneCountInString(text))
		for i := 0; i < len(text); {
			_, size := utf8.DecodeRuneInString(text[i:])
			parts = append(parts, text[i:i+size])
			i += size
		}
		return parts
	}

	for _, part := range strings.Split(text, separator) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

// merge greedily packs fragments into chunks of at most chunkSize, carrying
// up to chunkOverlap worth of trailing fragments into the next chunk.
func merge(fragments []string, separator string, chunkSize, chunkOverlap int) ([]string, []domain.Diagnostic) {
	sepLen := length(separator)

	var (
		chunks []string
		diags  []domain.Diagnostic
		window []string
		total  int
	)

	emit := func() {
		chunk, ok := join(window, separator)
		if !ok {
			return
		}
		chunks = append(chunks, chunk)
		if n := length(chunk); n > chunkSize {
			diags = append(diags, newDiagnostic(chunk, n, chunkSize))
		}
	}

	for _, fragment := range fragments {
		n := length(fragment)

		if total+n+len(window)*sepLen > chunkSize && len(window) > 0 {
			emit()
			for total > chunkOverlap || (total+n+len(window)*sepLen > chunkSize && total > 0) {
				total -= length(window[0])
				window = window[1:]
			}
		}

		window = append(window, fragment)
		total += n
	}

	emit()
	return chunks, diags
}

func join(fragments []string, separator string) (string, bool) {
	text := strings.TrimSpace(strings.Join(fragments, separator))
	if text == "" {
		return "", false
	}
	return text, true
}

func length(s string) int {
	return utf8.RuneCountInString(s)
}

func newDiagnostic(chunk string, size, limit int) domain.Diagnostic {
	preview := chunk
	if size > previewRunes {
		runes := []rune(chunk)
		preview = string(runes[:previewRunes]) + "..."
	}
	return domain.Diagnostic{Size: size, Limit: limit, Preview: preview}
}
