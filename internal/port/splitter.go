package port

import "ragpipe/internal/domain"

type Splitter interface {
	Split(text string) []string

	SplitWithDiagnostics(text string) ([]string, []domain.Diagnostic)
}
