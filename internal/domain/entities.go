package domain

// Document is a unit of source text owned by a single tenant scope.
type Document struct {
	OwnerID  string
	SourceID string
	Path     string
	Text     string
}

type EmbeddedChunk struct {
	SourceID  string    `json:"source_id"`
	Index     int       `json:"index"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
}

type ScoredChunk struct {
	SourceID   string  `json:"source_id"`
	Index      int     `json:"index"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}

// Diagnostic records a chunk that exceeds the configured size because no
// separator could shrink it further.
type Diagnostic struct {
	Size    int    `json:"size"`
	Limit   int    `json:"limit"`
	Preview string `json:"preview"`
}

type SchemaInfo struct {
	Version    int    `json:"version"`
	ConfigHash string `json:"config_hash"`
	Dimension  int    `json:"dimension"`
}
