package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

const testConfig = `splitter:
  chunk_size: 80
  chunk_overlap: 10
  preset: default
embedding:
  provider: mock
  dimension: 64
store:
  driver: bolt
retrieve:
  top_k: 3
  min_similarity: 0.5
  cache_size: 10
  cache_ttl_secs: 60
ingest:
  includes: ["**/*.md", "**/*.txt"]
  workers: 2
logging:
  level: error
`

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	rootDir = ""
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("ragpipe %s: %v\n%s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// Commands share package-level flag state, so the whole flow runs in one test
// with each command executed once.
func TestIngestQueryStats(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ragpipe.yaml"), testConfig)
	docs := filepath.Join(dir, "docs")
	writeFile(t, filepath.Join(docs, "a.md"), "alpha beta gamma\n\ndelta epsilon")
	writeFile(t, filepath.Join(docs, "b.txt"), "zeta eta theta")
	writeFile(t, filepath.Join(docs, "skip.bin"), "ignored")

	var split splitOutput
	if err := json.Unmarshal([]byte(execute(t, "split", filepath.Join(docs, "a.md"), "--json", "--dir", dir)), &split); err != nil {
		t.Fatalf("split output: %v", err)
	}
	if len(split.Chunks) != 1 || split.Chunks[0] != "alpha beta gamma\n\ndelta epsilon" {
		t.Errorf("split chunks = %q", split.Chunks)
	}

	summary := execute(t, "ingest", docs, "--owner", "agent-1", "--quiet", "--dir", dir)
	if !strings.Contains(summary, "Files:     2 of 2") || !strings.Contains(summary, "Chunks:    2") {
		t.Errorf("unexpected ingest summary:\n%s", summary)
	}
	if _, err := os.Stat(filepath.Join(dir, ".ragpipe", "chunks.db")); err != nil {
		t.Errorf("store not created: %v", err)
	}

	var results []queryResult
	out := execute(t, "query", "-q", "zeta eta theta", "--owner", "agent-1", "--json", "--dir", dir)
	if err := json.Unmarshal([]byte(out), &results); err != nil {
		t.Fatalf("query output: %v\n%s", err, out)
	}
	if len(results) != 1 || len(results[0].Results) == 0 {
		t.Fatalf("query results = %+v", results)
	}
	top := results[0].Results[0]
	if top.Content != "zeta eta theta" || top.Similarity < 0.999 {
		t.Errorf("top result = %+v", top)
	}

	var stats statsOutput
	if err := json.Unmarshal([]byte(execute(t, "stats", "--json", "--dir", dir)), &stats); err != nil {
		t.Fatalf("stats output: %v", err)
	}
	if stats.Owners["agent-1"] != 2 || len(stats.Owners) != 1 {
		t.Errorf("owners = %v", stats.Owners)
	}
	if stats.Dimension != 64 || stats.SchemaVersion != 1 || stats.Stale {
		t.Errorf("schema = %+v", stats)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc..."},
		{"héllo wörld", 5, "héllo..."},
		{"日本語テキスト", 3, "日本語..."},
	}
	for _, tt := range tests {
		got := truncate(tt.text, tt.n)
		if got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.text, tt.n)
		}
	}
}
