package fs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWalker_IncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":            "readme",
		"docs/guide.md":        "guide",
		"docs/notes.txt":       "notes",
		"main.go":              "package main",
		"vendor/lib/x.md":      "vendored",
		".ragpipe/config.yaml": "store: {}",
	})

	w := NewWalker([]string{"**/*.md", "**/*.txt"}, []string{"**/vendor/**", "**/.ragpipe/**"})
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		got = append(got, filepath.ToSlash(rel))
	}
	want := []string{"README.md", "docs/guide.md", "docs/notes.txt"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWalker_SingleFileRoot(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"data.csv": "a,b"})

	// Explicit files bypass the include globs.
	files, err := NewWalker([]string{"**/*.md"}, nil).Walk(filepath.Join(root, "data.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Size != 3 {
		t.Errorf("expected the single file, got %+v", files)
	}
}

func TestWalker_MissingRoot(t *testing.T) {
	if _, err := NewWalker(nil, nil).Walk(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestReader_ReadFile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "hello\nworld"})

	text, err := NewReader().ReadFile(filepath.Join(root, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if text != "hello\nworld" {
		t.Errorf("unexpected text %q", text)
	}
}

func TestReader_RejectsBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte{0x7f, 'E', 'L', 'F', 0, 1}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader().ReadFile(path); err == nil {
		t.Error("expected error for binary file")
	}
}

func TestReader_InvalidPDF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReader().ReadFile(path); err == nil {
		t.Error("expected error for invalid pdf")
	}
}
