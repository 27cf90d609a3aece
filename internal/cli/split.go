package cli

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"ragpipe/internal/adapter/fs"
	"ragpipe/internal/domain"
)

var (
	splitJSON    bool
	splitSize    int
	splitOverlap int
	splitPreset  string
)

var splitCmd = &cobra.Command{
	Use:   "split FILE",
	Short: "Preview how a file is split into chunks",
	Long: `Split a file with the configured splitter and print the chunks.
Nothing is embedded or stored.

Examples:
  ragpipe split README.md
  ragpipe split main.go --preset go --size 400 --overlap 50 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "output as JSON")
	splitCmd.Flags().IntVar(&splitSize, "size", 0, "chunk size in characters (default from config)")
	splitCmd.Flags().IntVar(&splitOverlap, "overlap", -1, "chunk overlap in characters (default from config)")
	splitCmd.Flags().StringVar(&splitPreset, "preset", "", "separator preset (default from config)")
}

type splitOutput struct {
	Chunks      []string            `json:"chunks"`
	Diagnostics []domain.Diagnostic `json:"diagnostics"`
}

func runSplit(cmd *cobra.Command, args []string) error {
	scfg := GetConfig().Splitter
	if splitSize > 0 {
		scfg.ChunkSize = splitSize
	}
	if splitOverlap >= 0 {
		scfg.ChunkOverlap = splitOverlap
	}
	if splitPreset != "" {
		scfg.Preset = splitPreset
		scfg.Separators = nil
	}

	sp, err := newSplitter(scfg, GetLogger())
	if err != nil {
		return err
	}

	text, err := fs.NewReader().ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	chunks, diags := sp.SplitWithDiagnostics(text)
	w := out(cmd)

	if splitJSON {
		output, _ := json.MarshalIndent(splitOutput{Chunks: chunks, Diagnostics: diags}, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	fmt.Fprintf(w, "%d chunks (size %d, overlap %d)\n\n", len(chunks), scfg.ChunkSize, scfg.ChunkOverlap)
	for i, c := range chunks {
		fmt.Fprintf(w, "--- [%d] %d chars ---\n", i, utf8.RuneCountInString(c))
		fmt.Fprintln(w, c)
		fmt.Fprintln(w)
	}
	if len(diags) > 0 {
		fmt.Fprintf(w, "Oversized chunks (%d):\n", len(diags))
		for _, d := range diags {
			fmt.Fprintf(w, "  - %d > %d: %q\n", d.Size, d.Limit, d.Preview)
		}
	}
	return nil
}
