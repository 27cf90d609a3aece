package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragpipe/internal/adapter/embedding"
	"ragpipe/internal/adapter/fs"
	"ragpipe/internal/port"
	"ragpipe/internal/usecase"
)

var (
	ingestOwner   string
	ingestRebuild bool
	ingestQuiet   bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest PATH...",
	Short: "Split, embed and store documents for an owner",
	Long: `Ingest files or directories for one owner. Each file replaces the chunks
it produced last time, so re-running ingest is safe.

Examples:
  ragpipe ingest ./docs --owner agent-1
  ragpipe ingest notes.md manual.pdf --owner agent-2 --rebuild`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&ingestOwner, "owner", "", "owner id the documents belong to (required)")
	ingestCmd.Flags().BoolVar(&ingestRebuild, "rebuild", false, "drop every stored chunk before ingesting")
	ingestCmd.Flags().BoolVar(&ingestQuiet, "quiet", false, "hide the progress bar")
	ingestCmd.MarkFlagRequired("owner")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()
	w := out(cmd)

	// Collect files before touching the store
	walker := fs.NewWalker(cfg.Ingest.Includes, cfg.Ingest.Excludes)
	var files []port.FileInfo
	for _, arg := range args {
		path, err := filepath.Abs(arg)
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("path does not exist: %w", err)
		}
		found, err := walker.Walk(path)
		if err != nil {
			return fmt.Errorf("failed to walk %s: %w", path, err)
		}
		files = append(files, found...)
	}
	if len(files) == 0 {
		fmt.Fprintln(w, "No matching files found.")
		return nil
	}

	sp, err := newSplitter(cfg.Splitter, logger)
	if err != nil {
		return err
	}
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	st, storePath, err := openStore(cfg, GetRootDir(), false)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := prepareStore(ctx, st, cfg, emb.Dimension(), ingestRebuild, logger); err != nil {
		return err
	}

	uc := usecase.NewIngestUseCase(sp, emb, st, logger, usecase.WithWorkers(cfg.Ingest.Workers))

	var progress func(usecase.FileOutcome)
	if !ingestQuiet {
		bar := progressbar.NewOptions(len(files),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() {
				fmt.Fprintln(cmd.ErrOrStderr())
			}),
		)
		var mu sync.Mutex
		progress = func(usecase.FileOutcome) {
			mu.Lock()
			defer mu.Unlock()
			bar.Add(1)
		}
	}

	start := time.Now()
	outcomes, err := uc.IngestFiles(ctx, ingestOwner, files, fs.NewReader(), progress)
	if err != nil {
		return fmt.Errorf("ingest interrupted: %w", err)
	}

	var ingested, chunks, oversized int
	var failures []usecase.FileOutcome
	for _, o := range outcomes {
		if o.Err != nil {
			failures = append(failures, o)
			continue
		}
		if o.Result == nil {
			continue
		}
		ingested++
		chunks += o.Result.Chunks
		oversized += len(o.Result.Diagnostics)
	}

	fmt.Fprintf(w, "Ingest complete:\n")
	fmt.Fprintf(w, "  Owner:     %s\n", ingestOwner)
	fmt.Fprintf(w, "  Files:     %d of %d\n", ingested, len(files))
	fmt.Fprintf(w, "  Chunks:    %d\n", chunks)
	fmt.Fprintf(w, "  Oversized: %d\n", oversized)
	fmt.Fprintf(w, "  Model:     %s\n", emb.ModelName())
	fmt.Fprintf(w, "  Store:     %s\n", storePath)
	fmt.Fprintf(w, "  Duration:  %s\n", time.Since(start).Round(time.Millisecond))

	if len(failures) > 0 {
		fmt.Fprintf(w, "\nWarnings (%d):\n", len(failures))
		for _, f := range failures {
			fmt.Fprintf(w, "  - %v\n", f.Err)
		}
	}
	return nil
}
