package cli

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"ragpipe/internal/adapter/cache"
	"ragpipe/internal/adapter/embedding"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
	"ragpipe/internal/usecase"
)

var (
	queryTexts         []string
	queryOwner         string
	queryTopK          int
	queryMinSimilarity float64
	queryJSON          bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Retrieve an owner's chunks most similar to a query",
	Long: `Embed one or more queries and print the owner's most similar chunks.

Examples:
  ragpipe query -q "refund policy" --owner agent-1
  ragpipe query -q "install" -q "upgrade" --owner agent-1 -k 3 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringArrayVarP(&queryTexts, "query", "q", nil, "search query, repeatable (required)")
	queryCmd.Flags().StringVar(&queryOwner, "owner", "", "owner id to search (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().Float64Var(&queryMinSimilarity, "min-similarity", -2, "similarity threshold (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	queryCmd.MarkFlagRequired("query")
	queryCmd.MarkFlagRequired("owner")
}

type queryResult struct {
	Query   string               `json:"query"`
	Results []domain.ScoredChunk `json:"results"`
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()

	st, _, err := openStore(cfg, GetRootDir(), true)
	if err != nil {
		return err
	}
	defer st.Close()

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}

	topK := cfg.Retrieve.TopK
	if queryTopK > 0 {
		topK = queryTopK
	}
	minSimilarity := cfg.Retrieve.MinSimilarity
	if cmd.Flags().Changed("min-similarity") {
		minSimilarity = queryMinSimilarity
	}

	var retriever port.Retriever = usecase.NewRetrieveUseCase(emb, st, logger)
	if cfg.Retrieve.CacheSize > 0 {
		ttl := time.Duration(cfg.Retrieve.CacheTTLSecs) * time.Second
		retriever = cache.NewCachedRetriever(retriever, cache.NewQueryCache(cfg.Retrieve.CacheSize, ttl))
	}

	all, err := usecase.SearchAll(ctx, retriever, queryOwner, queryTexts, topK, minSimilarity)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	results := make([]queryResult, len(queryTexts))
	for i, q := range queryTexts {
		results[i] = queryResult{Query: q, Results: all[i]}
		if results[i].Results == nil {
			results[i].Results = []domain.ScoredChunk{}
		}
	}

	w := out(cmd)
	if queryJSON {
		output, _ := json.MarshalIndent(results, "", "  ")
		fmt.Fprintln(w, string(output))
		return nil
	}

	for _, r := range results {
		if len(r.Results) == 0 {
			fmt.Fprintf(w, "No results found for: %s\n\n", r.Query)
			continue
		}
		fmt.Fprintf(w, "Found %d results for: %s\n\n", len(r.Results), r.Query)
		for i, c := range r.Results {
			fmt.Fprintf(w, "--- [%d] %s#%d (similarity: %.4f) ---\n", i+1, c.SourceID, c.Index, c.Similarity)
			fmt.Fprintln(w, truncate(c.Content, 500))
			fmt.Fprintln(w)
		}
	}
	return nil
}

// truncate shortens text to at most n runes for display.
func truncate(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n]) + "..."
}
