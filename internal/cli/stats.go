package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ragpipe/internal/adapter/store"
	"ragpipe/internal/port"
)

var (
	statsOwner string
	statsJSON  bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show chunk counts and schema information",
	Long: `Show how many chunks are stored per owner, along with the schema the
store was built with.

Examples:
  ragpipe stats
  ragpipe stats --owner agent-1 --json`,
	Args: cobra.NoArgs,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().StringVar(&statsOwner, "owner", "", "only count this owner's chunks")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output as JSON")
}

type statsOutput struct {
	Store         string         `json:"store"`
	SchemaVersion int            `json:"schema_version"`
	ConfigHash    string         `json:"config_hash"`
	Dimension     int            `json:"dimension"`
	Stale         bool           `json:"stale"`
	Owners        map[string]int `json:"owners"`
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	st, storePath, err := openStore(cfg, GetRootDir(), true)
	if err != nil {
		return err
	}
	defer st.Close()

	info, err := st.GetSchemaInfo(ctx)
	if err != nil {
		return err
	}

	owners := []string{statsOwner}
	if statsOwner == "" {
		lister, ok := st.(port.OwnerLister)
		if !ok {
			return fmt.Errorf("store %q cannot list owners; pass --owner", cfg.Store.Driver)
		}
		if owners, err = lister.Owners(ctx); err != nil {
			return err
		}
	}

	output := statsOutput{
		Store:         storePath,
		SchemaVersion: info.Version,
		ConfigHash:    info.ConfigHash,
		Dimension:     info.Dimension,
		Stale:         info.ConfigHash != "" && info.ConfigHash != store.ComputeConfigHash(cfg),
		Owners:        make(map[string]int, len(owners)),
	}
	for _, owner := range owners {
		n, err := st.Count(ctx, owner)
		if err != nil {
			return err
		}
		output.Owners[owner] = n
	}

	w := out(cmd)
	if statsJSON {
		data, _ := json.MarshalIndent(output, "", "  ")
		fmt.Fprintln(w, string(data))
		return nil
	}

	fmt.Fprintf(w, "Store:     %s\n", output.Store)
	fmt.Fprintf(w, "Schema:    v%d (config %s)\n", output.SchemaVersion, output.ConfigHash)
	fmt.Fprintf(w, "Dimension: %d\n", output.Dimension)
	if output.Stale {
		fmt.Fprintln(w, "Warning:   configuration changed since the store was built; run ingest with --rebuild")
	}
	fmt.Fprintf(w, "\nOwners (%d):\n", len(owners))
	for _, owner := range owners {
		fmt.Fprintf(w, "  %-20s %d chunks\n", owner, output.Owners[owner])
	}
	return nil
}
