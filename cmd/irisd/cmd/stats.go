package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
)

// statsOutput is the JSON shape of "irisd stats".
type statsOutput struct {
	LexicalDocumentCount uint64         `json:"lexical_document_count"`
	VectorFieldCounts    map[string]int `json:"vector_field_counts"`
}

func newStatsCmd() *cobra.Command {
	var schemaPath string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print aggregate document counts for the engine at the configured storage root",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				return fmt.Errorf("--schema is required: a YAML file declaring the engine's field layout")
			}
			return runStats(cmd, schemaPath, jsonOutput)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a schema YAML file (see internal/config.SchemaFile)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}

func runStats(cmd *cobra.Command, schemaPath string, jsonOutput bool) error {
	ctx := cmd.Context()

	cfg, err := config.Load(".")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if storageRoot != "" {
		cfg.Storage.RootPath = storageRoot
	}

	sf, err := config.LoadSchemaFile(schemaPath)
	if err != nil {
		return err
	}
	schema, err := sf.ToEngineSchema()
	if err != nil {
		return fmt.Errorf("invalid schema: %w", err)
	}

	store, err := storage.NewLocalStorage(cfg.Storage.RootPath)
	if err != nil {
		return fmt.Errorf("opening storage root %s: %w", cfg.Storage.RootPath, err)
	}

	eng, err := engine.Open(ctx, store, schema, nil, nil)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	stats := eng.Stats(ctx)
	out := statsOutput{
		LexicalDocumentCount: stats.Lexical.DocumentCount,
		VectorFieldCounts:    stats.Vector.FieldCounts,
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "lexical documents: %d\n", out.LexicalDocumentCount)
	fmt.Fprintf(cmd.OutOrStdout(), "vector field counts: %v\n", out.VectorFieldCounts)
	return nil
}
