package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/config"
	"github.com/Aman-CERP/amanmcp/internal/embed"
	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
	"github.com/Aman-CERP/amanmcp/internal/mcpserver"
)

// newServeCmd creates the serve command: an MCP stdio server fronting one
// open Engine, the way the teacher's "amanmcp serve" (driven by
// internal/mcp.Server) fronts its code index.
func newServeCmd() *cobra.Command {
	var schemaPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP stdio server",
		Long: `Start an MCP server exposing put_document, add_document,
delete_documents, search, commit and stats as tools over stdio.

MCP protocol requires stdout to be used EXCLUSIVELY for JSON-RPC messages;
this command writes no other output to stdout.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schemaPath == "" {
				return fmt.Errorf("--schema is required: a YAML file declaring the engine's field layout")
			}
			return runServe(cmd, schemaPath)
		},
	}

	cmd.Flags().StringVar(&schemaPath, "schema", "", "path to a schema YAML file (see internal/config.SchemaFile)")
	return cmd
}

func runServe(cmd *cobra.Command, schemaPath string) error {
	// Ctrl+C / SIGTERM should stop the stdio serve loop gracefully rather
	// than killing the process mid-write, the way the teacher's long-running
	// commands (index, init, doctor) wire signal.NotifyContext.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	var embedder engine.Embedder
	if len(schema.VectorFieldNames()) > 0 {
		embedder, err = openConfiguredEmbedder(ctx, cfg)
		if err != nil {
			return fmt.Errorf("initializing embedder: %w", err)
		}
	}

	eng, err := engine.Open(ctx, store, schema, embedder, nil)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}
	defer eng.Close()

	srv, err := mcpserver.NewServer(eng, nil)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Serve(ctx)
}

// engineEmbedderAdapter bridges internal/embed.Embedder (the teacher's
// Ollama/MLX/static provider stack) to the engine's narrower
// vector.Embedder interface, so irisd's real embedding backends are
// reachable from the hybrid search kernel instead of a test stub.
type engineEmbedderAdapter struct {
	inner embed.Embedder
}

func (a engineEmbedderAdapter) EmbedText(field, text string) ([]float32, error) {
	// vector.Embedder carries no context.Context; the engine calls it
	// synchronously from within an already-context-bound operation, so a
	// background context here just defers cancellation to the provider's
	// own request timeout (internal/embed.Embedder providers each enforce
	// their own via DefaultWarmTimeout/DefaultColdTimeout).
	return a.inner.Embed(context.Background(), text)
}

func (a engineEmbedderAdapter) EmbedBytes(field string, data []byte, mime string) ([]float32, error) {
	// The embedding providers this repo carries (Ollama, MLX, static hash)
	// are all text embedders, so a bytes field cannot be embedded through
	// this adapter: every call returns an error, whatever the bytes hold.
	return nil, fmt.Errorf("embedding raw bytes for field %q is not supported by the configured embedder", field)
}

func openConfiguredEmbedder(ctx context.Context, cfg *config.Config) (engine.Embedder, error) {
	if cfg.Embedding.Provider == "" {
		return nil, fmt.Errorf("no embedder configured: set embedding.provider in config or omit vector fields from the schema")
	}
	inner, err := embed.NewEmbedder(ctx, embed.ProviderType(cfg.Embedding.Provider), cfg.Embedding.Model)
	if err != nil {
		return nil, err
	}
	return engineEmbedderAdapter{inner: inner}, nil
}
