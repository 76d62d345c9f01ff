package mcpserver

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanmcp/internal/engine"
)

// PutDocumentInput is the input schema for the put_document tool.
type PutDocumentInput struct {
	ExternalID string         `json:"external_id" jsonschema:"stable id the document is addressed by"`
	Fields     map[string]any `json:"fields" jsonschema:"document field values keyed by schema field name"`
}

// PutDocumentOutput is the output schema for the put_document tool.
type PutDocumentOutput struct {
	DocID uint64 `json:"doc_id" jsonschema:"internal id assigned to the written document"`
}

// AddDocumentInput is the input schema for the add_document tool.
type AddDocumentInput struct {
	ExternalID string         `json:"external_id" jsonschema:"id shared by every chunk of this logical document"`
	Fields     map[string]any `json:"fields" jsonschema:"document field values keyed by schema field name"`
}

// AddDocumentOutput is the output schema for the add_document tool.
type AddDocumentOutput struct {
	DocID uint64 `json:"doc_id" jsonschema:"internal id assigned to the appended document"`
}

// DeleteDocumentsInput is the input schema for the delete_documents tool.
type DeleteDocumentsInput struct {
	ExternalID string `json:"external_id" jsonschema:"id of the document (or chunk group) to delete"`
}

// DeleteDocumentsOutput is the output schema for the delete_documents tool.
type DeleteDocumentsOutput struct {
	Deleted bool `json:"deleted" jsonschema:"true once the delete has been applied"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query  string `json:"query" jsonschema:"query string; a bare term runs lexical search, ~\"text\" runs vector search, and the two can be combined with AND/OR"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Offset int    `json:"offset,omitempty" jsonschema:"number of top results to skip, for pagination"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"ranked, fused search results"`
}

// SearchResultOutput is a single hydrated, ranked hit.
type SearchResultOutput struct {
	ExternalID string         `json:"external_id" jsonschema:"the document's external id"`
	DocID      uint64         `json:"doc_id" jsonschema:"internal id of the matched document"`
	Score      float64        `json:"score" jsonschema:"fused relevance score"`
	Fields     map[string]any `json:"fields" jsonschema:"the matched document's stored fields"`
}

// CommitInput is the (empty) input schema for the commit tool.
type CommitInput struct{}

// CommitOutput is the output schema for the commit tool.
type CommitOutput struct {
	Committed bool `json:"committed"`
}

// StatsInput is the (empty) input schema for the stats tool.
type StatsInput struct{}

// StatsOutput is the output schema for the stats tool.
type StatsOutput struct {
	LexicalDocumentCount uint64         `json:"lexical_document_count" jsonschema:"documents live in the lexical index"`
	VectorFieldCounts    map[string]int `json:"vector_field_counts" jsonschema:"per-field vector counts"`
}

func (s *Server) registerTools() {
	s.logger.Debug("registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "put_document",
		Description: "Write a document under an external id, replacing any document(s) previously stored under that id. Use for upserts of a single logical record.",
	}, s.mcpPutDocumentHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "add_document",
		Description: "Append a document under an external id without removing prior documents sharing that id. Use to index multiple chunks of one logical source under a shared id.",
	}, s.mcpAddDocumentHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "delete_documents",
		Description: "Delete every document stored under an external id. Idempotent: deleting an id with no documents succeeds silently.",
	}, s.mcpDeleteDocumentsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Run a hybrid lexical + vector search and return fused, ranked, hydrated results. Use ~\"...\" for the vector leg of a query.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "commit",
		Description: "Flush pending writes from the write-ahead log into durable segments. Safe to call at any time; a crash before commit simply replays on next open.",
	}, s.mcpCommitHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "stats",
		Description: "Report aggregate document counts across the lexical and vector sub-stores.",
	}, s.mcpStatsHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 6))
}

func (s *Server) mcpPutDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input PutDocumentInput) (
	*mcp.CallToolResult, PutDocumentOutput, error,
) {
	if input.ExternalID == "" {
		return nil, PutDocumentOutput{}, NewInvalidParamsError("external_id is required")
	}
	doc, err := fieldsFromJSON(input.Fields)
	if err != nil {
		return nil, PutDocumentOutput{}, NewInvalidParamsError(err.Error())
	}
	docID, err := s.engine.PutDocument(ctx, input.ExternalID, doc)
	if err != nil {
		return nil, PutDocumentOutput{}, MapError(err)
	}
	return nil, PutDocumentOutput{DocID: docID}, nil
}

func (s *Server) mcpAddDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input AddDocumentInput) (
	*mcp.CallToolResult, AddDocumentOutput, error,
) {
	if input.ExternalID == "" {
		return nil, AddDocumentOutput{}, NewInvalidParamsError("external_id is required")
	}
	doc, err := fieldsFromJSON(input.Fields)
	if err != nil {
		return nil, AddDocumentOutput{}, NewInvalidParamsError(err.Error())
	}
	docID, err := s.engine.AddDocument(ctx, input.ExternalID, doc)
	if err != nil {
		return nil, AddDocumentOutput{}, MapError(err)
	}
	return nil, AddDocumentOutput{DocID: docID}, nil
}

func (s *Server) mcpDeleteDocumentsHandler(ctx context.Context, _ *mcp.CallToolRequest, input DeleteDocumentsInput) (
	*mcp.CallToolResult, DeleteDocumentsOutput, error,
) {
	if input.ExternalID == "" {
		return nil, DeleteDocumentsOutput{}, NewInvalidParamsError("external_id is required")
	}
	if err := s.engine.DeleteDocuments(ctx, input.ExternalID); err != nil {
		return nil, DeleteDocumentsOutput{}, MapError(err)
	}
	return nil, DeleteDocumentsOutput{Deleted: true}, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult, SearchOutput, error,
) {
	if input.Query == "" {
		return nil, SearchOutput{}, NewInvalidParamsError("query is required")
	}
	limit := 10
	if input.Limit > 0 {
		limit = input.Limit
	}

	results, err := s.engine.Search(ctx, engine.SearchRequest{
		QueryString: input.Query,
		Offset:      input.Offset,
		Limit:       limit,
	})
	if err != nil {
		return nil, SearchOutput{}, MapError(err)
	}

	out := SearchOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		res := SearchResultOutput{
			ExternalID: r.ExternalID,
			DocID:      r.DocID,
			Score:      r.Score,
		}
		if r.Document != nil {
			res.Fields = fieldsToJSON(r.Document)
		}
		out.Results = append(out.Results, res)
	}
	return nil, out, nil
}

func (s *Server) mcpCommitHandler(ctx context.Context, _ *mcp.CallToolRequest, _ CommitInput) (
	*mcp.CallToolResult, CommitOutput, error,
) {
	if err := s.engine.Commit(ctx); err != nil {
		return nil, CommitOutput{}, MapError(err)
	}
	return nil, CommitOutput{Committed: true}, nil
}

func (s *Server) mcpStatsHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StatsInput) (
	*mcp.CallToolResult, StatsOutput, error,
) {
	stats := s.engine.Stats(ctx)
	return nil, StatsOutput{
		LexicalDocumentCount: stats.Lexical.DocumentCount,
		VectorFieldCounts:    stats.Vector.FieldCounts,
	}, nil
}
