package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/engine"
	"github.com/Aman-CERP/amanmcp/internal/engine/storage"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(field, text string) ([]float32, error) {
	var sum float32
	for _, r := range text {
		sum += float32(r)
	}
	return []float32{sum, 1}, nil
}

func (stubEmbedder) EmbedBytes(field string, data []byte, mime string) ([]float32, error) {
	return []float32{float32(len(data)), 1}, nil
}

func testSchema() *engine.Schema {
	s := engine.NewSchema()
	s.Fields["title"] = engine.Lexical(engine.LexicalOption{Kind: engine.LexicalText, Text: engine.DefaultTextOption()})
	return s
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	eng, err := engine.Open(context.Background(), store, testSchema(), stubEmbedder{}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	s, err := NewServer(eng, nil)
	require.NoError(t, err)
	return s
}

func TestNewServer_RejectsNilEngine(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestPutDocumentHandler_ThenSearchHandler_RoundTrips(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, putOut, err := s.mcpPutDocumentHandler(ctx, nil, PutDocumentInput{
		ExternalID: "doc-a",
		Fields:     map[string]any{"title": "a cozy cabin retreat"},
	})
	require.NoError(t, err)
	assert.NotZero(t, putOut.DocID)

	_, searchOut, err := s.mcpSearchHandler(ctx, nil, SearchInput{Query: "cabin"})
	require.NoError(t, err)
	require.Len(t, searchOut.Results, 1)
	assert.Equal(t, "doc-a", searchOut.Results[0].ExternalID)
	assert.Equal(t, "a cozy cabin retreat", searchOut.Results[0].Fields["title"])
}

func TestPutDocumentHandler_RejectsEmptyExternalID(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.mcpPutDocumentHandler(context.Background(), nil, PutDocumentInput{Fields: map[string]any{"title": "x"}})
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestAddDocumentHandler_KeepsEveryChunk(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.mcpAddDocumentHandler(ctx, nil, AddDocumentInput{ExternalID: "doc-a", Fields: map[string]any{"title": "chunk one"}})
	require.NoError(t, err)
	_, _, err = s.mcpAddDocumentHandler(ctx, nil, AddDocumentInput{ExternalID: "doc-a", Fields: map[string]any{"title": "chunk two"}})
	require.NoError(t, err)

	docs, err := s.engine.GetDocuments(ctx, "doc-a")
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDeleteDocumentsHandler_RemovesFromSearch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.mcpPutDocumentHandler(ctx, nil, PutDocumentInput{ExternalID: "doc-a", Fields: map[string]any{"title": "hello"}})
	require.NoError(t, err)

	_, delOut, err := s.mcpDeleteDocumentsHandler(ctx, nil, DeleteDocumentsInput{ExternalID: "doc-a"})
	require.NoError(t, err)
	assert.True(t, delOut.Deleted)

	_, searchOut, err := s.mcpSearchHandler(ctx, nil, SearchInput{Query: "hello"})
	require.NoError(t, err)
	assert.Empty(t, searchOut.Results)
}

func TestSearchHandler_RejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)
	_, _, err := s.mcpSearchHandler(context.Background(), nil, SearchInput{})
	require.Error(t, err)
}

func TestCommitHandler_Succeeds(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.mcpPutDocumentHandler(ctx, nil, PutDocumentInput{ExternalID: "doc-a", Fields: map[string]any{"title": "hello"}})
	require.NoError(t, err)

	_, out, err := s.mcpCommitHandler(ctx, nil, CommitInput{})
	require.NoError(t, err)
	assert.True(t, out.Committed)
}

func TestStatsHandler_ReportsDocumentCount(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, _, err := s.mcpPutDocumentHandler(ctx, nil, PutDocumentInput{ExternalID: "doc-a", Fields: map[string]any{"title": "hello"}})
	require.NoError(t, err)

	_, out, err := s.mcpStatsHandler(ctx, nil, StatsInput{})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), out.LexicalDocumentCount)
}

func TestMapError_NilReturnsNil(t *testing.T) {
	assert.Nil(t, MapError(nil))
}
