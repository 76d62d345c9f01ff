package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.yaml")
	contents := "fields:\n  title:\n    kind: text\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestStatsCmd_ReportsZeroDocumentsOnFreshStorage(t *testing.T) {
	// Given: a fresh storage root and a lexical-only schema
	dir := t.TempDir()
	schemaPath := writeTestSchema(t, dir)
	storeDir := filepath.Join(dir, "store")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"stats", "--schema", schemaPath, "--storage", storeDir, "--json"})

	// When: running stats
	err := cmd.Execute()

	// Then: it should report zero documents as JSON
	require.NoError(t, err)
	var out statsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, uint64(0), out.LexicalDocumentCount)
}

func TestStatsCmd_PlainOutput(t *testing.T) {
	// Given: a fresh storage root and schema
	dir := t.TempDir()
	schemaPath := writeTestSchema(t, dir)
	storeDir := filepath.Join(dir, "store")

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"stats", "--schema", schemaPath, "--storage", storeDir})

	// When: running stats without --json
	err := cmd.Execute()

	// Then: it should print human-readable lines
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "lexical documents:")
}

func TestStatsCmd_RejectsBadSchemaPath(t *testing.T) {
	// Given: a schema path that does not exist
	dir := t.TempDir()

	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"stats", "--schema", filepath.Join(dir, "missing.yaml"), "--storage", filepath.Join(dir, "store")})

	// When: running stats
	err := cmd.Execute()

	// Then: it should fail
	require.Error(t, err)
}
