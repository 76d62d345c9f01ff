package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	// When: executing with --help
	err := cmd.Execute()

	// Then: it should show usage naming the program
	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "irisd")
	assert.Contains(t, output, "Usage:")
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	// Given: the root command

	// When: listing its subcommands
	var names []string
	for _, c := range NewRootCmd().Commands() {
		names = append(names, c.Name())
	}

	// Then: serve, repl, stats, and version should all be present
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "repl")
	assert.Contains(t, names, "stats")
	assert.Contains(t, names, "version")
}

func TestRootCmd_HasStorageAndDebugFlags(t *testing.T) {
	// Given: the root command
	cmd := NewRootCmd()

	// Then: its persistent flags should include --storage and --debug
	assert.NotNil(t, cmd.PersistentFlags().Lookup("storage"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("debug"))
}

func TestServeCmd_RequiresSchemaFlag(t *testing.T) {
	// Given: the serve command with no --schema
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"serve"})

	// When: executing
	err := cmd.Execute()

	// Then: it should reject the missing flag
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--schema")
}

func TestReplCmd_RequiresSchemaFlag(t *testing.T) {
	// Given: the repl command with no --schema
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"repl"})

	// When: executing
	err := cmd.Execute()

	// Then: it should reject the missing flag
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--schema")
}

func TestStatsCmd_RequiresSchemaFlag(t *testing.T) {
	// Given: the stats command with no --schema
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"stats"})

	// When: executing
	err := cmd.Execute()

	// Then: it should reject the missing flag
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--schema")
}
