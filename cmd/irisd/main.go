// Command irisd is a thin operable entry point over the hybrid search
// engine kernel: an MCP stdio server ("serve") and an interactive query
// shell ("repl"), the way the teacher ships cmd/amanmcp over its own
// search engine.
package main

import (
	"fmt"
	"os"

	"github.com/Aman-CERP/amanmcp/cmd/irisd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
