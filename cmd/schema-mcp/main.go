// Command schema-mcp runs the schema intelligence service described by
// this repository: it reflects a database, builds a Schema Card, and
// exposes query-planning and guarded-execution tools over stdio JSON-RPC.
package main

import (
	"fmt"
	"os"

	"github.com/Mando-03/nl2sql-mcp/cmd/schema-mcp/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCodeFor(err))
	}
}
