// Command orionctl trains and queries the demand forecaster, reports on the
// decision log, runs database migrations and registers the MCP server.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
