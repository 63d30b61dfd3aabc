// Command foxbox-adapters is the root entrypoint, mirrored by
// cmd/manager for callers that prefer `go run ./cmd/manager` explicitly.
package main

import (
	"os"

	"github.com/foxbox/adapters/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
