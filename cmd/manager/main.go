// Command manager runs the adapter manager: a cobra CLI that starts a
// Manager wired with a demo clock adapter, a file or no-op tag store, and
// an OTel/Prometheus metrics endpoint.
package main

import (
	"os"

	"github.com/foxbox/adapters/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
